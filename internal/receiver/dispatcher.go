// Package receiver implements the server side of the transfer protocol: a
// per-datagram dispatcher that keeps one write state per client origin.
package receiver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/1ureka/rdtcopy/internal/audit"
	"github.com/1ureka/rdtcopy/internal/protocol"
	"github.com/1ureka/rdtcopy/internal/util"
)

// ErrBadPath is returned for META paths that resolve to the root itself.
var ErrBadPath = errors.New("invalid output path")

// Options configures a Dispatcher.
type Options struct {
	RootDir string
	Loss    LossEmulator // nil means NoLoss
	Audit   *audit.Sink  // nil discards events

	// Exclusive allows at most one active transfer per process.
	Exclusive bool
	// IdleTimeout releases transfers idle for this long; 0 keeps them forever.
	IdleTimeout time.Duration
}

// Dispatcher maintains the origin → transfer table. It processes one datagram
// at a time and is not safe for concurrent use; the server loop is its only
// caller.
type Dispatcher struct {
	root      string
	loss      LossEmulator
	audit     *audit.Sink
	exclusive bool
	idle      time.Duration

	transfers map[string]*transfer // by origin
	owners    map[string]string    // output path → origin

	conflictWarn rate.Sometimes
	now          func() time.Time
}

// NewDispatcher creates the root directory if needed and returns an empty
// dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	root, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", opts.RootDir, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root %s: %w", root, err)
	}

	loss := opts.Loss
	if loss == nil {
		loss = NoLoss{}
	}

	return &Dispatcher{
		root:         root,
		loss:         loss,
		audit:        opts.Audit,
		exclusive:    opts.Exclusive,
		idle:         opts.IdleTimeout,
		transfers:    make(map[string]*transfer),
		owners:       make(map[string]string),
		conflictWarn: rate.Sometimes{Interval: 5 * time.Second},
		now:          time.Now,
	}, nil
}

// Handle processes one datagram from origin and returns the ACK to send back,
// or nil when nothing must be sent. A non-nil error is a local I/O failure on
// the output side and is fatal to the server.
func (d *Dispatcher) Handle(datagram []byte, origin string) ([]byte, error) {
	hdr, err := protocol.PeekHeader(datagram)
	if err != nil {
		util.LogDebug("[%s] %v", origin, err)
		return nil, nil
	}

	if d.loss.Drop() {
		util.Stats.AddDrop()
		kind := audit.KindDropData
		if hdr.Kind != protocol.KindData {
			kind = audit.KindDropMeta
		}
		d.record(origin, kind, hdr.SeqNum)
		return nil, nil
	}

	f, err := protocol.Decode(datagram)
	if err != nil {
		// The sender's retransmission timer recovers this.
		util.Stats.AddCorrupt()
		util.LogDebug("[%s] discarding seq %d: %v", origin, hdr.SeqNum, err)
		return nil, nil
	}

	now := d.now()
	d.expire(now)

	switch {
	case f.Kind == protocol.KindMeta && f.SeqNum == 0:
		accepted, err := d.open(origin, string(f.Payload), now)
		if err != nil {
			return nil, err
		}
		if !accepted {
			return nil, nil
		}

	case f.Kind == protocol.KindData:
		if err := d.write(origin, f, now); err != nil {
			return nil, err
		}
	}

	if d.loss.Drop() {
		util.Stats.AddDrop()
		d.record(origin, audit.KindDropAck, f.SeqNum)
		return nil, nil
	}

	d.record(origin, audit.KindAck, f.SeqNum)
	return protocol.Encode(protocol.NewAck(f.Tag, f.SeqNum)), nil
}

// open starts (or restarts) origin's transfer to rel. It reports false when
// the META is rejected, either for a bad path or because another origin owns
// the output.
func (d *Dispatcher) open(origin, rel string, now time.Time) (bool, error) {
	path, err := d.resolve(rel)
	if err != nil {
		util.LogDebug("[%s] rejecting META %q: %v", origin, rel, err)
		return false, nil
	}

	if owner, ok := d.owners[path]; ok && owner != origin {
		d.warnConflict(origin, owner, rel)
		return false, nil
	}
	if d.exclusive {
		for owner := range d.transfers {
			if owner != origin {
				d.warnConflict(origin, owner, rel)
				return false, nil
			}
		}
	}

	if cur, ok := d.transfers[origin]; ok {
		d.release(cur)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("failed to open output %s: %w", path, err)
	}

	d.transfers[origin] = &transfer{
		owner:    origin,
		path:     path,
		file:     file,
		expected: 1,
		lastSeen: now,
	}
	d.owners[path] = origin
	util.LogInfo("[%s] receiving %s", origin, path)
	return true, nil
}

// write appends f's payload when it is the next expected frame of origin's
// transfer. Every other DATA frame is acknowledged without being written.
func (d *Dispatcher) write(origin string, f *protocol.Frame, now time.Time) error {
	t, ok := d.transfers[origin]
	if !ok {
		return nil
	}
	t.lastSeen = now
	if f.SeqNum != t.expected {
		return nil
	}
	if _, err := t.file.Write(f.Payload); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.path, err)
	}
	t.expected++
	return nil
}

// resolve maps a client-supplied relative path into the root directory.
func (d *Dispatcher) resolve(rel string) (string, error) {
	path := filepath.Join(d.root, filepath.Clean("/"+rel))
	if path == d.root {
		return "", ErrBadPath
	}
	return path, nil
}

// expire releases transfers that have been idle longer than the idle timeout.
func (d *Dispatcher) expire(now time.Time) {
	if d.idle <= 0 {
		return
	}
	for _, t := range d.transfers {
		if now.Sub(t.lastSeen) > d.idle {
			util.LogInfo("[%s] transfer of %s idle for %s, releasing", t.owner, t.path, d.idle)
			d.release(t)
		}
	}
}

func (d *Dispatcher) release(t *transfer) {
	if err := t.close(); err != nil {
		util.LogWarning("[%s] failed to close %s: %v", t.owner, t.path, err)
	}
	delete(d.transfers, t.owner)
	delete(d.owners, t.path)
}

func (d *Dispatcher) warnConflict(origin, owner, rel string) {
	util.LogDebug("[%s] META %q rejected: transfer in progress by %s", origin, rel, owner)
	d.conflictWarn.Do(func() {
		util.LogWarning("file is in progress by another client (%s), ignoring %s", owner, origin)
	})
}

func (d *Dispatcher) record(origin, kind string, seq uint32) {
	d.audit.Record(audit.Event{Peer: origin, Kind: kind, Seq: seq})
}

// Transfers returns a snapshot of the active transfers ordered by origin.
func (d *Dispatcher) Transfers() []TransferInfo {
	infos := make([]TransferInfo, 0, len(d.transfers))
	for _, t := range d.transfers {
		infos = append(infos, TransferInfo{Origin: t.owner, Path: t.path, Expected: t.expected})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Origin < infos[j].Origin })
	return infos
}

// Close closes every open output.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, t := range d.transfers {
		if err := t.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
