// Package sender implements the Go-Back-N style sliding-window sender that
// delivers one file over one unreliable datagram channel.
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/rdtcopy/internal/audit"
	"github.com/1ureka/rdtcopy/internal/protocol"
	"github.com/1ureka/rdtcopy/internal/transport"
	"github.com/1ureka/rdtcopy/internal/util"
)

// Options tunes one Session. All durations must be positive.
type Options struct {
	Tag          string
	EffectiveMSS int // payload bytes per DATA frame
	WindowSize   int
	PollInterval time.Duration // bounded wait for an ACK per loop turn
	Timeout      time.Duration // per-frame retransmission timeout
	Deadline     time.Duration // whole-session ceiling
	MaxRetries   int           // retransmissions allowed per frame

	Audit *audit.Sink // nil discards events
}

// Session holds the complete state of one transfer to one destination.
// It is goroutine-local: only Run touches it, and no two sessions share a
// channel, a source reader or a window.
type Session struct {
	id         string
	ch         transport.Channel
	src        io.Reader
	remotePath string
	opts       Options

	win   *window
	base  uint32 // oldest unacknowledged seq
	next  uint32 // seq of the next new DATA frame
	eof   bool
	read  int64
	acked uint32

	readBuf []byte
}

// New creates a Session that streams src to remotePath over ch.
func New(ch transport.Channel, src io.Reader, remotePath string, opts Options) *Session {
	if opts.WindowSize < 1 {
		opts.WindowSize = 1
	}
	if opts.EffectiveMSS < 1 {
		opts.EffectiveMSS = 1
	}
	return &Session{
		id:         uuid.NewString(),
		ch:         ch,
		src:        src,
		remotePath: remotePath,
		opts:       opts,
		win:        newWindow(opts.WindowSize),
		base:       1,
		next:       1,
		readBuf:    make([]byte, opts.EffectiveMSS),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Run drives the session until it completes, exhausts a frame's retries,
// passes its deadline, hits a local I/O error or ctx is cancelled. A single
// goroutine alternates window fill, a bounded receive and a timer sweep, so
// no step blocks for longer than the poll interval.
func (s *Session) Run(ctx context.Context) Result {
	started := time.Now()
	res := Result{SessionID: s.id, Peer: s.ch.Peer()}
	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Frames = s.acked
		res.Bytes = s.read
		res.Elapsed = time.Since(started)
		return res
	}

	s.announce()

	buf := make([]byte, protocol.MaxFrameSize)
	for {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return finish(Cancelled)
		}

		if err := s.fill(); err != nil {
			res.Err = err
			return finish(LocalIOError)
		}

		n, err := s.ch.Receive(buf, s.opts.PollInterval)
		switch {
		case err == nil:
			s.onDatagram(buf[:n])
		case errors.Is(err, transport.ErrIdle):
		default:
			res.Err = fmt.Errorf("receive from %s: %w", s.ch.Peer(), err)
			return finish(LocalIOError)
		}

		if seq, exceeded := s.sweep(time.Now()); exceeded {
			util.LogError("[%s] reached max re-transmission limit for %s (seq %d)", s.short(), s.ch.Peer(), seq)
			res.Seq = seq
			return finish(RetryLimitExceeded)
		}

		if s.eof && s.base == s.next {
			return finish(Completed)
		}

		if time.Since(started) > s.opts.Deadline {
			util.LogError("[%s] cannot reach server %s within %s", s.short(), s.ch.Peer(), s.opts.Deadline)
			return finish(DeadlineExceeded)
		}
	}
}

// announce sends the META frame once. It is not acknowledgment-gated.
func (s *Session) announce() {
	meta := protocol.Encode(protocol.NewMeta(s.opts.Tag, s.remotePath))
	s.transmit(meta)
	util.LogDebug("[%s] META %q sent to %s", s.short(), s.remotePath, s.ch.Peer())
}

// fill reads and sends new DATA frames while the window has room.
func (s *Session) fill() error {
	for !s.eof && s.next < s.base+s.win.size() {
		n, err := io.ReadFull(s.src, s.readBuf)
		switch {
		case errors.Is(err, io.EOF):
			s.eof = true
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			s.eof = true
		case err != nil:
			return fmt.Errorf("read source: %w", err)
		}

		payload := make([]byte, n)
		copy(payload, s.readBuf[:n])
		s.read += int64(n)

		frame := protocol.Encode(protocol.NewData(s.opts.Tag, s.next, payload))
		s.win.store(s.next, frame, time.Now())
		s.transmit(frame)
		s.record(audit.KindData, s.next)
		s.next++
	}
	return nil
}

// onDatagram applies an inbound ACK. Anything that fails the checksum or is
// not an ACK is ignored.
func (s *Session) onDatagram(data []byte) {
	f, err := protocol.Decode(data)
	if err != nil {
		util.Stats.AddCorrupt()
		util.LogDebug("[%s] discarding datagram from %s: %v", s.short(), s.ch.Peer(), err)
		return
	}
	if f.Kind != protocol.KindMeta {
		return
	}

	ack := f.SeqNum
	// The receiver acknowledges whatever it received, so any ACK at or past
	// base slides the window.
	if ack >= s.base && ack < s.next {
		s.acked += ack + 1 - s.base
		s.base = ack + 1
	}
	s.record(audit.KindAck, ack)
}

// sweep retransmits every in-flight frame whose timer has expired. It reports
// the first frame whose retry counter exceeds the ceiling.
func (s *Session) sweep(now time.Time) (uint32, bool) {
	for seq := s.base; seq < s.next; seq++ {
		sl := s.win.at(seq)
		if now.Sub(sl.sentAt) < s.opts.Timeout {
			continue
		}
		sl.retries++
		if sl.retries > s.opts.MaxRetries {
			return seq, true
		}
		s.transmit(sl.frame)
		sl.sentAt = now
		util.Stats.AddRetransmit()
		util.LogDebug("[%s] packet loss detected, seq %d retry %d", s.short(), seq, sl.retries)
		s.record(audit.KindRetransmit, seq)
	}
	return 0, false
}

// transmit hands a datagram to the channel. Send failures are treated like
// loss; the retransmission timer covers them.
func (s *Session) transmit(datagram []byte) {
	if err := s.ch.Send(datagram); err != nil {
		util.LogDebug("[%s] send to %s failed: %v", s.short(), s.ch.Peer(), err)
	}
}

func (s *Session) record(kind string, seq uint32) {
	s.opts.Audit.Record(audit.Event{
		Peer:      s.ch.Peer(),
		Kind:      kind,
		Seq:       seq,
		HasWindow: true,
		Base:      s.base,
		Next:      s.next,
		End:       s.base + s.win.size(),
	})
}

func (s *Session) short() string {
	return s.id[:8]
}
