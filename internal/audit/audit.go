// Package audit records one line per protocol event so that ARQ behavior can
// be verified after the fact.
package audit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event kinds.
const (
	KindData       = "DATA"
	KindAck        = "ACK"
	KindRetransmit = "RETRANSMIT"
	KindDropData   = "DROP DATA"
	KindDropMeta   = "DROP META"
	KindDropAck    = "DROP ACK"
)

// TimeFormat is RFC3339 with milliseconds, always in UTC.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Event is one protocol transition. Window fields are only meaningful on the
// sender side.
type Event struct {
	Time      time.Time `json:"time"`
	Peer      string    `json:"peer"`
	Kind      string    `json:"kind"`
	Seq       uint32    `json:"seq"`
	HasWindow bool      `json:"-"`
	Base      uint32    `json:"base,omitempty"`
	Next      uint32    `json:"next,omitempty"`
	End       uint32    `json:"end,omitempty"`
}

// Line renders the event as a comma-separated audit line without newline.
func (e Event) Line() string {
	ts := e.Time.UTC().Format(TimeFormat)
	if !e.HasWindow {
		return fmt.Sprintf("%s, %s, %s, %d", ts, e.Peer, e.Kind, e.Seq)
	}
	return fmt.Sprintf("%s, %s, %s, %d, %d, %d, %d", ts, e.Peer, e.Kind, e.Seq, e.Base, e.Next, e.End)
}

// Observer receives every recorded event after it has been written.
type Observer interface {
	Observe(Event)
}

// Sink serializes appends from any number of goroutines onto one writer.
type Sink struct {
	mu        sync.Mutex
	w         *bufio.Writer
	closer    io.Closer
	observers []Observer
}

// New wraps an existing writer. Close flushes but does not close w.
func New(w io.Writer) *Sink {
	return &Sink{w: bufio.NewWriter(w)}
}

// Open creates (or truncates) the audit file at path. An empty path or "-"
// selects stdout. The caller must Close the sink.
func Open(path string) (*Sink, error) {
	if path == "" || path == "-" {
		return New(os.Stdout), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	s := New(f)
	s.closer = f
	return s, nil
}

// Attach registers an observer. Must be called before events are recorded
// from other goroutines.
func (s *Sink) Attach(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Record stamps the event (if unstamped) and appends it. Safe for concurrent
// use; a nil Sink discards events.
func (s *Sink) Record(e Event) {
	if s == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.WriteString(e.Line())
	s.w.WriteByte('\n')
	s.w.Flush()

	for _, o := range s.observers {
		o.Observe(e)
	}
}

// Close flushes pending output and closes the underlying file, if any.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}
