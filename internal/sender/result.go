package sender

import (
	"fmt"
	"time"
)

// Outcome is the terminal state of a Session.
type Outcome int

const (
	Completed Outcome = iota
	RetryLimitExceeded
	DeadlineExceeded
	LocalIOError
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case RetryLimitExceeded:
		return "retry limit exceeded"
	case DeadlineExceeded:
		return "deadline exceeded"
	case LocalIOError:
		return "local I/O error"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports how a Session ended.
type Result struct {
	SessionID string
	Peer      string
	Outcome   Outcome
	Seq       uint32 // offending frame for RetryLimitExceeded
	Err       error  // cause for LocalIOError and Cancelled
	Frames    uint32 // DATA frames acknowledged
	Bytes     int64  // payload bytes read from the source
	Elapsed   time.Duration
}

// OK reports whether the session delivered the whole file.
func (r Result) OK() bool {
	return r.Outcome == Completed
}

func (r Result) String() string {
	switch r.Outcome {
	case RetryLimitExceeded:
		return fmt.Sprintf("%s: %s (seq %d)", r.Peer, r.Outcome, r.Seq)
	case LocalIOError, Cancelled:
		return fmt.Sprintf("%s: %s: %v", r.Peer, r.Outcome, r.Err)
	default:
		return fmt.Sprintf("%s: %s", r.Peer, r.Outcome)
	}
}
