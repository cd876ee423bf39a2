package sender

import "time"

// slot holds one in-flight frame.
type slot struct {
	seq     uint32
	frame   []byte // serialized, ready to resend
	sentAt  time.Time
	retries int
}

// window is the ring of in-flight frames, indexed by seq mod size.
// It is goroutine-local to its Session and needs no locking.
type window struct {
	slots []slot
}

func newWindow(size int) *window {
	return &window{slots: make([]slot, size)}
}

func (w *window) size() uint32 {
	return uint32(len(w.slots))
}

// store places a freshly sent frame in its slot, replacing whatever retired
// frame occupied it.
func (w *window) store(seq uint32, frame []byte, now time.Time) {
	w.slots[seq%w.size()] = slot{
		seq:    seq,
		frame:  frame,
		sentAt: now,
	}
}

// at returns the slot for seq. The caller guarantees seq is in flight.
func (w *window) at(seq uint32) *slot {
	return &w.slots[seq%w.size()]
}
