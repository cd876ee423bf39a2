package receiver

import (
	"math/rand/v2"
	"time"
)

// LossEmulator decides whether an inbound frame or an outbound ACK is dropped.
// The dispatcher consults it twice per datagram and never from two goroutines
// at once.
type LossEmulator interface {
	Drop() bool
}

// NoLoss never drops.
type NoLoss struct{}

func (NoLoss) Drop() bool { return false }

// TotalLoss always drops.
type TotalLoss struct{}

func (TotalLoss) Drop() bool { return true }

// RandomLoss drops with a fixed probability.
type RandomLoss struct {
	percent int
	rng     *rand.Rand
}

// Drop reports true for roughly percent out of every 100 calls.
func (l *RandomLoss) Drop() bool {
	return l.rng.IntN(100) < l.percent
}

// NewLoss returns the emulator for a loss percentage in 0..100. A zero seed
// is replaced by the current time.
func NewLoss(percent int, seed uint64) LossEmulator {
	switch {
	case percent <= 0:
		return NoLoss{}
	case percent >= 100:
		return TotalLoss{}
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomLoss{
		percent: percent,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}
