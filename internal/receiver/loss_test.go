package receiver

import "testing"

func TestNewLossBounds(t *testing.T) {
	if _, ok := NewLoss(0, 1).(NoLoss); !ok {
		t.Error("NewLoss(0) is not NoLoss")
	}
	if _, ok := NewLoss(100, 1).(TotalLoss); !ok {
		t.Error("NewLoss(100) is not TotalLoss")
	}
	if _, ok := NewLoss(50, 0).(*RandomLoss); !ok {
		t.Error("NewLoss(50) is not RandomLoss")
	}
}

func TestRandomLossRate(t *testing.T) {
	const draws = 10000
	l := NewLoss(30, 42)

	dropped := 0
	for i := 0; i < draws; i++ {
		if l.Drop() {
			dropped++
		}
	}
	if dropped < 2700 || dropped > 3300 {
		t.Errorf("dropped %d of %d, want about 30%%", dropped, draws)
	}
}

func TestRandomLossDeterministicPerSeed(t *testing.T) {
	a, b := NewLoss(25, 7), NewLoss(25, 7)
	for i := 0; i < 1000; i++ {
		if a.Drop() != b.Drop() {
			t.Fatalf("draw %d differs between emulators with the same seed", i)
		}
	}
}
