package monitor

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rdtcopy/internal/audit"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubStreamsEvents(t *testing.T) {
	hub := NewHub()
	addr, err := hub.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr.String()+"/events", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, "observer registration", func() bool { return hub.Clients() == 1 })

	sent := []audit.Event{
		{Time: time.Now(), Peer: "10.0.0.1:4000", Kind: audit.KindAck, Seq: 3},
		{Time: time.Now(), Peer: "10.0.0.1:4000", Kind: audit.KindDropData, Seq: 4},
	}
	for _, ev := range sent {
		hub.Observe(ev)
	}

	for i, want := range sent {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var got audit.Event
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("ReadJSON %d failed: %v", i, err)
		}
		if got.Peer != want.Peer || got.Kind != want.Kind || got.Seq != want.Seq {
			t.Errorf("event %d = %+v, want %+v", i, got, want)
		}
		if !got.Time.Equal(want.Time) {
			t.Errorf("event %d time = %v, want %v", i, got.Time, want.Time)
		}
	}
}

// TestHubCloseDisconnectsObservers verifies that Close sends a close frame
// and forgets every observer.
func TestHubCloseDisconnectsObservers(t *testing.T) {
	hub := NewHub()
	addr, err := hub.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr.String()+"/events", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitFor(t, "observer registration", func() bool { return hub.Clients() == 1 })

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage err = %v, want normal closure", err)
	}
	if n := hub.Clients(); n != 0 {
		t.Errorf("Clients() = %d after Close", n)
	}

	// Observing with nobody connected is a no-op.
	hub.Observe(audit.Event{Kind: audit.KindAck})
}

func TestObserverLeaving(t *testing.T) {
	hub := NewHub()
	addr, err := hub.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr.String()+"/events", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitFor(t, "observer registration", func() bool { return hub.Clients() == 1 })

	conn.Close()
	waitFor(t, "observer removal", func() bool { return hub.Clients() == 0 })
}
