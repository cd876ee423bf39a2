package app

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"github.com/1ureka/rdtcopy/internal/config"
	"github.com/1ureka/rdtcopy/internal/receiver"
	"github.com/1ureka/rdtcopy/internal/sender"
)

// testServer is one in-process receiver bound to a loopback UDP port.
type testServer struct {
	root string
	dest config.Destination
}

// startServers launches one Serve loop per loss emulator and stops them when
// the test ends.
func startServers(t *testing.T, losses ...receiver.LossEmulator) []testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	servers := make([]testServer, len(losses))
	for i, loss := range losses {
		pc, err := nettest.NewLocalPacketListener("udp")
		if err != nil {
			t.Fatalf("NewLocalPacketListener failed: %v", err)
		}
		t.Cleanup(func() { pc.Close() })

		root := t.TempDir()
		d, err := receiver.NewDispatcher(receiver.Options{RootDir: root, Loss: loss})
		if err != nil {
			t.Fatalf("NewDispatcher failed: %v", err)
		}
		t.Cleanup(func() { d.Close() })

		addr := pc.LocalAddr().(*net.UDPAddr)
		servers[i] = testServer{root: root, dest: config.Destination{Host: addr.IP.String(), Port: addr.Port}}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := Serve(ctx, pc, d); err != nil {
				t.Errorf("Serve failed: %v", err)
			}
		}()
	}

	// Registered last so the loops stop before sockets and dispatchers close.
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return servers
}

func writeSource(t *testing.T, size int) (string, []byte) {
	t.Helper()
	rng := rand.New(rand.NewPCG(uint64(size), 3))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rng.IntN(256))
	}
	path := filepath.Join(t.TempDir(), "source.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func clientConfig(t *testing.T, src string, servers []testServer) config.ClientConfig {
	cfg := config.NewClientConfig()
	for _, s := range servers {
		cfg.Destinations = append(cfg.Destinations, s.dest)
	}
	cfg.MSS = 1024
	cfg.WindowSize = 8
	cfg.SourcePath = src
	cfg.RemotePath = "replica/copy.bin"
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Timeout = 200 * time.Millisecond
	cfg.Deadline = 20 * time.Second
	cfg.AuditPath = filepath.Join(t.TempDir(), "client.log")
	return cfg
}

func TestReplicateToThreeServers(t *testing.T) {
	servers := startServers(t, nil, nil, nil)
	src, data := writeSource(t, 100*1024)

	summary, err := RunClient(context.Background(), clientConfig(t, src, servers))
	if err != nil {
		t.Fatalf("RunClient failed: %v", err)
	}
	if code := summary.ExitCode(); code != ExitOK {
		t.Fatalf("ExitCode() = %d, results %v", code, summary.Results)
	}

	for i, s := range servers {
		got, err := os.ReadFile(filepath.Join(s.root, "replica", "copy.bin"))
		if err != nil {
			t.Fatalf("server %d: %v", i, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("server %d: got %d bytes, want %d", i, len(got), len(data))
		}
		if summary.Results[i].Peer == "" || summary.Results[i].SessionID == "" {
			t.Errorf("result %d incomplete: %+v", i, summary.Results[i])
		}
	}
}

// TestFailedDestinationDoesNotStopOthers points one destination at a server
// that drops everything. Its session must exhaust its retries while the
// others complete.
func TestFailedDestinationDoesNotStopOthers(t *testing.T) {
	servers := startServers(t, nil, receiver.TotalLoss{}, nil)
	src, data := writeSource(t, 20*1024)

	cfg := clientConfig(t, src, servers)
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 3

	summary, err := RunClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunClient failed: %v", err)
	}
	if code := summary.ExitCode(); code != ExitRetryExceeded {
		t.Fatalf("ExitCode() = %d, want %d", code, ExitRetryExceeded)
	}

	if r := summary.Results[1]; r.Outcome != sender.RetryLimitExceeded || r.Seq != 1 {
		t.Errorf("lossy destination result = %s", r)
	}
	for _, i := range []int{0, 2} {
		if !summary.Results[i].OK() {
			t.Errorf("destination %d = %s", i, summary.Results[i])
		}
		got, _ := os.ReadFile(filepath.Join(servers[i].root, "replica", "copy.bin"))
		if !bytes.Equal(got, data) {
			t.Errorf("destination %d output differs", i)
		}
	}
	if _, err := os.Stat(filepath.Join(servers[1].root, "replica", "copy.bin")); !os.IsNotExist(err) {
		t.Errorf("lossy destination produced output, stat err = %v", err)
	}
}

func TestDeadlineWhenServerSilent(t *testing.T) {
	servers := startServers(t, receiver.TotalLoss{})
	src, _ := writeSource(t, 4096)

	cfg := clientConfig(t, src, servers)
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 1 << 20
	cfg.Deadline = 200 * time.Millisecond

	summary, err := RunClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunClient failed: %v", err)
	}
	if code := summary.ExitCode(); code != ExitDeadline {
		t.Errorf("ExitCode() = %d, want %d", code, ExitDeadline)
	}
}

func TestRunClientSetupErrors(t *testing.T) {
	servers := startServers(t, nil)

	cfg := clientConfig(t, filepath.Join(t.TempDir(), "missing.bin"), servers)
	if _, err := RunClient(context.Background(), cfg); err == nil {
		t.Error("expected error for missing source")
	}

	src, _ := writeSource(t, 10)
	cfg = clientConfig(t, src, servers)
	cfg.WindowSize = 0
	if _, err := RunClient(context.Background(), cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestSummaryExitCode(t *testing.T) {
	testCases := []struct {
		name     string
		outcomes []sender.Outcome
		want     int
	}{
		{"all completed", []sender.Outcome{sender.Completed, sender.Completed}, ExitOK},
		{"deadline", []sender.Outcome{sender.Completed, sender.DeadlineExceeded}, ExitDeadline},
		{"retry", []sender.Outcome{sender.RetryLimitExceeded, sender.Completed}, ExitRetryExceeded},
		{"retry beats deadline", []sender.Outcome{sender.DeadlineExceeded, sender.RetryLimitExceeded}, ExitRetryExceeded},
		{"local error beats all", []sender.Outcome{sender.RetryLimitExceeded, sender.LocalIOError, sender.DeadlineExceeded}, ExitFailure},
		{"cancelled", []sender.Outcome{sender.Cancelled}, ExitFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Summary{}
			for _, o := range tc.outcomes {
				s.Results = append(s.Results, sender.Result{Outcome: o})
			}
			if got := s.ExitCode(); got != tc.want {
				t.Errorf("ExitCode() = %d, want %d", got, tc.want)
			}
			if s.OK() != (tc.want == ExitOK) {
				t.Errorf("OK() = %v", s.OK())
			}
		})
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	pc, err := nettest.NewLocalPacketListener("udp")
	if err != nil {
		t.Fatalf("NewLocalPacketListener failed: %v", err)
	}
	defer pc.Close()

	d, err := receiver.NewDispatcher(receiver.Options{RootDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, pc, d) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestRunServerLifecycle(t *testing.T) {
	if err := RunServer(context.Background(), config.ServerConfig{}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("RunServer with empty config = %v, want ErrInvalidConfig", err)
	}

	// Borrow a free port.
	pc, err := nettest.NewLocalPacketListener("udp")
	if err != nil {
		t.Fatal(err)
	}
	addr := pc.LocalAddr().(*net.UDPAddr)
	pc.Close()

	cfg := config.ServerConfig{
		Host:        addr.IP.String(),
		Port:        addr.Port,
		LossPercent: 10,
		Seed:        1,
		RootDir:     t.TempDir(),
		MonitorAddr: "127.0.0.1:0",
		AuditPath:   filepath.Join(t.TempDir(), "server.log"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := RunServer(ctx, cfg); err != nil {
		t.Errorf("RunServer = %v, want nil after cancel", err)
	}
}
