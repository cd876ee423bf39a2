// Package app contains the top-level orchestration for the client and server
// roles.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/1ureka/rdtcopy/internal/audit"
	"github.com/1ureka/rdtcopy/internal/config"
	"github.com/1ureka/rdtcopy/internal/sender"
	"github.com/1ureka/rdtcopy/internal/transport"
	"github.com/1ureka/rdtcopy/internal/util"
)

// Exit codes shared by both CLIs.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitDeadline      = 3
	ExitRetryExceeded = 4
)

// Summary aggregates the results of every session of one replicated transfer,
// in destination order.
type Summary struct {
	Results []sender.Result
}

// ExitCode derives the process status: a local I/O failure wins, then a
// retry limit, then a deadline.
func (s *Summary) ExitCode() int {
	var retry, deadline, local bool
	for _, r := range s.Results {
		switch r.Outcome {
		case sender.RetryLimitExceeded:
			retry = true
		case sender.DeadlineExceeded:
			deadline = true
		case sender.LocalIOError, sender.Cancelled:
			local = true
		}
	}
	switch {
	case local:
		return ExitFailure
	case retry:
		return ExitRetryExceeded
	case deadline:
		return ExitDeadline
	default:
		return ExitOK
	}
}

// OK reports whether every session completed.
func (s *Summary) OK() bool {
	return s.ExitCode() == ExitOK
}

// RunClient replicates cfg.SourcePath to every destination concurrently, one
// Sender Session each, and waits for all of them. A failed session never
// stops its siblings. The returned error covers configuration and setup
// problems detected before any session starts.
func RunClient(ctx context.Context, cfg config.ClientConfig) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Fail fast on an unreadable source before touching the network.
	probe, err := os.Open(cfg.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	probe.Close()

	sink, err := audit.Open(cfg.AuditPath)
	if err != nil {
		return nil, err
	}
	defer sink.Close()

	type indexed struct {
		i   int
		res sender.Result
	}
	results := make(chan indexed, len(cfg.Destinations))

	var wg sync.WaitGroup
	for i, dest := range cfg.Destinations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- indexed{i, runSession(ctx, cfg, dest, sink)}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := &Summary{Results: make([]sender.Result, len(cfg.Destinations))}
	for r := range results {
		summary.Results[r.i] = r.res
		if r.res.OK() {
			util.LogSuccess("%s: delivered %d bytes in %d frames (%s)",
				r.res.Peer, r.res.Bytes, r.res.Frames, r.res.Elapsed.Round(time.Millisecond))
		} else {
			util.LogError("%s", r.res)
		}
	}
	return summary, nil
}

// runSession opens a private file handle and socket for dest and drives one
// session to its end.
func runSession(ctx context.Context, cfg config.ClientConfig, dest config.Destination, sink *audit.Sink) sender.Result {
	fail := func(err error) sender.Result {
		return sender.Result{Peer: dest.Addr(), Outcome: sender.LocalIOError, Err: err}
	}

	src, err := os.Open(cfg.SourcePath)
	if err != nil {
		return fail(fmt.Errorf("failed to open source: %w", err))
	}
	defer src.Close()

	ch, err := transport.Dial(dest.Addr())
	if err != nil {
		return fail(err)
	}
	defer ch.Close()

	s := sender.New(ch, src, cfg.RemotePath, sender.Options{
		Tag:          cfg.Tag,
		EffectiveMSS: cfg.EffectiveMSS(),
		WindowSize:   cfg.WindowSize,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.Timeout,
		Deadline:     cfg.Deadline,
		MaxRetries:   cfg.MaxRetries,
		Audit:        sink,
	})
	util.LogInfo("[%s] sending %s to %s as %s", s.ID()[:8], cfg.SourcePath, dest.Addr(), cfg.RemotePath)
	return s.Run(ctx)
}
