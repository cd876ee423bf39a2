package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter.
var Stats = &stats{}

type stats struct {
	BytesSent   atomic.Int64 // cumulative bytes written to UDP sockets
	BytesRecv   atomic.Int64 // cumulative bytes read from UDP sockets
	Retransmits atomic.Int64 // frames sent again after a timeout
	Drops       atomic.Int64 // frames or ACKs discarded by the loss emulator
	Corrupt     atomic.Int64 // frames discarded for a bad checksum
}

func (s *stats) AddSent(n int)  { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)  { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddRetransmit() { s.Retransmits.Add(1) }
func (s *stats) AddDrop()       { s.Drops.Add(1) }
func (s *stats) AddCorrupt()    { s.Corrupt.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs traffic statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevRetx, prevDrops int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				retx := Stats.Retransmits.Load()
				drops := Stats.Drops.Load()

				secs := reportInterval.Seconds()
				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs

				if inS > 10 || outS > 10 || retx != prevRetx || drops != prevDrops {
					pterm.DefaultLogger.Info(formatStats(inS, outS, retx-prevRetx, drops-prevDrops))
				}

				prevSent = sent
				prevRecv = recv
				prevRetx = retx
				prevDrops = drops

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, retx, drops int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Retx: %3d | Drop: %3d",
		formatBytes(inS),
		formatBytes(outS),
		retx,
		drops,
	)
}
