package app

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/1ureka/rdtcopy/internal/audit"
	"github.com/1ureka/rdtcopy/internal/config"
	"github.com/1ureka/rdtcopy/internal/monitor"
	"github.com/1ureka/rdtcopy/internal/protocol"
	"github.com/1ureka/rdtcopy/internal/receiver"
	"github.com/1ureka/rdtcopy/internal/transport"
	"github.com/1ureka/rdtcopy/internal/util"
)

// readWait bounds each socket read so cancellation is noticed.
const readWait = 1 * time.Second

// RunServer orchestrates the receiver lifecycle:
//  1. Open the audit sink
//  2. Start the event monitor, if configured
//  3. Bind the UDP socket
//  4. Dispatch datagrams one at a time until ctx is cancelled or a local
//     I/O error occurs
func RunServer(ctx context.Context, cfg config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── 1. Audit sink ──────────────────────────────────────────────────
	sink, err := audit.Open(cfg.AuditPath)
	if err != nil {
		return err
	}
	defer sink.Close()

	// ── 2. Monitor ─────────────────────────────────────────────────────
	if cfg.MonitorAddr != "" {
		hub := monitor.NewHub()
		addr, err := hub.Start(cfg.MonitorAddr)
		if err != nil {
			return err
		}
		defer hub.Close()
		sink.Attach(hub)
		util.LogInfo("event monitor at ws://%s/events", addr)
	}

	// ── 3. Socket ──────────────────────────────────────────────────────
	conn, err := transport.Listen(cfg.Host, cfg.Port)
	if err != nil {
		return err
	}
	defer conn.Close()

	d, err := receiver.NewDispatcher(receiver.Options{
		RootDir:     cfg.RootDir,
		Loss:        receiver.NewLoss(cfg.LossPercent, cfg.Seed),
		Audit:       sink,
		Exclusive:   cfg.Exclusive,
		IdleTimeout: cfg.IdleTimeout,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	util.LogSuccess("server listening on %s (loss %d%%, root %s)", conn.LocalAddr(), cfg.LossPercent, cfg.RootDir)

	// ── 4. Dispatch loop ───────────────────────────────────────────────
	return Serve(ctx, conn, d)
}

// Serve reads datagrams from conn and feeds them to d sequentially, writing
// back whatever reply d produces. It returns nil when ctx is cancelled.
func Serve(ctx context.Context, conn net.PacketConn, d *receiver.Dispatcher) error {
	buf := make([]byte, protocol.MaxFrameSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn.SetReadDeadline(time.Now().Add(readWait))
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			util.LogWarning("read error: %v", err)
			continue
		}
		util.Stats.AddRecv(n)

		reply, err := d.Handle(buf[:n], from.String())
		if err != nil {
			return err
		}
		if reply == nil {
			continue
		}

		if _, err := conn.WriteTo(reply, from); err != nil {
			util.LogDebug("[%s] failed to send ACK: %v", from, err)
			continue
		}
		util.Stats.AddSent(len(reply))
	}
}
