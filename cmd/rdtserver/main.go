// Command rdtserver receives files sent by rdtclient over UDP.
//
// The server can drop a percentage of inbound frames and outbound ACKs to
// exercise the client's retransmission logic, and can stream its audit events
// to WebSocket observers with -monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"golang.org/x/term"

	"github.com/1ureka/rdtcopy/internal/app"
	"github.com/1ureka/rdtcopy/internal/config"
	"github.com/1ureka/rdtcopy/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !term.IsTerminal(int(os.Stderr.Fd())) {
		util.DisableStyling()
	}

	cfg, debug, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(app.ExitOK)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(app.ExitFailure)
	}
	if debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("rdtserver v%s", version))

	util.StartStatsReporter(ctx)

	if err := app.RunServer(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(app.ExitFailure)
	}
	util.LogInfo("server stopped")
}

// parseArgs builds the server configuration from command-line arguments.
func parseArgs(args []string, output io.Writer) (config.ServerConfig, bool, error) {
	var cfg config.ServerConfig

	fs := flag.NewFlagSet("rdtserver", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.Host, "host", "", "Address to bind (default all interfaces)")
	fs.IntVar(&cfg.Port, "port", 0, "UDP port to listen on, 1~65535")
	fs.IntVar(&cfg.LossPercent, "loss", 0, "Artificial loss percentage, 0~100")
	fs.StringVar(&cfg.RootDir, "root", "", "Root directory for received files")
	fs.BoolVar(&cfg.Exclusive, "exclusive", false, "Allow only one active transfer at a time")
	fs.DurationVar(&cfg.IdleTimeout, "idle", 0, "Release transfers idle for this long (0 keeps them)")
	fs.StringVar(&cfg.MonitorAddr, "monitor", "", "Serve live events on ws://HOST:PORT/events")
	fs.Uint64Var(&cfg.Seed, "seed", 0, "Loss emulator seed (0 picks one)")
	fs.StringVar(&cfg.AuditPath, "log", "", "Audit log file (default stdout)")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, false, err
	}
	return cfg, *debug, nil
}
