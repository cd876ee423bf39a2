// Command rdtclient replicates one file to several rdtserver instances at once.
//
// Each destination gets its own sliding-window session over UDP. The process
// exits 0 only when every destination received the whole file.
//
// Destinations come from a server list (-servn, -conf) or a single -addr/-port.
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

	pterm.Info.Println(fmt.Sprintf("rdtclient v%s", version))

	summary, err := app.RunClient(ctx, cfg)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(app.ExitFailure)
	}
	os.Exit(summary.ExitCode())
}

// parseArgs builds the client configuration from command-line arguments.
func parseArgs(args []string, output io.Writer) (config.ClientConfig, bool, error) {
	cfg := config.NewClientConfig()

	fs := flag.NewFlagSet("rdtclient", flag.ContinueOnError)
	fs.SetOutput(output)
	servn := fs.Int("servn", 0, "Number of servers to read from -conf (1~10)")
	conf := fs.String("conf", "", "Server list file, one \"host port\" per line")
	addr := fs.String("addr", "", "Single server address (instead of -servn/-conf)")
	port := fs.Int("port", 0, "Single server port (with -addr)")
	fs.IntVar(&cfg.MSS, "mss", 0, "Maximum segment size in bytes, including headers")
	fs.IntVar(&cfg.WindowSize, "win", 0, "Window size in frames")
	fs.StringVar(&cfg.SourcePath, "in", "", "Local file to send")
	fs.StringVar(&cfg.RemotePath, "out", "", "Output path relative to each server's root")
	fs.StringVar(&cfg.Tag, "tag", cfg.Tag, "Origin tag stamped on every frame (max 7 bytes)")
	fs.StringVar(&cfg.AuditPath, "log", "", "Audit log file (default stdout)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage of rdtclient:\n"+
			"  rdtclient -servn N -conf servaddr.conf -mss M -win W -in FILE -out PATH\n"+
			"  rdtclient -addr HOST -port P -mss M -win W -in FILE -out PATH\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}

	switch {
	case *addr != "" && *conf != "":
		return cfg, false, fmt.Errorf("%w: use either -addr/-port or -servn/-conf", config.ErrInvalidConfig)
	case *addr != "":
		cfg.Destinations = []config.Destination{{Host: *addr, Port: *port}}
	case *conf != "":
		dests, err := config.LoadDestinations(*conf, *servn)
		if err != nil {
			return cfg, false, err
		}
		cfg.Destinations = dests
	default:
		return cfg, false, fmt.Errorf("%w: missing destination (-addr or -conf)", config.ErrInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, false, err
	}
	return cfg, *debug, nil
}
