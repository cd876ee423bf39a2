// Package config holds the client and server configuration types.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/1ureka/rdtcopy/internal/protocol"
)

// Protocol timing defaults.
const (
	DefaultPollInterval = 1 * time.Second
	DefaultTimeout      = 3 * time.Second
	DefaultDeadline     = 30 * time.Second
	DefaultMaxRetries   = 5

	// MaxDestinations caps the destination list.
	MaxDestinations = 10
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Destination is one server link the client replicates the file to.
type Destination struct {
	Host string
	Port int
}

// Addr returns the destination in host:port form.
func (d Destination) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ClientConfig stores all parameters for one replicated transfer.
type ClientConfig struct {
	Destinations []Destination
	MSS          int    // maximum datagram size including all overhead
	WindowSize   int    // frames in flight per session
	SourcePath   string // local file to send
	RemotePath   string // output path relative to each server's root
	Tag          string // origin tag stamped on every frame

	PollInterval time.Duration
	Timeout      time.Duration // per-frame retransmission timeout
	Deadline     time.Duration // whole-session ceiling
	MaxRetries   int
	AuditPath    string // "" or "-" for stdout
}

// NewClientConfig returns a ClientConfig with protocol defaults filled in.
func NewClientConfig() ClientConfig {
	return ClientConfig{
		Tag:          protocol.DefaultTag,
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
		Deadline:     DefaultDeadline,
		MaxRetries:   DefaultMaxRetries,
	}
}

// EffectiveMSS is the payload capacity of one DATA frame.
func (c *ClientConfig) EffectiveMSS() int {
	return EffectiveMSS(c.MSS)
}

// EffectiveMSS subtracts the header, tag and checksum overhead from mss.
func EffectiveMSS(mss int) int {
	return mss - protocol.Overhead
}

// MinMSS is the smallest MSS that still carries one payload byte.
const MinMSS = protocol.Overhead + 1

// Validate checks the configuration before any session starts.
func (c *ClientConfig) Validate() error {
	switch {
	case len(c.Destinations) == 0:
		return fmt.Errorf("%w: no destinations", ErrInvalidConfig)
	case len(c.Destinations) > MaxDestinations:
		return fmt.Errorf("%w: at most %d destinations", ErrInvalidConfig, MaxDestinations)
	case c.EffectiveMSS() <= 0:
		return fmt.Errorf("%w: required minimum MSS is %d", ErrInvalidConfig, MinMSS)
	case c.MSS > protocol.MaxFrameSize:
		return fmt.Errorf("%w: MSS must not exceed %d", ErrInvalidConfig, protocol.MaxFrameSize)
	case c.WindowSize < 1:
		return fmt.Errorf("%w: window size must be at least 1", ErrInvalidConfig)
	case c.SourcePath == "":
		return fmt.Errorf("%w: missing source path", ErrInvalidConfig)
	case c.RemotePath == "":
		return fmt.Errorf("%w: missing destination path", ErrInvalidConfig)
	case len(c.RemotePath) > protocol.MaxFrameSize-protocol.Overhead:
		return fmt.Errorf("%w: destination path too long", ErrInvalidConfig)
	case len(c.Tag) > protocol.TagSize:
		return fmt.Errorf("%w: origin tag longer than %d bytes", ErrInvalidConfig, protocol.TagSize)
	case c.PollInterval <= 0 || c.Timeout <= 0 || c.Deadline <= 0:
		return fmt.Errorf("%w: timers must be positive", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: negative retry ceiling", ErrInvalidConfig)
	}
	for _, d := range c.Destinations {
		if err := validPort(d.Port); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.Addr(), err)
		}
	}
	return nil
}

// ServerConfig stores the receiver parameters.
type ServerConfig struct {
	Host        string
	Port        int
	LossPercent int    // 0..100
	Seed        uint64 // loss emulator seed; 0 picks one from the clock
	RootDir     string

	// Exclusive restores the single active transfer per process rule.
	Exclusive bool
	// IdleTimeout releases transfers with no activity for this long; 0 never.
	IdleTimeout time.Duration

	MonitorAddr string // host:port for the WebSocket event feed; "" disables
	AuditPath   string
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if err := validPort(c.Port); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch {
	case c.LossPercent < 0 || c.LossPercent > 100:
		return fmt.Errorf("%w: loss percentage must be within 0~100", ErrInvalidConfig)
	case c.RootDir == "":
		return fmt.Errorf("%w: missing root directory", ErrInvalidConfig)
	case c.IdleTimeout < 0:
		return fmt.Errorf("%w: negative idle timeout", ErrInvalidConfig)
	}
	return nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1~65535", port)
	}
	return nil
}
