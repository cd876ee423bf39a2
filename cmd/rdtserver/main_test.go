package main

import (
	"io"
	"strings"
	"testing"
	"time"
)

func TestParseArgs(t *testing.T) {
	testCases := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"minimal", "-port 9000 -root out", false},
		{"full loss", "-port 9000 -loss 100 -root out", false},
		{"loss out of range", "-port 9000 -loss 150 -root out", true},
		{"missing port", "-root out", true},
		{"missing root", "-port 9000", true},
		{"bad duration", "-port 9000 -root out -idle soon", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := parseArgs(strings.Fields(tc.args), io.Discard)
			if (err != nil) != tc.wantErr {
				t.Fatalf("parseArgs err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestParseArgsFields(t *testing.T) {
	args := strings.Fields("-host 127.0.0.1 -port 9100 -loss 25 -root /srv/in -exclusive -idle 45s -monitor :8088 -seed 7 -log srv.log -debug")
	cfg, debug, err := parseArgs(args, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}

	if cfg.Host != "127.0.0.1" || cfg.Port != 9100 || cfg.LossPercent != 25 || cfg.RootDir != "/srv/in" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.Exclusive || cfg.IdleTimeout != 45*time.Second || cfg.Seed != 7 {
		t.Errorf("exclusive=%v idle=%s seed=%d", cfg.Exclusive, cfg.IdleTimeout, cfg.Seed)
	}
	if cfg.MonitorAddr != ":8088" || cfg.AuditPath != "srv.log" || !debug {
		t.Errorf("monitor=%q log=%q debug=%v", cfg.MonitorAddr, cfg.AuditPath, debug)
	}
}
