package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jfmyers9/spotctl/internal/config"
	"github.com/jfmyers9/spotctl/internal/player"
)

func TestStartTimeout(t *testing.T) {
	tests := []struct {
		name    string
		startup config.StartupConfig
		want    time.Duration
		exceeds time.Duration
	}{
		{"defaults", config.StartupConfig{}, 35 * time.Second, controlTimeout},
		{"slow machine", config.StartupConfig{Timeout: time.Minute, ConnectionAttempts: 10}, 80 * time.Second, time.Minute},
		{"single attempt", config.StartupConfig{Timeout: 5 * time.Second, ConnectionAttempts: 1}, 16 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := startTimeout(&config.Config{Startup: tt.startup})
			if got != tt.want {
				t.Errorf("startTimeout() = %v, want %v", got, tt.want)
			}
			if got <= tt.exceeds {
				t.Errorf("startTimeout() = %v does not cover %v", got, tt.exceeds)
			}
		})
	}
}

func TestStartFailed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHint bool
	}{
		{"process not found", &player.StartupError{Kind: player.ProcessNotFound, Err: errors.New("no process")}, true},
		{"connect failed", &player.StartupError{Kind: player.ConnectFailed, Err: errors.New("refused")}, false},
		{"other error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := startFailed(tt.err)
			if !errors.Is(got, tt.err) {
				t.Errorf("startFailed() = %v, does not wrap %v", got, tt.err)
			}
			if hint := strings.Contains(got.Error(), "player.executable"); hint != tt.wantHint {
				t.Errorf("startFailed() = %q, hint = %v, want %v", got, hint, tt.wantHint)
			}
		})
	}
}
