package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/config"
	"github.com/jfmyers9/spotctl/internal/controller"
	"github.com/jfmyers9/spotctl/internal/ipc"
	"github.com/jfmyers9/spotctl/internal/player"
	"github.com/jfmyers9/spotctl/internal/statusapi"
	"github.com/jfmyers9/spotctl/internal/win32"
)

const controlTimeout = 10 * time.Second

// newController wires the OS primitives and status API client into a
// lifecycle controller
func newController(cfg *config.Config, logger zerolog.Logger) (*controller.Controller, error) {
	ctrlCfg, err := cfg.Controller()
	if err != nil {
		return nil, err
	}

	api, err := statusapi.New(statusapi.Config{
		URL:    cfg.API.URL,
		Origin: cfg.API.Origin,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create status client: %w", err)
	}

	return controller.New(win32.New(logger), api, ctrlCfg, logger), nil
}

// controlAddress resolves the daemon control socket
func controlAddress(cfg *config.Config) string {
	if socketAddress != "" {
		return socketAddress
	}
	if cfg != nil && cfg.IPC.Address != "" {
		return cfg.IPC.Address
	}
	return ipc.DefaultAddress()
}

// callDaemon sends one request to the running daemon
func callDaemon(req ipc.Request) (*ipc.Response, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	timeout := controlTimeout
	if req.Op == ipc.OpStart {
		timeout = startTimeout(cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return ipc.Call(ctx, controlAddress(cfg), req)
}

// startTimeout bounds a start: the launch budget and every handshake
// attempt with its retry pause, plus the usual control margin
func startTimeout(cfg *config.Config) time.Duration {
	d := controller.DefaultConfig()
	launch, attempts := cfg.Startup.Timeout, cfg.Startup.ConnectionAttempts
	if launch <= 0 {
		launch = d.StartupTimeout
	}
	if attempts <= 0 {
		attempts = d.ConnectionAttempts
	}
	return launch + time.Duration(attempts)*d.RetryDelay + controlTimeout
}

// startFailed wraps a start error. A missing process usually means the
// configured executable is wrong.
func startFailed(err error) error {
	if player.IsStartupKind(err, player.ProcessNotFound) {
		return fmt.Errorf("failed to start player (check player.executable): %w", err)
	}
	return fmt.Errorf("failed to start player: %w", err)
}
