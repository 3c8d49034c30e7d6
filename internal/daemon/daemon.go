package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jfmyers9/spotctl/internal/controller"
	"github.com/jfmyers9/spotctl/internal/history"
	"github.com/jfmyers9/spotctl/internal/ipc"
	"github.com/jfmyers9/spotctl/internal/player"
)

// Config holds daemon configuration
type Config struct {
	StateFile        string        // Path to state persistence file
	HistoryDB        string        // Path to event journal, empty disables history
	HistoryRetention time.Duration // Journal entries older than this are pruned at shutdown
	IPCAddress       string        // Control socket or pipe
	StartPlayer      bool          // Launch or attach to the player when the daemon starts
	CloseOnExit      bool          // Stop the player when the daemon shuts down
}

// Player is the lifecycle controller the daemon hosts
type Player interface {
	Start(ctx context.Context) error
	Dispatch(ctx context.Context, cmd player.Command) error
	Stop() error
	Status(ctx context.Context) (*player.Status, error)
	Subscribe(fn player.Handler) (unsubscribe func())
	State() controller.State
	IsRunning() bool
	VolumeControl() controller.VolumeControl
}

// Daemon hosts the player controller and exposes it over the control socket
type Daemon struct {
	config   Config
	player   Player
	state    *State
	journal  *history.Journal
	recorder *history.Recorder
	logger   zerolog.Logger

	listen func(address string) (net.Listener, error)
}

// New creates a new Daemon instance
func New(cfg Config, p Player, logger zerolog.Logger) (*Daemon, error) {
	// Create state
	state, err := NewState(cfg.StateFile)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to restore state, starting fresh")
	}

	d := &Daemon{
		config: cfg,
		player: p,
		state:  state,
		logger: logger.With().Str("component", "daemon").Logger(),
		listen: ipc.Listen,
	}

	if cfg.HistoryDB != "" {
		journal, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		d.journal = journal
		// Position ticks arrive every second and add nothing to the record
		d.recorder = history.NewRecorder(journal, logger, player.TrackTimeChanged{}.Kind())
	}

	return d, nil
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Second signal forces exit
		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	// Run the daemon
	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// run wires player events into the state file and journal, then serves
// control requests until ctx is cancelled
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	ln, err := d.listen(d.config.IPCAddress)
	if err != nil {
		return fmt.Errorf("failed to open control socket: %w", err)
	}

	unsubscribe := d.player.Subscribe(d.handleEvent)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ipc.NewServer(ipc.HandlerFunc(d.handle), d.logger).Serve(gctx, ln)
	})

	if d.recorder != nil {
		g.Go(func() error {
			return d.recorder.Run(gctx)
		})
	}

	g.Go(func() error {
		d.flushState(gctx)
		return nil
	})

	if d.config.StartPlayer {
		g.Go(func() error {
			// A failed start leaves the daemon serving; "start" retries it
			if err := d.player.Start(gctx); err != nil && gctx.Err() == nil {
				d.logger.Error().Err(err).Msg("Failed to start player")
			}
			return nil
		})
	}

	err = g.Wait()
	d.logger.Info().Msg("Daemon stopped")
	return err
}

// handleEvent is subscribed to the player's event stream
func (d *Daemon) handleEvent(ev player.Event) {
	switch e := ev.(type) {
	case player.SongChanged:
		d.logger.Info().
			Str("track", e.New.Title).
			Str("artist", e.New.Artist).
			Msg("Track changed")
	case player.Exited:
		d.logger.Info().Msg("Player exited")
	}

	if err := d.state.Apply(ev); err != nil {
		d.logger.Error().Err(err).Str("kind", ev.Kind()).Msg("Failed to update state")
	}
	if d.recorder != nil {
		d.recorder.Handle(ev)
	}
}

// flushState periodically writes throttled state changes
func (d *Daemon) flushState(ctx context.Context) {
	ticker := time.NewTicker(d.state.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := d.state.Flush(); err != nil {
				d.logger.Error().Err(err).Msg("Failed to flush state")
			}
			return
		case <-ticker.C:
			if err := d.state.Flush(); err != nil {
				d.logger.Error().Err(err).Msg("Failed to flush state")
			}
		}
	}
}

// handle answers one control request
func (d *Daemon) handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Op {
	case ipc.OpPing:
		return ipc.Response{OK: true}

	case ipc.OpDispatch:
		cmd, err := player.ParseCommand(req.Command)
		if err != nil {
			return ipc.ErrorResponse(err)
		}
		if !d.player.IsRunning() {
			return ipc.ErrorResponse(errors.New("player is not running"))
		}
		if err := d.player.Dispatch(ctx, cmd); err != nil {
			return ipc.ErrorResponse(err)
		}
		return ipc.Response{OK: true}

	case ipc.OpStatus:
		return ipc.Response{OK: true, Status: d.status(ctx)}

	case ipc.OpStart:
		if d.player.State() == controller.StateConnected {
			return ipc.Response{OK: true, Status: d.status(ctx)}
		}
		if err := d.player.Start(ctx); err != nil {
			return ipc.ErrorResponse(err)
		}
		return ipc.Response{OK: true, Status: d.status(ctx)}

	case ipc.OpStop:
		if err := d.player.Stop(); err != nil {
			return ipc.ErrorResponse(err)
		}
		return ipc.Response{OK: true}
	}

	return ipc.ErrorResponse(fmt.Errorf("unknown operation %q", req.Op))
}

// status reports the live player status, falling back to the tracked
// snapshot while the status API is unavailable
func (d *Daemon) status(ctx context.Context) *ipc.Status {
	running := d.player.IsRunning()

	var st *player.Status
	if d.player.State() == controller.StateConnected {
		live, err := d.player.Status(ctx)
		if err != nil {
			d.logger.Debug().Err(err).Msg("Status API unavailable, using snapshot")
		} else {
			st = live
		}
	}
	if st == nil {
		snap := d.state.GetState().Status(time.Now())
		st = &snap
	}

	out := ipc.StatusFrom(d.player.State().String(), running, st)
	out.VolumeControl = string(d.player.VolumeControl())
	return out
}

// Shutdown gracefully shuts down the daemon
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	var errs []error

	if d.config.CloseOnExit && d.player.IsRunning() {
		d.logger.Info().Msg("Closing player")
		if err := d.player.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop player: %w", err))
		}
	}

	if err := d.state.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush state: %w", err))
	}

	if d.recorder != nil {
		if n := d.recorder.Dropped(); n > 0 {
			d.logger.Warn().Int64("dropped", n).Msg("History fell behind and dropped events")
		}
	}

	if d.journal != nil {
		ctx := context.Background()

		// Cleanup old records
		if d.config.HistoryRetention > 0 {
			if n, err := d.journal.Cleanup(ctx, d.config.HistoryRetention); err != nil {
				d.logger.Warn().Err(err).Msg("Failed to cleanup history")
			} else if n > 0 {
				d.logger.Info().Int64("removed", n).Msg("Pruned history")
			}
		}

		if err := d.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close history: %w", err))
		}
	}

	return errors.Join(errs...)
}
