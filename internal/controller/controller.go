// Package controller owns the player lifecycle: launching or attaching to the
// player, connecting the status API, routing commands and shutting down.
//
// A process should hold a single Controller and pass it to whatever needs
// it; nothing here is global.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/locator"
	"github.com/jfmyers9/spotctl/internal/player"
	"github.com/jfmyers9/spotctl/internal/shortcut"
	"github.com/jfmyers9/spotctl/internal/win32"
)

// Windows is the set of OS primitives the controller drives
type Windows interface {
	locator.Windows
	shortcut.Messenger

	StartProcess(path string) (uint32, error)
	WaitForInputIdle(pid uint32, timeout time.Duration) error
	WatchExit(pid uint32) (<-chan struct{}, error)
	KillByName(name string) (int, error)

	IsMinimized(h win32.HWND) bool
	ShowCmd(h win32.HWND) (int, error)
	ShowWindow(h win32.HWND, cmd int) bool
	SetForegroundWindow(h win32.HWND) bool
	SetFocus(h win32.HWND)
}

// StatusClient is the status API session used by the controller. A
// successful Connect delivers player.Connected to the OnEvent handler before
// any pushed event.
type StatusClient interface {
	OnEvent(h player.Handler)
	Connect(ctx context.Context, maxAttempts int, retryDelay time.Duration) (*player.Status, error)
	Status(ctx context.Context) (*player.Status, error)
	IncrementVolume(ctx context.Context) error
	DecrementVolume(ctx context.Context) error
	ToggleMute(ctx context.Context) error
	Close() error
}

// State is the controller lifecycle state
type State int

const (
	StateNotStarted State = iota
	StateLaunching
	StateWaitingIdle
	StateConnecting
	StateConnected
	StateExited
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLaunching:
		return "launching"
	case StateWaitingIdle:
		return "waiting_idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Controller drives one player instance
type Controller struct {
	win     Windows
	api     StatusClient
	locator *locator.Locator
	sim     *shortcut.Simulator
	hub     *player.Hub
	cfg     Config
	logger  zerolog.Logger

	// sleep waits for d or until ctx is done; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	// startMu serializes Start so overlapping callers share one attempt
	startMu sync.Mutex

	mu     sync.Mutex
	state  State
	target locator.Target
	volume VolumeControl
}

// New creates a new controller. Push notifications from api are republished
// on the controller's event stream.
func New(win Windows, api StatusClient, cfg Config, logger zerolog.Logger) *Controller {
	cfg = cfg.withDefaults()

	loc := locator.New(win, locator.Config{
		ProcessName: cfg.ProcessName,
		WindowClass: cfg.WindowClass,
	}, logger)
	sim := shortcut.NewWithProtocol(win, shortcut.Protocol{KeyDelay: cfg.KeyDelay}, logger)

	c := &Controller{
		win:     win,
		api:     api,
		locator: loc,
		sim:     sim,
		hub:     player.NewHub(),
		cfg:     cfg,
		logger:  logger.With().Str("component", "controller").Logger(),
		sleep:   sleepContext,
		volume:  cfg.VolumeControl,
	}
	api.OnEvent(c.publish)
	return c
}

// Start attaches to a running player or launches one, then connects the
// status API. Failures are *player.StartupError values.
//
// Calls are serialized. A call that finds the controller already connected
// to a live player returns nil without doing anything.
func (c *Controller) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.State() == StateConnected && c.mainWindow() != 0 {
		c.logger.Debug().Msg("Player already started")
		return nil
	}

	target, err := c.acquire(ctx)
	if err != nil {
		c.setState(StateNotStarted)
		return err
	}

	c.mu.Lock()
	c.target = target
	c.mu.Unlock()

	c.watchExit(target.PID)

	c.setState(StateConnecting)
	if _, err := c.api.Connect(ctx, c.cfg.ConnectionAttempts, c.cfg.RetryDelay); err != nil {
		c.setState(StateNotStarted)
		return err
	}

	// Connect already delivered Connected through publish
	c.setState(StateConnected)
	return nil
}

// Dispatch carries out cmd. It is a no-op when the player has no main
// window. Only status API failures are returned, as *player.CommandError.
func (c *Controller) Dispatch(ctx context.Context, cmd player.Command) error {
	main := c.mainWindow()
	if main == 0 {
		c.logger.Debug().Stringer("command", cmd).Msg("Player not running, ignoring command")
		return nil
	}

	c.logger.Debug().Stringer("command", cmd).Msg("Dispatching command")

	switch cmd {
	case player.ShowToast, player.CopyTrackInfo:
		// Front-end actions; nothing to send to the player
		return nil

	case player.ShowPlayer:
		if c.win.IsMinimized(main) {
			c.show(main)
		} else {
			c.minimize(ctx, 0)
		}
		return nil

	case player.FastForward, player.Rewind:
		c.simulate(cmd, main)
		return nil

	case player.VolumeUp, player.VolumeDown:
		if c.VolumeControl() == VolumeShortcut {
			c.simulate(cmd, main)
			return nil
		}
		if cmd == player.VolumeUp {
			return c.call(ctx, cmd, c.api.IncrementVolume)
		}
		return c.call(ctx, cmd, c.api.DecrementVolume)

	case player.Mute:
		return c.call(ctx, cmd, c.api.ToggleMute)

	default:
		c.win.SendMessage(main, win32.WM_APPCOMMAND, 0, uintptr(cmd))
		return nil
	}
}

// Stop closes the player: a graceful close request, a grace period, then a
// kill by process name. The status API session is always released.
func (c *Controller) Stop() error {
	c.mu.Lock()
	running := c.target.PID != 0
	c.mu.Unlock()

	var errs []error

	if running {
		if main := c.mainWindow(); main != 0 {
			if err := c.win.PostMessage(main, win32.WM_CLOSE, 0, 0); err != nil {
				errs = append(errs, fmt.Errorf("failed to close player window: %w", err))
			}
		}
		_ = c.sleep(context.Background(), c.cfg.CloseGrace)
	}

	killed, err := c.win.KillByName(c.locator.ProcessName())
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to kill player: %w", err))
	} else if killed > 0 {
		c.logger.Info().Int("count", killed).Msg("Killed player processes")
	}

	if err := c.api.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close status API: %w", err))
	}

	c.setState(StateExited)
	return errors.Join(errs...)
}

// Status returns the latest playback status snapshot
func (c *Controller) Status(ctx context.Context) (*player.Status, error) {
	return c.api.Status(ctx)
}

// Subscribe registers fn for domain events. Events are delivered one at a
// time; a slow handler delays the ones after it.
func (c *Controller) Subscribe(fn player.Handler) (unsubscribe func()) {
	return c.hub.Subscribe(fn)
}

// State returns the lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether the player currently has a main window
func (c *Controller) IsRunning() bool {
	return c.mainWindow() != 0
}

// IsMinimized reports whether the player's main window is minimized
func (c *Controller) IsMinimized() bool {
	main := c.mainWindow()
	return main != 0 && c.win.IsMinimized(main)
}

// VolumeControl returns the active volume control mode
func (c *Controller) VolumeControl() VolumeControl {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetVolumeControl switches the volume control mode
func (c *Controller) SetVolumeControl(mode VolumeControl) {
	c.mu.Lock()
	prev := c.volume
	c.volume = mode
	c.mu.Unlock()

	if prev != mode {
		c.logger.Info().Str("from", string(prev)).Str("to", string(mode)).Msg("Volume control changed")
	}
}

// acquire returns the running player, launching it if needed
func (c *Controller) acquire(ctx context.Context) (locator.Target, error) {
	if t := c.locator.Locate(nil); t.Window != 0 && t.PID != 0 {
		c.logger.Info().Uint32("pid", t.PID).Msg("Attaching to running player")
		return t, nil
	}
	return c.launch(ctx)
}

func (c *Controller) launch(ctx context.Context) (locator.Target, error) {
	if c.cfg.ExecutablePath == "" {
		return locator.Target{}, &player.StartupError{
			Kind: player.ProcessNotFound,
			Err:  errors.New("player is not running and no executable is configured"),
		}
	}

	c.setState(StateLaunching)
	c.logger.Info().Str("path", c.cfg.ExecutablePath).Msg("Launching player")

	budget := c.cfg.StartupTimeout

	pid, err := c.win.StartProcess(c.cfg.ExecutablePath)
	if err != nil {
		return locator.Target{}, &player.StartupError{Kind: player.ProcessNotFound, Err: err}
	}

	// Store-app launches go through the shell and yield no pid
	for pid == 0 {
		if t, ok := c.locator.FindProcess(); ok {
			pid = t.PID
			break
		}
		if budget <= 0 {
			return locator.Target{}, &player.StartupError{
				Kind: player.ProcessNotFound,
				Err:  fmt.Errorf("no %s process after %v", c.locator.ProcessName(), c.cfg.StartupTimeout),
			}
		}
		budget -= c.cfg.ProcessPollInterval
		if err := c.sleep(ctx, c.cfg.ProcessPollInterval); err != nil {
			return locator.Target{}, &player.StartupError{Kind: player.ProcessNotFound, Err: err}
		}
	}

	c.mu.Lock()
	c.target = locator.Target{PID: pid}
	c.mu.Unlock()

	c.setState(StateWaitingIdle)
	if budget < 0 {
		budget = 0
	}
	if err := c.win.WaitForInputIdle(pid, budget); err != nil {
		if errors.Is(err, win32.ErrWaitTimeout) {
			return locator.Target{}, &player.StartupError{
				Kind: player.IdleTimeout,
				Err:  fmt.Errorf("pid %d not idle after %v", pid, budget),
			}
		}
		c.logger.Warn().Err(err).Uint32("pid", pid).Msg("Could not wait for player to become idle")
	}

	if c.cfg.MinimizeOnStartup {
		c.minimize(ctx, c.cfg.MinimizeDelay)
	}

	return locator.Target{PID: pid, Window: c.mainWindow()}, nil
}

// minimize waits a bounded time for the main window to exist, then
// minimizes it after delay
func (c *Controller) minimize(ctx context.Context, delay time.Duration) {
	main := c.mainWindow()
	for remaining := c.cfg.WindowWait; main == 0 && remaining > 0; remaining -= c.cfg.WindowPollInterval {
		if err := c.sleep(ctx, c.cfg.WindowPollInterval); err != nil {
			return
		}
		main = c.mainWindow()
	}
	if main == 0 {
		c.logger.Debug().Msg("Main window never appeared, not minimizing")
		return
	}

	if delay > 0 {
		if err := c.sleep(ctx, delay); err != nil {
			return
		}
	}
	c.win.ShowWindow(main, win32.SW_SHOWMINIMIZED)
}

// show restores a minimized window to its previous placement, so a
// maximized window comes back maximized, and brings it to the front
func (c *Controller) show(main win32.HWND) {
	cmd := win32.SW_SHOW
	if showCmd, err := c.win.ShowCmd(main); err == nil && showCmd == win32.SW_SHOWMINIMIZED {
		cmd = win32.SW_RESTORE
	}

	c.win.ShowWindow(main, cmd)
	c.win.SetForegroundWindow(main)
	c.win.SetFocus(main)
}

func (c *Controller) simulate(cmd player.Command, main win32.HWND) {
	child := c.locator.FindChildControlWindow(main)
	c.sim.Simulate(cmd, main, child)
}

func (c *Controller) call(ctx context.Context, cmd player.Command, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		c.logger.Warn().Err(err).Stringer("command", cmd).Msg("Status API command failed")
		return &player.CommandError{Command: cmd, Err: err}
	}
	return nil
}

// mainWindow revalidates the known target and returns its main window
func (c *Controller) mainWindow() win32.HWND {
	c.mu.Lock()
	known := c.target
	c.mu.Unlock()

	t := c.locator.Locate(&known)
	if t.Window == 0 {
		return 0
	}

	c.mu.Lock()
	if c.target.PID == 0 || c.target.PID == t.PID {
		c.target = t
	}
	c.mu.Unlock()
	return t.Window
}

// publish forwards status API events to subscribers. The state moves to
// connected before subscribers see Connected.
func (c *Controller) publish(ev player.Event) {
	if _, ok := ev.(player.Connected); ok {
		c.setState(StateConnected)
	}
	c.hub.Publish(ev)
}

func (c *Controller) watchExit(pid uint32) {
	if pid == 0 {
		return
	}

	exited, err := c.win.WatchExit(pid)
	if err != nil {
		c.logger.Warn().Err(err).Uint32("pid", pid).Msg("Cannot watch player process for exit")
		return
	}

	go func() {
		<-exited
		c.handleExit(pid)
	}()
}

func (c *Controller) handleExit(pid uint32) {
	c.mu.Lock()
	if c.target.PID != pid {
		c.mu.Unlock()
		return
	}
	c.target = locator.Target{}
	c.state = StateExited
	c.mu.Unlock()

	c.logger.Info().Uint32("pid", pid).Msg("Player exited")

	if err := c.api.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to close status API after exit")
	}
	c.hub.Publish(player.Exited{})
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug().Stringer("from", prev).Stringer("to", s).Msg("State changed")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
