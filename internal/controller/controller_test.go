package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/player"
	"github.com/jfmyers9/spotctl/internal/win32"
)

const (
	testPID   uint32     = 4242
	mainWnd   win32.HWND = 0x10
	browser   win32.HWND = 0x11
	widgetWnd win32.HWND = 0x12
)

type message struct {
	hwnd   win32.HWND
	msg    uint32
	wParam uintptr
	lParam uintptr
}

// fakeWin is an in-memory desktop with at most one player process
type fakeWin struct {
	mu sync.Mutex

	procs     []win32.Process
	alive     map[win32.HWND]uint32
	minimized bool
	showCmd   int

	startPID   uint32 // pid returned by StartProcess
	startErr   error
	startSpawn bool // StartProcess makes the process appear
	starts     int

	idleErr      error
	idleDelay    time.Duration // how long WaitForInputIdle blocks
	idleTimeouts []time.Duration

	exit chan struct{}

	shown      []int
	foreground int
	sent       []message
	posted     []message
	kills      []string
}

func newFakeWin() *fakeWin {
	return &fakeWin{
		alive: map[win32.HWND]uint32{},
		exit:  make(chan struct{}),
	}
}

// spawn makes the player process and its window exist
func (f *fakeWin) spawn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs = []win32.Process{{PID: testPID, Name: "Spotify.exe", MainWindow: mainWnd}}
	f.alive[mainWnd] = testPID
}

func (f *fakeWin) Processes(string) ([]win32.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]win32.Process(nil), f.procs...), nil
}

func (f *fakeWin) Threads(uint32) ([]uint32, error)           { return nil, nil }
func (f *fakeWin) FindWindow(string) win32.HWND               { return 0 }
func (f *fakeWin) FindThreadWindow(uint32, string) win32.HWND { return 0 }
func (f *fakeWin) GetMenu(win32.HWND) win32.HMENU             { return 0x300 }
func (f *fakeWin) GetSubMenu(win32.HMENU, int) win32.HMENU    { return 0x301 }
func (f *fakeWin) ScanCode(vk uint16) uint32                  { return uint32(vk) }
func (f *fakeWin) WatchExit(uint32) (<-chan struct{}, error)  { return f.exit, nil }
func (f *fakeWin) ShowCmd(win32.HWND) (int, error)            { return f.showCmd, nil }
func (f *fakeWin) IsMinimized(win32.HWND) bool                { return f.minimized }
func (f *fakeWin) SetFocus(win32.HWND)                        {}

func (f *fakeWin) FindWindowEx(parent win32.HWND, class string) win32.HWND {
	switch {
	case parent == mainWnd && class == "CefBrowserWindow":
		return browser
	case parent == browser && class == "Chrome_WidgetWin_0":
		return widgetWnd
	}
	return 0
}

func (f *fakeWin) IsWindow(h win32.HWND) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.alive[h]
	return ok
}

func (f *fakeWin) WindowProcessID(h win32.HWND) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[h]
}

func (f *fakeWin) StartProcess(string) (uint32, error) {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	if f.startErr != nil {
		return 0, f.startErr
	}
	if f.startSpawn {
		f.spawn()
	}
	return f.startPID, nil
}

func (f *fakeWin) WaitForInputIdle(_ uint32, timeout time.Duration) error {
	f.idleTimeouts = append(f.idleTimeouts, timeout)
	if f.idleDelay > 0 {
		time.Sleep(f.idleDelay)
	}
	return f.idleErr
}

func (f *fakeWin) KillByName(name string) (int, error) {
	f.kills = append(f.kills, name)
	return 1, nil
}

func (f *fakeWin) ShowWindow(_ win32.HWND, cmd int) bool {
	f.shown = append(f.shown, cmd)
	return true
}

func (f *fakeWin) SetForegroundWindow(win32.HWND) bool {
	f.foreground++
	return true
}

func (f *fakeWin) SendMessage(h win32.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	f.sent = append(f.sent, message{h, msg, wParam, lParam})
	return 0
}

func (f *fakeWin) PostMessage(h win32.HWND, msg uint32, wParam, lParam uintptr) error {
	f.posted = append(f.posted, message{h, msg, wParam, lParam})
	return nil
}

type fakeAPI struct {
	mu sync.Mutex

	handler    player.Handler
	connects   int
	attempts   int
	retryDelay time.Duration
	connectErr error
	status     player.Status

	increments int
	decrements int
	mutes      int
	volumeErr  error
	closes     int
}

func (a *fakeAPI) OnEvent(h player.Handler) { a.handler = h }

func (a *fakeAPI) Connect(_ context.Context, maxAttempts int, retryDelay time.Duration) (*player.Status, error) {
	a.connects++
	a.attempts = maxAttempts
	a.retryDelay = retryDelay
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	s := a.status
	if a.handler != nil {
		a.handler(player.Connected{Status: s})
	}
	return &s, nil
}

func (a *fakeAPI) Status(context.Context) (*player.Status, error) {
	s := a.status
	return &s, nil
}

func (a *fakeAPI) IncrementVolume(context.Context) error {
	a.increments++
	return a.volumeErr
}

func (a *fakeAPI) DecrementVolume(context.Context) error {
	a.decrements++
	return a.volumeErr
}

func (a *fakeAPI) ToggleMute(context.Context) error {
	a.mutes++
	return a.volumeErr
}

func (a *fakeAPI) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	return nil
}

func (a *fakeAPI) closeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

type harness struct {
	win    *fakeWin
	api    *fakeAPI
	ctrl   *Controller
	sleeps []time.Duration
	events chan player.Event

	// onSleep runs after each recorded sleep
	onSleep func(n int)
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	if cfg.ExecutablePath == "" {
		cfg.ExecutablePath = `C:\Spotify\Spotify.exe`
	}
	if cfg.KeyDelay == 0 {
		cfg.KeyDelay = time.Microsecond
	}

	h := &harness{
		win:    newFakeWin(),
		api:    &fakeAPI{status: player.Status{Track: player.Track{ID: "spotify:track:1", Title: "Song"}, Playing: true}},
		events: make(chan player.Event, 16),
	}
	h.ctrl = New(h.win, h.api, cfg, zerolog.Nop())
	h.ctrl.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		if h.onSleep != nil {
			h.onSleep(len(h.sleeps))
		}
		return ctx.Err()
	}
	h.ctrl.Subscribe(func(e player.Event) { h.events <- e })
	return h
}

func (h *harness) nextEvent(t *testing.T) player.Event {
	t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestStart_AttachesToRunningPlayer(t *testing.T) {
	h := newHarness(t, Config{ConnectionAttempts: 3})
	h.win.spawn()

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if h.win.starts != 0 {
		t.Errorf("StartProcess called %d times for a running player", h.win.starts)
	}
	if len(h.win.idleTimeouts) != 0 {
		t.Error("waited for input idle on an attached player")
	}
	if h.api.attempts != 3 || h.api.retryDelay != time.Second {
		t.Errorf("Connect(attempts=%d, delay=%v), want 3, 1s", h.api.attempts, h.api.retryDelay)
	}
	if got := h.ctrl.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}

	e, ok := h.nextEvent(t).(player.Connected)
	if !ok || e.Status.Track.Title != "Song" {
		t.Errorf("first event = %#v, want Connected with status", e)
	}
}

func TestStart_LaunchesPlayer(t *testing.T) {
	h := newHarness(t, Config{StartupTimeout: 10 * time.Second})
	h.win.startPID = testPID
	h.win.startSpawn = true

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if h.win.starts != 1 {
		t.Errorf("StartProcess called %d times, want 1", h.win.starts)
	}
	if len(h.win.idleTimeouts) != 1 || h.win.idleTimeouts[0] != 10*time.Second {
		t.Errorf("idle waits = %v, want [10s]", h.win.idleTimeouts)
	}
	if len(h.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none when the launch returns a pid", h.sleeps)
	}
	if !h.ctrl.IsRunning() {
		t.Error("IsRunning() = false after launch")
	}
}

func TestStart_OverlappingCallsLaunchOnce(t *testing.T) {
	h := newHarness(t, Config{StartupTimeout: 10 * time.Second})
	h.win.startPID = testPID
	h.win.startSpawn = true
	h.win.idleDelay = 50 * time.Millisecond

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.ctrl.Start(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Start() #%d error: %v", i, err)
		}
	}
	h.win.mu.Lock()
	starts := h.win.starts
	h.win.mu.Unlock()
	if starts != 1 {
		t.Errorf("player launched %d times by overlapping Start calls, want 1", starts)
	}
	if h.api.connects != 1 {
		t.Errorf("Connect called %d times, want 1", h.api.connects)
	}
	if got := h.ctrl.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
}

func TestStart_ConnectedPublishedOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.win.spawn()

	var states []State
	h.ctrl.Subscribe(func(e player.Event) {
		if _, ok := e.(player.Connected); ok {
			states = append(states, h.ctrl.State())
		}
	})

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Subscribers already see the connected state
	if len(states) != 1 || states[0] != StateConnected {
		t.Errorf("states seen with Connected = %v, want [connected]", states)
	}
	if _, ok := h.nextEvent(t).(player.Connected); !ok {
		t.Error("first event is not Connected")
	}
	select {
	case e := <-h.events:
		t.Errorf("unexpected extra event %#v", e)
	default:
	}
}

func TestStart_PollsForShellLaunchedProcess(t *testing.T) {
	h := newHarness(t, Config{StartupTimeout: 10 * time.Second})
	h.onSleep = func(n int) {
		if n == 2 {
			h.win.spawn()
		}
	}

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if len(h.sleeps) != 2 || h.sleeps[0] != 250*time.Millisecond {
		t.Errorf("sleeps = %v, want two 250ms polls", h.sleeps)
	}
	if len(h.win.idleTimeouts) != 1 || h.win.idleTimeouts[0] != 9500*time.Millisecond {
		t.Errorf("idle waits = %v, want remaining budget 9.5s", h.win.idleTimeouts)
	}
}

func TestStart_ProcessNotFound(t *testing.T) {
	h := newHarness(t, Config{StartupTimeout: time.Second})

	err := h.ctrl.Start(context.Background())
	if !errors.Is(err, player.ErrProcessNotFound) {
		t.Fatalf("Start() error = %v, want ProcessNotFound", err)
	}

	if len(h.sleeps) != 4 {
		t.Errorf("polled %d times, want 4 within a 1s budget", len(h.sleeps))
	}
	if h.api.connects != 0 {
		t.Error("connected to the status API without a process")
	}
	if got := h.ctrl.State(); got != StateNotStarted {
		t.Errorf("State() = %v, want not_started", got)
	}
}

func TestStart_LaunchFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.win.startErr = errors.New("file not found")

	if err := h.ctrl.Start(context.Background()); !player.IsStartupKind(err, player.ProcessNotFound) {
		t.Errorf("Start() error = %v, want ProcessNotFound", err)
	}
}

func TestStart_NeverIdle(t *testing.T) {
	h := newHarness(t, Config{StartupTimeout: 3 * time.Second})
	h.win.startPID = testPID
	h.win.startSpawn = true
	h.win.idleErr = win32.ErrWaitTimeout

	err := h.ctrl.Start(context.Background())
	if !errors.Is(err, player.ErrIdleTimeout) {
		t.Fatalf("Start() error = %v, want IdleTimeout", err)
	}
	if len(h.win.idleTimeouts) != 1 || h.win.idleTimeouts[0] != 3*time.Second {
		t.Errorf("idle waits = %v, want one bounded by 3s", h.win.idleTimeouts)
	}
	if h.api.connects != 0 {
		t.Error("connected to the status API before the player was idle")
	}
}

func TestStart_ConnectFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.win.spawn()
	h.api.connectErr = &player.StartupError{Kind: player.NullStatus}

	if err := h.ctrl.Start(context.Background()); !errors.Is(err, player.ErrNullStatus) {
		t.Errorf("Start() error = %v, want NullStatus", err)
	}
	select {
	case e := <-h.events:
		t.Errorf("unexpected event %#v", e)
	default:
	}
}

func TestStart_MinimizeOnStartup(t *testing.T) {
	h := newHarness(t, Config{MinimizeOnStartup: true})
	h.win.startPID = testPID
	h.win.startSpawn = true

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if len(h.win.shown) != 1 || h.win.shown[0] != win32.SW_SHOWMINIMIZED {
		t.Errorf("ShowWindow calls = %v, want [SW_SHOWMINIMIZED]", h.win.shown)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != time.Second {
		t.Errorf("sleeps = %v, want the 1s settle delay", h.sleeps)
	}
}

func TestMinimize_WaitsForWindowWithinBudget(t *testing.T) {
	h := newHarness(t, Config{})

	h.ctrl.minimize(context.Background(), time.Second)

	if len(h.sleeps) != 20 {
		t.Errorf("window polls = %d, want 20 within 2s", len(h.sleeps))
	}
	if len(h.win.shown) != 0 {
		t.Error("minimized a window that never appeared")
	}
}

func TestExitedEvent(t *testing.T) {
	h := newHarness(t, Config{})
	h.win.spawn()

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	h.nextEvent(t) // Connected

	close(h.win.exit)

	if _, ok := h.nextEvent(t).(player.Exited); !ok {
		t.Fatal("second event is not Exited")
	}
	if got := h.ctrl.State(); got != StateExited {
		t.Errorf("State() = %v, want exited", got)
	}
	if h.api.closeCount() != 1 {
		t.Errorf("status API closed %d times, want 1", h.api.closeCount())
	}
}

func TestDispatch_VolumeRouting(t *testing.T) {
	tests := []struct {
		name      string
		mode      VolumeControl
		cmd       player.Command
		wantInc   int
		wantDec   int
		wantPosts bool
	}{
		{"api up", VolumeAPI, player.VolumeUp, 1, 0, false},
		{"api down", VolumeAPI, player.VolumeDown, 0, 1, false},
		{"shortcut up", VolumeShortcut, player.VolumeUp, 0, 0, true},
		{"shortcut down", VolumeShortcut, player.VolumeDown, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{VolumeControl: tt.mode})
			h.win.spawn()

			if err := h.ctrl.Dispatch(context.Background(), tt.cmd); err != nil {
				t.Fatalf("Dispatch() error: %v", err)
			}

			if h.api.increments != tt.wantInc || h.api.decrements != tt.wantDec {
				t.Errorf("api increments=%d decrements=%d, want %d, %d",
					h.api.increments, h.api.decrements, tt.wantInc, tt.wantDec)
			}
			if posted := len(h.win.posted) > 0; posted != tt.wantPosts {
				t.Errorf("shortcut posted = %v, want %v", posted, tt.wantPosts)
			}
			for _, m := range h.win.posted {
				if m.hwnd != widgetWnd {
					t.Errorf("key message sent to 0x%x, want child 0x%x", m.hwnd, widgetWnd)
				}
			}
		})
	}
}

func TestDispatch_SetVolumeControl(t *testing.T) {
	h := newHarness(t, Config{})
	h.win.spawn()

	h.ctrl.SetVolumeControl(VolumeShortcut)
	if err := h.ctrl.Dispatch(context.Background(), player.VolumeUp); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if h.api.increments != 0 || len(h.win.posted) == 0 {
		t.Errorf("increments=%d posted=%d, want shortcut path", h.api.increments, len(h.win.posted))
	}
}

func TestDispatch_APIFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.win.spawn()
	h.api.volumeErr = errors.New("volume locked")

	err := h.ctrl.Dispatch(context.Background(), player.Mute)

	var cmdErr *player.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Dispatch() error = %v, want *CommandError", err)
	}
	if cmdErr.Command != player.Mute {
		t.Errorf("CommandError.Command = %v, want mute", cmdErr.Command)
	}
	if h.api.mutes != 1 {
		t.Errorf("mutes = %d, want 1", h.api.mutes)
	}
}

func TestDispatch_AppCommands(t *testing.T) {
	tests := []player.Command{
		player.PlayPause,
		player.NextTrack,
		player.PreviousTrack,
		player.Stop,
		player.Raw(0x00190000),
	}

	for _, cmd := range tests {
		t.Run(cmd.String(), func(t *testing.T) {
			h := newHarness(t, Config{})
			h.win.spawn()

			if err := h.ctrl.Dispatch(context.Background(), cmd); err != nil {
				t.Fatalf("Dispatch() error: %v", err)
			}

			want := message{mainWnd, win32.WM_APPCOMMAND, 0, uintptr(cmd)}
			if len(h.win.sent) != 1 || h.win.sent[0] != want {
				t.Errorf("sent = %+v, want [%+v]", h.win.sent, want)
			}
		})
	}
}

func TestDispatch_NoWindowIsNoop(t *testing.T) {
	for _, cmd := range append(player.Commands(), player.Raw(0x00190000)) {
		h := newHarness(t, Config{})
		if err := h.ctrl.Dispatch(context.Background(), cmd); err != nil {
			t.Errorf("Dispatch(%v) error: %v", cmd, err)
		}
		if len(h.win.sent)+len(h.win.posted)+len(h.win.shown) != 0 {
			t.Errorf("Dispatch(%v) touched windows with no player running", cmd)
		}
		if h.api.increments+h.api.decrements+h.api.mutes != 0 {
			t.Errorf("Dispatch(%v) called the status API with no player running", cmd)
		}
	}
}

func TestDispatch_FrontEndCommands(t *testing.T) {
	h := newHarness(t, Config{})
	h.win.spawn()

	for _, cmd := range []player.Command{player.ShowToast, player.CopyTrackInfo} {
		if err := h.ctrl.Dispatch(context.Background(), cmd); err != nil {
			t.Errorf("Dispatch(%v) error: %v", cmd, err)
		}
	}
	if len(h.win.sent)+len(h.win.posted) != 0 {
		t.Error("front-end commands sent window messages")
	}
}

func TestDispatch_ShowPlayer(t *testing.T) {
	tests := []struct {
		name       string
		minimized  bool
		showCmd    int
		wantShown  []int
		foreground int
	}{
		{"restore minimized", true, win32.SW_SHOWMINIMIZED, []int{win32.SW_RESTORE}, 1},
		{"show hidden maximized", true, win32.SW_SHOWMAXIMIZED, []int{win32.SW_SHOW}, 1},
		{"minimize visible", false, win32.SW_SHOWNORMAL, []int{win32.SW_SHOWMINIMIZED}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.win.spawn()
			h.win.minimized = tt.minimized
			h.win.showCmd = tt.showCmd

			if err := h.ctrl.Dispatch(context.Background(), player.ShowPlayer); err != nil {
				t.Fatalf("Dispatch() error: %v", err)
			}

			if len(h.win.shown) != len(tt.wantShown) || h.win.shown[0] != tt.wantShown[0] {
				t.Errorf("ShowWindow calls = %v, want %v", h.win.shown, tt.wantShown)
			}
			if h.win.foreground != tt.foreground {
				t.Errorf("SetForegroundWindow calls = %d, want %d", h.win.foreground, tt.foreground)
			}
		})
	}
}

func TestStop(t *testing.T) {
	h := newHarness(t, Config{ProcessName: "Spotify"})
	h.win.spawn()

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if len(h.win.posted) != 1 || h.win.posted[0].msg != win32.WM_CLOSE || h.win.posted[0].hwnd != mainWnd {
		t.Errorf("posted = %+v, want WM_CLOSE to main window", h.win.posted)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != time.Second {
		t.Errorf("sleeps = %v, want 1s grace", h.sleeps)
	}
	if len(h.win.kills) != 1 || h.win.kills[0] != "Spotify" {
		t.Errorf("kills = %v, want [Spotify]", h.win.kills)
	}
	if h.api.closeCount() != 1 {
		t.Errorf("status API closed %d times, want 1", h.api.closeCount())
	}
	if got := h.ctrl.State(); got != StateExited {
		t.Errorf("State() = %v, want exited", got)
	}
}

func TestStop_NotStartedStillReleasesAPI(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if len(h.win.posted) != 0 || len(h.sleeps) != 0 {
		t.Error("graceful close attempted without a known process")
	}
	if len(h.win.kills) != 1 {
		t.Error("kill by name skipped")
	}
	if h.api.closeCount() != 1 {
		t.Error("status API not released")
	}
}

func TestIsMinimized(t *testing.T) {
	h := newHarness(t, Config{})
	if h.ctrl.IsMinimized() {
		t.Error("IsMinimized() = true with no player")
	}

	h.win.spawn()
	h.win.minimized = true
	if !h.ctrl.IsMinimized() {
		t.Error("IsMinimized() = false for a minimized player")
	}
}

func TestParseVolumeControl(t *testing.T) {
	tests := []struct {
		in      string
		want    VolumeControl
		wantErr bool
	}{
		{"api", VolumeAPI, false},
		{"", VolumeAPI, false},
		{" Shortcut ", VolumeShortcut, false},
		{"loud", "", true},
	}

	for _, tt := range tests {
		got, err := ParseVolumeControl(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseVolumeControl(%q) = %q, %v", tt.in, got, err)
		}
	}
}
