//go:build !windows

package daemon

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/controller"
	"github.com/jfmyers9/spotctl/internal/history"
	"github.com/jfmyers9/spotctl/internal/ipc"
	"github.com/jfmyers9/spotctl/internal/player"
)

type fakePlayer struct {
	hub *player.Hub

	mu         sync.Mutex
	state      controller.State
	running    bool
	status     player.Status
	startErr   error
	starts     int
	stops      int
	dispatched []player.Command
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		hub: player.NewHub(),
		status: player.Status{
			Track:   player.Track{ID: "spotify:track:1", Title: "Song", Artist: "Band", Length: 3 * time.Minute},
			Playing: true,
			Volume:  0.5,
			Running: true,
		},
	}
}

func (f *fakePlayer) Start(context.Context) error {
	f.mu.Lock()
	f.starts++
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	f.state = controller.StateConnected
	f.running = true
	st := f.status
	f.mu.Unlock()

	f.hub.Publish(player.Connected{Status: st})
	return nil
}

func (f *fakePlayer) Dispatch(_ context.Context, cmd player.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, cmd)
	return nil
}

func (f *fakePlayer) Stop() error {
	f.mu.Lock()
	f.stops++
	f.state = controller.StateExited
	f.running = false
	f.mu.Unlock()

	f.hub.Publish(player.Exited{})
	return nil
}

func (f *fakePlayer) Status(context.Context) (*player.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	return &st, nil
}

func (f *fakePlayer) Subscribe(fn player.Handler) func() { return f.hub.Subscribe(fn) }

func (f *fakePlayer) State() controller.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakePlayer) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakePlayer) VolumeControl() controller.VolumeControl { return controller.VolumeAPI }

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		StateFile:        filepath.Join(dir, "state.json"),
		HistoryDB:        filepath.Join(dir, "history.db"),
		HistoryRetention: 24 * time.Hour,
		IPCAddress:       filepath.Join(dir, "ctl.sock"),
	}
}

// startDaemon runs d until the test ends and waits for its control socket
func startDaemon(t *testing.T, d *Daemon) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := ipc.Call(ctx, d.config.IPCAddress, ipc.Request{Op: ipc.OpPing}); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("daemon control socket never came up")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("run() error: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Error("run() did not return after cancel")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func TestDaemon_ControlRequests(t *testing.T) {
	cfg := testConfig(t)
	cfg.StartPlayer = true
	p := newFakePlayer()

	d, err := New(cfg, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	startDaemon(t, d)

	ctx := context.Background()
	addr := cfg.IPCAddress

	// StartPlayer races the first request; "start" is idempotent once connected
	if _, err := ipc.Call(ctx, addr, ipc.Request{Op: ipc.OpStart}); err != nil {
		t.Fatalf("start error: %v", err)
	}

	resp, err := ipc.Call(ctx, addr, ipc.Request{Op: ipc.OpStatus})
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if resp.Status.State != "connected" || !resp.Status.Running || resp.Status.Track != "Song" {
		t.Errorf("status = %+v", resp.Status)
	}
	if resp.Status.VolumeControl != "api" {
		t.Errorf("volume_control = %q, want api", resp.Status.VolumeControl)
	}

	if _, err := ipc.Call(ctx, addr, ipc.Request{Op: ipc.OpDispatch, Command: "next"}); err != nil {
		t.Errorf("dispatch next error: %v", err)
	}
	if _, err := ipc.Call(ctx, addr, ipc.Request{Op: ipc.OpDispatch, Command: "nonsense"}); err == nil {
		t.Error("dispatch of unknown command succeeded")
	}
	if _, err := ipc.Call(ctx, addr, ipc.Request{Op: "reboot"}); err == nil || !strings.Contains(err.Error(), "unknown operation") {
		t.Errorf("unknown op error = %v", err)
	}

	if _, err := ipc.Call(ctx, addr, ipc.Request{Op: ipc.OpStop}); err != nil {
		t.Errorf("stop error: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dispatched) != 1 || p.dispatched[0] != player.NextTrack {
		t.Errorf("dispatched = %v, want [next]", p.dispatched)
	}
	if p.stops != 1 {
		t.Errorf("stops = %d, want 1", p.stops)
	}
}

func TestDaemon_DispatchRequiresRunningPlayer(t *testing.T) {
	cfg := testConfig(t)
	p := newFakePlayer()

	d, err := New(cfg, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	startDaemon(t, d)

	_, err = ipc.Call(context.Background(), cfg.IPCAddress, ipc.Request{Op: ipc.OpDispatch, Command: "playpause"})
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Errorf("dispatch error = %v, want not running", err)
	}
}

func TestDaemon_StartFailureKeepsServing(t *testing.T) {
	cfg := testConfig(t)
	cfg.StartPlayer = true
	p := newFakePlayer()
	p.startErr = &player.StartupError{Kind: player.ConnectFailed, Err: errors.New("refused")}

	d, err := New(cfg, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	startDaemon(t, d)

	ctx := context.Background()
	if _, err := ipc.Call(ctx, cfg.IPCAddress, ipc.Request{Op: ipc.OpStart}); err == nil {
		t.Error("start succeeded while the player refuses to connect")
	}

	resp, err := ipc.Call(ctx, cfg.IPCAddress, ipc.Request{Op: ipc.OpStatus})
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if resp.Status.Running {
		t.Errorf("status = %+v, want not running", resp.Status)
	}
}

func TestDaemon_EventsReachStateAndHistory(t *testing.T) {
	cfg := testConfig(t)
	p := newFakePlayer()

	d, err := New(cfg, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := startDaemon(t, d)

	next := player.Track{ID: "spotify:track:2", Title: "Next Song", Artist: "Band"}
	p.hub.Publish(player.SongChanged{Old: p.status.Track, New: next, Playing: true})
	p.hub.Publish(player.TrackTimeChanged{Position: time.Second})
	p.hub.Publish(player.PlayStateChanged{Playing: false, Track: next})

	stop()
	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	np, err := ReadState(cfg.StateFile)
	if err != nil {
		t.Fatalf("ReadState() error: %v", err)
	}
	if np.Track.Title != "Next Song" || np.Playing {
		t.Errorf("state = %+v", np)
	}

	j, err := history.Open(cfg.HistoryDB)
	if err != nil {
		t.Fatalf("history.Open() error: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	for kind, want := range map[string]int{
		player.SongChanged{}.Kind():      1,
		player.PlayStateChanged{}.Kind(): 1,
		player.TrackTimeChanged{}.Kind(): 0,
	} {
		got, err := j.Count(ctx, kind)
		if err != nil {
			t.Fatalf("Count(%s) error: %v", kind, err)
		}
		if got != want {
			t.Errorf("Count(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestShutdown_ClosesPlayerWhenConfigured(t *testing.T) {
	tests := []struct {
		name        string
		closeOnExit bool
		wantStops   int
	}{
		{"close on exit", true, 1},
		{"leave running", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.HistoryDB = ""
			cfg.CloseOnExit = tt.closeOnExit

			p := newFakePlayer()
			p.running = true

			d, err := New(cfg, p, zerolog.Nop())
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if err := d.Shutdown(); err != nil {
				t.Fatalf("Shutdown() error: %v", err)
			}
			if p.stops != tt.wantStops {
				t.Errorf("stops = %d, want %d", p.stops, tt.wantStops)
			}
		})
	}
}

func TestShutdown_ReportsDroppedHistory(t *testing.T) {
	var buf bytes.Buffer
	d, err := New(testConfig(t), newFakePlayer(), zerolog.New(&buf))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// The recorder is not running, so its buffer fills and overflows
	for i := 0; i < 300; i++ {
		d.recorder.Handle(player.Exited{})
	}
	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	if !strings.Contains(buf.String(), `"dropped":44`) {
		t.Errorf("shutdown log missing dropped count:\n%s", buf.String())
	}
}
