package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/jfmyers9/spotctl/internal/player"
)

const (
	maxRecentTracks = 5
	dispatchTimeout = 5 * time.Second
)

// Player is the controller surface the TUI drives
type Player interface {
	Dispatch(ctx context.Context, cmd player.Command) error
	Status(ctx context.Context) (*player.Status, error)
	Subscribe(fn player.Handler) (unsubscribe func())
}

// Config holds TUI configuration options
type Config struct {
	RefreshRate   time.Duration // How often to refresh the display
	VolumeControl string        // Shown in the session panel
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: 500 * time.Millisecond,
	}
}

// RecentTrack stores info about a recently played track
type RecentTrack struct {
	Title    string
	Artist   string
	PlayedAt time.Time
}

var keyCommands = map[rune]player.Command{
	' ': player.PlayPause,
	'n': player.NextTrack,
	'p': player.PreviousTrack,
	'f': player.FastForward,
	'r': player.Rewind,
	'+': player.VolumeUp,
	'=': player.VolumeUp,
	'-': player.VolumeDown,
	'm': player.Mute,
	's': player.ShowPlayer,
}

// App is the TUI application for displaying and controlling playback
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	status     *tview.TextView
	session    *tview.TextView
	recent     *tview.TextView

	config Config
	player Player

	// Mutex protects state written by event delivery and read by the
	// refresh ticker
	mu sync.Mutex

	// Current state (guarded by mu)
	connected  bool
	current    player.Status
	observedAt time.Time // When current.Position was reported
	message    string    // Last command error, cleared on success

	// Session stats (guarded by mu)
	sessionStart time.Time
	tracksPlayed int

	// Ring buffer for recent tracks
	recentBuf   [maxRecentTracks]RecentTrack
	recentCount int // total tracks added (recentCount % maxRecentTracks = next write index)

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastSession    string
	lastRecent     string
	lastStatus     string

	// Cached progress bar width to stabilize change detection.
	// Updated only when GetInnerRect returns a positive value.
	lastBarWidth int

	now func() time.Time

	cancelFunc context.CancelFunc
}

// New creates a new TUI application driving p
func New(p Player, cfg Config) *App {
	a := &App{
		app:          tview.NewApplication(),
		config:       cfg,
		player:       p,
		sessionStart: time.Now(),
		now:          time.Now,
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	// Now playing panel
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	// Progress bar
	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	// Session stats
	a.session = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.session.SetBorder(true).
		SetTitle(" Session ").
		SetTitleAlign(tview.AlignLeft)

	// Recent tracks
	a.recent = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.recent.SetBorder(true).
		SetTitle(" Recent ").
		SetTitleAlign(tview.AlignLeft)

	// Status bar
	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	bottomRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.session, 0, 1, false).
		AddItem(a.recent, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 0, 3, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(bottomRow, 7, 1, false).
		AddItem(a.status, 1, 1, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

// handleKeyEvent processes keyboard input
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	r := event.Rune()
	if r == 'q' || r == 'Q' {
		a.Stop()
		return nil
	}

	cmd, ok := keyCommands[r]
	if !ok {
		return event
	}

	// Shortcut commands sleep between keystrokes; keep the UI responsive
	go a.dispatch(cmd)
	return nil
}

func (a *App) dispatch(cmd player.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	err := a.player.Dispatch(ctx, cmd)

	a.mu.Lock()
	if err != nil {
		a.message = fmt.Sprintf("%s: %v", cmd, err)
	} else {
		a.message = ""
	}
	a.mu.Unlock()
}

// Run shows the TUI until the user quits or ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancelFunc = context.WithCancel(ctx)

	unsubscribe := a.player.Subscribe(a.handleEvent)
	defer unsubscribe()

	// Seed from the cached status so the first frame is not empty
	if st, err := a.player.Status(ctx); err == nil && st != nil {
		a.handleEvent(player.Connected{Status: *st})
	}

	go a.refreshLoop(ctx)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}

// handleEvent folds a player event into the display state. Redraws are
// left to the refresh ticker.
func (a *App) handleEvent(ev player.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	switch e := ev.(type) {
	case player.Connected:
		a.connected = true
		a.current = e.Status
		a.observedAt = now

	case player.Exited:
		a.connected = false
		a.current = player.Status{}

	case player.SongChanged:
		if !e.Old.IsZero() {
			a.addToRecentTracks(e.Old)
			a.tracksPlayed++
		}
		a.current.Track = e.New
		a.current.Playing = e.Playing
		a.current.Position = 0
		a.observedAt = now

	case player.PlayStateChanged:
		a.current.Position = a.position()
		a.current.Playing = e.Playing
		a.observedAt = now

	case player.TrackTimeChanged:
		a.current.Position = e.Position
		a.observedAt = now

	case player.VolumeChanged:
		a.current.Volume = e.New
	}
}

// position extrapolates the playback position.
// Must be called with a.mu held.
func (a *App) position() time.Duration {
	pos := a.current.Position
	if a.current.Playing && !a.observedAt.IsZero() {
		pos += a.now().Sub(a.observedAt)
	}
	if l := a.current.Track.Length; l > 0 && pos > l {
		pos = l
	}
	return pos
}

// refreshLoop is the single source of redraws
func (a *App) refreshLoop(ctx context.Context) {
	refreshRate := a.config.RefreshRate
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	a.refresh()

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// addToRecentTracks adds a track to the ring buffer of recent tracks.
// Must be called with a.mu held.
func (a *App) addToRecentTracks(track player.Track) {
	idx := a.recentCount % maxRecentTracks
	a.recentBuf[idx] = RecentTrack{
		Title:    track.Title,
		Artist:   track.Artist,
		PlayedAt: a.now(),
	}
	a.recentCount++
}

// getRecentTracks returns recent tracks in most-recent-first order.
// Must be called with a.mu held.
func (a *App) getRecentTracks() []RecentTrack {
	n := min(a.recentCount, maxRecentTracks)
	result := make([]RecentTrack, n)
	for i := 0; i < n; i++ {
		// Walk backwards from the most recently written slot
		idx := (a.recentCount - 1 - i) % maxRecentTracks
		result[i] = a.recentBuf[idx]
	}
	return result
}

// refresh updates all UI components
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		a.updateNowPlaying()
		a.updateProgress()
		a.updateSession()
		a.updateRecentTracks()
		a.updateStatus()
	})
}

func (a *App) playing() bool {
	return a.connected && !a.current.Track.IsZero()
}

// updateNowPlaying updates the now playing panel
func (a *App) updateNowPlaying() {
	text := nowPlayingText(a.connected, a.current)
	if text != a.lastNowPlaying {
		a.lastNowPlaying = text
		a.nowPlaying.SetText(text)
	}
}

func nowPlayingText(connected bool, st player.Status) string {
	if !connected {
		return "\n\n[gray]Player not connected[-]"
	}
	if st.Track.IsZero() {
		return "\n\n[gray]No track playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(st.Track.Title)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(st.Track.Artist)))
	sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(st.Track.Album)))

	stateIcon := "[yellow]⏸[-]" // Pause icon
	if st.Playing {
		stateIcon = "[green]▶[-]" // Play triangle
	}
	sb.WriteString(fmt.Sprintf("\n\n%s", stateIcon))
	return sb.String()
}

// updateProgress updates the progress bar
func (a *App) updateProgress() {
	var text string

	if a.playing() {
		_, _, width, _ := a.progress.GetInnerRect()
		barWidth := width - 14 // Account for time display
		if barWidth > 0 {
			a.lastBarWidth = barWidth
		}
		if a.lastBarWidth < 10 {
			a.lastBarWidth = 10
		}

		pos := a.position()
		progressBar := buildProgressBar(pos, a.current.Track.Length, a.lastBarWidth)
		text = fmt.Sprintf("%s %s %s", formatDuration(pos), progressBar, formatDuration(a.current.Track.Length))
	}

	if text != a.lastProgress {
		a.lastProgress = text
		a.progress.SetText(text)
	}
}

// updateSession updates the session panel
func (a *App) updateSession() {
	var sb strings.Builder

	if a.connected {
		sb.WriteString(fmt.Sprintf("Volume: %s\n", volumeBar(a.current.Volume, 10)))
	} else {
		sb.WriteString("[gray]Volume: -[-]\n")
	}
	if a.config.VolumeControl != "" {
		sb.WriteString(fmt.Sprintf("Volume keys: %s\n", a.config.VolumeControl))
	}
	sb.WriteString(fmt.Sprintf("Tracks: %d\n", a.tracksPlayed))
	sb.WriteString(fmt.Sprintf("Session: %s", formatDuration(a.now().Sub(a.sessionStart))))

	text := sb.String()
	if text != a.lastSession {
		a.lastSession = text
		a.session.SetText(text)
	}
}

// updateRecentTracks updates the recent tracks panel
func (a *App) updateRecentTracks() {
	var sb strings.Builder

	tracks := a.getRecentTracks()
	if len(tracks) == 0 {
		sb.WriteString("[gray]No recent tracks[-]")
	} else {
		for i, track := range tracks {
			if i > 0 {
				sb.WriteString("\n")
			}

			name := track.Title
			if len([]rune(name)) > 20 {
				name = string([]rune(name)[:17]) + "..."
			}
			sb.WriteString(fmt.Sprintf("[white]%s[-] [gray]%s[-]", tview.Escape(name), tview.Escape(track.Artist)))
		}
	}

	text := sb.String()
	if text != a.lastRecent {
		a.lastRecent = text
		a.recent.SetText(text)
	}
}

// updateStatus updates the key help line, or the last command error
func (a *App) updateStatus() {
	text := "[gray]q:quit  space:play/pause  n:next  p:prev  f/r:seek  +/-:volume  m:mute  s:show[-]"
	if a.message != "" {
		text = fmt.Sprintf("[red]%s[-]", tview.Escape(a.message))
	}

	if text != a.lastStatus {
		a.lastStatus = text
		a.status.SetText(text)
	}
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration == 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}

	progress := float64(position) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	filled := int(progress * float64(width))
	empty := width - filled

	bar := "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"

	return bar
}

// volumeBar renders a 0.0-1.0 volume level
func volumeBar(volume float64, width int) string {
	volume = min(max(volume, 0), 1)
	filled := int(volume * float64(width))
	return fmt.Sprintf("[yellow]%s%s %3.0f%%[-]",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		volume*100)
}

// formatDuration formats a duration as MM:SS or HH:MM:SS for longer durations
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
