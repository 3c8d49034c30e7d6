package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/spotctl/internal/player"
)

// defaultPersistInterval bounds how often position and volume updates hit
// the disk. Track and play-state changes are always written immediately.
const defaultPersistInterval = 5 * time.Second

// NowPlaying is the daemon's view of the player, persisted for status-line
// tools that run without the daemon's control socket
type NowPlaying struct {
	Connected bool          `json:"connected"`
	Track     player.Track  `json:"track"`
	Playing   bool          `json:"playing"`
	Position  time.Duration `json:"position"`
	Volume    float64       `json:"volume"`
	UpdatedAt time.Time     `json:"updated_at"` // When Position was observed
}

// Elapsed estimates the playback position at now, advancing Position by
// the time since it was observed while playing
func (n NowPlaying) Elapsed(now time.Time) time.Duration {
	pos := n.Position
	if n.Playing && !n.UpdatedAt.IsZero() {
		pos += now.Sub(n.UpdatedAt)
	}
	if n.Track.Length > 0 && pos > n.Track.Length {
		pos = n.Track.Length
	}
	return pos
}

// Status converts the snapshot to a player.Status
func (n NowPlaying) Status(now time.Time) player.Status {
	return player.Status{
		Track:    n.Track,
		Playing:  n.Playing,
		Position: n.Elapsed(now),
		Volume:   n.Volume,
		Running:  n.Connected,
	}
}

// State tracks the now-playing snapshot with thread-safe access and
// throttled persistence
type State struct {
	mu       sync.RWMutex
	current  NowPlaying
	filePath string // Path to state file, empty disables persistence

	persistInterval time.Duration
	lastPersist     time.Time
	dirty           bool // Holds changes not yet written

	now func() time.Time
}

// NewState creates a new State, restoring the last snapshot from filePath
// when it exists
func NewState(filePath string) (*State, error) {
	s := &State{
		filePath:        filePath,
		persistInterval: defaultPersistInterval,
		now:             time.Now,
	}

	if filePath != "" {
		if err := s.restore(); err != nil && !os.IsNotExist(err) {
			// Not fatal, the daemon starts from an empty snapshot
			return s, err
		}
	}

	// Whatever was restored is stale until the player reconnects
	s.current.Connected = false
	s.current.Playing = false

	return s, nil
}

// ReadState loads a snapshot written by a daemon
func ReadState(filePath string) (NowPlaying, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return NowPlaying{}, err
	}

	var np NowPlaying
	if err := json.Unmarshal(data, &np); err != nil {
		return NowPlaying{}, fmt.Errorf("failed to parse state file: %w", err)
	}
	return np, nil
}

// Apply folds a player event into the snapshot
func (s *State) Apply(ev player.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	switch e := ev.(type) {
	case player.Connected:
		s.current = NowPlaying{
			Connected: true,
			Track:     e.Status.Track,
			Playing:   e.Status.Playing,
			Position:  e.Status.Position,
			Volume:    e.Status.Volume,
			UpdatedAt: now,
		}
		return s.persist()

	case player.Exited:
		s.current = NowPlaying{}
		return s.persist()

	case player.SongChanged:
		s.current.Track = e.New
		s.current.Playing = e.Playing
		s.current.Position = 0
		s.current.UpdatedAt = now
		return s.persist()

	case player.PlayStateChanged:
		// Freeze the extrapolated position at the moment of the change
		s.current.Position = s.current.Elapsed(now)
		s.current.Playing = e.Playing
		s.current.UpdatedAt = now
		return s.persist()

	case player.TrackTimeChanged:
		s.current.Position = e.Position
		s.current.UpdatedAt = now
		return s.throttledPersist()

	case player.VolumeChanged:
		s.current.Volume = e.New
		return s.throttledPersist()
	}

	return nil
}

// GetState returns a copy of the current snapshot
func (s *State) GetState() NowPlaying {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Flush writes pending throttled changes
func (s *State) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persist()
}

// throttledPersist writes only if persistInterval has elapsed since the
// last write, otherwise marks the state dirty.
// Must be called with lock held
func (s *State) throttledPersist() error {
	if s.now().Sub(s.lastPersist) < s.persistInterval {
		s.dirty = true
		return nil
	}
	return s.persist()
}

// persist saves the current snapshot to disk.
// Must be called with lock held
func (s *State) persist() error {
	if s.filePath == "" {
		s.dirty = false
		return nil
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return err
	}

	s.lastPersist = s.now()
	s.dirty = false
	return nil
}

// restore loads the snapshot from disk
func (s *State) restore() error {
	np, err := ReadState(s.filePath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = np
	return nil
}
