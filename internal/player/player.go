// Package player holds the data model shared by the player-control packages:
// track metadata, playback status snapshots, commands and domain events.
package player

import (
	"time"
)

// Track represents a music track as reported by the player's status API
type Track struct {
	ID     string        // Player resource URI, stable across renames
	Title  string        // Track name/title
	Artist string        // Artist name
	Album  string        // Album name
	Length time.Duration // Total track duration
}

// IsZero reports whether t carries no track identity
func (t Track) IsZero() bool {
	return t.ID == "" && t.Title == "" && t.Artist == ""
}

// Same reports whether t and o identify the same track
func (t Track) Same(o Track) bool {
	if t.ID != "" || o.ID != "" {
		return t.ID == o.ID
	}
	return t.Title == o.Title &&
		t.Artist == o.Artist &&
		t.Album == o.Album
}

// Status is a snapshot of the player's playback state.
// Values handed to consumers are copies and never change after return.
type Status struct {
	Track    Track         // Current track (zero if nothing loaded)
	Playing  bool          // Whether playback is running
	Position time.Duration // Current playback position
	Volume   float64       // Volume level in [0, 1]
	Running  bool          // Whether the player reports itself as running
}

// PlayState derives a coarse playback state from the snapshot
func (s Status) PlayState() PlayState {
	switch {
	case s.Track.IsZero():
		return StateStopped
	case s.Playing:
		return StatePlaying
	default:
		return StatePaused
	}
}

// PlayState represents the current playback state of the music player
type PlayState int

const (
	StateStopped PlayState = iota // No track loaded
	StatePlaying                  // Track is currently playing
	StatePaused                   // Track is paused
)

// String returns a human-readable representation of the PlayState
func (s PlayState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
