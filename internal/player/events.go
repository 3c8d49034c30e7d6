package player

import (
	"sync"
	"time"
)

// Event is a domain event emitted when the player transitions.
// The concrete types are Connected, Exited, SongChanged, PlayStateChanged,
// TrackTimeChanged and VolumeChanged.
type Event interface {
	Kind() string
}

// Connected fires once the status channel is up and returned a first status
type Connected struct {
	Status Status
}

// Exited fires when the player process exits
type Exited struct{}

// SongChanged fires when the player switches tracks
type SongChanged struct {
	Old     Track
	New     Track
	Playing bool
}

// PlayStateChanged fires when playback starts or pauses
type PlayStateChanged struct {
	Playing bool
	Track   Track
}

// TrackTimeChanged fires as the playback position advances
type TrackTimeChanged struct {
	Position time.Duration
}

// VolumeChanged fires when the player volume changes
type VolumeChanged struct {
	Old float64
	New float64
}

func (Connected) Kind() string        { return "connected" }
func (Exited) Kind() string           { return "exited" }
func (SongChanged) Kind() string      { return "song_changed" }
func (PlayStateChanged) Kind() string { return "play_state_changed" }
func (TrackTimeChanged) Kind() string { return "track_time_changed" }
func (VolumeChanged) Kind() string    { return "volume_changed" }

// Handler receives domain events
type Handler func(Event)

// Hub is a listener registry with serialized delivery.
//
// Publish delivers each event to every handler, in subscription order, before
// the next event is delivered. A slow handler therefore delays the events
// behind it.
type Hub struct {
	deliver sync.Mutex // held for the duration of one Publish

	mu       sync.RWMutex
	handlers []subscription
	nextID   int
}

type subscription struct {
	id int
	fn Handler
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (h *Hub) Subscribe(fn Handler) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.handlers = append(h.handlers, subscription{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.handlers {
				if s.id == id {
					h.handlers = append(h.handlers[:i:i], h.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers e to all current handlers
func (h *Hub) Publish(e Event) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.RLock()
	handlers := make([]subscription, len(h.handlers))
	copy(handlers, h.handlers)
	h.mu.RUnlock()

	for _, s := range handlers {
		s.fn(e)
	}
}
