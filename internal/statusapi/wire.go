package statusapi

import (
	"fmt"
	"time"

	"github.com/jfmyers9/spotctl/internal/player"
)

// Push notification types
const (
	EventTrackChange     = "track_change"
	EventPlayStateChange = "play_state_change"
	EventTrackTimeChange = "track_time_change"
	EventVolumeChange    = "volume_change"

	frameSubscribed = "subscribed"
)

// Notifications lists every notification the client subscribes to
var Notifications = []string{
	EventTrackChange,
	EventPlayStateChange,
	EventTrackTimeChange,
	EventVolumeChange,
}

// Volume actions accepted by /remote/volume.json
const (
	actionIncrement = "increment"
	actionDecrement = "decrement"
	actionMute      = "mute"
)

// APIError is an error object returned by the status API
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error returns the error message.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status API error %s", e.Type)
	}
	return fmt.Sprintf("status API error %s: %s", e.Type, e.Message)
}

type tokenResponse struct {
	Token string    `json:"token"`
	Error *APIError `json:"error,omitempty"`
}

type resource struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type trackPayload struct {
	Track  resource `json:"track_resource"`
	Artist resource `json:"artist_resource"`
	Album  resource `json:"album_resource"`
	Length float64  `json:"length"` // seconds
}

func (t *trackPayload) toTrack() player.Track {
	if t == nil {
		return player.Track{}
	}
	return player.Track{
		ID:     t.Track.URI,
		Title:  t.Track.Name,
		Artist: t.Artist.Name,
		Album:  t.Album.Name,
		Length: seconds(t.Length),
	}
}

type statusPayload struct {
	Track    *trackPayload `json:"track"`
	Playing  bool          `json:"playing"`
	Position float64       `json:"playing_position"` // seconds
	Volume   float64       `json:"volume"`
	Running  bool          `json:"running"`
	Error    *APIError     `json:"error,omitempty"`
}

func (s *statusPayload) toStatus() player.Status {
	return player.Status{
		Track:    s.Track.toTrack(),
		Playing:  s.Playing,
		Position: seconds(s.Position),
		Volume:   s.Volume,
		Running:  s.Running,
	}
}

type volumeResponse struct {
	Volume float64   `json:"volume"`
	Error  *APIError `json:"error,omitempty"`
}

type subscribeRequest struct {
	Subscribe []string `json:"subscribe"`
}

// frame is one push notification. Only the fields relevant to Type are set.
type frame struct {
	Type     string        `json:"type"`
	Track    *trackPayload `json:"track,omitempty"`
	Playing  *bool         `json:"playing,omitempty"`
	Position *float64      `json:"position,omitempty"`
	Volume   *float64      `json:"volume,omitempty"`
	Error    *APIError     `json:"error,omitempty"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
