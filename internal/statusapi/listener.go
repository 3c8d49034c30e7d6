package statusapi

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/jfmyers9/spotctl/internal/player"
)

// listen reads push frames until the connection closes. It is the only
// writer of the cached status while the session is up.
func (c *Client) listen(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.RLock()
			closing := c.closing
			c.mu.RUnlock()

			if !closing {
				c.logger.Warn().Err(err).Msg("Event stream closed")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to decode event frame")
			continue
		}

		ev, ok := c.apply(f)
		if !ok {
			continue
		}

		c.mu.RLock()
		h := c.handler
		c.mu.RUnlock()
		if h != nil {
			h(ev)
		}
	}
}

// apply folds f into the cached status and returns the event it produces
func (c *Client) apply(f frame) (player.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == nil {
		c.status = &player.Status{}
	}
	s := c.status

	switch f.Type {
	case EventTrackChange:
		if f.Track == nil {
			break
		}
		old := s.Track
		s.Track = f.Track.toTrack()
		s.Position = 0
		if f.Playing != nil {
			s.Playing = *f.Playing
		}
		return player.SongChanged{Old: old, New: s.Track, Playing: s.Playing}, true

	case EventPlayStateChange:
		if f.Playing == nil {
			break
		}
		s.Playing = *f.Playing
		return player.PlayStateChanged{Playing: s.Playing, Track: s.Track}, true

	case EventTrackTimeChange:
		if f.Position == nil {
			break
		}
		s.Position = seconds(*f.Position)
		return player.TrackTimeChanged{Position: s.Position}, true

	case EventVolumeChange:
		if f.Volume == nil {
			break
		}
		old := s.Volume
		s.Volume = *f.Volume
		return player.VolumeChanged{Old: old, New: s.Volume}, true

	default:
		c.logger.Debug().Str("type", f.Type).Msg("Ignoring unknown event frame")
		return nil, false
	}

	c.logger.Warn().Str("type", f.Type).Msg("Event frame missing payload")
	return nil, false
}
