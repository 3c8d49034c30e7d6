package history

import (
	"time"

	"github.com/jfmyers9/spotctl/internal/player"
)

// KindPlayed marks a synthetic entry written when a track was listened to
// long enough to count as played. Position holds the time listened.
const KindPlayed = "played"

const (
	// MinimumPlayLength is the shortest track that can count as played
	MinimumPlayLength = 30 * time.Second

	// PlayedFraction of a track must be heard for it to count
	PlayedFraction = 0.5

	// MaxPlayThreshold caps the listening time required for long tracks
	MaxPlayThreshold = 4 * time.Minute
)

// PlayThreshold returns how long a track of the given length must be heard
// to count as played: half its length or 4 minutes, whichever is shorter.
// Tracks shorter than 30 seconds never count and return -1.
func PlayThreshold(length time.Duration) time.Duration {
	if length < MinimumPlayLength {
		return -1
	}
	return min(time.Duration(float64(length)*PlayedFraction), MaxPlayThreshold)
}

// Counts reports whether listening for listened counts a track of the given
// length as played.
func Counts(length, listened time.Duration) bool {
	threshold := PlayThreshold(length)
	return threshold >= 0 && listened >= threshold
}

// playTracker accumulates listening time for the current track from the
// event stream. It is owned by the Recorder's Run goroutine.
type playTracker struct {
	track    player.Track
	playing  bool
	since    time.Time
	listened time.Duration
}

// observe folds ev into the tracker and returns a played entry when ev ends
// a track that was heard long enough.
func (p *playTracker) observe(session string, ev player.Event, at time.Time) (Entry, bool) {
	switch v := ev.(type) {
	case player.Connected:
		p.reset(v.Status.Track, v.Status.Playing, at)
	case player.PlayStateChanged:
		p.accumulate(at)
		p.playing = v.Playing
		if p.track.IsZero() {
			p.track = v.Track
		}
	case player.SongChanged:
		entry, ok := p.finish(session, at)
		p.reset(v.New, v.Playing, at)
		return entry, ok
	case player.Exited:
		entry, ok := p.finish(session, at)
		p.reset(player.Track{}, false, at)
		return entry, ok
	}
	return Entry{}, false
}

// finish closes out the current track
func (p *playTracker) finish(session string, at time.Time) (Entry, bool) {
	p.accumulate(at)
	if p.track.IsZero() || !Counts(p.track.Length, p.listened) {
		return Entry{}, false
	}

	e := Entry{
		Session:   session,
		Kind:      KindPlayed,
		Position:  p.listened,
		Timestamp: at,
	}
	e.setTrack(p.track)
	return e, true
}

func (p *playTracker) accumulate(at time.Time) {
	if p.playing && at.After(p.since) {
		p.listened += at.Sub(p.since)
	}
	p.since = at
}

func (p *playTracker) reset(t player.Track, playing bool, at time.Time) {
	p.track = t
	p.playing = playing
	p.since = at
	p.listened = 0
}
