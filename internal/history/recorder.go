package history

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/player"
)

const (
	recorderBuffer = 256
	flushTimeout   = 5 * time.Second
)

// Recorder journals player events off the event-delivery path. Handle never
// blocks; events arriving while the buffer is full are dropped and counted.
type Recorder struct {
	journal *Journal
	session string
	skip    map[string]bool
	events  chan stamped
	plays   playTracker
	dropped atomic.Int64
	logger  zerolog.Logger

	now func() time.Time
}

type stamped struct {
	ev player.Event
	at time.Time
}

// NewRecorder creates a recorder writing to j. Events whose kind is listed
// in skip are not journaled.
func NewRecorder(j *Journal, logger zerolog.Logger, skip ...string) *Recorder {
	r := &Recorder{
		journal: j,
		session: uuid.NewString(),
		skip:    make(map[string]bool, len(skip)),
		events:  make(chan stamped, recorderBuffer),
		now:     time.Now,
	}
	for _, k := range skip {
		r.skip[k] = true
	}
	r.logger = logger.With().Str("component", "history").Str("session", r.session).Logger()
	return r
}

// Session returns the id stamped on every entry this recorder writes
func (r *Recorder) Session() string {
	return r.session
}

// Dropped returns how many events were discarded because the buffer was full
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Handle queues ev for writing. It is a player.Handler.
func (r *Recorder) Handle(ev player.Event) {
	if r.skip[ev.Kind()] {
		return
	}

	select {
	case r.events <- stamped{ev: ev, at: r.now()}:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn().Int64("dropped", n).Msg("History buffer full, dropping events")
		}
	}
}

// Run writes queued events until ctx is cancelled, then flushes whatever is
// still buffered. A track that ends after being heard long enough also gets
// a KindPlayed entry, including the one still playing at shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Debug().Msg("History recorder started")

	// Writes already dequeued must land even if ctx is cancelled meanwhile
	writeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case s := <-r.events:
			for _, entry := range r.entries(s) {
				if _, err := r.journal.Add(writeCtx, entry); err != nil {
					r.logger.Error().Err(err).Str("kind", entry.Kind).Msg("Failed to journal event")
				}
			}
		case <-ctx.Done():
			return r.flush()
		}
	}
}

func (r *Recorder) flush() error {
	var pending []Entry
drain:
	for {
		select {
		case s := <-r.events:
			pending = append(pending, r.entries(s)...)
		default:
			break drain
		}
	}

	if played, ok := r.plays.finish(r.session, r.now()); ok {
		pending = append(pending, played)
	}

	if len(pending) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := r.journal.AddBatch(ctx, pending); err != nil {
		return err
	}
	r.logger.Debug().Int("count", len(pending)).Msg("Flushed buffered events")
	return nil
}

// entries returns the journal rows for one event, preceded by a played
// entry when the event ends a track
func (r *Recorder) entries(s stamped) []Entry {
	entry := EntryFromEvent(r.session, s.ev, s.at)
	if played, ok := r.plays.observe(r.session, s.ev, s.at); ok {
		r.logger.Debug().Str("track", played.Track).Dur("listened", played.Position).Msg("Track played")
		return []Entry{played, entry}
	}
	return []Entry{entry}
}
