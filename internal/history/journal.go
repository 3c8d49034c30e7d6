// Package history keeps a SQLite journal of player events so that past
// playback can be listed after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jfmyers9/spotctl/internal/player"
)

// Journal is a persistent log of player events backed by SQLite
type Journal struct {
	db *sql.DB
}

// Entry is one journaled event
type Entry struct {
	ID        int64
	Session   string // Daemon run that recorded the event
	Kind      string // player.Event Kind()
	TrackID   string
	Track     string
	Artist    string
	Album     string
	Length    time.Duration
	Playing   bool
	Position  time.Duration
	Volume    float64
	Timestamp time.Time
}

// Filter narrows Recent queries. Zero values match everything.
type Filter struct {
	Kinds []string
	Since time.Time
	Limit int
}

const entryColumns = `id, session, kind, track_id, track, artist, album, length_ms, playing, position_ms, volume, timestamp`

// Open opens or creates the journal at path. Use ":memory:" for a
// throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases coherent
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			kind TEXT NOT NULL,
			track_id TEXT NOT NULL DEFAULT '',
			track TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			album TEXT NOT NULL DEFAULT '',
			length_ms INTEGER NOT NULL DEFAULT 0,
			playing BOOLEAN NOT NULL DEFAULT 0,
			position_ms INTEGER NOT NULL DEFAULT 0,
			volume REAL NOT NULL DEFAULT 0,
			timestamp INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, timestamp);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Add appends one entry and returns its id
func (j *Journal) Add(ctx context.Context, e Entry) (int64, error) {
	result, err := j.db.ExecContext(ctx, insertQuery, entryArgs(e)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

// AddBatch appends entries in a single transaction
func (j *Journal) AddBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, entryArgs(e)...); err != nil {
			return fmt.Errorf("failed to insert %s event: %w", e.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Recent returns entries matching f, newest first
func (j *Journal) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Kinds) > 0 {
		where = append(where, "kind IN (?"+strings.Repeat(", ?", len(f.Kinds)-1)+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UnixMilli())
	}

	query := "SELECT " + entryColumns + " FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                              Entry
			lengthMs, positionMs, unixMill int64
		)
		err := rows.Scan(
			&e.ID,
			&e.Session,
			&e.Kind,
			&e.TrackID,
			&e.Track,
			&e.Artist,
			&e.Album,
			&lengthMs,
			&e.Playing,
			&positionMs,
			&e.Volume,
			&unixMill,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.Length = time.Duration(lengthMs) * time.Millisecond
		e.Position = time.Duration(positionMs) * time.Millisecond
		e.Timestamp = time.UnixMilli(unixMill)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return entries, nil
}

// Cleanup deletes entries older than maxAge and returns how many were removed
func (j *Journal) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	result, err := j.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of entries, optionally of a single kind
func (j *Journal) Count(ctx context.Context, kind string) (int, error) {
	query := "SELECT COUNT(*) FROM events"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}

	var count int
	if err := j.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// EntryFromEvent flattens a player event into a journal entry
func EntryFromEvent(session string, ev player.Event, at time.Time) Entry {
	e := Entry{
		Session:   session,
		Kind:      ev.Kind(),
		Timestamp: at,
	}

	switch v := ev.(type) {
	case player.Connected:
		e.setTrack(v.Status.Track)
		e.Playing = v.Status.Playing
		e.Position = v.Status.Position
		e.Volume = v.Status.Volume
	case player.SongChanged:
		e.setTrack(v.New)
		e.Playing = v.Playing
	case player.PlayStateChanged:
		e.setTrack(v.Track)
		e.Playing = v.Playing
	case player.TrackTimeChanged:
		e.Position = v.Position
	case player.VolumeChanged:
		e.Volume = v.New
	}
	return e
}

func (e *Entry) setTrack(t player.Track) {
	e.TrackID = t.ID
	e.Track = t.Title
	e.Artist = t.Artist
	e.Album = t.Album
	e.Length = t.Length
}

const insertQuery = `
	INSERT INTO events (session, kind, track_id, track, artist, album, length_ms, playing, position_ms, volume, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func entryArgs(e Entry) []any {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []any{
		e.Session,
		e.Kind,
		e.TrackID,
		e.Track,
		e.Artist,
		e.Album,
		e.Length.Milliseconds(),
		e.Playing,
		e.Position.Milliseconds(),
		e.Volume,
		ts.UnixMilli(),
	}
}
