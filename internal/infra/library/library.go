// Package library is the song catalog: a sqlite table of tracks filled by
// scanning music directories.
package library

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/osa030/playq/internal/domain/track"
)

// ErrNotFound is returned by Resolve for an unknown id.
var ErrNotFound = track.ErrNotFound

const schema = `
CREATE TABLE IF NOT EXISTS library_tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	mtime INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	album TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_library_tracks_artist ON library_tracks(artist COLLATE NOCASE);
`

// Library resolves track ids against the catalog database.
type Library struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at path. ":memory:" is allowed.
func Open(path string) (*Library, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open library database")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create library schema")
	}
	return &Library{db: db}, nil
}

// Close closes the database.
func (l *Library) Close() error {
	return l.db.Close()
}

// Resolve returns the track with the given id.
func (l *Library) Resolve(ctx context.Context, id track.ID) (*track.Track, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, path, title, artist, album, duration_ms
		FROM library_tracks WHERE id = ?
	`, int64(id))

	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve track %s", id)
	}
	return t, nil
}

// IDs returns every track id ordered by artist, album and title.
func (l *Library) IDs(ctx context.Context) ([]track.ID, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id FROM library_tracks
		ORDER BY artist COLLATE NOCASE, album COLLATE NOCASE, title COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tracks")
	}
	defer rows.Close()

	ids := make([]track.ID, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, track.ID(id))
	}
	return ids, rows.Err()
}

// Count returns the number of tracks.
func (l *Library) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM library_tracks`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count tracks")
	}
	return n, nil
}

// Upsert inserts t or updates the row with the same path, and returns its id.
func (l *Library) Upsert(ctx context.Context, t track.Track) (track.ID, error) {
	var id track.ID
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		id, err = upsertTx(ctx, tx, t, 0)
		return err
	})
	return id, err
}

func upsertTx(ctx context.Context, tx *sql.Tx, t track.Track, mtime int64) (track.ID, error) {
	if t.Path == "" {
		return 0, errors.New("track path is required")
	}

	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO library_tracks (path, mtime, title, artist, album, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			duration_ms = excluded.duration_ms
		RETURNING id
	`, t.Path, mtime, t.Title, t.Artist, t.Album, t.Duration.Milliseconds()).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to upsert %s", t.Path)
	}
	return track.ID(id), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*track.Track, error) {
	var (
		t          track.Track
		id         int64
		durationMs int64
	)
	if err := row.Scan(&id, &t.Path, &t.Title, &t.Artist, &t.Album, &durationMs); err != nil {
		return nil, err
	}
	t.ID = track.ID(id)
	t.Duration = time.Duration(durationMs) * time.Millisecond
	return &t, nil
}

// withTx runs fn in a transaction, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
