package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig holds settings for the sqlite backend.
type SQLiteConfig struct {
	Path          string `mapstructure:"path"` // Empty means $XDG_DATA_HOME/playq/state.db
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms" default:"5000" validate:"gte=0"`
}

// SQLiteKV stores keys in a single sqlite table.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV opens (or creates) the database at path. ":memory:" is allowed.
func NewSQLiteKV(path string, busyTimeoutMs int) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	// one connection keeps ":memory:" databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs)); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create kv table")
	}
	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", key)
	}
	return value, nil
}

func (s *SQLiteKV) PutAll(ctx context.Context, entries map[string][]byte) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for k, v := range entries {
			if _, err := stmt.ExecContext(ctx, k, v); err != nil {
				return errors.Wrapf(err, "failed to write %s", k)
			}
		}
		return nil
	})
}

func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func init() {
	Register("sqlite", func(settings map[string]any) (KV, error) {
		var cfg SQLiteConfig
		if err := decodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			path, err := xdg.DataFile("playq/state.db")
			if err != nil {
				return nil, errors.Wrap(err, "failed to resolve data path")
			}
			cfg.Path = path
		}
		return NewSQLiteKV(cfg.Path, cfg.BusyTimeoutMs)
	})
}
