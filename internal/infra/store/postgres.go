package store

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// PostgresConfig holds settings for the postgres backend.
type PostgresConfig struct {
	DSN            string `mapstructure:"dsn" validate:"required"`
	ConnectTimeout int    `mapstructure:"connect_timeout_sec" default:"10" validate:"gt=0"`
}

type kvRow struct {
	bun.BaseModel `bun:"table:playq_kv"`

	Key   string `bun:"key,pk"`
	Value []byte `bun:"value,notnull"`
}

// PostgresKV stores keys in a postgres table through bun.
type PostgresKV struct {
	db *bun.DB
}

// NewPostgresKV connects to dsn and creates the table if needed.
func NewPostgresKV(ctx context.Context, dsn string) (*PostgresKV, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(4)
	sqldb.SetConnMaxIdleTime(time.Minute)

	db := bun.NewDB(sqldb, pgdialect.New())

	// Query logging in debug mode
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	if _, err := db.NewCreateTable().Model((*kvRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create kv table")
	}
	return &PostgresKV{db: db}, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	row := new(kvRow)
	err := p.db.NewSelect().Model(row).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", key)
	}
	return row.Value, nil
}

func (p *PostgresKV) PutAll(ctx context.Context, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]kvRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, kvRow{Key: k, Value: entries[k]})
	}
	if len(rows) == 0 {
		return nil
	}

	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (key) DO UPDATE").
			Set("value = EXCLUDED.value").
			Exec(ctx)
		return err
	})
}

func (p *PostgresKV) Close() error {
	return p.db.Close()
}

func init() {
	Register("postgres", func(settings map[string]any) (KV, error) {
		var cfg PostgresConfig
		if err := decodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ConnectTimeout)*time.Second)
		defer cancel()
		return NewPostgresKV(ctx, cfg.DSN)
	})
}
