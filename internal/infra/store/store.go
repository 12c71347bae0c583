// Package store persists the playback snapshot to a key-value backend.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playq/internal/domain/playback"
)

// Snapshot keys.
const (
	KeyQueueList = "queue_list"
	KeyQueueInfo = "queue_info"
)

// ErrNotFound is returned by KV.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// KV is a durable key-value store.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// PutAll writes all entries atomically.
	PutAll(ctx context.Context, entries map[string][]byte) error
	// Close releases the backend.
	Close() error
}

// Store saves and loads playback snapshots.
type Store struct {
	kv KV
}

// New creates a store on top of kv.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Save writes the snapshot. Snapshots in StateNone are skipped so that an
// empty session never overwrites a resumable one.
func (s *Store) Save(ctx context.Context, snap *playback.Snapshot) error {
	if snap.State == playback.StateNone {
		zlog.Debug().Msg("store: skipping snapshot with no playback state")
		return nil
	}

	list, info, err := snap.Encode()
	if err != nil {
		return err
	}

	if err := s.kv.PutAll(ctx, map[string][]byte{
		KeyQueueList: list,
		KeyQueueInfo: info,
	}); err != nil {
		return errors.Wrap(err, "failed to write snapshot")
	}

	zlog.Debug().Msgf("store: snapshot saved: state=%s tracks=%d", snap.State, len(snap.Queue))
	return nil
}

// Load reads the snapshot. It returns false on first run or when the stored
// data is unreadable; failures are logged, never returned.
func (s *Store) Load(ctx context.Context) (*playback.Snapshot, bool) {
	list, ok := s.get(ctx, KeyQueueList)
	if !ok {
		return nil, false
	}
	info, ok := s.get(ctx, KeyQueueInfo)
	if !ok {
		return nil, false
	}

	snap, err := playback.Decode(list, info)
	if err != nil {
		zlog.Warn().Err(err).Msg("store: discarding corrupt snapshot")
		return nil, false
	}
	return snap, true
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool) {
	value, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		zlog.Debug().Msgf("store: no saved %s", key)
		return nil, false
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("store: failed to read %s", key)
		return nil, false
	}
	return value, true
}
