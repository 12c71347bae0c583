package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

func newBackends(t *testing.T) map[string]KV {
	t.Helper()

	fileKV, err := NewFileKV(filepath.Join(t.TempDir(), "nested", "state.json"))
	require.NoError(t, err)

	sqliteKV, err := NewSQLiteKV(":memory:", 1000)
	require.NoError(t, err)

	return map[string]KV{
		"memory": NewMemoryKV(),
		"file":   fileKV,
		"sqlite": sqliteKV,
	}
}

func sampleSnapshot() *playback.Snapshot {
	return &playback.Snapshot{
		CurrentID:    20,
		HasCurrent:   true,
		SeekPosition: 42 * time.Second,
		RepeatMode:   playback.RepeatAll,
		ShuffleMode:  playback.ShuffleAll,
		State:        playback.StatePaused,
		Title:        "Road Trip",
		Queue:        []track.ID{10, 20, 30},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(kv)
			defer s.Close()

			_, ok := s.Load(ctx)
			assert.False(t, ok, "first run should have nothing to load")

			want := sampleSnapshot()
			require.NoError(t, s.Save(ctx, want))

			got, ok := s.Load(ctx)
			require.True(t, ok)
			assert.Equal(t, want, got)

			// overwrite with a smaller snapshot
			next := &playback.Snapshot{
				State: playback.StateStopped,
				Title: "Empty",
				Queue: []track.ID{},
			}
			require.NoError(t, s.Save(ctx, next))

			got, ok = s.Load(ctx)
			require.True(t, ok)
			assert.False(t, got.HasCurrent)
			assert.Empty(t, got.Queue)
			assert.Equal(t, "Empty", got.Title)
		})
	}
}

func TestStore_SaveStateNoneKeepsPrior(t *testing.T) {
	ctx := context.Background()
	for name, kv := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(kv)
			defer s.Close()

			prior := sampleSnapshot()
			require.NoError(t, s.Save(ctx, prior))

			require.NoError(t, s.Save(ctx, &playback.Snapshot{
				State: playback.StateNone,
				Queue: []track.ID{99},
			}))

			got, ok := s.Load(ctx)
			require.True(t, ok)
			assert.Equal(t, prior, got)
		})
	}
}

func TestStore_SaveStateNoneOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV())

	require.NoError(t, s.Save(ctx, &playback.Snapshot{State: playback.StateNone}))

	_, ok := s.Load(ctx)
	assert.False(t, ok)
}

func TestStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string][]byte
	}{
		{
			name:    "only list present",
			entries: map[string][]byte{KeyQueueList: []byte(`[1,2]`)},
		},
		{
			name:    "only info present",
			entries: map[string][]byte{KeyQueueInfo: []byte(`{"id":1,"seekPos":0,"repeatMode":0,"shuffleMode":0,"state":1,"name":""}`)},
		},
		{
			name: "list is not json",
			entries: map[string][]byte{
				KeyQueueList: []byte(`not json`),
				KeyQueueInfo: []byte(`{"id":1,"seekPos":0,"repeatMode":0,"shuffleMode":0,"state":1,"name":""}`),
			},
		},
		{
			name: "info has unknown repeat mode",
			entries: map[string][]byte{
				KeyQueueList: []byte(`[1]`),
				KeyQueueInfo: []byte(`{"id":1,"seekPos":0,"repeatMode":7,"shuffleMode":0,"state":1,"name":""}`),
			},
		},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemoryKV()
			require.NoError(t, kv.PutAll(ctx, tt.entries))

			snap, ok := New(kv).Load(ctx)
			assert.False(t, ok)
			assert.Nil(t, snap)
		})
	}
}

func TestFileKV_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	kv, err := NewFileKV(path)
	require.NoError(t, err)

	_, err = kv.Get(ctx, KeyQueueList)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, ok := New(kv).Load(ctx)
	assert.False(t, ok)

	// a save replaces the unreadable document
	require.NoError(t, New(kv).Save(ctx, sampleSnapshot()))
	_, ok = New(kv).Load(ctx)
	assert.True(t, ok)
}

func TestFileKV_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	first, err := NewFileKV(path)
	require.NoError(t, err)
	require.NoError(t, New(first).Save(ctx, sampleSnapshot()))

	second, err := NewFileKV(path)
	require.NoError(t, err)
	got, ok := New(second).Load(ctx)
	require.True(t, ok)
	assert.Equal(t, sampleSnapshot(), got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should be cleaned up")
}

func TestSQLiteKV_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := NewSQLiteKV(path, 1000)
	require.NoError(t, err)
	require.NoError(t, New(first).Save(ctx, sampleSnapshot()))
	require.NoError(t, first.Close())

	second, err := NewSQLiteKV(path, 1000)
	require.NoError(t, err)
	defer second.Close()

	got, ok := New(second).Load(ctx)
	require.True(t, ok)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		settings map[string]any
		wantErr  string
	}{
		{
			name:    "memory",
			backend: "memory",
		},
		{
			name:     "file with path",
			backend:  "file",
			settings: map[string]any{"path": filepath.Join(t.TempDir(), "s.json")},
		},
		{
			name:     "sqlite with string timeout",
			backend:  "sqlite",
			settings: map[string]any{"path": ":memory:", "busy_timeout_ms": "250"},
		},
		{
			name:     "sqlite negative timeout",
			backend:  "sqlite",
			settings: map[string]any{"path": ":memory:", "busy_timeout_ms": -1},
			wantErr:  "validation failed",
		},
		{
			name:    "postgres without dsn",
			backend: "postgres",
			wantErr: "validation failed",
		},
		{
			name:    "unknown backend",
			backend: "redis",
			wantErr: "unknown store backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := Open(tt.backend, tt.settings)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, kv.Close())
		})
	}
}

func TestBackends(t *testing.T) {
	assert.Equal(t, []string{"file", "memory", "postgres", "sqlite"}, Backends())
}
