package queue

import (
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

type recordingPublisher struct {
	mu     sync.Mutex
	queues [][]track.ID
	titles []string
}

func (p *recordingPublisher) PublishQueue(ids []track.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues = append(p.queues, ids)
}

func (p *recordingPublisher) PublishQueueTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titles = append(p.titles, title)
}

func (p *recordingPublisher) lastQueue() []track.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queues) == 0 {
		return nil
	}
	return p.queues[len(p.queues)-1]
}

func newTestManager(seed int64) (*Manager, *recordingPublisher) {
	pub := &recordingPublisher{}
	m := NewManager(Config{Rand: rand.New(rand.NewSource(seed))}, pub)
	return m, pub
}

func newQueueAt(t *testing.T, ids []track.ID, current track.ID) (*Manager, *recordingPublisher) {
	t.Helper()
	m, pub := newTestManager(1)
	m.SetQueue(ids, "Test")
	require.True(t, m.SetCurrent(current))
	return m, pub
}

func TestManager_SetQueue(t *testing.T) {
	t.Run("publishes queue and title", func(t *testing.T) {
		m, pub := newTestManager(1)
		m.SetQueue([]track.ID{1, 2, 3}, "Road Trip")

		assert.Equal(t, []track.ID{1, 2, 3}, m.Queue())
		assert.Equal(t, "Road Trip", m.Title())
		assert.Equal(t, []track.ID{1, 2, 3}, pub.lastQueue())
		assert.Equal(t, []string{"Road Trip"}, pub.titles)
	})

	t.Run("empty title falls back", func(t *testing.T) {
		m, pub := newTestManager(1)
		m.SetQueue([]track.ID{1}, "")

		assert.Equal(t, DefaultFallbackTitle, m.Title())
		assert.Equal(t, []string{DefaultFallbackTitle}, pub.titles)
	})

	t.Run("keeps current track when still queued", func(t *testing.T) {
		m, _ := newQueueAt(t, []track.ID{1, 2, 3}, 2)
		m.SetQueue([]track.ID{5, 2, 9}, "Other")

		id, ok := m.CurrentID()
		assert.True(t, ok)
		assert.Equal(t, track.ID(2), id)
		assert.Equal(t, 1, m.CurrentIndex())
	})

	t.Run("drops current track when no longer queued", func(t *testing.T) {
		m, _ := newQueueAt(t, []track.ID{1, 2, 3}, 2)
		m.SetQueue([]track.ID{7, 8}, "Other")

		_, ok := m.CurrentID()
		assert.False(t, ok)
		assert.Equal(t, -1, m.CurrentIndex())
	})

	t.Run("empty queue clears playback context", func(t *testing.T) {
		m, _ := newQueueAt(t, []track.ID{1, 2, 3}, 2)
		m.SetQueue(nil, "")

		assert.Empty(t, m.Queue())
		_, ok := m.CurrentID()
		assert.False(t, ok)
	})

	t.Run("caller slice is not aliased", func(t *testing.T) {
		m, _ := newTestManager(1)
		ids := []track.ID{1, 2, 3}
		m.SetQueue(ids, "")
		ids[0] = 99

		assert.Equal(t, []track.ID{1, 2, 3}, m.Queue())
	})
}

func TestManager_PreviousTrackID(t *testing.T) {
	ids := []track.ID{10, 20, 30, 40}

	tests := []struct {
		name     string
		current  track.ID
		elapsed  time.Duration
		expected track.ID
		ok       bool
	}{
		{name: "restart after threshold at head", current: 10, elapsed: 6 * time.Second},
		{name: "restart after threshold mid queue", current: 30, elapsed: 6 * time.Second},
		{name: "restart exactly at threshold", current: 30, elapsed: 5 * time.Second},
		{name: "no wraparound at head", current: 10, elapsed: time.Second},
		{name: "moves back mid queue", current: 30, elapsed: time.Second, expected: 20, ok: true},
		{name: "moves back from tail", current: 40, elapsed: 4999 * time.Millisecond, expected: 30, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newQueueAt(t, ids, tt.current)
			id, ok := m.PreviousTrackID(tt.elapsed)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, id)
			}
			// pure query
			cur, _ := m.CurrentID()
			assert.Equal(t, tt.current, cur)
		})
	}

	t.Run("no current track", func(t *testing.T) {
		m, _ := newTestManager(1)
		m.SetQueue(ids, "")
		_, ok := m.PreviousTrackID(time.Second)
		assert.False(t, ok)
	})

	t.Run("configured threshold", func(t *testing.T) {
		m := NewManager(Config{RestartThreshold: 2 * time.Second}, nil)
		m.SetQueue(ids, "")
		m.SetCurrent(20)

		_, ok := m.PreviousTrackID(3 * time.Second)
		assert.False(t, ok)
		id, ok := m.PreviousTrackID(time.Second)
		assert.True(t, ok)
		assert.Equal(t, track.ID(10), id)
	})
}

func TestManager_NextTrackIndex_Sequential(t *testing.T) {
	ids := []track.ID{1, 2, 3, 4, 5}
	m, _ := newTestManager(1)
	m.SetQueue(ids, "")

	// no current track starts at the head
	idx, ok := m.NextTrackIndex()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	for k := 0; k < len(ids)-1; k++ {
		require.True(t, m.SetCurrent(ids[k]))
		idx, ok := m.NextTrackIndex()
		require.True(t, ok)
		assert.Equal(t, k+1, idx)
	}

	require.True(t, m.SetCurrent(ids[len(ids)-1]))
	_, ok = m.NextTrackIndex()
	assert.False(t, ok, "end of queue")
}

func TestManager_NextTrackIndex_Empty(t *testing.T) {
	for _, mode := range []playback.ShuffleMode{playback.ShuffleOff, playback.ShuffleAll} {
		t.Run(mode.String(), func(t *testing.T) {
			m, _ := newTestManager(1)
			m.SetShuffleMode(mode)

			_, ok := m.NextTrackIndex()
			assert.False(t, ok)
			_, ok = m.NextTrackID()
			assert.False(t, ok)
		})
	}
}

func TestManager_NextTrackIndex_ShuffleNeverRepeats(t *testing.T) {
	ids := []track.ID{1, 2, 3, 4, 5, 6}
	m, _ := newTestManager(42)
	m.SetQueue(ids, "")
	m.SetShuffleMode(playback.ShuffleAll)

	for cur := range ids {
		require.True(t, m.SetCurrent(ids[cur]))
		seen := make(map[int]bool)
		for i := 0; i < 500; i++ {
			idx, ok := m.NextTrackIndex()
			require.True(t, ok)
			require.NotEqual(t, cur, idx)
			require.True(t, idx >= 0 && idx < len(ids))
			seen[idx] = true
		}
		// every other slot is reachable
		assert.Len(t, seen, len(ids)-1)
	}
}

func TestManager_NextTrackIndex_ShuffleTwoTracks(t *testing.T) {
	m, _ := newTestManager(7)
	m.SetQueue([]track.ID{1, 2}, "")
	m.SetShuffleMode(playback.ShuffleAll)
	m.SetCurrent(1)

	for i := 0; i < 50; i++ {
		idx, ok := m.NextTrackIndex()
		require.True(t, ok)
		assert.Equal(t, 1, idx)
	}
}

func TestManager_NextTrackIndex_ShuffleSingleTrack(t *testing.T) {
	m, _ := newQueueAt(t, []track.ID{5}, 5)
	m.SetShuffleMode(playback.ShuffleAll)

	for i := 0; i < 20; i++ {
		idx, ok := m.NextTrackIndex()
		require.True(t, ok)
		assert.Equal(t, 0, idx)
	}
}

func TestManager_NextTrackIndex_ShuffleNoCurrent(t *testing.T) {
	m, _ := newTestManager(3)
	m.SetQueue([]track.ID{1, 2, 3}, "")
	m.SetShuffleMode(playback.ShuffleAll)

	for i := 0; i < 50; i++ {
		idx, ok := m.NextTrackIndex()
		require.True(t, ok)
		assert.True(t, idx >= 0 && idx < 3)
	}
}

func TestManager_NextTrackID(t *testing.T) {
	m, _ := newQueueAt(t, []track.ID{10, 20, 30, 40}, 20)

	id, ok := m.NextTrackID()
	require.True(t, ok)
	assert.Equal(t, track.ID(30), id)
}

func TestManager_PlayNext(t *testing.T) {
	tests := []struct {
		name     string
		ids      []track.ID
		current  track.ID
		target   track.ID
		expected []track.ID
		ok       bool
	}{
		{
			name:     "moves later track up",
			ids:      []track.ID{10, 20, 30, 40},
			current:  20,
			target:   40,
			expected: []track.ID{10, 20, 40, 30},
			ok:       true,
		},
		{
			name:     "already next",
			ids:      []track.ID{10, 20, 30, 40},
			current:  20,
			target:   30,
			expected: []track.ID{10, 20, 30, 40},
			ok:       true,
		},
		{
			name:     "moves earlier track after current",
			ids:      []track.ID{10, 20, 30, 40},
			current:  30,
			target:   10,
			expected: []track.ID{20, 30, 10, 40},
			ok:       true,
		},
		{
			name:     "current is last",
			ids:      []track.ID{10, 20, 30},
			current:  30,
			target:   10,
			expected: []track.ID{20, 30, 10},
			ok:       true,
		},
		{
			name:     "current track is a no-op",
			ids:      []track.ID{10, 20, 30},
			current:  20,
			target:   20,
			expected: []track.ID{10, 20, 30},
		},
		{
			name:     "absent id is a no-op",
			ids:      []track.ID{10, 20, 30},
			current:  20,
			target:   99,
			expected: []track.ID{10, 20, 30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newQueueAt(t, tt.ids, tt.current)
			assert.Equal(t, tt.ok, m.PlayNext(tt.target))
			assert.Equal(t, tt.expected, m.Queue())

			cur, ok := m.CurrentID()
			require.True(t, ok)
			assert.Equal(t, tt.current, cur)
			if tt.ok {
				next, ok := m.NextTrackID()
				require.True(t, ok)
				assert.Equal(t, tt.target, next)
			}
		})
	}

	t.Run("no current moves to head", func(t *testing.T) {
		m, pub := newTestManager(1)
		m.SetQueue([]track.ID{10, 20, 30}, "")
		assert.True(t, m.PlayNext(30))
		assert.Equal(t, []track.ID{30, 10, 20}, m.Queue())
		assert.Equal(t, []track.ID{30, 10, 20}, pub.lastQueue())
	})
}

func TestManager_Remove(t *testing.T) {
	t.Run("removing current unsets it", func(t *testing.T) {
		m, pub := newQueueAt(t, []track.ID{10, 20, 30}, 20)
		assert.True(t, m.Remove(20))

		assert.Equal(t, []track.ID{10, 30}, m.Queue())
		_, ok := m.CurrentID()
		assert.False(t, ok)
		assert.Equal(t, []track.ID{10, 30}, pub.lastQueue())
	})

	t.Run("removing other keeps current", func(t *testing.T) {
		m, _ := newQueueAt(t, []track.ID{10, 20, 30}, 30)
		assert.True(t, m.Remove(10))

		cur, ok := m.CurrentID()
		assert.True(t, ok)
		assert.Equal(t, track.ID(30), cur)
		assert.Equal(t, 1, m.CurrentIndex())
	})

	t.Run("absent id leaves queue unchanged", func(t *testing.T) {
		m, pub := newQueueAt(t, []track.ID{10, 20, 30}, 20)
		published := len(pub.queues)

		assert.False(t, m.Remove(99))
		assert.Equal(t, []track.ID{10, 20, 30}, m.Queue())
		assert.Len(t, pub.queues, published)
	})

	t.Run("only the first occurrence", func(t *testing.T) {
		m, _ := newTestManager(1)
		m.SetQueue([]track.ID{5, 6, 5}, "")
		assert.True(t, m.Remove(5))
		assert.Equal(t, []track.ID{6, 5}, m.Queue())
	})
}

func TestManager_Swap(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		expected []track.ID
		ok       bool
	}{
		{name: "forward", from: 0, to: 3, expected: []track.ID{2, 3, 4, 1, 5}, ok: true},
		{name: "backward", from: 4, to: 1, expected: []track.ID{1, 5, 2, 3, 4}, ok: true},
		{name: "adjacent", from: 1, to: 2, expected: []track.ID{1, 3, 2, 4, 5}, ok: true},
		{name: "same index", from: 2, to: 2, expected: []track.ID{1, 2, 3, 4, 5}, ok: true},
		{name: "from out of range", from: 5, to: 0, expected: []track.ID{1, 2, 3, 4, 5}},
		{name: "to out of range", from: 0, to: 9, expected: []track.ID{1, 2, 3, 4, 5}},
		{name: "negative", from: -1, to: 0, expected: []track.ID{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(1)
			m.SetQueue([]track.ID{1, 2, 3, 4, 5}, "")
			assert.Equal(t, tt.ok, m.Swap(tt.from, tt.to))
			assert.Equal(t, tt.expected, m.Queue())
		})
	}
}

func TestManager_Swap_PreservesMultiset(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for n := 1; n <= 8; n++ {
		ids := make([]track.ID, n)
		for i := range ids {
			ids[i] = track.ID(rng.Intn(4)) // repeats allowed
		}
		m, _ := newTestManager(1)
		m.SetQueue(ids, "")

		for i := 0; i < 30; i++ {
			from, to := rng.Intn(n), rng.Intn(n)
			require.True(t, m.Swap(from, to))

			got := m.Queue()
			require.Len(t, got, n)
			assert.Equal(t, sorted(ids), sorted(got))
		}
	}
}

func TestManager_Swap_CurrentFollowsTrack(t *testing.T) {
	m, _ := newQueueAt(t, []track.ID{10, 20, 30, 40}, 20)
	m.Swap(1, 3)

	cur, _ := m.CurrentID()
	assert.Equal(t, track.ID(20), cur)
	assert.Equal(t, 3, m.CurrentIndex())
	assert.Equal(t, "4/4", m.PositionLabel())
}

func TestManager_PositionLabel(t *testing.T) {
	m, _ := newQueueAt(t, []track.ID{1, 2, 3, 4}, 3)
	assert.Equal(t, "3/4", m.PositionLabel())

	m.Remove(3)
	assert.Equal(t, "0/3", m.PositionLabel())

	m.Clear()
	assert.Equal(t, "0/0", m.PositionLabel())
}

func TestManager_Clear(t *testing.T) {
	m, pub := newQueueAt(t, []track.ID{1, 2, 3}, 2)
	m.SetQueue([]track.ID{1, 2, 3}, "Mix")
	m.Clear()

	assert.Empty(t, m.Queue())
	_, ok := m.CurrentID()
	assert.False(t, ok)
	assert.Equal(t, DefaultFallbackTitle, m.Title())
	assert.Empty(t, pub.lastQueue())
	assert.Equal(t, DefaultFallbackTitle, pub.titles[len(pub.titles)-1])
}

func TestManager_Append(t *testing.T) {
	m, pub := newQueueAt(t, []track.ID{1, 2}, 2)
	before := len(pub.queues)

	m.Append()
	assert.Len(t, pub.queues, before)

	m.Append(3, 4)
	assert.Equal(t, []track.ID{1, 2, 3, 4}, m.Queue())
	assert.Equal(t, []track.ID{1, 2, 3, 4}, pub.lastQueue())

	next, ok := m.NextTrackID()
	require.True(t, ok)
	assert.Equal(t, track.ID(3), next)
}

func TestManager_SetCurrent_Absent(t *testing.T) {
	m, _ := newQueueAt(t, []track.ID{1, 2}, 1)
	assert.False(t, m.SetCurrent(9))

	cur, _ := m.CurrentID()
	assert.Equal(t, track.ID(1), cur)
}

func TestManager_Modes(t *testing.T) {
	m, _ := newTestManager(1)
	assert.Equal(t, playback.ShuffleOff, m.ShuffleMode())
	assert.Equal(t, playback.RepeatOff, m.RepeatMode())

	m.SetShuffleMode(playback.ShuffleAll)
	m.SetRepeatMode(playback.RepeatOne)
	m.SetShuffleMode(playback.ShuffleMode(9))
	m.SetRepeatMode(playback.RepeatMode(-1))

	assert.Equal(t, playback.ShuffleAll, m.ShuffleMode())
	assert.Equal(t, playback.RepeatOne, m.RepeatMode())
}

func TestManager_Restore(t *testing.T) {
	t.Run("full snapshot", func(t *testing.T) {
		m, pub := newTestManager(1)
		m.Restore(&playback.Snapshot{
			CurrentID:   57,
			HasCurrent:  true,
			RepeatMode:  playback.RepeatAll,
			ShuffleMode: playback.ShuffleAll,
			Title:       "Resume",
			Queue:       []track.ID{101, 57, 230},
		})

		v := m.View()
		assert.Equal(t, []track.ID{101, 57, 230}, v.Queue)
		assert.True(t, v.HasCurrent)
		assert.Equal(t, track.ID(57), v.CurrentID)
		assert.Equal(t, 1, v.CurrentIndex)
		assert.Equal(t, "Resume", v.Title)
		assert.Equal(t, playback.RepeatAll, v.RepeatMode)
		assert.Equal(t, playback.ShuffleAll, v.ShuffleMode)
		assert.Equal(t, "2/3", v.Label)
		assert.Equal(t, []string{"Resume"}, pub.titles)
	})

	t.Run("stale current id is dropped", func(t *testing.T) {
		m, _ := newTestManager(1)
		m.Restore(&playback.Snapshot{CurrentID: 9, HasCurrent: true, Queue: []track.ID{1, 2}})

		_, ok := m.CurrentID()
		assert.False(t, ok)
		assert.Equal(t, DefaultFallbackTitle, m.Title())
	})
}

func TestManager_Scenario(t *testing.T) {
	m, _ := newQueueAt(t, []track.ID{10, 20, 30, 40}, 20)
	assert.Equal(t, 1, m.CurrentIndex())

	next, ok := m.NextTrackID()
	require.True(t, ok)
	assert.Equal(t, track.ID(30), next)

	assert.True(t, m.PlayNext(40))
	assert.Equal(t, []track.ID{10, 20, 40, 30}, m.Queue())
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m, _ := newTestManager(5)
	m.SetQueue([]track.ID{1, 2, 3, 4, 5, 6, 7, 8}, "")
	m.SetCurrent(1)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				switch (w + i) % 7 {
				case 0:
					m.Swap(i%8, (i*3)%8)
				case 1:
					m.PlayNext(track.ID(i%8 + 1))
				case 2:
					if id, ok := m.NextTrackID(); ok {
						m.SetCurrent(id)
					}
				case 3:
					if id := track.ID(i%8 + 1); m.Remove(id) {
						m.Append(id)
					}
				case 4:
					m.SetShuffleMode(playback.ShuffleMode(i % 2))
				case 5:
					_ = m.PositionLabel()
					_, _ = m.PreviousTrackID(time.Second)
				case 6:
					v := m.View()
					if v.HasCurrent {
						// current is always part of the queue
						assert.GreaterOrEqual(t, v.CurrentIndex, 0)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, []track.ID{1, 2, 3, 4, 5, 6, 7, 8}, sorted(m.Queue()))
}

func sorted(ids []track.ID) []track.ID {
	out := append([]track.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
