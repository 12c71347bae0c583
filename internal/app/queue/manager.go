// Package queue provides the playback queue manager.
package queue

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

const (
	// DefaultFallbackTitle is shown when a queue has no title of its own.
	DefaultFallbackTitle = "All Songs"
	// DefaultRestartThreshold is the elapsed time after which "previous"
	// restarts the current track instead of moving back.
	DefaultRestartThreshold = 5 * time.Second
)

// Publisher receives the queue and its title after every change. Calls are
// made while callers such as the transport hold their locks, so
// implementations must hand the value off without blocking, and must not
// call back into mutating Manager methods.
type Publisher interface {
	PublishQueue(ids []track.ID)
	PublishQueueTitle(title string)
}

// Config holds manager configuration.
type Config struct {
	FallbackTitle    string
	RestartThreshold time.Duration
	Rand             *rand.Rand // Source for shuffle draws (nil seeds from the clock)
}

// View is a consistent copy of the manager state.
type View struct {
	Queue        []track.ID
	CurrentID    track.ID
	HasCurrent   bool
	CurrentIndex int
	Title        string
	ShuffleMode  playback.ShuffleMode
	RepeatMode   playback.RepeatMode
	Label        string
}

// Manager owns the ordered queue of track ids, the current track and the
// shuffle/repeat modes.
type Manager struct {
	mu sync.RWMutex

	ids        []track.ID
	current    track.ID
	hasCurrent bool
	title      string
	shuffle    playback.ShuffleMode
	repeat     playback.RepeatMode

	// publishMu keeps publications in mutation order
	publishMu sync.Mutex
	publisher Publisher

	rngMu sync.Mutex
	rng   *rand.Rand

	config Config
}

// NewManager creates an empty queue manager. publisher may be nil.
func NewManager(config Config, publisher Publisher) *Manager {
	if config.FallbackTitle == "" {
		config.FallbackTitle = DefaultFallbackTitle
	}
	if config.RestartThreshold <= 0 {
		config.RestartThreshold = DefaultRestartThreshold
	}
	rng := config.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Manager{
		ids:       make([]track.ID, 0),
		title:     config.FallbackTitle,
		publisher: publisher,
		rng:       rng,
		config:    config,
	}
}

// SetQueue replaces the queue and its title. The current track survives when
// it is part of the new queue.
func (m *Manager) SetQueue(ids []track.ID, title string) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	m.ids = append(make([]track.ID, 0, len(ids)), ids...)
	if m.hasCurrent && track.IndexOf(m.ids, m.current) < 0 {
		m.unsetCurrentLocked()
	}
	m.title = m.titleOrFallback(title)
	queue, t := m.copyLocked(), m.title
	m.mu.Unlock()

	m.publishQueue(queue)
	m.publishTitle(t)
}

// Append adds ids at the end of the queue.
func (m *Manager) Append(ids ...track.ID) {
	if len(ids) == 0 {
		return
	}

	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	m.ids = append(m.ids, ids...)
	queue := m.copyLocked()
	m.mu.Unlock()

	m.publishQueue(queue)
}

// SetCurrent selects id as the current track. Returns false if id is not queued.
func (m *Manager) SetCurrent(id track.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if track.IndexOf(m.ids, id) < 0 {
		return false
	}
	m.current = id
	m.hasCurrent = true
	return true
}

// PreviousTrackID returns the track that "previous" should play.
// It returns false when the current track should restart instead: after the
// restart threshold has elapsed, or at the head of the queue.
func (m *Manager) PreviousTrackID(elapsed time.Duration) (track.ID, bool) {
	if elapsed >= m.config.RestartThreshold {
		return 0, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	prev := m.currentIndexLocked() - 1
	if prev < 0 {
		return 0, false
	}
	return m.ids[prev], true
}

// NextTrackIndex returns the index to advance to, or false at the end of the
// queue. With shuffle on, a random index other than the current one is drawn.
func (m *Manager) NextTrackIndex() (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nextTrackIndexLocked()
}

// NextTrackID returns the id at NextTrackIndex.
func (m *Manager) NextTrackID() (track.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.nextTrackIndexLocked()
	if !ok {
		return 0, false
	}
	return m.ids[idx], true
}

func (m *Manager) nextTrackIndexLocked() (int, bool) {
	n := len(m.ids)
	if n == 0 {
		return 0, false
	}
	cur := m.currentIndexLocked()

	if m.shuffle == playback.ShuffleAll {
		if n == 1 {
			return 0, true
		}
		m.rngMu.Lock()
		defer m.rngMu.Unlock()
		if cur < 0 {
			return m.rng.Intn(n), true
		}
		// one draw over the other n-1 slots
		return (cur + 1 + m.rng.Intn(n-1)) % n, true
	}

	if cur+1 < n {
		return cur + 1, true
	}
	return 0, false
}

// PlayNext moves id so that it plays right after the current track.
// Returns false if id is not queued or is the current track.
func (m *Manager) PlayNext(id track.ID) bool {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	from := track.IndexOf(m.ids, id)
	cur := m.currentIndexLocked()
	if from < 0 || from == cur {
		m.mu.Unlock()
		return false
	}
	to := cur + 1
	if from < cur {
		// the current track shifts left once id is lifted out
		to = cur
	}
	move(m.ids, from, to)
	queue := m.copyLocked()
	m.mu.Unlock()

	m.publishQueue(queue)
	return true
}

// Remove deletes the first occurrence of id. Removing the current track
// leaves no track selected. Returns false if id is not queued.
func (m *Manager) Remove(id track.ID) bool {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	idx := track.IndexOf(m.ids, id)
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	m.ids = append(m.ids[:idx], m.ids[idx+1:]...)
	if m.hasCurrent && m.current == id {
		m.unsetCurrentLocked()
	}
	queue := m.copyLocked()
	m.mu.Unlock()

	m.publishQueue(queue)
	return true
}

// Swap moves the element at from to index to, shifting the elements in
// between. Out-of-range indices leave the queue unchanged and return false.
func (m *Manager) Swap(from, to int) bool {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	n := len(m.ids)
	if from < 0 || from >= n || to < 0 || to >= n {
		m.mu.Unlock()
		return false
	}
	move(m.ids, from, to)
	queue := m.copyLocked()
	m.mu.Unlock()

	m.publishQueue(queue)
	return true
}

// Clear empties the queue and resets the title.
func (m *Manager) Clear() {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	m.ids = make([]track.ID, 0)
	m.unsetCurrentLocked()
	m.title = m.config.FallbackTitle
	queue, t := m.copyLocked(), m.title
	m.mu.Unlock()

	m.publishQueue(queue)
	m.publishTitle(t)
}

// Restore replaces the whole state from a persisted snapshot.
func (m *Manager) Restore(s *playback.Snapshot) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	m.ids = append(make([]track.ID, 0, len(s.Queue)), s.Queue...)
	m.unsetCurrentLocked()
	if s.HasCurrent && track.IndexOf(m.ids, s.CurrentID) >= 0 {
		m.current = s.CurrentID
		m.hasCurrent = true
	}
	m.title = m.titleOrFallback(s.Title)
	if s.ShuffleMode.Valid() {
		m.shuffle = s.ShuffleMode
	}
	if s.RepeatMode.Valid() {
		m.repeat = s.RepeatMode
	}
	queue, t := m.copyLocked(), m.title
	m.mu.Unlock()

	m.publishQueue(queue)
	m.publishTitle(t)
}

// PositionLabel returns "{currentIndex+1}/{len}", e.g. "3/12".
func (m *Manager) PositionLabel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positionLabelLocked()
}

func (m *Manager) positionLabelLocked() string {
	return fmt.Sprintf("%d/%d", m.currentIndexLocked()+1, len(m.ids))
}

// CurrentID returns the current track id.
func (m *Manager) CurrentID() (track.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.hasCurrent
}

// CurrentIndex returns the index of the current track, or -1.
func (m *Manager) CurrentIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentIndexLocked()
}

// TrackAt returns the id at index.
func (m *Manager) TrackAt(index int) (track.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= len(m.ids) {
		return 0, false
	}
	return m.ids[index], true
}

// Queue returns a copy of the queue.
func (m *Manager) Queue() []track.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyLocked()
}

// Len returns the number of queued ids.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Title returns the queue title.
func (m *Manager) Title() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.title
}

// ShuffleMode returns the shuffle mode.
func (m *Manager) ShuffleMode() playback.ShuffleMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shuffle
}

// SetShuffleMode sets the shuffle mode. Unknown modes are ignored.
func (m *Manager) SetShuffleMode(mode playback.ShuffleMode) {
	if !mode.Valid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shuffle = mode
}

// RepeatMode returns the repeat mode.
func (m *Manager) RepeatMode() playback.RepeatMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.repeat
}

// SetRepeatMode sets the repeat mode. Unknown modes are ignored.
func (m *Manager) SetRepeatMode(mode playback.RepeatMode) {
	if !mode.Valid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repeat = mode
}

// View returns a consistent copy of the whole state.
func (m *Manager) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return View{
		Queue:        m.copyLocked(),
		CurrentID:    m.current,
		HasCurrent:   m.hasCurrent,
		CurrentIndex: m.currentIndexLocked(),
		Title:        m.title,
		ShuffleMode:  m.shuffle,
		RepeatMode:   m.repeat,
		Label:        m.positionLabelLocked(),
	}
}

// currentIndexLocked must be called with m.mu held.
func (m *Manager) currentIndexLocked() int {
	if !m.hasCurrent {
		return -1
	}
	return track.IndexOf(m.ids, m.current)
}

func (m *Manager) unsetCurrentLocked() {
	m.current = 0
	m.hasCurrent = false
}

func (m *Manager) copyLocked() []track.ID {
	result := make([]track.ID, len(m.ids))
	copy(result, m.ids)
	return result
}

func (m *Manager) titleOrFallback(title string) string {
	if title == "" {
		return m.config.FallbackTitle
	}
	return title
}

func (m *Manager) publishQueue(ids []track.ID) {
	if m.publisher != nil {
		m.publisher.PublishQueue(ids)
	}
}

func (m *Manager) publishTitle(title string) {
	if m.publisher != nil {
		m.publisher.PublishQueueTitle(title)
	}
}

// move relocates ids[from] to index to, shifting the elements in between.
func move(ids []track.ID, from, to int) {
	v := ids[from]
	if from < to {
		copy(ids[from:to], ids[from+1:to+1])
	} else {
		copy(ids[to+1:from+1], ids[to:from])
	}
	ids[to] = v
}
