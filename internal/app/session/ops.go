package session

import (
	"context"
	"sync"
	"time"

	"github.com/osa030/playq/internal/app/filter"
	"github.com/osa030/playq/internal/app/notification"
	"github.com/osa030/playq/internal/app/playback"
	pb "github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// Rejection is an id the filter chain refused, with the configured message
// for its code.
type Rejection struct {
	TrackID track.ID
	Code    string
	Message string
}

// AdmitResult reports how the ids of a queue edit were admitted.
type AdmitResult struct {
	Accepted []track.ID
	Rejected []Rejection
}

// SetQueue replaces the queue with the ids that pass the filter chain.
func (m *Manager) SetQueue(ctx context.Context, ids []track.ID, title string) (*AdmitResult, error) {
	if err := m.checkRunning(); err != nil {
		return nil, err
	}
	res := m.admit(ctx, filter.SourceSetQueue, ids)
	if err := m.playback.SetQueue(res.Accepted, title); err != nil {
		return nil, err
	}
	return res, nil
}

// Append adds the ids that pass the filter chain to the end of the queue.
func (m *Manager) Append(ctx context.Context, ids []track.ID) (*AdmitResult, error) {
	if err := m.checkRunning(); err != nil {
		return nil, err
	}
	res := m.admit(ctx, filter.SourceAppend, ids)
	if err := m.playback.Append(res.Accepted...); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Manager) admit(ctx context.Context, source filter.Source, ids []track.ID) *AdmitResult {
	accepted, rejections := m.filterChain.Admit(ctx, source, ids)
	res := &AdmitResult{Accepted: accepted}
	for _, r := range rejections {
		res.Rejected = append(res.Rejected, Rejection{
			TrackID: r.TrackID,
			Code:    r.Code,
			Message: m.config.GetMessage(r.Code),
		})
	}
	return res
}

// Play starts or resumes playback.
func (m *Manager) Play() error {
	return m.do(m.playback.Play)
}

// Pause pauses playback.
func (m *Manager) Pause() error {
	return m.do(m.playback.Pause)
}

// PlayPause toggles between playing and paused.
func (m *Manager) PlayPause() error {
	return m.do(m.playback.PlayPause)
}

// Stop stops playback.
func (m *Manager) Stop() error {
	return m.do(m.playback.Stop)
}

// SkipNext skips to the next track.
func (m *Manager) SkipNext() error {
	return m.do(m.playback.SkipNext)
}

// SkipPrevious goes back a track or restarts the current one.
func (m *Manager) SkipPrevious() error {
	return m.do(m.playback.SkipPrevious)
}

// TrackCompleted reports that the current track finished playing.
func (m *Manager) TrackCompleted() error {
	return m.do(m.playback.TrackCompleted)
}

// Seek moves the position within the current track.
func (m *Manager) Seek(position time.Duration) error {
	return m.do(func() error { return m.playback.Seek(position) })
}

// PlayTrack starts id from the beginning.
func (m *Manager) PlayTrack(id track.ID) error {
	return m.do(func() error { return m.playback.PlayTrack(id) })
}

// PlayNext moves id right after the current track.
func (m *Manager) PlayNext(id track.ID) error {
	return m.do(func() error { return m.playback.PlayNext(id) })
}

// Remove deletes id from the queue.
func (m *Manager) Remove(id track.ID) error {
	return m.do(func() error { return m.playback.Remove(id) })
}

// Swap moves the track at from to index to.
func (m *Manager) Swap(from, to int) error {
	return m.do(func() error { return m.playback.Swap(from, to) })
}

// Clear empties the queue.
func (m *Manager) Clear() error {
	return m.do(m.playback.Clear)
}

// ToggleShuffle flips the shuffle mode and returns the new one.
func (m *Manager) ToggleShuffle() (pb.ShuffleMode, error) {
	if err := m.checkRunning(); err != nil {
		return pb.ShuffleOff, err
	}
	return m.playback.ToggleShuffle()
}

// ToggleRepeat cycles the repeat mode and returns the new one.
func (m *Manager) ToggleRepeat() (pb.RepeatMode, error) {
	if err := m.checkRunning(); err != nil {
		return pb.RepeatOff, err
	}
	return m.playback.ToggleRepeat()
}

func (m *Manager) do(fn func() error) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return fn()
}

// Status represents the current session status with all information.
type Status struct {
	playback.Status
	SessionID     string
	Phase         Phase
	StartedAt     time.Time
	Track         *track.Track // Metadata of the current track, nil when unknown
	ListenerCount int
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() *Status {
	st := &Status{
		Status:        m.playback.Status(),
		SessionID:     m.id,
		ListenerCount: m.notification.SubscriberCount(),
	}

	m.mu.RLock()
	st.Phase = m.phase
	st.StartedAt = m.startedAt
	if m.current != nil && st.HasCurrent && m.current.ID == st.CurrentID {
		st.Track = m.current
	}
	m.mu.RUnlock()

	return st
}

// Subscribe registers stream and sends it the full state followed by every
// later notification. Returns the subscription id for Unsubscribe.
func (m *Manager) Subscribe(stream notification.Stream) (string, error) {
	if err := m.checkRunning(); err != nil {
		return "", err
	}
	notifManager := m.notification

	// Register before reading the state so nothing broadcast in between is
	// lost. The sequence number is taken first: anything numbered below it
	// is already reflected in the status.
	gate := &initialGate{stream: stream}
	subscriptionID := notifManager.Subscribe(gate)
	seq := notifManager.NextSequenceNo()
	st := m.GetStatus()

	initial := &notification.Notification{
		SequenceNo:   seq,
		Type:         notification.TypeInitial,
		Timestamp:    time.Now(),
		Queue:        st.Queue,
		Title:        st.Title,
		State:        st.State,
		SeekPosition: st.Position,
		CurrentID:    st.CurrentID,
		HasCurrent:   st.HasCurrent,
		Track:        st.Track,
		ShuffleMode:  st.ShuffleMode,
		RepeatMode:   st.RepeatMode,
	}
	if err := gate.open(initial); err != nil {
		notifManager.Unsubscribe(subscriptionID)
		return "", err
	}
	return subscriptionID, nil
}

// Unsubscribe removes a subscription made by Subscribe.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.notification.Unsubscribe(subscriptionID)
}

// SubscriptionGone returns a channel closed once the subscription ends,
// including when its stream is dropped for failing or stalling.
func (m *Manager) SubscriptionGone(subscriptionID string) <-chan struct{} {
	return m.notification.Gone(subscriptionID)
}

// initialGate holds notifications back until the initial state has been
// sent, then forwards only those newer than it.
type initialGate struct {
	mu      sync.Mutex
	stream  notification.Stream
	opened  bool
	initial uint64
	held    []*notification.Notification
}

func (g *initialGate) Send(n *notification.Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.opened {
		g.held = append(g.held, n)
		return nil
	}
	return g.stream.Send(n)
}

func (g *initialGate) open(initial *notification.Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.stream.Send(initial); err != nil {
		return err
	}
	g.opened = true
	g.initial = initial.SequenceNo

	held := g.held
	g.held = nil
	for _, n := range held {
		if n.SequenceNo <= g.initial {
			continue
		}
		if err := g.stream.Send(n); err != nil {
			return err
		}
	}
	return nil
}
