// Package notification broadcasts queue and playback changes to subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// DefaultSendTimeout bounds a single send to a subscriber.
const DefaultSendTimeout = 500 * time.Millisecond

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
	gone   chan struct{} // Closed once the subscription is removed
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
	now           func() time.Time
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   DefaultSendTimeout,
		now:           time.Now,
	}
}

// SetSendTimeout changes the per-subscriber send timeout.
func (m *Manager) SetSendTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendTimeout = d
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
		gone:   make(chan struct{}),
	}
	zlog.Debug().Msgf("notification: subscribed %s (total=%d)", id, len(m.subscriptions))
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(subscriptionID)
}

func (m *Manager) removeLocked(subscriptionID string) {
	sub, ok := m.subscriptions[subscriptionID]
	if !ok {
		return
	}
	delete(m.subscriptions, subscriptionID)
	close(sub.gone)
}

// Gone returns a channel that is closed once the subscription is removed,
// whether by Unsubscribe, Close, or because its stream failed or stalled.
// Unknown ids yield a closed channel.
func (m *Manager) Gone(subscriptionID string) <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subscriptions[subscriptionID]; ok {
		return sub.gone
	}
	gone := make(chan struct{})
	close(gone)
	return gone
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Broadcast stamps the notification and sends it to all subscribers.
// Sends run in parallel, each bounded by the send timeout. Subscribers whose
// stream returns an error or exceeds the timeout are dropped.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.NextSequenceNo()
	if n.Timestamp.IsZero() {
		n.Timestamp = m.now()
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	timeout := m.sendTimeout
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Err(err).Msgf("notification: dropping subscriber %s", s.id)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("notification: send to %s timed out (seq=%d), dropping subscriber", s.id, n.SequenceNo)
				m.Unsubscribe(s.id)
			}
		}(sub)
	}

	wg.Wait()
}

// Send sends a notification to a specific subscriber.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	n.SequenceNo = m.NextSequenceNo()
	if n.Timestamp.IsZero() {
		n.Timestamp = m.now()
	}
	return sub.stream.Send(n)
}

// PublishQueue broadcasts the new queue contents.
func (m *Manager) PublishQueue(ids []track.ID) {
	m.Broadcast(queueChanged(ids))
}

// PublishQueueTitle broadcasts the new queue title.
func (m *Manager) PublishQueueTitle(title string) {
	m.Broadcast(titleChanged(title))
}

// PublishState broadcasts a playback state change.
func (m *Manager) PublishState(state playback.State, position time.Duration) {
	m.Broadcast(stateChanged(state, position))
}

// PublishTrack broadcasts a change of current track. t may be nil when the
// catalog has no metadata for id.
func (m *Manager) PublishTrack(id track.ID, t *track.Track) {
	m.Broadcast(trackChanged(id, t))
}

// PublishNoTrack broadcasts that no track is selected.
func (m *Manager) PublishNoTrack() {
	m.Broadcast(&Notification{Type: TypeTrack})
}

// PublishModes broadcasts the shuffle and repeat modes.
func (m *Manager) PublishModes(shuffle playback.ShuffleMode, repeat playback.RepeatMode) {
	m.Broadcast(modesChanged(shuffle, repeat))
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.subscriptions {
		m.removeLocked(id)
	}
}
