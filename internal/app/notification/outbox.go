package notification

import (
	"sync"
	"time"

	"github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// Outbox queues notifications for a Manager and broadcasts them in order on
// its own goroutine. Publishing never waits on subscriber streams, so it is
// safe under the queue and transport locks.
type Outbox struct {
	target *Manager

	mu      sync.Mutex
	pending []*Notification
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewOutbox creates an outbox in front of target and starts its goroutine.
// Close must be called to stop it.
func NewOutbox(target *Manager) *Outbox {
	o := &Outbox{
		target: target,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Outbox) run() {
	defer close(o.done)
	for {
		<-o.wake

		o.mu.Lock()
		batch := o.pending
		o.pending = nil
		closed := o.closed
		o.mu.Unlock()

		for _, n := range batch {
			o.target.Broadcast(n)
		}
		if closed {
			return
		}
	}
}

func (o *Outbox) enqueue(n *Notification) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.pending = append(o.pending, n)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// PublishQueue queues the new queue contents.
func (o *Outbox) PublishQueue(ids []track.ID) {
	o.enqueue(queueChanged(ids))
}

// PublishQueueTitle queues the new queue title.
func (o *Outbox) PublishQueueTitle(title string) {
	o.enqueue(titleChanged(title))
}

// PublishState queues a playback state change.
func (o *Outbox) PublishState(state playback.State, position time.Duration) {
	o.enqueue(stateChanged(state, position))
}

// PublishTrack queues a change of current track.
func (o *Outbox) PublishTrack(id track.ID, t *track.Track) {
	o.enqueue(trackChanged(id, t))
}

// PublishNoTrack queues that no track is selected.
func (o *Outbox) PublishNoTrack() {
	o.enqueue(&Notification{Type: TypeTrack})
}

// PublishModes queues the shuffle and repeat modes.
func (o *Outbox) PublishModes(shuffle playback.ShuffleMode, repeat playback.RepeatMode) {
	o.enqueue(modesChanged(shuffle, repeat))
}

// Close broadcasts what is still queued and stops the goroutine. Later
// publications are discarded.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.done
		return
	}
	o.closed = true
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	<-o.done
}
