package mpris

import (
	"sync"

	"github.com/osa030/playq/internal/app/notification"
	"github.com/osa030/playq/internal/app/session"
	"github.com/osa030/playq/internal/domain/track"
)

const streamBufferSize = 32

// Subscriber delivers the full session state on subscribe, then every change.
type Subscriber interface {
	Subscribe(stream notification.Stream) (string, error)
	Unsubscribe(subscriptionID string)
}

var _ Subscriber = (*session.Manager)(nil)

// trackWatcher keeps the metadata of the current track in sync with the
// session.
type trackWatcher struct {
	sub            Subscriber
	subscriptionID string
	stream         *notification.ChanStream

	mu    sync.RWMutex
	track *track.Track

	done chan struct{}
	wg   sync.WaitGroup
}

func watchTrack(sub Subscriber) (*trackWatcher, error) {
	w := &trackWatcher{
		sub:    sub,
		stream: notification.NewChanStream(streamBufferSize),
		done:   make(chan struct{}),
	}

	// drain before subscribing so the initial state cannot fill the buffer
	w.wg.Add(1)
	go w.run()

	id, err := sub.Subscribe(w.stream)
	if err != nil {
		close(w.done)
		w.wg.Wait()
		return nil, err
	}
	w.subscriptionID = id
	return w, nil
}

func (w *trackWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case n := <-w.stream.C():
			w.apply(n)
		}
	}
}

func (w *trackWatcher) apply(n *notification.Notification) {
	switch n.Type {
	case notification.TypeInitial, notification.TypeTrack:
		w.mu.Lock()
		if n.HasCurrent {
			w.track = n.Track
		} else {
			w.track = nil
		}
		w.mu.Unlock()
	}
}

// Track returns the cached metadata, nil when unknown.
func (w *trackWatcher) Track() *track.Track {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.track
}

func (w *trackWatcher) Close() {
	w.sub.Unsubscribe(w.subscriptionID)
	close(w.done)
	w.wg.Wait()
}
