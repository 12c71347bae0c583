package notification

import (
	"github.com/cockroachdb/errors"
)

// ErrStreamFull is returned by ChanStream when its buffer is full.
var ErrStreamFull = errors.New("notification stream full")

// ChanStream delivers notifications to an in-process consumer over a
// buffered channel. A full buffer fails the send, which drops the subscriber.
type ChanStream struct {
	ch chan *Notification
}

// NewChanStream creates a stream with the given buffer size.
func NewChanStream(size int) *ChanStream {
	return &ChanStream{ch: make(chan *Notification, size)}
}

func (s *ChanStream) Send(n *Notification) error {
	select {
	case s.ch <- n:
		return nil
	default:
		return ErrStreamFull
	}
}

// C returns the receive side.
func (s *ChanStream) C() <-chan *Notification {
	return s.ch
}
