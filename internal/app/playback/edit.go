package playback

import (
	pb "github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// Queue edits go through the controller so that losing the current track
// also resets the transport.

// SetQueue replaces the queue and its title.
func (c *Controller) SetQueue(ids []track.ID, title string) error {
	return c.edit(func() bool {
		c.queue.SetQueue(ids, title)
		return true
	})
}

// Append adds ids at the end of the queue.
func (c *Controller) Append(ids ...track.ID) error {
	return c.edit(func() bool {
		c.queue.Append(ids...)
		return true
	})
}

// PlayNext moves id right after the current track.
func (c *Controller) PlayNext(id track.ID) error {
	return c.edit(func() bool {
		return c.queue.PlayNext(id)
	})
}

// Remove deletes id from the queue. Removing the current track stops
// playback.
func (c *Controller) Remove(id track.ID) error {
	return c.edit(func() bool {
		return c.queue.Remove(id)
	})
}

// Swap moves the track at from to index to.
func (c *Controller) Swap(from, to int) error {
	return c.edit(func() bool {
		return c.queue.Swap(from, to)
	})
}

// Clear empties the queue and stops playback.
func (c *Controller) Clear() error {
	return c.edit(func() bool {
		c.queue.Clear()
		return true
	})
}

// edit runs fn under the controller lock. fn reports whether it matched
// anything; false maps to ErrNotQueued.
func (c *Controller) edit(fn func() bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	_, hadCurrent := c.queue.CurrentID()
	if !fn() {
		return ErrNotQueued
	}
	if _, ok := c.queue.CurrentID(); hadCurrent && !ok {
		c.currentLostLocked()
	}
	return nil
}

// currentLostLocked resets the transport after the current track left the
// queue.
func (c *Controller) currentLostLocked() {
	c.cancelTimerLocked()
	c.duration = 0
	c.offset = 0
	if c.state == pb.StatePlaying || c.state == pb.StatePaused {
		c.state = pb.StateStopped
	}

	c.sendEventLocked(c.eventLocked(EventTrackChanged))
	c.sendEventLocked(c.eventLocked(EventStateChanged))
	c.saveLocked()
}
