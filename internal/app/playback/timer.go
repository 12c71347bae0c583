package playback

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	pb "github.com/osa030/playq/internal/domain/playback"
)

// scheduleEndLocked arms the track end timer for the remaining time of the
// current track. It does nothing unless auto-advance is on, the duration is
// known and the track is playing.
func (c *Controller) scheduleEndLocked() {
	c.cancelTimerLocked()
	if !c.config.AutoAdvance || c.duration <= 0 || c.state != pb.StatePlaying {
		return
	}

	id, ok := c.queue.CurrentID()
	if !ok {
		return
	}
	remaining := c.duration - c.positionLocked()
	if remaining < 0 {
		remaining = 0
	}

	gen := c.timerGen
	c.timerCancel = c.startWallClockTimer(remaining, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		// a newer schedule or a cancel superseded this timer
		if c.closed || gen != c.timerGen || c.state != pb.StatePlaying {
			return
		}
		if cur, ok := c.queue.CurrentID(); !ok || cur != id {
			return
		}
		c.timerCancel = nil

		zlog.Debug().Msgf("playback: track ended: track=%s duration=%v", id, c.duration)
		if err := c.trackCompletedLocked(); err != nil {
			zlog.Warn().Err(err).Msg("playback: failed to advance after track end")
		}
	})
}

func (c *Controller) cancelTimerLocked() {
	c.timerGen++
	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
	}
}

// startWallClockTimer starts a timer that triggers callback after duration,
// measured on the controller clock. Returns a cancel function.
func (c *Controller) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(c.ctx)
	endTime := c.now().Add(duration)

	go func() {
		ticker := time.NewTicker(c.config.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.now().Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped, so differences
// follow the wall clock.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
