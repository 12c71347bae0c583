// Package playback turns transport commands into queue movement, tracks the
// playback state and seek position, and triggers snapshot saves.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playq/internal/app/queue"
	pb "github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// Errors
var (
	ErrNoTrack    = errors.New("no track selected")
	ErrQueueEmpty = errors.New("queue is empty")
	ErrNotPlaying = errors.New("not playing")
	ErrNotQueued  = errors.New("track is not in the queue")
	ErrClosed     = errors.New("controller closed")
)

const (
	defaultSaveTimeout  = 5 * time.Second
	defaultTickInterval = 100 * time.Millisecond
	eventBufferSize     = 64
)

// SnapshotStore persists the resume snapshot.
type SnapshotStore interface {
	Save(ctx context.Context, snap *pb.Snapshot) error
	Load(ctx context.Context) (*pb.Snapshot, bool)
}

// Config holds controller configuration.
type Config struct {
	AutoAdvance  bool             // Complete tracks on a timer once their duration is known
	SaveTimeout  time.Duration    // Per-save deadline
	TickInterval time.Duration    // Track end timer resolution
	Now          func() time.Time // Clock (nil means time.Now)
}

// Status is a consistent view of the queue and the playback state.
type Status struct {
	queue.View
	State    pb.State
	Position time.Duration
	Duration time.Duration // Zero when unknown
}

// Controller is the transport adapter in front of a queue manager.
type Controller struct {
	mu sync.RWMutex

	queue *queue.Manager
	store SnapshotStore

	state     pb.State
	offset    time.Duration // Position at the last start, pause or seek
	startedAt time.Time     // When playback last (re)started, valid while playing
	duration  time.Duration // Length of the current track, zero when unknown

	// Timer
	timerCancel func()
	timerGen    uint64

	config Config

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc

	saves  sync.WaitGroup
	closed bool
}

// NewController creates a controller driving q. store may be nil.
func NewController(q *queue.Manager, store SnapshotStore, config Config) *Controller {
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = defaultSaveTimeout
	}
	if config.TickInterval <= 0 {
		config.TickInterval = defaultTickInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		queue:   q,
		store:   store,
		state:   pb.StateNone,
		config:  config,
		eventCh: make(chan Event, eventBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Queue returns the underlying queue manager.
func (c *Controller) Queue() *queue.Manager {
	return c.queue
}

// Play resumes a paused or stopped track, or starts the next one when
// nothing is selected.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state == pb.StatePlaying {
		return nil
	}

	if _, ok := c.queue.CurrentID(); ok {
		c.resumeLocked()
		return nil
	}

	id, ok := c.queue.NextTrackID()
	if !ok {
		return ErrQueueEmpty
	}
	return c.startLocked(id)
}

// Pause pauses the current playback and saves a snapshot.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != pb.StatePlaying {
		return ErrNotPlaying
	}

	c.offset = c.positionLocked()
	c.cancelTimerLocked()
	c.state = pb.StatePaused

	c.sendEventLocked(c.eventLocked(EventStateChanged))
	c.saveLocked()
	return nil
}

// PlayPause toggles between playing and paused.
func (c *Controller) PlayPause() error {
	c.mu.RLock()
	playing := c.state == pb.StatePlaying
	c.mu.RUnlock()

	if playing {
		return c.Pause()
	}
	return c.Play()
}

// Stop stops playback, keeping the current track and position, and saves a
// snapshot.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.offset = c.positionLocked()
	c.cancelTimerLocked()
	c.state = pb.StateStopped

	c.sendEventLocked(c.eventLocked(EventStateChanged))
	c.saveLocked()
	return nil
}

// SkipNext moves to the next track. At the end of the queue it wraps when
// repeat-all is on and stops otherwise.
func (c *Controller) SkipNext() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.advanceLocked(c.state == pb.StatePlaying)
}

// SkipPrevious moves to the previous track, or restarts the current one once
// the restart threshold has passed or at the head of the queue.
func (c *Controller) SkipPrevious() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, ok := c.queue.CurrentID(); !ok {
		return ErrNoTrack
	}

	id, ok := c.queue.PreviousTrackID(c.positionLocked())
	if !ok {
		c.restartLocked()
		return nil
	}
	return c.selectLocked(id, c.state == pb.StatePlaying)
}

// TrackCompleted advances after the current track finished on its own.
// Repeat-one restarts the same track.
func (c *Controller) TrackCompleted() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.trackCompletedLocked()
}

// PlayTrack starts id from the beginning.
func (c *Controller) PlayTrack(id track.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.startLocked(id)
}

// Seek moves the position within the current track.
func (c *Controller) Seek(position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, ok := c.queue.CurrentID(); !ok {
		return ErrNoTrack
	}

	if position < 0 {
		position = 0
	}
	if c.duration > 0 && position > c.duration {
		position = c.duration
	}
	c.offset = position
	c.startedAt = c.now()
	c.scheduleEndLocked()

	c.sendEventLocked(c.eventLocked(EventStateChanged))
	return nil
}

// ToggleShuffle flips shuffle between off and all.
func (c *Controller) ToggleShuffle() (pb.ShuffleMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return pb.ShuffleOff, ErrClosed
	}
	mode := c.queue.ShuffleMode().Toggle()
	c.queue.SetShuffleMode(mode)
	c.sendEventLocked(c.eventLocked(EventModeChanged))
	return mode, nil
}

// ToggleRepeat cycles repeat through off, all and one.
func (c *Controller) ToggleRepeat() (pb.RepeatMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return pb.RepeatOff, ErrClosed
	}
	mode := c.queue.RepeatMode().Next()
	c.queue.SetRepeatMode(mode)
	c.sendEventLocked(c.eventLocked(EventModeChanged))
	return mode, nil
}

// SetShuffleMode sets the shuffle mode directly.
func (c *Controller) SetShuffleMode(mode pb.ShuffleMode) error {
	if !mode.Valid() {
		return errors.Newf("invalid shuffle mode %d", mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.queue.SetShuffleMode(mode)
	c.sendEventLocked(c.eventLocked(EventModeChanged))
	return nil
}

// SetRepeatMode sets the repeat mode directly.
func (c *Controller) SetRepeatMode(mode pb.RepeatMode) error {
	if !mode.Valid() {
		return errors.Newf("invalid repeat mode %d", mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.queue.SetRepeatMode(mode)
	c.sendEventLocked(c.eventLocked(EventModeChanged))
	return nil
}

// SetTrackDuration records the length of id once its metadata is known. When
// auto-advance is on this arms the track end timer.
func (c *Controller) SetTrackDuration(id track.ID, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if cur, ok := c.queue.CurrentID(); !ok || cur != id {
		return
	}
	c.duration = d
	c.scheduleEndLocked()
}

// Restore loads the saved snapshot into the queue. A snapshot saved while
// playing comes back paused. Returns false when there is nothing to restore.
func (c *Controller) Restore(ctx context.Context) bool {
	if c.store == nil {
		return false
	}
	snap, ok := c.store.Load(ctx)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	c.queue.Restore(snap)
	c.cancelTimerLocked()
	c.duration = 0
	c.offset = snap.SeekPosition
	c.state = snap.State
	if c.state == pb.StatePlaying {
		c.state = pb.StatePaused
	}

	if _, ok := c.queue.CurrentID(); ok {
		c.sendEventLocked(c.eventLocked(EventTrackChanged))
	}
	c.sendEventLocked(c.eventLocked(EventModeChanged))
	c.sendEventLocked(c.eventLocked(EventStateChanged))

	zlog.Info().Msgf("playback: restored %d tracks, state=%s position=%v", len(snap.Queue), c.state, c.offset)
	return true
}

// State returns the current playback state.
func (c *Controller) State() pb.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Position returns the current seek position.
func (c *Controller) Position() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positionLocked()
}

// Status returns the queue and playback state together.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Status{
		View:     c.queue.View(),
		State:    c.state,
		Position: c.positionLocked(),
		Duration: c.duration,
	}
}

// Snapshot returns the state as it would be persisted.
func (c *Controller) Snapshot() *pb.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Close saves a final snapshot, waits for in-flight saves and closes the
// event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.saveLocked()
	c.closed = true
	c.cancelTimerLocked()
	c.mu.Unlock()

	c.saves.Wait()
	c.cancel()
	close(c.eventCh)
}

// startLocked makes id current and plays it from the beginning.
func (c *Controller) startLocked(id track.ID) error {
	prev, hadPrev := c.queue.CurrentID()
	if !c.queue.SetCurrent(id) {
		return ErrNotQueued
	}
	changed := !hadPrev || prev != id
	if changed {
		c.duration = 0
	}

	c.offset = 0
	c.startedAt = c.now()
	c.state = pb.StatePlaying
	c.scheduleEndLocked()

	if changed {
		c.sendEventLocked(c.eventLocked(EventTrackChanged))
	}
	c.sendEventLocked(c.eventLocked(EventStateChanged))

	zlog.Debug().Msgf("playback: playing track=%s label=%s", id, c.queue.PositionLabel())
	return nil
}

// selectLocked makes id current at position zero. It starts playback when
// play is set and otherwise keeps the current state.
func (c *Controller) selectLocked(id track.ID, play bool) error {
	if play {
		return c.startLocked(id)
	}

	prev, hadPrev := c.queue.CurrentID()
	if !c.queue.SetCurrent(id) {
		return ErrNotQueued
	}
	if !hadPrev || prev != id {
		c.duration = 0
		c.sendEventLocked(c.eventLocked(EventTrackChanged))
	}

	c.offset = 0
	if c.state == pb.StateNone {
		c.state = pb.StateStopped
	}
	c.sendEventLocked(c.eventLocked(EventStateChanged))
	return nil
}

func (c *Controller) resumeLocked() {
	c.startedAt = c.now()
	c.state = pb.StatePlaying
	c.scheduleEndLocked()
	c.sendEventLocked(c.eventLocked(EventStateChanged))
}

func (c *Controller) restartLocked() {
	c.offset = 0
	c.startedAt = c.now()
	c.scheduleEndLocked()
	c.sendEventLocked(c.eventLocked(EventStateChanged))
}

func (c *Controller) advanceLocked(play bool) error {
	if c.queue.Len() == 0 {
		return ErrQueueEmpty
	}

	idx, ok := c.queue.NextTrackIndex()
	if !ok && c.queue.RepeatMode() == pb.RepeatAll {
		idx, ok = 0, true
	}
	if !ok {
		c.endOfQueueLocked()
		return nil
	}

	id, ok := c.queue.TrackAt(idx)
	if !ok {
		return ErrQueueEmpty
	}
	return c.selectLocked(id, play)
}

func (c *Controller) trackCompletedLocked() error {
	if _, ok := c.queue.CurrentID(); ok && c.queue.RepeatMode() == pb.RepeatOne {
		c.offset = 0
		c.startedAt = c.now()
		c.state = pb.StatePlaying
		c.scheduleEndLocked()
		c.sendEventLocked(c.eventLocked(EventStateChanged))
		return nil
	}
	return c.advanceLocked(true)
}

// endOfQueueLocked stops on the last track after the queue ran out.
func (c *Controller) endOfQueueLocked() {
	c.cancelTimerLocked()
	c.offset = 0
	c.state = pb.StateStopped

	zlog.Info().Msg("playback: reached end of queue")
	c.sendEventLocked(c.eventLocked(EventQueueEnded))
	c.sendEventLocked(c.eventLocked(EventStateChanged))
	c.saveLocked()
}

func (c *Controller) positionLocked() time.Duration {
	pos := c.offset
	if c.state == pb.StatePlaying {
		pos += c.now().Sub(c.startedAt)
	}
	if c.duration > 0 && pos > c.duration {
		pos = c.duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

func (c *Controller) snapshotLocked() *pb.Snapshot {
	v := c.queue.View()
	return &pb.Snapshot{
		CurrentID:    v.CurrentID,
		HasCurrent:   v.HasCurrent,
		SeekPosition: c.positionLocked(),
		RepeatMode:   v.RepeatMode,
		ShuffleMode:  v.ShuffleMode,
		State:        c.state,
		Title:        v.Title,
		Queue:        v.Queue,
	}
}

// saveLocked writes a snapshot on its own goroutine. Concurrent saves may
// complete out of order; the last write wins.
func (c *Controller) saveLocked() {
	if c.store == nil {
		return
	}
	snap := c.snapshotLocked()
	timeout := c.config.SaveTimeout

	c.saves.Add(1)
	go func() {
		defer c.saves.Done()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := c.store.Save(ctx, snap); err != nil {
			zlog.Error().Err(err).Msg("playback: failed to save snapshot")
		}
	}()
}

func (c *Controller) eventLocked(t EventType) Event {
	id, ok := c.queue.CurrentID()
	return Event{
		Type:        t,
		TrackID:     id,
		HasTrack:    ok,
		State:       c.state,
		Position:    c.positionLocked(),
		ShuffleMode: c.queue.ShuffleMode(),
		RepeatMode:  c.queue.RepeatMode(),
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		zlog.Warn().Msgf("playback: event channel full, dropping %s", e.Type)
	}
}

func (c *Controller) now() time.Time {
	return toWallTime(c.config.Now())
}
