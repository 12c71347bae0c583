package session

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playq/internal/app/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// playbackLoop handles playback events until the controller closes its
// event channel.
func (m *Manager) playbackLoop() {
	for !m.runLoop() {
		zlog.Info().Msg("restarting playback loop")
	}
	close(m.loopDone)
}

// runLoop returns true once the event channel is closed and false after a
// recovered panic.
func (m *Manager) runLoop() (finished bool) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback loop panicked: %v", r)
			finished = false
		}
	}()

	for event := range m.playback.Events() {
		m.handlePlaybackEvent(event)
	}
	return true
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("playback event: type=%s track=%s state=%s", event.Type, event.TrackID, event.State)

	switch event.Type {
	case playback.EventTrackChanged:
		m.onTrackChanged(event)

	case playback.EventStateChanged:
		m.outbox.PublishState(event.State, event.Position)

	case playback.EventModeChanged:
		m.outbox.PublishModes(event.ShuffleMode, event.RepeatMode)

	case playback.EventQueueEnded:
		zlog.Info().Msg("queue ended")
	}
}

func (m *Manager) onTrackChanged(event playback.Event) {
	if !event.HasTrack {
		m.setCurrent(nil)
		m.outbox.PublishNoTrack()
		return
	}

	t := m.resolve(event.TrackID)
	m.setCurrent(t)
	if t != nil && t.Duration > 0 {
		m.playback.SetTrackDuration(event.TrackID, t.Duration)
	}

	if t != nil {
		zlog.Info().Msgf("now playing: track=%s title=%q artist=%q", t.ID, t.DisplayTitle(), t.Artist)
	} else {
		zlog.Info().Msgf("now playing: track=%s (no metadata)", event.TrackID)
	}
	m.outbox.PublishTrack(event.TrackID, t)
}

// resolve looks id up in the catalog. Unknown ids yield nil.
func (m *Manager) resolve(id track.ID) *track.Track {
	if m.catalog == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(m.ctx, resolveTimeout)
	defer cancel()

	t, err := m.catalog.Resolve(ctx, id)
	if err != nil {
		zlog.Warn().Err(err).Msgf("failed to resolve track %s", id)
		return nil
	}
	return t
}

func (m *Manager) setCurrent(t *track.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

func (m *Manager) currentTrack() *track.Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
