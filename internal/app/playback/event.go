package playback

import (
	"time"

	pb "github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged EventType = iota // A different track became current
	EventStateChanged                  // Playback state or position changed
	EventModeChanged                   // Shuffle or repeat mode changed
	EventQueueEnded                    // Advanced past the last track without repeat
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventModeChanged:
		return "mode_changed"
	case EventQueueEnded:
		return "queue_ended"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type        EventType
	TrackID     track.ID // Current track (valid when HasTrack)
	HasTrack    bool
	State       pb.State
	Position    time.Duration
	ShuffleMode pb.ShuffleMode
	RepeatMode  pb.RepeatMode
}
