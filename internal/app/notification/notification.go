package notification

import (
	"time"

	"github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// Type identifies what changed.
type Type string

const (
	TypeInitial Type = "initial" // Full state sent once on subscribe
	TypeQueue   Type = "queue"   // Queue contents changed
	TypeTitle   Type = "title"   // Queue title changed
	TypeState   Type = "state"   // Playback state or position changed
	TypeTrack   Type = "track"   // Current track changed
	TypeMode    Type = "mode"    // Shuffle or repeat mode changed
)

// Notification is a single host-session update. Only the fields relevant to
// Type are set, except for TypeInitial which carries everything.
type Notification struct {
	SequenceNo uint64
	Type       Type
	Timestamp  time.Time

	Queue        []track.ID
	Title        string
	State        playback.State
	SeekPosition time.Duration
	CurrentID    track.ID
	HasCurrent   bool
	Track        *track.Track
	ShuffleMode  playback.ShuffleMode
	RepeatMode   playback.RepeatMode
}

func queueChanged(ids []track.ID) *Notification {
	return &Notification{Type: TypeQueue, Queue: ids}
}

func titleChanged(title string) *Notification {
	return &Notification{Type: TypeTitle, Title: title}
}

func stateChanged(state playback.State, position time.Duration) *Notification {
	return &Notification{Type: TypeState, State: state, SeekPosition: position}
}

func trackChanged(id track.ID, t *track.Track) *Notification {
	return &Notification{Type: TypeTrack, CurrentID: id, HasCurrent: true, Track: t}
}

func modesChanged(shuffle playback.ShuffleMode, repeat playback.RepeatMode) *Notification {
	return &Notification{Type: TypeMode, ShuffleMode: shuffle, RepeatMode: repeat}
}
