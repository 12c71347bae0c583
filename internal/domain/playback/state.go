// Package playback provides the playback state and snapshot entities.
package playback

// State represents the playback state as reported to the host session.
type State int

const (
	StateNone    State = iota // Nothing meaningful to resume
	StateStopped              // Stopped, position kept
	StatePaused               // Paused
	StatePlaying              // Playing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s >= StateNone && s <= StatePlaying
}

// ShuffleMode defines how the next track is selected.
type ShuffleMode int

const (
	ShuffleOff ShuffleMode = iota
	ShuffleAll
)

// String returns the shuffle mode name.
func (m ShuffleMode) String() string {
	switch m {
	case ShuffleOff:
		return "off"
	case ShuffleAll:
		return "all"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a known shuffle mode.
func (m ShuffleMode) Valid() bool {
	return m == ShuffleOff || m == ShuffleAll
}

// Toggle returns the other shuffle mode.
func (m ShuffleMode) Toggle() ShuffleMode {
	if m == ShuffleAll {
		return ShuffleOff
	}
	return ShuffleAll
}

// RepeatMode defines what happens when a track or the queue ends.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a known repeat mode.
func (m RepeatMode) Valid() bool {
	return m >= RepeatOff && m <= RepeatAll
}

// Next returns the mode that follows m in the toggle cycle off -> all -> one -> off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}
