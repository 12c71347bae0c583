// Package mpris exposes the host session as an MPRIS media player on the
// session D-Bus.
package mpris

import (
	"fmt"
	"time"

	"github.com/osa030/playq/internal/app/playback"
	pb "github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// Player is the transport surface driven over D-Bus.
type Player interface {
	Play() error
	Pause() error
	PlayPause() error
	Stop() error
	SkipNext() error
	SkipPrevious() error
	Seek(position time.Duration) error
	SetShuffleMode(mode pb.ShuffleMode) error
	SetRepeatMode(mode pb.RepeatMode) error
	Status() playback.Status
}

var _ Player = (*playback.Controller)(nil)

// Loop status names as defined by the MPRIS player interface.
const (
	loopNone     = "None"
	loopTrack    = "Track"
	loopPlaylist = "Playlist"
)

func loopStatusName(mode pb.RepeatMode) string {
	switch mode {
	case pb.RepeatOne:
		return loopTrack
	case pb.RepeatAll:
		return loopPlaylist
	}
	return loopNone
}

func repeatModeFromLoop(status string) (pb.RepeatMode, bool) {
	switch status {
	case loopNone:
		return pb.RepeatOff, true
	case loopTrack:
		return pb.RepeatOne, true
	case loopPlaylist:
		return pb.RepeatAll, true
	}
	return pb.RepeatOff, false
}

func shuffleModeFromBool(on bool) pb.ShuffleMode {
	if on {
		return pb.ShuffleAll
	}
	return pb.ShuffleOff
}

// relativeSeek returns the absolute target of an MPRIS Seek call. Seeking
// past the end of the track behaves like a skip.
func relativeSeek(st playback.Status, offset time.Duration) (time.Duration, bool) {
	target := st.Position + offset
	if target < 0 {
		target = 0
	}
	if st.Duration > 0 && target >= st.Duration {
		return 0, false
	}
	return target, true
}

func trackObjectPath(id track.ID) string {
	return fmt.Sprintf("/org/playq/Track/%d", int64(id))
}

func canGoNext(st playback.Status) bool {
	if len(st.Queue) == 0 {
		return false
	}
	return st.RepeatMode == pb.RepeatAll || st.CurrentIndex < len(st.Queue)-1
}

func canGoPrevious(st playback.Status) bool {
	return st.HasCurrent
}
