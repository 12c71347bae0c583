//go:build linux

package mpris

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
	zlog "github.com/rs/zerolog/log"

	pb "github.com/osa030/playq/internal/domain/playback"
	"github.com/osa030/playq/internal/domain/track"
)

// Adapter connects the playback controller to MPRIS over D-Bus.
type Adapter struct {
	server *server.Server
	player *playerAdapter
}

// New creates and starts an MPRIS adapter registered as
// org.mpris.MediaPlayer2.<name>. sub may be nil, in which case Metadata
// carries no titles.
func New(name string, player Player, sub Subscriber) (*Adapter, error) {
	if player == nil {
		return nil, errors.New("mpris: player is required")
	}

	a := &Adapter{player: &playerAdapter{player: player}}
	if sub != nil {
		tracks, err := watchTrack(sub)
		if err != nil {
			return nil, errors.Wrap(err, "mpris: failed to subscribe")
		}
		a.player.tracks = tracks
	}
	a.server = server.NewServer(name, &rootAdapter{name: name}, a.player)

	go func() {
		if err := a.server.Listen(); err != nil {
			zlog.Warn().Err(err).Msg("mpris: listen failed")
		}
	}()

	zlog.Info().Msgf("mpris: registered as org.mpris.MediaPlayer2.%s", name)
	return a, nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	if a.player.tracks != nil {
		a.player.tracks.Close()
	}
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct {
	name string
}

func (r *rootAdapter) Raise() error {
	return nil
}

func (r *rootAdapter) Quit() error {
	return nil
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil
}

func (r *rootAdapter) Identity() (string, error) {
	return r.name, nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/mp4"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter and the
// LoopStatus and Shuffle extensions.
type playerAdapter struct {
	player Player
	tracks *trackWatcher // nil without a subscriber
}

func (p *playerAdapter) currentTrack() *track.Track {
	if p.tracks == nil {
		return nil
	}
	return p.tracks.Track()
}

func (p *playerAdapter) Next() error {
	return p.player.SkipNext()
}

func (p *playerAdapter) Previous() error {
	return p.player.SkipPrevious()
}

func (p *playerAdapter) Pause() error {
	return p.player.Pause()
}

func (p *playerAdapter) PlayPause() error {
	return p.player.PlayPause()
}

func (p *playerAdapter) Stop() error {
	return p.player.Stop()
}

func (p *playerAdapter) Play() error {
	return p.player.Play()
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	target, ok := relativeSeek(p.player.Status(), time.Duration(offset)*time.Microsecond)
	if !ok {
		return p.player.SkipNext()
	}
	return p.player.Seek(target)
}

func (p *playerAdapter) SetPosition(trackID string, position types.Microseconds) error {
	st := p.player.Status()
	if !st.HasCurrent || trackObjectPath(st.CurrentID) != trackID {
		return nil
	}
	return p.player.Seek(time.Duration(position) * time.Microsecond)
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.player.Status().State {
	case pb.StatePlaying:
		return types.PlaybackStatusPlaying, nil
	case pb.StatePaused:
		return types.PlaybackStatusPaused, nil
	}
	return types.PlaybackStatusStopped, nil
}

func (p *playerAdapter) Rate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetRate(_ float64) error {
	return nil
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	st := p.player.Status()
	if !st.HasCurrent {
		return types.Metadata{}, nil
	}

	meta := types.Metadata{
		TrackId: dbus.ObjectPath(trackObjectPath(st.CurrentID)),
		Length:  types.Microseconds(st.Duration.Microseconds()),
	}

	if t := p.currentTrack(); t != nil && t.ID == st.CurrentID {
		meta.Title = t.DisplayTitle()
		meta.Album = t.Album
		if t.Artist != "" {
			meta.Artist = []string{t.Artist}
		}
	}
	return meta, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetVolume(_ float64) error {
	return nil
}

func (p *playerAdapter) Position() (int64, error) {
	return p.player.Status().Position.Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return canGoNext(p.player.Status()), nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return canGoPrevious(p.player.Status()), nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return len(p.player.Status().Queue) > 0, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

// LoopStatus implements OrgMprisMediaPlayer2PlayerAdapterLoopStatus.
func (p *playerAdapter) LoopStatus() (types.LoopStatus, error) {
	switch loopStatusName(p.player.Status().RepeatMode) {
	case loopTrack:
		return types.LoopStatusTrack, nil
	case loopPlaylist:
		return types.LoopStatusPlaylist, nil
	}
	return types.LoopStatusNone, nil
}

// SetLoopStatus implements OrgMprisMediaPlayer2PlayerAdapterLoopStatus.
func (p *playerAdapter) SetLoopStatus(status types.LoopStatus) error {
	var name string
	switch status {
	case types.LoopStatusNone:
		name = loopNone
	case types.LoopStatusTrack:
		name = loopTrack
	case types.LoopStatusPlaylist:
		name = loopPlaylist
	}
	mode, ok := repeatModeFromLoop(name)
	if !ok {
		return errors.Newf("mpris: unknown loop status %v", status)
	}
	return p.player.SetRepeatMode(mode)
}

// Shuffle implements OrgMprisMediaPlayer2PlayerAdapterShuffle.
func (p *playerAdapter) Shuffle() (bool, error) {
	return p.player.Status().ShuffleMode == pb.ShuffleAll, nil
}

// SetShuffle implements OrgMprisMediaPlayer2PlayerAdapterShuffle.
func (p *playerAdapter) SetShuffle(shuffle bool) error {
	return p.player.SetShuffleMode(shuffleModeFromBool(shuffle))
}
