package playback

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/playq/internal/domain/track"
)

// noCurrentID is written to queue_info when no track is selected. Track id
// -1 is reserved for it; Encode refuses a current track with that id.
const noCurrentID = -1

// Snapshot is the persisted representation of the queue used to resume
// playback after a restart.
type Snapshot struct {
	CurrentID    track.ID
	HasCurrent   bool
	SeekPosition time.Duration
	RepeatMode   RepeatMode
	ShuffleMode  ShuffleMode
	State        State
	Title        string
	Queue        []track.ID
}

// queueInfo is the wire form of everything but the id list.
type queueInfo struct {
	ID          int64  `json:"id"`
	SeekPos     int64  `json:"seekPos"`
	RepeatMode  int    `json:"repeatMode"`
	ShuffleMode int    `json:"shuffleMode"`
	State       int    `json:"state"`
	Name        string `json:"name"`
}

// Encode returns the queue_list and queue_info documents.
func (s *Snapshot) Encode() (list []byte, info []byte, err error) {
	if s.HasCurrent && s.CurrentID == noCurrentID {
		return nil, nil, errors.Newf("track id %d is reserved", noCurrentID)
	}
	ids := make([]int64, len(s.Queue))
	for i, id := range s.Queue {
		ids[i] = int64(id)
	}
	list, err = json.Marshal(ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to encode queue list")
	}

	qi := queueInfo{
		ID:          noCurrentID,
		SeekPos:     s.SeekPosition.Milliseconds(),
		RepeatMode:  int(s.RepeatMode),
		ShuffleMode: int(s.ShuffleMode),
		State:       int(s.State),
		Name:        s.Title,
	}
	if s.HasCurrent {
		qi.ID = int64(s.CurrentID)
	}
	info, err = json.Marshal(qi)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to encode queue info")
	}
	return list, info, nil
}

// Decode parses the queue_list and queue_info documents.
// Unknown mode or state values are reported as errors.
func Decode(list, info []byte) (*Snapshot, error) {
	var ids []int64
	if err := json.Unmarshal(list, &ids); err != nil {
		return nil, errors.Wrap(err, "failed to parse queue list")
	}
	if ids == nil {
		return nil, errors.New("queue list is null")
	}

	var qi queueInfo
	if err := json.Unmarshal(info, &qi); err != nil {
		return nil, errors.Wrap(err, "failed to parse queue info")
	}

	s := &Snapshot{
		SeekPosition: time.Duration(qi.SeekPos) * time.Millisecond,
		RepeatMode:   RepeatMode(qi.RepeatMode),
		ShuffleMode:  ShuffleMode(qi.ShuffleMode),
		State:        State(qi.State),
		Title:        qi.Name,
		Queue:        make([]track.ID, len(ids)),
	}
	for i, id := range ids {
		s.Queue[i] = track.ID(id)
	}
	if qi.ID != noCurrentID {
		s.CurrentID = track.ID(qi.ID)
		s.HasCurrent = true
	}

	if !s.RepeatMode.Valid() {
		return nil, errors.Newf("unknown repeat mode %d", qi.RepeatMode)
	}
	if !s.ShuffleMode.Valid() {
		return nil, errors.Newf("unknown shuffle mode %d", qi.ShuffleMode)
	}
	if !s.State.Valid() {
		return nil, errors.Newf("unknown playback state %d", qi.State)
	}
	if qi.SeekPos < 0 {
		return nil, errors.Newf("negative seek position %d", qi.SeekPos)
	}
	return s, nil
}
