package connect

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/playq/internal/app/notification"
	"github.com/osa030/playq/internal/app/session"
	"github.com/osa030/playq/internal/domain/track"
)

// TrackInfo is the catalog record of a track as sent over the wire.
type TrackInfo struct {
	ID         int64  `mapstructure:"id"`
	Title      string `mapstructure:"title"`
	Artist     string `mapstructure:"artist"`
	Album      string `mapstructure:"album"`
	DurationMs int64  `mapstructure:"duration_ms"`
	Path       string `mapstructure:"path"`
}

// StatusMessage is the GetStatus response.
type StatusMessage struct {
	SessionID     string     `mapstructure:"session_id"`
	Phase         string     `mapstructure:"phase"`
	StartedAt     string     `mapstructure:"started_at"`
	Queue         []int64    `mapstructure:"queue"`
	Title         string     `mapstructure:"title"`
	CurrentID     int64      `mapstructure:"current_id"`
	HasCurrent    bool       `mapstructure:"has_current"`
	CurrentIndex  int        `mapstructure:"current_index"`
	Label         string     `mapstructure:"label"`
	State         string     `mapstructure:"state"`
	PositionMs    int64      `mapstructure:"position_ms"`
	DurationMs    int64      `mapstructure:"duration_ms"`
	Shuffle       string     `mapstructure:"shuffle"`
	Repeat        string     `mapstructure:"repeat"`
	Track         *TrackInfo `mapstructure:"track"`
	ListenerCount int        `mapstructure:"listener_count"`
}

// NotificationMessage is one Subscribe stream element. Only the fields
// relevant to Type are set, except for the initial message.
type NotificationMessage struct {
	SequenceNo uint64     `mapstructure:"sequence_no"`
	Type       string     `mapstructure:"type"`
	Timestamp  string     `mapstructure:"timestamp"`
	Queue      []int64    `mapstructure:"queue"`
	Title      string     `mapstructure:"title"`
	State      string     `mapstructure:"state"`
	PositionMs int64      `mapstructure:"position_ms"`
	CurrentID  int64      `mapstructure:"current_id"`
	HasCurrent bool       `mapstructure:"has_current"`
	Track      *TrackInfo `mapstructure:"track"`
	Shuffle    string     `mapstructure:"shuffle"`
	Repeat     string     `mapstructure:"repeat"`
}

// RejectionMessage reports an id the server refused to queue.
type RejectionMessage struct {
	TrackID int64  `mapstructure:"track_id"`
	Code    string `mapstructure:"code"`
	Message string `mapstructure:"message"`
}

// AdmitMessage is the SetQueue and Append response.
type AdmitMessage struct {
	Accepted []int64            `mapstructure:"accepted"`
	Rejected []RejectionMessage `mapstructure:"rejected"`
}

// queueEdit is the SetQueue and Append request.
type queueEdit struct {
	IDs   []int64 `mapstructure:"ids"`
	Title string  `mapstructure:"title"`
}

// swapRequest is the Swap request.
type swapRequest struct {
	From *int `mapstructure:"from"`
	To   *int `mapstructure:"to"`
}

// seekRequest is the Seek request.
type seekRequest struct {
	PositionMs *int64 `mapstructure:"position_ms"`
}

// decodeStruct decodes s into out using the mapstructure tags.
func decodeStruct(s *structpb.Struct, out any) error {
	if s == nil {
		return errors.New("message is empty")
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(s.AsMap()); err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	return nil
}

func int64List(ids []track.ID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// trackIDs converts wire ids, rejecting the reserved negative range.
func trackIDs(ids []int64) ([]track.ID, error) {
	out := make([]track.ID, len(ids))
	for i, id := range ids {
		if id < 0 {
			return nil, errors.Newf("invalid track id %d", id)
		}
		out[i] = track.ID(id)
	}
	return out, nil
}

func trackInfoMap(t *track.Track) map[string]any {
	return map[string]any{
		"id":          int64(t.ID),
		"title":       t.DisplayTitle(),
		"artist":      t.Artist,
		"album":       t.Album,
		"duration_ms": t.Duration.Milliseconds(),
		"path":        t.Path,
	}
}

func statusToStruct(st *session.Status) (*structpb.Struct, error) {
	m := map[string]any{
		"session_id":     st.SessionID,
		"phase":          st.Phase.String(),
		"started_at":     st.StartedAt.Format(time.RFC3339),
		"queue":          int64List(st.Queue),
		"title":          st.Title,
		"current_id":     int64(st.CurrentID),
		"has_current":    st.HasCurrent,
		"current_index":  st.CurrentIndex,
		"label":          st.Label,
		"state":          st.State.String(),
		"position_ms":    st.Position.Milliseconds(),
		"duration_ms":    st.Duration.Milliseconds(),
		"shuffle":        st.ShuffleMode.String(),
		"repeat":         st.RepeatMode.String(),
		"listener_count": st.ListenerCount,
	}
	if st.Track != nil {
		m["track"] = trackInfoMap(st.Track)
	}
	return structpb.NewStruct(m)
}

func notificationToStruct(n *notification.Notification) (*structpb.Struct, error) {
	m := map[string]any{
		"sequence_no": n.SequenceNo,
		"type":        string(n.Type),
		"timestamp":   n.Timestamp.Format(time.RFC3339Nano),
	}

	full := n.Type == notification.TypeInitial
	if full || n.Type == notification.TypeQueue {
		m["queue"] = int64List(n.Queue)
	}
	if full || n.Type == notification.TypeTitle {
		m["title"] = n.Title
	}
	if full || n.Type == notification.TypeState {
		m["state"] = n.State.String()
		m["position_ms"] = n.SeekPosition.Milliseconds()
	}
	if full || n.Type == notification.TypeTrack {
		m["current_id"] = int64(n.CurrentID)
		m["has_current"] = n.HasCurrent
		if n.Track != nil {
			m["track"] = trackInfoMap(n.Track)
		}
	}
	if full || n.Type == notification.TypeMode {
		m["shuffle"] = n.ShuffleMode.String()
		m["repeat"] = n.RepeatMode.String()
	}
	return structpb.NewStruct(m)
}

func admitToStruct(res *session.AdmitResult) (*structpb.Struct, error) {
	rejected := make([]any, len(res.Rejected))
	for i, r := range res.Rejected {
		rejected[i] = map[string]any{
			"track_id": int64(r.TrackID),
			"code":     r.Code,
			"message":  r.Message,
		}
	}
	return structpb.NewStruct(map[string]any{
		"accepted": int64List(res.Accepted),
		"rejected": rejected,
	})
}
