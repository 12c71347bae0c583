package connect

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/playq/internal/domain/track"
)

// Client calls the player service. Mutating calls carry the admin token
// given to NewClient.
type Client struct {
	getStatus *connect.Client[emptypb.Empty, structpb.Struct]
	subscribe *connect.Client[emptypb.Empty, structpb.Struct]
	empty     map[string]*connect.Client[emptypb.Empty, emptypb.Empty]
	byID      map[string]*connect.Client[wrapperspb.Int64Value, emptypb.Empty]
	toggle    map[string]*connect.Client[emptypb.Empty, structpb.Struct]
	edit      map[string]*connect.Client[structpb.Struct, structpb.Struct]
	swap      *connect.Client[structpb.Struct, emptypb.Empty]
	seek      *connect.Client[structpb.Struct, emptypb.Empty]
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, adminToken string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	adminOpts := append([]connect.ClientOption{
		connect.WithInterceptors(newTokenInterceptor(adminToken)),
	}, opts...)

	c := &Client{
		getStatus: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetStatusProcedure, opts...),
		subscribe: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SubscribeProcedure, opts...),
		empty:     make(map[string]*connect.Client[emptypb.Empty, emptypb.Empty]),
		byID:      make(map[string]*connect.Client[wrapperspb.Int64Value, emptypb.Empty]),
		toggle:    make(map[string]*connect.Client[emptypb.Empty, structpb.Struct]),
		edit:      make(map[string]*connect.Client[structpb.Struct, structpb.Struct]),
		swap:      connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+SwapProcedure, adminOpts...),
		seek:      connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+SeekProcedure, adminOpts...),
	}
	for _, p := range []string{PlayProcedure, PauseProcedure, StopProcedure, SkipNextProcedure, SkipPreviousProcedure, TrackCompletedProcedure, ClearProcedure} {
		c.empty[p] = connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+p, adminOpts...)
	}
	for _, p := range []string{PlayNextProcedure, RemoveProcedure, PlayTrackProcedure} {
		c.byID[p] = connect.NewClient[wrapperspb.Int64Value, emptypb.Empty](httpClient, baseURL+p, adminOpts...)
	}
	for _, p := range []string{ToggleShuffleProcedure, ToggleRepeatProcedure} {
		c.toggle[p] = connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+p, adminOpts...)
	}
	for _, p := range []string{SetQueueProcedure, AppendProcedure} {
		c.edit[p] = connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+p, adminOpts...)
	}
	return c
}

// GetStatus returns the current queue and playback state.
func (c *Client) GetStatus(ctx context.Context) (*StatusMessage, error) {
	resp, err := c.getStatus.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	var st StatusMessage
	if err := decodeStruct(resp.Msg, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Subscribe calls fn for every notification until ctx is done, the server
// ends the stream or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, fn func(*NotificationMessage) error) error {
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		var n NotificationMessage
		if err := decodeStruct(stream.Msg(), &n); err != nil {
			return err
		}
		if err := fn(&n); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && !isCanceled(err) {
		return err
	}
	return nil
}

func (c *Client) callEmpty(ctx context.Context, procedure string) error {
	_, err := c.empty[procedure].CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	return err
}

// Play starts or resumes playback.
func (c *Client) Play(ctx context.Context) error { return c.callEmpty(ctx, PlayProcedure) }

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error { return c.callEmpty(ctx, PauseProcedure) }

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) error { return c.callEmpty(ctx, StopProcedure) }

// SkipNext skips to the next track.
func (c *Client) SkipNext(ctx context.Context) error { return c.callEmpty(ctx, SkipNextProcedure) }

// SkipPrevious goes back a track.
func (c *Client) SkipPrevious(ctx context.Context) error {
	return c.callEmpty(ctx, SkipPreviousProcedure)
}

// TrackCompleted reports that the current track finished.
func (c *Client) TrackCompleted(ctx context.Context) error {
	return c.callEmpty(ctx, TrackCompletedProcedure)
}

// Clear empties the queue.
func (c *Client) Clear(ctx context.Context) error { return c.callEmpty(ctx, ClearProcedure) }

func (c *Client) callID(ctx context.Context, procedure string, id track.ID) error {
	_, err := c.byID[procedure].CallUnary(ctx, connect.NewRequest(wrapperspb.Int64(int64(id))))
	return err
}

// PlayNext moves id right after the current track.
func (c *Client) PlayNext(ctx context.Context, id track.ID) error {
	return c.callID(ctx, PlayNextProcedure, id)
}

// Remove deletes id from the queue.
func (c *Client) Remove(ctx context.Context, id track.ID) error {
	return c.callID(ctx, RemoveProcedure, id)
}

// PlayTrack starts id from the beginning.
func (c *Client) PlayTrack(ctx context.Context, id track.ID) error {
	return c.callID(ctx, PlayTrackProcedure, id)
}

// ToggleShuffle flips the shuffle mode and returns the new mode name.
func (c *Client) ToggleShuffle(ctx context.Context) (string, error) {
	return c.callToggle(ctx, ToggleShuffleProcedure, "shuffle")
}

// ToggleRepeat cycles the repeat mode and returns the new mode name.
func (c *Client) ToggleRepeat(ctx context.Context) (string, error) {
	return c.callToggle(ctx, ToggleRepeatProcedure, "repeat")
}

func (c *Client) callToggle(ctx context.Context, procedure, field string) (string, error) {
	resp, err := c.toggle[procedure].CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetFields()[field].GetStringValue(), nil
}

// SetQueue replaces the queue and reports which ids were admitted.
func (c *Client) SetQueue(ctx context.Context, ids []track.ID, title string) (*AdmitMessage, error) {
	return c.callEdit(ctx, SetQueueProcedure, map[string]any{"ids": int64List(ids), "title": title})
}

// Append adds ids to the end of the queue and reports which were admitted.
func (c *Client) Append(ctx context.Context, ids []track.ID) (*AdmitMessage, error) {
	return c.callEdit(ctx, AppendProcedure, map[string]any{"ids": int64List(ids)})
}

func (c *Client) callEdit(ctx context.Context, procedure string, m map[string]any) (*AdmitMessage, error) {
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	resp, err := c.edit[procedure].CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	var res AdmitMessage
	if err := decodeStruct(resp.Msg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Swap moves the track at from to index to.
func (c *Client) Swap(ctx context.Context, from, to int) error {
	msg, err := structpb.NewStruct(map[string]any{"from": from, "to": to})
	if err != nil {
		return err
	}
	_, err = c.swap.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

// Seek moves the position within the current track.
func (c *Client) Seek(ctx context.Context, position time.Duration) error {
	msg, err := structpb.NewStruct(map[string]any{"position_ms": position.Milliseconds()})
	if err != nil {
		return err
	}
	_, err = c.seek.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || connect.CodeOf(err) == connect.CodeCanceled
}
