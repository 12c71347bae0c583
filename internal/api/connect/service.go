// Package connect provides the Connect RPC service and client.
package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/playq/internal/app/notification"
	"github.com/osa030/playq/internal/app/playback"
	"github.com/osa030/playq/internal/app/session"
	"github.com/osa030/playq/internal/domain/track"
)

// PlayerServiceName is the fully-qualified name of the player service.
const PlayerServiceName = "playq.v1.PlayerService"

// Procedure paths of the player service.
const (
	GetStatusProcedure      = "/" + PlayerServiceName + "/GetStatus"
	SubscribeProcedure      = "/" + PlayerServiceName + "/Subscribe"
	PlayProcedure           = "/" + PlayerServiceName + "/Play"
	PauseProcedure          = "/" + PlayerServiceName + "/Pause"
	StopProcedure           = "/" + PlayerServiceName + "/Stop"
	SkipNextProcedure       = "/" + PlayerServiceName + "/SkipNext"
	SkipPreviousProcedure   = "/" + PlayerServiceName + "/SkipPrevious"
	TrackCompletedProcedure = "/" + PlayerServiceName + "/TrackCompleted"
	ToggleShuffleProcedure  = "/" + PlayerServiceName + "/ToggleShuffle"
	ToggleRepeatProcedure   = "/" + PlayerServiceName + "/ToggleRepeat"
	SetQueueProcedure       = "/" + PlayerServiceName + "/SetQueue"
	AppendProcedure         = "/" + PlayerServiceName + "/Append"
	PlayNextProcedure       = "/" + PlayerServiceName + "/PlayNext"
	RemoveProcedure         = "/" + PlayerServiceName + "/Remove"
	PlayTrackProcedure      = "/" + PlayerServiceName + "/PlayTrack"
	SwapProcedure           = "/" + PlayerServiceName + "/Swap"
	ClearProcedure          = "/" + PlayerServiceName + "/Clear"
	SeekProcedure           = "/" + PlayerServiceName + "/Seek"
)

// PlayerService implements the player RPCs on top of a session.
type PlayerService struct {
	session *session.Manager
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(session *session.Manager) *PlayerService {
	return &PlayerService{session: session}
}

// NewPlayerServiceHandler builds an HTTP handler serving every procedure of
// svc. Mutating procedures require adminToken in the X-Admin-Token header.
// It returns the path prefix to mount the handler on.
func NewPlayerServiceHandler(svc *PlayerService, adminToken string, opts ...connect.HandlerOption) (string, http.Handler) {
	adminOpts := append([]connect.HandlerOption{
		connect.WithInterceptors(NewAdminAuthInterceptor(adminToken)),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))

	for procedure, fn := range map[string]func() error{
		PlayProcedure:           svc.session.Play,
		PauseProcedure:          svc.session.Pause,
		StopProcedure:           svc.session.Stop,
		SkipNextProcedure:       svc.session.SkipNext,
		SkipPreviousProcedure:   svc.session.SkipPrevious,
		TrackCompletedProcedure: svc.session.TrackCompleted,
		ClearProcedure:          svc.session.Clear,
	} {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, emptyHandler(fn), adminOpts...))
	}

	for procedure, fn := range map[string]func(track.ID) error{
		PlayNextProcedure:  svc.session.PlayNext,
		RemoveProcedure:    svc.session.Remove,
		PlayTrackProcedure: svc.session.PlayTrack,
	} {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, idHandler(fn), adminOpts...))
	}

	mux.Handle(ToggleShuffleProcedure, connect.NewUnaryHandler(ToggleShuffleProcedure, svc.ToggleShuffle, adminOpts...))
	mux.Handle(ToggleRepeatProcedure, connect.NewUnaryHandler(ToggleRepeatProcedure, svc.ToggleRepeat, adminOpts...))
	mux.Handle(SetQueueProcedure, connect.NewUnaryHandler(SetQueueProcedure, svc.SetQueue, adminOpts...))
	mux.Handle(AppendProcedure, connect.NewUnaryHandler(AppendProcedure, svc.Append, adminOpts...))
	mux.Handle(SwapProcedure, connect.NewUnaryHandler(SwapProcedure, svc.Swap, adminOpts...))
	mux.Handle(SeekProcedure, connect.NewUnaryHandler(SeekProcedure, svc.Seek, adminOpts...))

	return "/" + PlayerServiceName + "/", mux
}

func emptyHandler(fn func() error) func(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return func(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
		if err := fn(); err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(&emptypb.Empty{}), nil
	}
}

func idHandler(fn func(track.ID) error) func(context.Context, *connect.Request[wrapperspb.Int64Value]) (*connect.Response[emptypb.Empty], error) {
	return func(_ context.Context, req *connect.Request[wrapperspb.Int64Value]) (*connect.Response[emptypb.Empty], error) {
		ids, err := trackIDs([]int64{req.Msg.GetValue()})
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		if err := fn(ids[0]); err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(&emptypb.Empty{}), nil
	}
}

// GetStatus returns the current queue and playback state.
func (s *PlayerService) GetStatus(
	_ context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	msg, err := statusToStruct(s.session.GetStatus())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Subscribe streams the full state followed by every change until the
// client goes away or the session closes.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	adapter := &notificationStreamAdapter{stream: stream}
	subscriptionID, err := s.session.Subscribe(adapter)
	if err != nil {
		return toConnectError(err)
	}
	zlog.Debug().Msgf("subscribe: stream opened id=%s", subscriptionID)

	// Wait for context cancellation, session end, or the stream being
	// dropped as too slow
	select {
	case <-ctx.Done():
	case <-s.session.Done():
	case <-s.session.SubscriptionGone(subscriptionID):
	}

	// Unsubscribe when done
	s.session.Unsubscribe(subscriptionID)
	adapter.close()
	zlog.Debug().Msgf("subscribe: stream closed id=%s", subscriptionID)
	return nil
}

// ToggleShuffle flips the shuffle mode.
func (s *PlayerService) ToggleShuffle(
	_ context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	mode, err := s.session.ToggleShuffle()
	if err != nil {
		return nil, toConnectError(err)
	}
	return structResponse(map[string]any{"shuffle": mode.String()})
}

// ToggleRepeat cycles the repeat mode.
func (s *PlayerService) ToggleRepeat(
	_ context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	mode, err := s.session.ToggleRepeat()
	if err != nil {
		return nil, toConnectError(err)
	}
	return structResponse(map[string]any{"repeat": mode.String()})
}

// SetQueue replaces the queue.
func (s *PlayerService) SetQueue(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var edit queueEdit
	if err := decodeStruct(req.Msg, &edit); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	ids, err := trackIDs(edit.IDs)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	res, err := s.session.SetQueue(ctx, ids, edit.Title)
	if err != nil {
		return nil, toConnectError(err)
	}
	return admitResponse(res)
}

// Append adds ids to the end of the queue.
func (s *PlayerService) Append(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var edit queueEdit
	if err := decodeStruct(req.Msg, &edit); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if len(edit.IDs) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("ids is required"))
	}
	ids, err := trackIDs(edit.IDs)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	res, err := s.session.Append(ctx, ids)
	if err != nil {
		return nil, toConnectError(err)
	}
	return admitResponse(res)
}

// Swap moves a track to another index.
func (s *PlayerService) Swap(
	_ context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var in swapRequest
	if err := decodeStruct(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if in.From == nil || in.To == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("from and to are required"))
	}
	if err := s.session.Swap(*in.From, *in.To); err != nil {
		if errors.Is(err, playback.ErrNotQueued) {
			return nil, connect.NewError(connect.CodeOutOfRange, err)
		}
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Seek moves the position within the current track.
func (s *PlayerService) Seek(
	_ context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var in seekRequest
	if err := decodeStruct(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if in.PositionMs == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("position_ms is required"))
	}
	if err := s.session.Seek(time.Duration(*in.PositionMs) * time.Millisecond); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func structResponse(m map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func admitResponse(res *session.AdmitResult) (*connect.Response[structpb.Struct], error) {
	msg, err := admitToStruct(res)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// toConnectError maps session and playback errors onto Connect codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotRunning), errors.Is(err, playback.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, playback.ErrNotQueued):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, playback.ErrQueueEmpty),
		errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, playback.ErrNotPlaying):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
	closed bool
}

var errStreamClosed = errors.New("stream closed")

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	msg, err := notificationToStruct(n)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errStreamClosed
	}
	return a.stream.Send(msg)
}

func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
