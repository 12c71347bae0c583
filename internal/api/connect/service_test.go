package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/playq/internal/app/session"
	"github.com/osa030/playq/internal/domain/track"
	"github.com/osa030/playq/internal/infra/config"
	"github.com/osa030/playq/internal/infra/store"
)

const testToken = "secret"

type fakeCatalog map[track.ID]*track.Track

func (c fakeCatalog) Resolve(_ context.Context, id track.ID) (*track.Track, error) {
	if t, ok := c[id]; ok {
		return t, nil
	}
	return nil, track.ErrNotFound
}

func (c fakeCatalog) IDs(context.Context) ([]track.ID, error) {
	return []track.ID{1, 2, 3}, nil
}

type fixture struct {
	client *Client
	public *Client
	sess   *session.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{}
	require.NoError(t, defaults.Set(cfg))
	cfg.Admin.Token = testToken
	cfg.Queue.Advance = config.AdvanceManual
	cfg.Filters = map[string]config.FilterConfig{
		"catalog_filter": {Enabled: true},
	}

	catalog := fakeCatalog{
		1: {ID: 1, Title: "One", Artist: "A", Duration: 3 * time.Minute},
		2: {ID: 2, Title: "Two", Artist: "B", Duration: 4 * time.Minute},
		3: {ID: 3, Path: "/music/Three.flac"},
	}
	sess, err := session.NewManager(cfg, catalog, store.New(store.NewMemoryKV()))
	require.NoError(t, err)
	require.NoError(t, sess.Start(context.Background()))

	mux := http.NewServeMux()
	path, handler := NewPlayerServiceHandler(NewPlayerService(sess), cfg.Admin.Token)
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(sess.Close)

	return &fixture{
		client: NewClient(srv.Client(), srv.URL, testToken),
		public: NewClient(srv.Client(), srv.URL, ""),
		sess:   sess,
	}
}

func TestPlayerService_AdminAuth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.public.Play(ctx)
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = f.public.SetQueue(ctx, []track.ID{1}, "")
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	// reads need no token
	_, err = f.public.GetStatus(ctx)
	assert.NoError(t, err)
}

func TestPlayerService_QueueRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.client.SetQueue(ctx, []track.ID{1, 42, 2}, "Evening")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, res.Accepted)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, RejectionMessage{TrackID: 42, Code: "track_not_found", Message: "track is not in the library"}, res.Rejected[0])

	res, err = f.client.Append(ctx, []track.ID{3})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, res.Accepted)
	assert.Empty(t, res.Rejected)

	require.NoError(t, f.client.Swap(ctx, 2, 0))
	require.NoError(t, f.client.PlayNext(ctx, 2))
	require.NoError(t, f.client.Remove(ctx, 1))

	st, err := f.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, st.Queue)
	assert.Equal(t, "Evening", st.Title)
	assert.False(t, st.HasCurrent)
	assert.Equal(t, "none", st.State)
	assert.Equal(t, "running", st.Phase)
	assert.Equal(t, f.sess.ID(), st.SessionID)
}

func TestPlayerService_RejectsNegativeIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.SetQueue(ctx, []track.ID{1, -1}, "")
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	_, err = f.client.Append(ctx, []track.ID{-7})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	err = f.client.PlayTrack(ctx, -1)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	st, err := f.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Queue)
}

func TestPlayerService_Transport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.client.Play(ctx)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = f.client.SetQueue(ctx, []track.ID{1, 2, 3}, "")
	require.NoError(t, err)
	require.NoError(t, f.client.Play(ctx))

	require.Eventually(t, func() bool {
		st, err := f.client.GetStatus(ctx)
		return err == nil && st.Track != nil && st.Track.Title == "One" && st.DurationMs == 180000
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.client.Seek(ctx, 90*time.Second))
	require.NoError(t, f.client.Pause(ctx))
	st, err := f.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "paused", st.State)
	assert.InDelta(t, 90000, st.PositionMs, 1000)
	assert.Equal(t, "1/3", st.Label)
	assert.Equal(t, "All Songs", st.Title)

	require.NoError(t, f.client.SkipNext(ctx))
	require.NoError(t, f.client.PlayTrack(ctx, 3))
	st, err = f.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.CurrentID)
	assert.Equal(t, "playing", st.State)

	require.NoError(t, f.client.TrackCompleted(ctx))
	require.NoError(t, f.client.SkipPrevious(ctx))
	require.NoError(t, f.client.Stop(ctx))

	repeat, err := f.client.ToggleRepeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "all", repeat)
	shuffle, err := f.client.ToggleShuffle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "all", shuffle)

	err = f.client.Swap(ctx, 0, 10)
	assert.Equal(t, connect.CodeOutOfRange, connect.CodeOf(err))
	err = f.client.Remove(ctx, 99)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	require.NoError(t, f.client.Clear(ctx))
	st, err = f.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Queue)
	assert.Equal(t, "stopped", st.State)
}

func TestPlayerService_Subscribe(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.client.SetQueue(ctx, []track.ID{1, 2}, "Mix")
	require.NoError(t, err)

	received := make(chan *NotificationMessage, 32)
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.public.Subscribe(ctx, func(n *NotificationMessage) error {
			received <- n
			return nil
		})
	}()

	initial := <-received
	assert.Equal(t, "initial", initial.Type)
	assert.Equal(t, []int64{1, 2}, initial.Queue)
	assert.Equal(t, "Mix", initial.Title)
	assert.Equal(t, "off", initial.Repeat)

	require.Eventually(t, func() bool {
		return f.sess.GetStatus().ListenerCount == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, f.client.Play(ctx))

	var trackMsg *NotificationMessage
	timeout := time.After(2 * time.Second)
	for trackMsg == nil {
		select {
		case n := <-received:
			assert.Greater(t, n.SequenceNo, initial.SequenceNo)
			if n.Type == "track" {
				trackMsg = n
			}
		case <-timeout:
			t.Fatal("no track notification")
		}
	}
	assert.Equal(t, int64(1), trackMsg.CurrentID)
	require.NotNil(t, trackMsg.Track)
	assert.Equal(t, "One", trackMsg.Track.Title)

	cancel()
	assert.NoError(t, <-errCh)
}
