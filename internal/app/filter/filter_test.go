package filter

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/playq/internal/domain/track"
)

var errCatalogBusy = errors.New("database is locked")

type mockCatalog map[track.ID]track.Track

func (m mockCatalog) Resolve(_ context.Context, id track.ID) (*track.Track, error) {
	t, ok := m[id]
	if !ok {
		return nil, errors.Wrapf(track.ErrNotFound, "id %s", id)
	}
	return &t, nil
}

// flakyCatalog fails every lookup of the ids in busy.
type flakyCatalog struct {
	mockCatalog
	busy map[track.ID]bool
}

func (f flakyCatalog) Resolve(ctx context.Context, id track.ID) (*track.Track, error) {
	if f.busy[id] {
		return nil, errCatalogBusy
	}
	return f.mockCatalog.Resolve(ctx, id)
}

type mockQueue []track.ID

func (m mockQueue) Queue() []track.ID {
	return append([]track.ID(nil), m...)
}

func testCatalog() mockCatalog {
	return mockCatalog{
		1: {ID: 1, Title: "Bohemian Rhapsody", Artist: "Queen", Duration: 6 * time.Minute},
		2: {ID: 2, Title: "Bohemian Rhapsody - 2011 Remaster", Artist: "Queen", Duration: 6 * time.Minute},
		3: {ID: 3, Title: "Bohemian Rhapsody", Artist: "Panic! at the Disco", Duration: 6 * time.Minute},
		4: {ID: 4, Title: "Interlude", Artist: "Queen", Duration: 30 * time.Second},
		5: {ID: 5, Title: "Epic", Artist: "Band", Duration: 20 * time.Minute},
		6: {ID: 6, Title: "Unknown length", Artist: "Band"},
	}
}

func TestCatalogFilter_Check(t *testing.T) {
	f := &CatalogFilter{}

	assert.True(t, f.Check(context.Background(), Request{TrackID: 1, Track: &track.Track{ID: 1}}).Accepted)

	result := f.Check(context.Background(), Request{TrackID: 99})
	assert.False(t, result.Accepted)
	assert.Equal(t, "track_not_found", result.Code)

	result = f.Check(context.Background(), Request{TrackID: 1, Err: errCatalogBusy})
	assert.False(t, result.Accepted)
	assert.Equal(t, "catalog_unavailable", result.Code)
}

func TestChain_AdmitCatalogFailure(t *testing.T) {
	catalog := flakyCatalog{mockCatalog: testCatalog(), busy: map[track.ID]bool{4: true}}
	chain, err := Build([]Spec{{Name: "catalog_filter"}}, Deps{Queue: mockQueue{}, Catalog: catalog})
	require.NoError(t, err)

	accepted, rejected := chain.Admit(context.Background(), SourceSetQueue, []track.ID{1, 4, 99})
	assert.Equal(t, []track.ID{1}, accepted)
	assert.Equal(t, []Rejection{
		{TrackID: 4, Code: "catalog_unavailable"},
		{TrackID: 99, Code: "track_not_found"},
	}, rejected)
}

func TestDuplicateTrackFilter_ExactIDMatch(t *testing.T) {
	tests := []struct {
		name         string
		queue        mockQueue
		batch        []track.ID
		source       Source
		id           track.ID
		wantAccepted bool
	}{
		{name: "append duplicate of queued", queue: mockQueue{1, 4}, source: SourceAppend, id: 4},
		{name: "append duplicate in batch", queue: mockQueue{}, batch: []track.ID{5}, source: SourceAppend, id: 5},
		{name: "append new id", queue: mockQueue{1, 4}, source: SourceAppend, id: 5, wantAccepted: true},
		{name: "set queue ignores old queue", queue: mockQueue{1, 4}, source: SourceSetQueue, id: 4, wantAccepted: true},
		{name: "set queue duplicate in batch", queue: mockQueue{}, batch: []track.ID{1, 4}, source: SourceSetQueue, id: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDuplicateTrackFilter(tt.queue, nil)
			require.NoError(t, f.ValidateConfig(nil))

			result := f.Check(context.Background(), Request{TrackID: tt.id, Source: tt.source, Batch: tt.batch})
			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "duplicate_track", result.Code)
			}
		})
	}
}

func TestDuplicateTrackFilter_RemasterDetection(t *testing.T) {
	catalog := testCatalog()

	tests := []struct {
		name          string
		matchVersions bool
		queued        track.ID
		requested     track.ID
		wantAccepted  bool
	}{
		{name: "remaster of queued track", matchVersions: true, queued: 1, requested: 2, wantAccepted: false},
		{name: "cover by another artist", matchVersions: true, queued: 1, requested: 3, wantAccepted: true},
		{name: "different song", matchVersions: true, queued: 1, requested: 4, wantAccepted: true},
		{name: "version matching disabled", matchVersions: false, queued: 1, requested: 2, wantAccepted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDuplicateTrackFilter(mockQueue{tt.queued}, catalog)
			require.NoError(t, f.ValidateConfig(map[string]any{"match_versions": tt.matchVersions}))

			requested := catalog[tt.requested]
			result := f.Check(context.Background(), Request{
				TrackID: tt.requested,
				Track:   &requested,
				Source:  SourceAppend,
			})
			assert.Equal(t, tt.wantAccepted, result.Accepted)
		})
	}
}

func TestNormalizeTrackName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bohemian Rhapsody - 2011 Remaster", "bohemian rhapsody"},
		{"Heroes (Remastered 2017)", "heroes"},
		{"Song [Remastered]", "song"},
		{"Song (Single Version)", "song"},
		{"Song (Radio Edit)", "song"},
		{"Song - Live", "song"},
		{"  Plain   Title  ", "plain title"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTrackName(tt.in))
		})
	}
}

func TestDurationLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name          string
		minMinutes    float64
		maxMinutes    float64
		trackDuration time.Duration
		shouldReject  bool
	}{
		{name: "Within limits", minMinutes: 2, maxMinutes: 5, trackDuration: 3 * time.Minute},
		{name: "Too short", minMinutes: 3, trackDuration: 2 * time.Minute, shouldReject: true},
		{name: "Too long", minMinutes: 1, maxMinutes: 5, trackDuration: 6 * time.Minute, shouldReject: true},
		{name: "Exact min", minMinutes: 3, trackDuration: 3 * time.Minute},
		{name: "Exact max", minMinutes: 1, maxMinutes: 5, trackDuration: 5 * time.Minute},
		{name: "Unknown length", minMinutes: 1, maxMinutes: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			f.config = &DurationLimitConfig{
				MinMinutes: tt.minMinutes,
				MaxMinutes: tt.maxMinutes,
			}

			result := f.Check(context.Background(), Request{
				Track:  &track.Track{Duration: tt.trackDuration},
				Source: SourceAppend,
			})

			if tt.shouldReject {
				assert.False(t, result.Accepted)
				assert.Equal(t, "duration_limit_exceeded", result.Code)
			} else {
				assert.True(t, result.Accepted)
			}
		})
	}
}

func TestDurationLimitFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{name: "Valid config", settings: map[string]any{"min_minutes": 2.5, "max_minutes": 5.0}},
		{name: "Valid integers", settings: map[string]any{"min_minutes": 2, "max_minutes": 5}},
		{name: "Strings from env", settings: map[string]any{"min_minutes": "1", "max_minutes": "10"}},
		{name: "Empty uses defaults", settings: nil},
		{name: "Negative max", settings: map[string]any{"max_minutes": -1}, wantErr: true},
		{name: "Min greater than max", settings: map[string]any{"min_minutes": 6, "max_minutes": 5}, wantErr: true},
		{name: "Not a number", settings: map[string]any{"min_minutes": "long"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDurationLimitFilter().ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilter_AppliesTo(t *testing.T) {
	tests := []struct {
		filter   Filter
		setQueue bool
		append   bool
	}{
		{filter: &CatalogFilter{}, setQueue: true, append: true},
		{filter: NewDuplicateTrackFilter(nil, nil), setQueue: true, append: true},
		{filter: NewDurationLimitFilter(), setQueue: false, append: true},
	}

	for _, tt := range tests {
		t.Run(tt.filter.Name(), func(t *testing.T) {
			assert.Equal(t, tt.setQueue, tt.filter.AppliesTo(SourceSetQueue))
			assert.Equal(t, tt.append, tt.filter.AppliesTo(SourceAppend))
			assert.NotEmpty(t, tt.filter.ReturnCodes())
			assert.NotEmpty(t, tt.filter.Description())
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"catalog_filter", "duplicate_track_filter", "duration_limit_filter"}, Names())
}

func TestBuild(t *testing.T) {
	deps := Deps{Queue: mockQueue{}, Catalog: testCatalog()}

	chain, err := Build([]Spec{
		{Name: "duration_limit_filter", Settings: map[string]any{"max_minutes": 10}},
		{Name: "catalog_filter"},
	}, deps)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, f := range chain.Filters() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"catalog_filter", "duration_limit_filter"}, names)

	_, err = Build([]Spec{{Name: "kicked_filter"}}, deps)
	assert.Error(t, err)

	_, err = Build([]Spec{{Name: "duration_limit_filter", Settings: map[string]any{"max_minutes": -3}}}, deps)
	assert.Error(t, err)
}

func TestChain_Admit(t *testing.T) {
	queue := mockQueue{1}
	deps := Deps{Queue: queue, Catalog: testCatalog()}

	chain, err := Build([]Spec{
		{Name: "catalog_filter"},
		{Name: "duplicate_track_filter"},
		{Name: "duration_limit_filter", Settings: map[string]any{"min_minutes": 1, "max_minutes": 10}},
	}, deps)
	require.NoError(t, err)

	ctx := context.Background()

	accepted, rejected := chain.Admit(ctx, SourceAppend, []track.ID{4, 99, 1, 3, 5, 3, 6})
	assert.Equal(t, []track.ID{3, 6}, accepted)
	assert.Equal(t, []Rejection{
		{TrackID: 4, Code: "duration_limit_exceeded"},
		{TrackID: 99, Code: "track_not_found"},
		{TrackID: 1, Code: "duplicate_track"},
		{TrackID: 5, Code: "duration_limit_exceeded"},
		{TrackID: 3, Code: "duplicate_track"},
	}, rejected)

	// a replacement queue skips the duration limit and the old queue
	accepted, rejected = chain.Admit(ctx, SourceSetQueue, []track.ID{1, 4, 5, 4})
	assert.Equal(t, []track.ID{1, 4, 5}, accepted)
	assert.Equal(t, []Rejection{{TrackID: 4, Code: "duplicate_track"}}, rejected)
}

func TestChain_EmptyAcceptsAll(t *testing.T) {
	chain := NewChain(nil)
	accepted, rejected := chain.Admit(context.Background(), SourceAppend, []track.ID{1, 1, 2})
	assert.Equal(t, []track.ID{1, 1, 2}, accepted)
	assert.Empty(t, rejected)
}
