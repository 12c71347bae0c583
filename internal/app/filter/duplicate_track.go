package filter

import (
	"context"
	"regexp"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playq/internal/domain/track"
)

// DuplicateTrackConfig represents the configuration for DuplicateTrackFilter.
type DuplicateTrackConfig struct {
	// MatchVersions also rejects remasters and alternate versions of a queued
	// track by the same artist. Needs a catalog lookup per queued id.
	MatchVersions bool `yaml:"match_versions" mapstructure:"match_versions" default:"false"`
}

// DuplicateTrackFilter checks for duplicate tracks in the queue.
// Detects:
// - Exact id matches
// - Remasters (normalized title + same artist), when enabled
// Excludes:
// - Cover songs (same title but different artist)
type DuplicateTrackFilter struct {
	queue   QueueReader
	catalog Resolver
	config  DuplicateTrackConfig
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter(queue QueueReader, catalog Resolver) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{
		queue:   queue,
		catalog: catalog,
	}
}

func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already in the queue (including remasters); covers by other artists are allowed"
}

func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	var config DuplicateTrackConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	zlog.Info().Msgf("duplicate track filter config: %+v", config)
	return nil
}

func (f *DuplicateTrackFilter) AppliesTo(Source) bool {
	return true
}

// Check checks if the track is a duplicate of a queued id or of an id
// admitted earlier in the same batch. A new queue only competes with its own
// batch.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request) Result {
	candidates := req.Batch
	if req.Source == SourceAppend && f.queue != nil {
		candidates = append(f.queue.Queue(), req.Batch...)
	}

	for _, id := range candidates {
		// 1. Exact id match
		if id == req.TrackID {
			return Reject("duplicate_track")
		}
	}

	if !f.config.MatchVersions || req.Track == nil || f.catalog == nil {
		return Accept()
	}

	for _, id := range candidates {
		queued, err := f.catalog.Resolve(ctx, id)
		if err != nil {
			continue
		}
		// 2. Remaster detection: normalized title + same artist
		if isRemaster(*queued, *req.Track) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

// isRemaster checks if two tracks are the same song (remaster/different version).
// Returns true if:
// - Normalized titles match
// - Artist is the same
func isRemaster(track1, track2 track.Track) bool {
	name1 := normalizeTrackName(track1.DisplayTitle())
	name2 := normalizeTrackName(track2.DisplayTitle())

	// If normalized names don't match, they're different songs
	if name1 != name2 {
		return false
	}

	// Same normalized name - check if same artist
	// If different artists, it's a cover song (allowed)
	return isSameArtist(track1, track2)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),             // "- Live"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = whitespace.ReplaceAllString(normalized, " ")

	// Remove trailing dashes
	return strings.TrimRight(normalized, " -")
}

// isSameArtist compares artists case-insensitively. Unknown artists never match.
func isSameArtist(track1, track2 track.Track) bool {
	if track1.Artist == "" || track2.Artist == "" {
		return false
	}
	return strings.EqualFold(track1.Artist, track2.Artist)
}

func init() {
	Register("duplicate_track_filter", 20, func(deps Deps) Filter {
		return NewDuplicateTrackFilter(deps.Queue, deps.Catalog)
	})
}
