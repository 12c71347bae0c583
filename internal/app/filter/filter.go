// Package filter provides the admission filter chain for ids added to the queue.
package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/playq/internal/domain/track"
)

// Source tells a filter which queue operation the ids arrived through.
type Source int

const (
	SourceSetQueue Source = iota // Ids replace the queue
	SourceAppend                 // Ids are appended to the queue
)

// String returns the string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceSetQueue:
		return "set_queue"
	case SourceAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Request represents one id to be admitted.
type Request struct {
	TrackID track.ID
	Track   *track.Track // Catalog record, nil when the id is unknown
	Err     error        // Catalog failure other than an unknown id
	Source  Source
	Batch   []track.ID // Ids admitted earlier in the same call
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "track_not_found", "duplicate_track"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for admission filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should run for ids from source.
	AppliesTo(source Source) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request) Result
}

// QueueReader exposes the ids currently queued.
type QueueReader interface {
	Queue() []track.ID
}

// Resolver looks up catalog records.
type Resolver interface {
	Resolve(ctx context.Context, id track.ID) (*track.Track, error)
}

// Deps are handed to filter factories.
type Deps struct {
	Queue   QueueReader
	Catalog Resolver
}

// Factory creates a filter.
type Factory func(deps Deps) Filter

// registration keeps the order filters were registered in.
type registration struct {
	name    string
	order   int
	factory Factory
}

// registry holds registered filter factories.
var registry = make(map[string]registration)

// Register registers a filter factory. Chains built by Build run filters in
// ascending order.
func Register(name string, order int, factory Factory) {
	registry[name] = registration{name: name, order: order, factory: factory}
}

// Names returns the registered filter names in chain order.
func Names() []string {
	regs := make([]registration, 0, len(registry))
	for _, r := range registry {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].order != regs[j].order {
			return regs[i].order < regs[j].order
		}
		return regs[i].name < regs[j].name
	})

	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.name
	}
	return names
}

// New creates the named filter.
func New(name string, deps Deps) (Filter, error) {
	r, ok := registry[name]
	if !ok {
		return nil, errors.Newf("unknown filter %q", name)
	}
	return r.factory(deps), nil
}

// decodeSettings decodes settings into out, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	// Decode map[string]any to struct using mapstructure
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	// Set defaults
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	// Validate using validator
	validate := validator.New()
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
