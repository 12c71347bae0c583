package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playq/internal/domain/track"
)

// Rejection reports an id the chain refused.
type Rejection struct {
	TrackID track.ID
	Code    string
}

// Spec selects and configures one filter.
type Spec struct {
	Name     string
	Settings map[string]any
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
	catalog Resolver
}

// NewChain creates a new filter chain. catalog may be nil, in which case
// requests carry no track metadata.
func NewChain(catalog Resolver) *Chain {
	return &Chain{
		filters: make([]Filter, 0),
		catalog: catalog,
	}
}

// Build creates a chain holding the filters named in specs, in registration
// order.
func Build(specs []Spec, deps Deps) (*Chain, error) {
	byName := make(map[string]Spec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	chain := NewChain(deps.Catalog)
	for _, name := range Names() {
		spec, ok := byName[name]
		if !ok {
			continue
		}
		delete(byName, name)

		f, err := New(name, deps)
		if err != nil {
			return nil, err
		}
		if err := f.ValidateConfig(spec.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for %s", name)
		}
		chain.Add(f)
	}
	for name := range byName {
		return nil, errors.Newf("unknown filter %q", name)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
// Filters are only applied if they declare they apply to the request source.
func (c *Chain) Execute(ctx context.Context, req Request) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(req.Source) {
			continue
		}

		result := f.Check(ctx, req)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Admit runs every id through the chain and splits them into accepted ids,
// in their original order, and rejections.
func (c *Chain) Admit(ctx context.Context, source Source, ids []track.ID) ([]track.ID, []Rejection) {
	accepted := make([]track.ID, 0, len(ids))
	var rejected []Rejection

	for _, id := range ids {
		t, err := c.resolve(ctx, id)
		req := Request{
			TrackID: id,
			Track:   t,
			Err:     err,
			Source:  source,
			Batch:   accepted,
		}
		result := c.Execute(ctx, req)
		if !result.Accepted {
			zlog.Debug().Msgf("filter: rejected track=%s source=%s code=%s", id, source, result.Code)
			rejected = append(rejected, Rejection{TrackID: id, Code: result.Code})
			continue
		}
		accepted = append(accepted, id)
	}
	return accepted, rejected
}

// resolve returns the catalog record for id. An unknown id yields nil and
// no error.
func (c *Chain) resolve(ctx context.Context, id track.ID) (*track.Track, error) {
	if c.catalog == nil {
		return nil, nil
	}
	t, err := c.catalog.Resolve(ctx, id)
	switch {
	case errors.Is(err, track.ErrNotFound):
		return nil, nil
	case err != nil:
		zlog.Warn().Err(err).Msgf("filter: failed to resolve track=%s", id)
		return nil, err
	}
	return t, nil
}
