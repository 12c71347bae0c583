package filter

import (
	"context"
)

// CatalogFilter rejects ids the song catalog does not know, and ids it could
// not look up.
type CatalogFilter struct{}

func (f *CatalogFilter) Name() string {
	return "catalog_filter"
}

func (f *CatalogFilter) Description() string {
	return "Rejects ids that are not in the library"
}

func (f *CatalogFilter) ReturnCodes() []string {
	return []string{"track_not_found", "catalog_unavailable"}
}

func (f *CatalogFilter) ValidateConfig(map[string]any) error {
	// No configuration needed
	return nil
}

func (f *CatalogFilter) AppliesTo(Source) bool {
	return true
}

func (f *CatalogFilter) Check(_ context.Context, req Request) Result {
	if req.Err != nil {
		return Reject("catalog_unavailable")
	}
	if req.Track == nil {
		return Reject("track_not_found")
	}
	return Accept()
}

func init() {
	Register("catalog_filter", 10, func(Deps) Filter {
		return &CatalogFilter{}
	})
}
