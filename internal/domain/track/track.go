// Package track provides the Track domain entity.
package track

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by catalogs for an id they do not hold.
var ErrNotFound = errors.New("track not found")

// ID identifies a playable track. Library ids are positive; negative values
// are reserved.
type ID int64

// String returns the decimal form of the id.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Track represents static track metadata resolved from the library.
type Track struct {
	ID       ID            // Library row id
	Title    string        // Track title
	Artist   string        // Artist name
	Album    string        // Album name
	Duration time.Duration // Track duration
	Path     string        // Absolute file path
}

// DisplayTitle returns the title, falling back to the file name.
func (t *Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	name := t.Path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

// ParseID parses a single id. Negative ids are rejected.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid track id %q", s)
	}
	if v < 0 {
		return 0, errors.Newf("invalid track id %q: must not be negative", s)
	}
	return ID(v), nil
}

// ParseIDs parses a comma or whitespace separated list of ids.
func ParseIDs(s string) ([]ID, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]ID, 0, len(fields))
	for _, f := range fields {
		id, err := ParseID(f)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IndexOf returns the index of the first occurrence of id, or -1.
func IndexOf(ids []ID, id ID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
