package library

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playq/internal/domain/track"
)

// ScanStats summarizes a scan.
type ScanStats struct {
	Added     int
	Updated   int
	Removed   int
	Unchanged int
}

// fileInfo holds information about a discovered music file.
type fileInfo struct {
	path  string
	mtime int64
}

// Scan walks the given roots, reads tags of new or modified music files and
// stores them. Tracks under a root whose file disappeared are removed.
func (l *Library) Scan(ctx context.Context, roots ...string) (*ScanStats, error) {
	stats := &ScanStats{}

	files, discovered := discoverFiles(roots)

	existing, err := l.existingMtimes(ctx, roots)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, l.db, func(tx *sql.Tx) error {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}

			mtime, known := existing[f.path]
			if known && mtime == f.mtime {
				stats.Unchanged++
				continue
			}

			t := readTrack(f.path)
			if _, err := upsertTx(ctx, tx, t, f.mtime); err != nil {
				return err
			}
			if known {
				stats.Updated++
			} else {
				stats.Added++
			}
		}

		// Clean up deleted files
		for path := range existing {
			if _, ok := discovered[path]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM library_tracks WHERE path = ?`, path); err != nil {
				return errors.Wrapf(err, "failed to remove %s", path)
			}
			stats.Removed++
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "library scan failed")
	}

	zlog.Info().Msgf("library: scan done: added=%d updated=%d removed=%d unchanged=%d",
		stats.Added, stats.Updated, stats.Removed, stats.Unchanged)
	return stats, nil
}

// existingMtimes returns path -> mtime for tracks stored under roots.
func (l *Library) existingMtimes(ctx context.Context, roots []string) (map[string]int64, error) {
	result := make(map[string]int64)
	for _, root := range roots {
		prefix := strings.TrimRight(filepath.Clean(root), string(filepath.Separator)) + string(filepath.Separator)
		rows, err := l.db.QueryContext(ctx, `
			SELECT path, mtime FROM library_tracks WHERE substr(path, 1, ?) = ?
		`, len(prefix), prefix)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list existing tracks")
		}
		for rows.Next() {
			var (
				path  string
				mtime int64
			)
			if err := rows.Scan(&path, &mtime); err != nil {
				rows.Close()
				return nil, err
			}
			result[path] = mtime
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// discoverFiles walks the roots and returns all music files found.
func discoverFiles(roots []string) (files []fileInfo, discovered map[string]struct{}) {
	discovered = make(map[string]struct{})
	for _, root := range roots {
		_ = filepath.WalkDir(filepath.Clean(root), func(path string, d os.DirEntry, walkErr error) error {
			// Skip any walk errors - intentionally continuing to scan other paths
			if walkErr != nil {
				return nil //nolint:nilerr // intentionally skipping errors
			}
			if d.IsDir() || !IsMusicFile(path) {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				return nil //nolint:nilerr // intentionally skipping errors
			}
			if _, seen := discovered[path]; seen {
				return nil
			}

			discovered[path] = struct{}{}
			files = append(files, fileInfo{path: path, mtime: info.ModTime().UnixNano()})
			return nil
		})
	}
	return files, discovered
}

// readTrack builds a catalog record for path. Unreadable tags fall back to
// the file name.
func readTrack(path string) track.Track {
	t := track.Track{Path: path}

	info, err := ReadTags(path)
	if err != nil {
		zlog.Debug().Err(err).Msgf("library: no tags for %s", path)
	} else {
		t.Title = info.Title
		t.Artist = info.Artist
		t.Album = info.Album
	}
	if t.Title == "" {
		t.Title = t.DisplayTitle()
	}

	if d, err := ProbeDuration(path); err == nil {
		t.Duration = d
	}
	return t
}
