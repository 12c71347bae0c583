package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
)

// FileConfig holds settings for the file backend.
type FileConfig struct {
	Path string `mapstructure:"path"` // Empty means $XDG_DATA_HOME/playq/state.json
}

// FileKV stores all keys in a single JSON document. Writes go to a temp file
// that is renamed over the document, so a crash never leaves it half written.
type FileKV struct {
	mu   sync.Mutex
	path string
}

// NewFileKV creates a file backend at path, creating parent directories.
func NewFileKV(path string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory")
	}
	return &FileKV{path: path}, nil
}

// Path returns the document path.
func (f *FileKV) Path() string {
	return f.path
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.readLocked()
	if err != nil {
		return nil, err
	}
	v, ok := doc[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

func (f *FileKV) PutAll(_ context.Context, entries map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.readLocked()
	if err != nil {
		// an unreadable document is replaced
		doc = make(map[string]string)
	}
	for k, v := range entries {
		doc[k] = string(v)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode state document")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.Wrap(err, "failed to replace state document")
	}
	return nil
}

func (f *FileKV) Close() error {
	return nil
}

func (f *FileKV) readLocked() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read state document")
	}

	doc := make(map[string]string)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse state document")
	}
	return doc, nil
}

func init() {
	Register("file", func(settings map[string]any) (KV, error) {
		var cfg FileConfig
		if err := decodeSettings(settings, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			path, err := xdg.DataFile(filepath.Join("playq", "state.json"))
			if err != nil {
				return nil, errors.Wrap(err, "failed to resolve data path")
			}
			cfg.Path = path
		}
		return NewFileKV(cfg.Path)
	})
}
