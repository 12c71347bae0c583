// Package config provides configuration loading from YAML or TOML files.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Advance modes.
const (
	AdvanceTimer  = "timer"  // The daemon completes tracks when their duration elapses
	AdvanceManual = "manual" // Tracks complete only on an explicit call
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Admin    AdminConfig             `yaml:"admin"`
	Queue    QueueConfig             `yaml:"queue"`
	Store    StoreConfig             `yaml:"store"`
	Library  LibraryConfig           `yaml:"library"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	MPRIS    MPRISConfig             `yaml:"mpris"`
	Log      LogConfig               `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// QueueConfig represents queue and transport configuration.
type QueueConfig struct {
	FallbackTitle      string `yaml:"fallback_title" default:"All Songs"`
	RestartThresholdMs int    `yaml:"restart_threshold_ms" default:"5000" validate:"gte=0"`
	Advance            string `yaml:"advance" default:"timer" validate:"oneof=timer manual"`
	SaveTimeoutMs      int    `yaml:"save_timeout_ms" default:"5000" validate:"gt=0"`
	LoadLibrary        bool   `yaml:"load_library"` // Start with every library track when nothing was restored
}

// StoreConfig selects the snapshot backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend" default:"sqlite" validate:"oneof=memory file sqlite postgres"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// LibraryConfig represents the song catalog configuration.
type LibraryConfig struct {
	Database    string   `yaml:"database"` // Empty means $XDG_DATA_HOME/playq/library.db
	ScanDirs    []string `yaml:"scan_dirs"`
	ScanOnStart bool     `yaml:"scan_on_start"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents messages returned for rejected ids.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"rejected"`
	TrackNotFound         string `yaml:"track_not_found" default:"track is not in the library"`
	CatalogUnavailable    string `yaml:"catalog_unavailable" default:"library lookup failed, try again"`
	DuplicateTrack        string `yaml:"duplicate_track" default:"track is already queued"`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"track length is outside the allowed range"`
}

// MPRISConfig represents the desktop media session configuration.
type MPRISConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name" default:"playq" validate:"required,alphanum"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output     string `yaml:"output" default:"stdout"` // "stdout", "stderr", or "file"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"50" validate:"gt=0"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	return finish(&cfg)
}

// finish applies environment overrides and defaults, then validates.
func finish(cfg *Config) (*Config, error) {
	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	cfg.expandPaths()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("PLAYQ_ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("PLAYQ_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("PLAYQ_DATABASE_URL"); v != "" {
		if c.Store.Settings == nil {
			c.Store.Settings = make(map[string]any)
		}
		c.Store.Settings["dsn"] = v
	}
}

// expandPaths expands ~ in path settings.
func (c *Config) expandPaths() {
	c.Library.Database = expandPath(c.Library.Database)
	for i, dir := range c.Library.ScanDirs {
		c.Library.ScanDirs[i] = expandPath(dir)
	}
	c.Log.File = expandPath(c.Log.File)
	if p, ok := c.Store.Settings["path"].(string); ok {
		c.Store.Settings["path"] = expandPath(p)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Log.Output == "file" && c.Log.File == "" {
		return errors.New("log.file is required when log.output is file")
	}
	return nil
}

// RestartThreshold returns queue.restart_threshold_ms as a duration.
func (c *Config) RestartThreshold() time.Duration {
	return time.Duration(c.Queue.RestartThresholdMs) * time.Millisecond
}

// SaveTimeout returns queue.save_timeout_ms as a duration.
func (c *Config) SaveTimeout() time.Duration {
	return time.Duration(c.Queue.SaveTimeoutMs) * time.Millisecond
}

// LibraryDatabase returns the catalog database path, defaulting to the XDG
// data directory.
func (c *Config) LibraryDatabase() (string, error) {
	if c.Library.Database != "" {
		return c.Library.Database, nil
	}
	path, err := xdg.DataFile(filepath.Join("playq", "library.db"))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve library path")
	}
	return path, nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetMessage returns the message for the given rejection code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "catalog_unavailable":
		return c.Messages.CatalogUnavailable
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	default:
		return c.Messages.DefaultError
	}
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
