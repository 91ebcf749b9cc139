// Package config loads and validates the quietpage configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete quietpage configuration.
type Config struct {
	// Title is the site title used in rendered pages.
	Title string `yaml:"title"`

	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// DataPath is the root data directory. Pages, the search index and
	// logs all live underneath it.
	DataPath string `yaml:"data_path"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// ReindexInterval is how often a full reindex runs regardless of
	// filesystem activity. Accepts Go duration strings ("30m", "1h").
	ReindexInterval Duration `yaml:"reindex_interval"`

	// SearchLimit is the maximum number of search hits returned.
	SearchLimit int `yaml:"search_limit"`

	// PageCacheSize is the number of rendered pages kept in memory.
	PageCacheSize int `yaml:"page_cache_size"`
}

// Duration wraps time.Duration with YAML duration-string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default configuration values.
const (
	DefaultTitle           = "Welcome"
	DefaultPort            = 4000
	DefaultLogLevel        = "info"
	DefaultReindexInterval = 30 * time.Minute
	DefaultSearchLimit     = 10
	DefaultPageCacheSize   = 256
)

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Title:           DefaultTitle,
		Port:            DefaultPort,
		DataPath:        defaultDataPath(),
		LogLevel:        DefaultLogLevel,
		ReindexInterval: Duration(DefaultReindexInterval),
		SearchLimit:     DefaultSearchLimit,
		PageCacheSize:   DefaultPageCacheSize,
	}
}

// DefaultPath returns the default config file location
// (<user-config-dir>/quietpage/config.yaml).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("config", "config.yaml")
	}
	return filepath.Join(dir, "quietpage", "config.yaml")
}

// defaultDataPath returns the default data directory.
func defaultDataPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(dir, "quietpage")
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist. A malformed file is an error; a missing one is not.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("config file not found, using defaults",
				slog.String("path", path))
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ReindexInterval.Std() <= 0 {
		return fmt.Errorf("reindex_interval must be positive")
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("search_limit must be positive")
	}
	if c.PageCacheSize <= 0 {
		return fmt.Errorf("page_cache_size must be positive")
	}
	return nil
}

// PagesPath is the directory holding the markdown pages.
func (c *Config) PagesPath() string {
	return filepath.Join(c.DataPath, "pages")
}

// SearchPath is the root directory of the search index slots.
func (c *Config) SearchPath() string {
	return filepath.Join(c.DataPath, "search")
}

// LogsPath is the directory holding log files.
func (c *Config) LogsPath() string {
	return filepath.Join(c.DataPath, "logs")
}

// AssetsPath is the directory holding static assets.
func (c *Config) AssetsPath() string {
	return filepath.Join(c.DataPath, "assets")
}
