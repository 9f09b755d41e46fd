package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration. Values may be
// overridden per-run by CLI flags / environment variables (see cmd).
type Config struct {
	// SourceURL is the iCal feed to fetch and sanitize.
	SourceURL string `yaml:"source_url" json:"source_url"`

	// OutputPath is where the sanitized .ics artifact is written.
	OutputPath string `yaml:"output_path" json:"output_path"`

	// Timezone is the IANA zone all event timing is normalized into
	// (e.g. "Asia/Tokyo").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RetentionDays is the horizon behind "now" past which finished
	// events are omitted from the output.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// Summary / Description replace the source values on every event.
	Summary     string `yaml:"summary" json:"summary"`
	Description string `yaml:"description" json:"description"`

	// KeepLocation retains LOCATION instead of clearing it.
	KeepLocation bool `yaml:"keep_location" json:"keep_location"`

	// ForceAllDay converts every event to an all-day bar spanning the
	// dates it overlaps in the target timezone.
	ForceAllDay bool `yaml:"force_all_day" json:"force_all_day"`

	// MergeAdjacentStays replaces all events with merged all-day stay
	// intervals (overlapping or touching stays become one bar).
	MergeAdjacentStays bool `yaml:"merge_adjacent_stays" json:"merge_adjacent_stays"`

	// RefreshCron is a cron-style schedule for periodic runs
	// (e.g. "*/15 * * * *"). Ignored in -once mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Fetch behavior.
	FetchTimeoutSeconds float64 `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`
	FetchRetries        int     `yaml:"fetch_retries" json:"fetch_retries"`
	FetchBackoffSeconds float64 `yaml:"fetch_backoff_seconds" json:"fetch_backoff_seconds"`
	UserAgent           string  `yaml:"user_agent" json:"user_agent"`

	// CacheDir holds the per-URL ETag/Last-Modified fetch cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputPath:          "./output.ics",
		Timezone:            "Asia/Tokyo",
		RetentionDays:       365,
		Summary:             "Unavailable",
		Description:         "Unavailable",
		KeepLocation:        false,
		ForceAllDay:         false,
		MergeAdjacentStays:  false,
		RefreshCron:         "*/15 * * * *",
		FetchTimeoutSeconds: 10,
		FetchRetries:        3,
		FetchBackoffSeconds: 0.5,
		UserAgent:           "anoncal/1.0",
		CacheDir:            "./var/ics-cache",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.OutputPath == "" {
		c.OutputPath = d.OutputPath
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.Summary == "" {
		c.Summary = d.Summary
	}
	if c.Description == "" {
		c.Description = d.Description
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = d.FetchTimeoutSeconds
	}
	if c.FetchRetries <= 0 {
		c.FetchRetries = d.FetchRetries
	}
	if c.FetchBackoffSeconds <= 0 {
		c.FetchBackoffSeconds = d.FetchBackoffSeconds
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
}

// Validate checks values Normalize cannot default away.
func (c *Config) Validate() error {
	if c.SourceURL == "" {
		return errors.New("source URL is required (config source_url, --source, or SOURCE_CAL_URL)")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// FetchTimeout returns the per-attempt HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds * float64(time.Second))
}

// FetchBackoff returns the base backoff between retry attempts.
func (c *Config) FetchBackoff() time.Duration {
	return time.Duration(c.FetchBackoffSeconds * float64(time.Second))
}

// Location resolves the configured timezone. Call Validate first; this
// panics only on zones Validate would have rejected.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		panic(fmt.Sprintf("config: timezone %q not validated: %v", c.Timezone, err))
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, write a default config with 0600 perms
//     (creating the parent directory) and return the defaults.
//   - Otherwise read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename, 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".anoncal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}
