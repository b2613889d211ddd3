package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"bibleclock/internal/model"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds the offline dataset: bible_kjv.json, book_summaries.json
	// and the optional biblical events calendar.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// OutputDir receives render artifacts (screen.html, preview.png,
	// frame.bin).
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Timezone is the IANA zone the clock maps to verses. Empty uses the
	// system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Mode is the startup display mode: "time", "date" or "random".
	Mode string `yaml:"mode" json:"mode"`

	// Translation is the startup primary translation code.
	Translation string `yaml:"translation" json:"translation"`

	// SecondaryTranslation enables parallel display when set.
	SecondaryTranslation string `yaml:"secondary_translation" json:"secondary_translation"`

	// TimeFormat is the hour-to-chapter mapping, "24" (default) or "12".
	TimeFormat string `yaml:"time_format" json:"time_format"`

	// APIURL is the verse API base URL; empty selects the public endpoint.
	APIURL string `yaml:"api_url" json:"api_url"`

	// APITimeoutSec bounds one verse API request.
	APITimeoutSec int `yaml:"api_timeout_sec" json:"api_timeout_sec"`

	// APIRetries is the number of attempts per verse API fetch.
	APIRetries int `yaml:"api_retries" json:"api_retries"`

	// OfflineOnly skips the remote API entirely and serves the bundled KJV.
	OfflineOnly bool `yaml:"offline_only" json:"offline_only"`

	// CacheTTLMinutes and CacheEntries size the verse cache.
	CacheTTLMinutes int `yaml:"cache_ttl_minutes" json:"cache_ttl_minutes"`
	CacheEntries    int `yaml:"cache_entries" json:"cache_entries"`

	// RotationDays is how many days the book-of-the-day rotation dwells on
	// one book.
	RotationDays int `yaml:"rotation_days" json:"rotation_days"`

	// RotationEpoch anchors the rotation, as YYYY-MM-DD. Empty keeps the
	// built-in epoch. Changing it shifts which book each date lands on.
	RotationEpoch string `yaml:"rotation_epoch" json:"rotation_epoch"`

	// EventsFile is an optional JSON calendar overlaying the built-in
	// biblical events. Empty selects <data_dir>/biblical_events_calendar.json
	// when that file exists.
	EventsFile string `yaml:"events_file" json:"events_file"`

	// EventsICS is an optional ICS calendar layered on top of the JSON
	// events.
	EventsICS string `yaml:"events_ics" json:"events_ics"`

	// Cron schedules. Empty fields keep the defaults: a tick every minute,
	// a cache-bypassing refresh on the hour, a health line every five
	// minutes and maintenance at 03:00.
	RefreshCron     string `yaml:"refresh" json:"refresh"`
	FullRefreshCron string `yaml:"full_refresh" json:"full_refresh"`
	HealthCron      string `yaml:"health" json:"health"`
	MaintenanceCron string `yaml:"maintenance" json:"maintenance"`

	// Render geometry and quantization.
	RenderWidth       int `yaml:"render_width" json:"render_width"`
	RenderHeight      int `yaml:"render_height" json:"render_height"`
	RenderThreshold   int `yaml:"render_threshold" json:"render_threshold"`
	CaptureTimeoutSec int `yaml:"capture_timeout_sec" json:"capture_timeout_sec"`

	// Simulation swaps the Chromium render pipeline for plain file output.
	Simulation bool `yaml:"simulation" json:"simulation"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Debug lowers the log level to debug.
	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		DataDir:         "./data",
		OutputDir:       "./out",
		Mode:            "time",
		Translation:     string(model.TranslationKJV),
		TimeFormat:      "24",
		APITimeoutSec:   10,
		APIRetries:      3,
		CacheTTLMinutes: 60,
		CacheEntries:    500,
		RotationDays:    1,
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.OutputDir == "" {
		c.OutputDir = "./out"
	}
	if _, err := model.ParseMode(c.Mode); err != nil {
		c.Mode = "time"
	}
	if _, err := model.ParseTranslation(c.Translation); err != nil {
		c.Translation = string(model.TranslationKJV)
	}
	if c.SecondaryTranslation != "" {
		if _, err := model.ParseTranslation(c.SecondaryTranslation); err != nil {
			c.SecondaryTranslation = ""
		}
	}
	if _, err := model.ParseTimeFormat(c.TimeFormat); err != nil {
		c.TimeFormat = "24"
	}
	if c.APITimeoutSec <= 0 {
		c.APITimeoutSec = 10
	}
	if c.APIRetries <= 0 {
		c.APIRetries = 3
	}
	if c.CacheTTLMinutes <= 0 {
		c.CacheTTLMinutes = 60
	}
	if c.CacheEntries <= 0 {
		c.CacheEntries = 500
	}
	if c.RotationDays <= 0 {
		c.RotationDays = 1
	}
	if c.RotationEpoch != "" {
		if _, err := time.Parse("2006-01-02", c.RotationEpoch); err != nil {
			c.RotationEpoch = ""
		}
	}
	if c.RenderWidth <= 0 || c.RenderHeight <= 0 {
		c.RenderWidth = 800
		c.RenderHeight = 480
	}
	if c.RenderThreshold <= 0 || c.RenderThreshold > 255 {
		c.RenderThreshold = 128
	}
	if c.CaptureTimeoutSec <= 0 {
		c.CaptureTimeoutSec = 30
	}
}

// ApplyEnv overlays environment variables onto the config, so an appliance
// image can be steered without editing the YAML:
//
//	BIBLE_API_URL        verse API base URL
//	DEFAULT_TRANSLATION  startup translation code
//	REQUEST_TIMEOUT      verse API timeout in seconds
//	BIBLE_CLOCK_LISTEN   HTTP listen address
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BIBLE_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("DEFAULT_TRANSLATION"); v != "" {
		if _, err := model.ParseTranslation(v); err == nil {
			c.Translation = v
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.APITimeoutSec = sec
		}
	}
	if v := os.Getenv("BIBLE_CLOCK_LISTEN"); v != "" {
		c.Listen = v
	}
}

// APITimeout returns the configured verse API timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSec) * time.Second
}

// CacheTTL returns the configured cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// RotationEpochTime parses RotationEpoch, reporting whether an override is
// set. Normalize clears unparsable values, so a false here means "use the
// built-in epoch".
func (c *Config) RotationEpochTime() (time.Time, bool) {
	if c.RotationEpoch == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", c.RotationEpoch)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CaptureTimeout returns the configured Chromium capture bound.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutSec) * time.Second
}

// Location resolves the configured timezone, falling back to the system
// zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Settings converts the startup fields into typed model values. Normalize
// must have run first, so parsing cannot fail here.
func (c *Config) Settings() (mode model.Mode, translation, secondary model.Translation, format model.TimeFormat) {
	mode, _ = model.ParseMode(c.Mode)
	translation, _ = model.ParseTranslation(c.Translation)
	if c.SecondaryTranslation != "" {
		secondary, _ = model.ParseTranslation(c.SecondaryTranslation)
	}
	format, _ = model.ParseTimeFormat(c.TimeFormat)
	return mode, translation, secondary, format
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory, write a
//     default config with 0600 perms and return the defaults.
//   - If the file exists: read, unmarshal and normalize.
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
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
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

	tmp, err := os.CreateTemp(dir, ".bibleclock-config-*.tmp")
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
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
