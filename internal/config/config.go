package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "LABORCAL_"

// FeedConfig describes a single ICS exception feed (holidays, absences).
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup, caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// OwnerID attaches every event of the feed to one worker. Empty means
	// the feed applies to everybody (e.g. public holidays).
	OwnerID string `yaml:"owner_id,omitempty" json:"owner_id,omitempty"`
	// Color overrides the exception colour for this feed.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// Colors are the fallback colours of projected events.
type Colors struct {
	Schedule  string `yaml:"schedule" json:"schedule"`
	Exception string `yaml:"exception" json:"exception"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone on which schedule times are placed
	// (e.g. "America/Bogota").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for reloading the snapshot and the exception feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how far ahead feeds are expanded and the default
	// length of the -once window.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// DataPath is the snapshot file (schedules, exceptions, appointments).
	DataPath string `yaml:"data_path" json:"data_path"`

	// CacheDir keeps fetched ICS bodies and their validators.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Environment is "production" or anything else (development).
	Environment string `yaml:"environment" json:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BufferMinutes is the gap kept around every booked appointment.
	// Zero is allowed and means plain non-overlap.
	BufferMinutes int `yaml:"buffer_minutes" json:"buffer_minutes"`

	// LeadTimeMinutes is the minimum notice for a new appointment.
	LeadTimeMinutes int `yaml:"lead_time_minutes" json:"lead_time_minutes"`

	// MaxWindowDays caps the calendar window a caller may request.
	MaxWindowDays int `yaml:"max_window_days" json:"max_window_days"`

	// OverlayPolicy is "annotate" or "replace".
	OverlayPolicy string `yaml:"overlay_policy" json:"overlay_policy"`

	// Workers bounds parallel expansion. 1 expands sequentially.
	Workers int `yaml:"workers" json:"workers"`

	Colors Colors `yaml:"colors" json:"colors"`

	// Feeds is the list of subscribed exception feeds.
	Feeds []FeedConfig `yaml:"exception_feeds" json:"exception_feeds"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "America/Bogota",
		RefreshCron:     "*/15 * * * *",
		HorizonDays:     30,
		DataPath:        "data/snapshot.yaml",
		CacheDir:        "cache",
		Environment:     "development",
		LogLevel:        "info",
		BufferMinutes:   60,
		LeadTimeMinutes: 60,
		MaxWindowDays:   400,
		OverlayPolicy:   "annotate",
		Workers:         4,
		Colors: Colors{
			Schedule:  "#3788d8",
			Exception: "#f59e0b",
		},
		Feeds: []FeedConfig{},
	}
}

// Normalize fills in missing or out-of-range values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.DataPath == "" {
		c.DataPath = def.DataPath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Environment == "" {
		c.Environment = def.Environment
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.BufferMinutes < 0 {
		c.BufferMinutes = def.BufferMinutes
	}
	if c.LeadTimeMinutes <= 0 {
		c.LeadTimeMinutes = def.LeadTimeMinutes
	}
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = def.MaxWindowDays
	}
	switch strings.ToLower(c.OverlayPolicy) {
	case "annotate", "replace":
		c.OverlayPolicy = strings.ToLower(c.OverlayPolicy)
	default:
		// Unknown value; annotate never hides data.
		c.OverlayPolicy = def.OverlayPolicy
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Colors.Schedule == "" {
		c.Colors.Schedule = def.Colors.Schedule
	}
	if c.Colors.Exception == "" {
		c.Colors.Exception = def.Colors.Exception
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LeadTime is LeadTimeMinutes as a duration.
func (c *Config) LeadTime() time.Duration {
	return time.Duration(c.LeadTimeMinutes) * time.Minute
}

// Production reports whether Environment selects production behaviour.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production") || strings.EqualFold(c.Environment, "prod")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML over the defaults, so absent keys keep their default
//   - normalize out-of-range values
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// ApplyEnv loads envFile (when present) into the process environment and
// then layers LABORCAL_* variables over c. A missing envFile is not an
// error; a malformed numeric variable is.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	strs := map[string]*string{
		"LISTEN":         &c.Listen,
		"TIMEZONE":       &c.Timezone,
		"REFRESH":        &c.RefreshCron,
		"DATA_PATH":      &c.DataPath,
		"CACHE_DIR":      &c.CacheDir,
		"ENV":            &c.Environment,
		"LOG_LEVEL":      &c.LogLevel,
		"OVERLAY_POLICY": &c.OverlayPolicy,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HORIZON_DAYS":      &c.HorizonDays,
		"BUFFER_MINUTES":    &c.BufferMinutes,
		"LEAD_TIME_MINUTES": &c.LeadTimeMinutes,
		"MAX_WINDOW_DAYS":   &c.MaxWindowDays,
		"WORKERS":           &c.Workers,
	}
	for key, dst := range ints {
		v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	c.Normalize()
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".laborcal-config-*.tmp")
}

// WriteFileAtomic writes data next to path under a temp name matching
// pattern, then renames it over path with 0600 permissions.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
