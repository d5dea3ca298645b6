package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS race calendar subscription.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Category is assigned to every race of this feed unless the VEVENT
	// carries a CATEGORIES value naming a known category.
	Category string `yaml:"category" json:"category"`
}

// BlockConfig is one hand-specified racing block. Dates are YYYY-MM-DD and
// inclusive on both ends.
type BlockConfig struct {
	Label string `yaml:"label" json:"label"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// CategoryConfig maps a race category label to its display color.
type CategoryConfig struct {
	Label string `yaml:"label" json:"label"`
	Color string `yaml:"color" json:"color"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to turn ICS timestamps into calendar dates.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Year is the season shown by the months view and the ICS expansion window.
	Year int `yaml:"year" json:"year"`

	// View is the default partition: "blocks" or "months".
	View string `yaml:"view" json:"view"`

	// MonthCount limits the months view to the first N months (1-12).
	MonthCount int `yaml:"month_count" json:"month_count"`

	// Blocks are the curated ranges of the blocks view.
	Blocks []BlockConfig `yaml:"blocks" json:"blocks"`

	// Categories is the fixed category label set with display colors.
	Categories []CategoryConfig `yaml:"categories" json:"categories"`

	// ActiveCategories is the default filter. Empty means every category.
	ActiveCategories []string `yaml:"active_categories" json:"active_categories"`

	// RacesFile is a JSON or CSV race table. Optional.
	RacesFile string `yaml:"races_file" json:"races_file"`

	// ICS is the list of subscribed race calendars.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// RefreshCron is a cron-style schedule string (e.g. "0 */6 * * *") for
	// reloading race sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Workers > 1 lays out display ranges concurrently.
	Workers int `yaml:"workers" json:"workers"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultYear        = 2025
	defaultView        = "blocks"
	defaultRefreshCron = "0 */6 * * *"
	defaultCacheDir    = "./var/ics-cache"
)

// defaultBlockDays are the curated racing blocks as month-day pairs.
var defaultBlockDays = []struct{ label, start, end string }{
	{"Block 1: 21 Jan – 9 Mar", "01-20", "03-08"},
	{"Block 2: 9 Mar – 27 Apr", "03-08", "04-26"},
	{"Block 3: 24 Apr – 22 Jun", "04-23", "06-21"},
	{"Block 4: 03 Jul – 31 Aug", "07-02", "08-30"},
	{"Block 5: 04 Sep – 19 Oct", "09-04", "10-18"},
}

// DefaultBlocks returns the curated racing blocks placed in year.
func DefaultBlocks(year int) []BlockConfig {
	out := make([]BlockConfig, 0, len(defaultBlockDays))
	for _, b := range defaultBlockDays {
		out = append(out, BlockConfig{
			Label: b.label,
			Start: fmt.Sprintf("%04d-%s", year, b.start),
			End:   fmt.Sprintf("%04d-%s", year, b.end),
		})
	}
	return out
}

// DefaultCategories returns the race categories and their colors.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Label: "Grand Tour Race", Color: "#ffff00"},
		{Label: "World Tour Race", Color: "#ff0000"},
		{Label: "Pro Tour Race", Color: "#ffffff"},
		{Label: "Continental Tour Race", Color: "#00b0f0"},
		{Label: "Continental Tour Only", Color: "#ffc000"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           defaultListen,
		Timezone:         defaultTimezone,
		Year:             defaultYear,
		View:             defaultView,
		MonthCount:       12,
		Blocks:           DefaultBlocks(defaultYear),
		Categories:       DefaultCategories(),
		ActiveCategories: []string{},
		ICS:              []ICSConfig{},
		RefreshCron:      defaultRefreshCron,
		CacheDir:         defaultCacheDir,
		Workers:          1,
		LogLevel:         "info",
		BasicAuth:        nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Year <= 0 {
		c.Year = defaultYear
	}
	switch strings.ToLower(c.View) {
	case "blocks", "months":
		c.View = strings.ToLower(c.View)
	default:
		// Unknown value; fall back to blocks.
		c.View = defaultView
	}
	if c.MonthCount <= 0 || c.MonthCount > 12 {
		c.MonthCount = 12
	}
	if len(c.Blocks) == 0 {
		c.Blocks = DefaultBlocks(c.Year)
	}
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories()
	}
	if c.ActiveCategories == nil {
		c.ActiveCategories = []string{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// CategoryLabels returns the configured category labels in order.
func (c *Config) CategoryLabels() []string {
	out := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, cat.Label)
	}
	return out
}

// envOverrides are the settings that may be overridden from the environment.
type envOverrides struct {
	Listen    string `env:"RACECAL_LISTEN"`
	RacesFile string `env:"RACECAL_RACES_FILE"`
	LogLevel  string `env:"RACECAL_LOG_LEVEL"`
	Year      int    `env:"RACECAL_YEAR"`
	View      string `env:"RACECAL_VIEW"`
}

// ApplyEnv overlays RACECAL_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Listen != "" {
		c.Listen = o.Listen
	}
	if o.RacesFile != "" {
		c.RacesFile = o.RacesFile
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Year > 0 {
		// Untouched default blocks move with the season.
		if slices.Equal(c.Blocks, DefaultBlocks(c.Year)) {
			c.Blocks = DefaultBlocks(o.Year)
		}
		c.Year = o.Year
	}
	if o.View != "" {
		c.View = o.View
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path and applies
// environment overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, cfg.ApplyEnv()
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
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

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".racecal-config-*.tmp")
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
