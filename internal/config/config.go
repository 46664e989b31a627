// Package config handles configuration loading, validation, and hot reload
// for the deviceprint binaries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"deviceprint/internal/logging"
	"deviceprint/pkg/behavior"
	"deviceprint/pkg/cache"
	"deviceprint/pkg/consent"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete application configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Origin scopes cache keys and consent state. Required.
	Origin string `toml:"origin" json:"origin" yaml:"origin"`

	// Locale drives consent region detection when no override is set.
	Locale string `toml:"locale" json:"locale" yaml:"locale"`

	// Collectors toggles the individual signal collectors.
	Collectors CollectorsConfig `toml:"collectors" json:"collectors" yaml:"collectors"`

	// Consent configures the consent gate.
	Consent ConsentConfig `toml:"consent" json:"consent" yaml:"consent"`

	// Storage configures digest, profile, and consent persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging logging.Config `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// CollectorsConfig toggles collectors and holds behavioral tuning.
type CollectorsConfig struct {
	Screen   bool `toml:"screen" json:"screen" yaml:"screen"`
	Canvas   bool `toml:"canvas" json:"canvas" yaml:"canvas"`
	Hardware bool `toml:"hardware" json:"hardware" yaml:"hardware"`
	Battery  bool `toml:"battery" json:"battery" yaml:"battery"`

	Behavior BehaviorConfig `toml:"behavior" json:"behavior" yaml:"behavior"`
}

// BehaviorConfig holds behavioral metrics engine tuning.
type BehaviorConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// TrainingDurationMs bounds the event collection window.
	TrainingDurationMs int `toml:"training_duration_ms" json:"training_duration_ms" yaml:"training_duration_ms"`

	// SampleIntervalMs rate-limits movement samples.
	SampleIntervalMs int `toml:"sample_interval_ms" json:"sample_interval_ms" yaml:"sample_interval_ms"`

	// PrivacyMode is "full", "balanced", or "minimal".
	PrivacyMode string `toml:"privacy_mode" json:"privacy_mode" yaml:"privacy_mode"`

	// Channel toggles. All false means all channels are tracked.
	Mouse    bool `toml:"mouse" json:"mouse" yaml:"mouse"`
	Keyboard bool `toml:"keyboard" json:"keyboard" yaml:"keyboard"`
	Touch    bool `toml:"touch" json:"touch" yaml:"touch"`
}

// ConsentConfig holds consent gate configuration.
type ConsentConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// CollectorCategories maps collector names to consent categories.
	CollectorCategories map[string]string `toml:"collector_categories" json:"collector_categories" yaml:"collector_categories"`

	// RequireConsent overrides the per-region stringency table.
	RequireConsent map[string]bool `toml:"require_consent" json:"require_consent" yaml:"require_consent"`

	// RegionOverride skips locale detection: "eu", "uk", "us", "ca", "br", "other".
	RegionOverride string `toml:"region_override" json:"region_override" yaml:"region_override"`

	// ExpiryDays bounds consent freshness before renewal is needed.
	ExpiryDays int `toml:"expiry_days" json:"expiry_days" yaml:"expiry_days"`

	// Persist writes consent state to storage on every change.
	Persist bool `toml:"persist" json:"persist" yaml:"persist"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "sqlite" or "memory".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the path to the database file (for sqlite).
	Path string `toml:"path" json:"path" yaml:"path"`

	// ValidityHours bounds reuse of cached digests and profiles.
	ValidityHours int `toml:"validity_hours" json:"validity_hours" yaml:"validity_hours"`
}

// MetricsConfig holds Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Locale:  "en-US",
		Collectors: CollectorsConfig{
			Screen:   true,
			Canvas:   true,
			Hardware: true,
			Battery:  true,
			Behavior: BehaviorConfig{
				Enabled:            false,
				TrainingDurationMs: 10000,
				SampleIntervalMs:   100,
				PrivacyMode:        string(behavior.ModeBalanced),
			},
		},
		Consent: ConsentConfig{
			Enabled: true,
			CollectorCategories: map[string]string{
				"battery":  string(consent.CategoryAnalytics),
				"behavior": string(consent.CategoryPersonalization),
			},
			ExpiryDays: 365,
			Persist:    true,
		},
		Storage: StorageConfig{
			Type:          "sqlite",
			Path:          filepath.Join(DataDir(), "deviceprint.db"),
			ValidityHours: 24 * 30,
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9815",
		},
	}
}

// DataDir returns the base data directory, honoring the
// DEVICEPRINT_DATA_DIR environment override.
func DataDir() string {
	if dir := os.Getenv("DEVICEPRINT_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deviceprint"
	}
	return filepath.Join(home, ".deviceprint")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. The format follows the file extension: TOML, JSON,
// or YAML, with TOML tried for unknown extensions.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies DEVICEPRINT_-prefixed environment variables on
// top of the loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DEVICEPRINT_ORIGIN"); v != "" {
		c.Origin = v
	}
	if v := os.Getenv("DEVICEPRINT_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("DEVICEPRINT_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("DEVICEPRINT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DEVICEPRINT_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
		c.Metrics.Enabled = true
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Version <= 0 || c.Version > Version {
		return fmt.Errorf("unsupported config version %d", c.Version)
	}

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.type %q (want sqlite or memory)", c.Storage.Type)
	}
	if c.Storage.ValidityHours < 0 {
		return fmt.Errorf("storage.validity_hours must not be negative")
	}

	if c.Collectors.Behavior.Enabled {
		switch behavior.PrivacyMode(c.Collectors.Behavior.PrivacyMode) {
		case behavior.ModeFull, behavior.ModeBalanced, behavior.ModeMinimal, "":
		default:
			return fmt.Errorf("unknown behavior privacy_mode %q", c.Collectors.Behavior.PrivacyMode)
		}
		if c.Collectors.Behavior.TrainingDurationMs < 0 {
			return fmt.Errorf("behavior training_duration_ms must not be negative")
		}
	}

	if c.Consent.Enabled {
		for name, cat := range c.Consent.CollectorCategories {
			if !validCategory(consent.Category(cat)) {
				return fmt.Errorf("collector %q mapped to unknown consent category %q", name, cat)
			}
		}
		if r := c.Consent.RegionOverride; r != "" && !validRegion(consent.Region(r)) {
			return fmt.Errorf("unknown consent region_override %q", r)
		}
		for r := range c.Consent.RequireConsent {
			if !validRegion(consent.Region(r)) {
				return fmt.Errorf("unknown region %q in require_consent", r)
			}
		}
		if c.Consent.ExpiryDays < 0 {
			return fmt.Errorf("consent expiry_days must not be negative")
		}
	}

	return nil
}

func validCategory(c consent.Category) bool {
	for _, known := range consent.Categories {
		if c == known {
			return true
		}
	}
	return false
}

func validRegion(r consent.Region) bool {
	switch r {
	case consent.RegionEU, consent.RegionUK, consent.RegionUS,
		consent.RegionCanada, consent.RegionBrazil, consent.RegionUnknown:
		return true
	}
	return false
}

// Validity returns the configured cache validity as a duration, or zero
// when unset so downstream defaults apply.
func (c *Config) Validity() time.Duration {
	return time.Duration(c.Storage.ValidityHours) * time.Hour
}

// OpenStore builds the configured cache backend.
func (c *Config) OpenStore() (cache.Cache, error) {
	switch c.Storage.Type {
	case "memory":
		return cache.NewMemory(), nil
	default:
		return cache.Open(c.Storage.Path)
	}
}

// BehaviorOptions maps the behavior section to engine options, or nil when
// the behavioral collector is disabled.
func (c *Config) BehaviorOptions() *behavior.Config {
	b := c.Collectors.Behavior
	if !b.Enabled {
		return nil
	}
	return &behavior.Config{
		TrainingDuration: time.Duration(b.TrainingDurationMs) * time.Millisecond,
		SampleInterval:   time.Duration(b.SampleIntervalMs) * time.Millisecond,
		PrivacyMode:      behavior.PrivacyMode(b.PrivacyMode),
		Mouse:            b.Mouse,
		Keyboard:         b.Keyboard,
		Touch:            b.Touch,
		CacheValidity:    c.Validity(),
	}
}

// ConsentOptions maps the consent section to gate options, or nil when
// consent gating is disabled.
func (c *Config) ConsentOptions() *consent.Config {
	if !c.Consent.Enabled {
		return nil
	}
	cfg := &consent.Config{
		RegionOverride: consent.Region(c.Consent.RegionOverride),
		ExpiryWindow:   time.Duration(c.Consent.ExpiryDays) * 24 * time.Hour,
		Persist:        c.Consent.Persist,
	}
	if len(c.Consent.CollectorCategories) > 0 {
		cfg.CollectorCategories = make(map[string]consent.Category, len(c.Consent.CollectorCategories))
		for name, cat := range c.Consent.CollectorCategories {
			cfg.CollectorCategories[name] = consent.Category(cat)
		}
	}
	if len(c.Consent.RequireConsent) > 0 {
		cfg.RequireConsent = make(map[consent.Region]bool, len(c.Consent.RequireConsent))
		for r, req := range c.Consent.RequireConsent {
			cfg.RequireConsent[consent.Region(r)] = req
		}
	}
	return cfg
}

// Save writes the configuration to path in TOML format, creating parent
// directories as needed.
func Save(c *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
