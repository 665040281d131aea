package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 << 10

// SnapshotConfig holds the capture cadence and requested frame size.
type SnapshotConfig struct {
	Width           int `yaml:"width" validate:"gt=0,lte=16384"`  // requested frame width (px)
	Height          int `yaml:"height" validate:"gt=0,lte=16384"` // requested frame height (px)
	IntervalSeconds int `yaml:"interval_seconds" validate:"gt=0"` // seconds between two ticks
}

// BrowserConfig is used when camera.type is "browser".
type BrowserConfig struct {
	URL        string `yaml:"url" validate:"omitempty,url"`         // page to snapshot
	ControlURL string `yaml:"control_url" validate:"omitempty,url"` // remote DevTools websocket; empty = launch local Chrome
	Stealth    bool   `yaml:"stealth"`                              // open pages through go-rod/stealth
}

// CameraConfig selects the snapshot source.
// Type selects a concrete implementation ("synthetic", "screen", "browser").
type CameraConfig struct {
	Type    string        `yaml:"type" validate:"required,oneof=synthetic screen browser"`
	Browser BrowserConfig `yaml:"browser"`
}

// IndicatorConfig describes the optional GPIO line driven during each capture
// (status LED, IR illuminator or external trigger).
type IndicatorConfig struct {
	Enabled  bool `yaml:"enabled"`
	Pin      int  `yaml:"pin" validate:"gte=0,lte=27"` // BCM pin number
	SettleMs int  `yaml:"settle_ms" validate:"gte=0"`  // delay between line assert and capture (ms)
	HoldMs   int  `yaml:"hold_ms" validate:"gte=0"`    // delay after capture before release (ms)
}

// StorageConfig describes where snapshots are written and indexed.
type StorageConfig struct {
	Dir       string `yaml:"dir" validate:"required"` // committed snapshot root; must exist
	IndexPath string `yaml:"index_path"`              // sqlite artifact index; default <dir>/index.db
	MinFreeMB int    `yaml:"min_free_mb" validate:"gte=0"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel             int  `yaml:"debug_level" validate:"gte=0,lte=4"`         // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO               bool `yaml:"mock_gpio"`                                  // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	ShutdownTimeoutSeconds int  `yaml:"shutdown_timeout_seconds" validate:"gte=-1"` // wait for in-flight saves; 0 or -1 = forever
}

// Config aggregates all application configuration.
type Config struct {
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Camera    CameraConfig    `yaml:"camera"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Storage   StorageConfig   `yaml:"storage"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

var validate = validator.New()

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory and does not escape it.
func ValidateConfigPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") {
		return fmt.Errorf("config path %q escapes the working directory", path)
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Defaults go in first so explicit zeros in the file survive decoding.
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if cfg.Storage.IndexPath == "" && cfg.Storage.Dir != "" {
		cfg.Storage.IndexPath = filepath.Join(cfg.Storage.Dir, "index.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Snapshot:  SnapshotConfig{Width: 640, Height: 480, IntervalSeconds: 5},
		Indicator: IndicatorConfig{SettleMs: 50, HoldMs: 50},
		Defaults:  DefaultsConfig{ShutdownTimeoutSeconds: 10},
	}
}

// Validate runs struct-tag validation plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Camera.Type == "browser" && c.Camera.Browser.URL == "" {
		return errors.New("invalid config: camera.browser.url is required for camera.type browser")
	}
	if c.Indicator.Enabled && c.Indicator.Pin == 0 {
		return errors.New("invalid config: indicator.pin is required when the indicator is enabled")
	}
	return nil
}

// Interval returns the duration between two ticks.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Snapshot.IntervalSeconds) * time.Second
}

// SettleDelay returns the delay between indicator assert and capture.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Indicator.SettleMs) * time.Millisecond
}

// HoldDelay returns the delay after capture before the indicator is released.
func (c *Config) HoldDelay() time.Duration {
	return time.Duration(c.Indicator.HoldMs) * time.Millisecond
}

// ShutdownTimeout returns how long to wait for in-flight saves on shutdown.
// Zero means wait indefinitely.
func (c *Config) ShutdownTimeout() time.Duration {
	if c.Defaults.ShutdownTimeoutSeconds < 0 {
		return 0
	}
	return time.Duration(c.Defaults.ShutdownTimeoutSeconds) * time.Second
}

// MinFreeBytes returns the free-space floor below which no destination is allocated.
func (c *Config) MinFreeBytes() uint64 {
	return uint64(c.Storage.MinFreeMB) << 20
}
