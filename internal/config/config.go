// Package config loads the persistent application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/airdeck/internal/gesture"
)

// Estimator kinds.
const (
	EstimatorSubprocess = "subprocess"
	EstimatorHTTP       = "http"
	EstimatorMock       = "mock"
)

// UI modes.
const (
	UITray     = "tray"
	UITerminal = "tui"
	UIHeadless = "headless"
)

// Config is the persistent application configuration.
type Config struct {
	Camera    CameraConfig    `json:"camera"`
	Detection DetectionConfig `json:"detection"`
	Gesture   GestureConfig   `json:"gesture"`
	Estimator EstimatorConfig `json:"estimator"`
	Server    ServerConfig    `json:"server"`
	UI        UIConfig        `json:"ui"`
	Log       LogConfig       `json:"log"`
	Plugins   PluginConfig    `json:"plugins"`

	// DeckFile is the slide text loaded at startup. Empty uses the demo deck.
	DeckFile string `json:"deck_file,omitempty"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Device int `json:"device"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectionConfig controls the detection loop.
type DetectionConfig struct {
	AutoStart       bool    `json:"auto_start"`
	FPS             int     `json:"fps"`
	InitTimeoutMs   int     `json:"init_timeout_ms"`
	MotionGating    bool    `json:"motion_gating"`
	MotionThreshold float64 `json:"motion_threshold"` // percent of pixels
}

// GestureConfig holds the swipe classifier settings.
type GestureConfig struct {
	SwipeThresholdPx float64 `json:"swipe_threshold_px"`
	CooldownMs       int     `json:"cooldown_ms"`
	MinConfidence    float64 `json:"min_confidence"`
}

// EstimatorConfig selects the pose estimator.
type EstimatorConfig struct {
	Kind   string `json:"kind"` // "subprocess", "http" or "mock"
	Python string `json:"python,omitempty"`
	Script string `json:"script,omitempty"`
	URL    string `json:"url,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string `json:"addr"`
	StaticDir string `json:"static_dir,omitempty"`
}

// UIConfig selects the presenter front end.
type UIConfig struct {
	Mode string `json:"mode"` // "tray", "tui" or "headless"
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file,omitempty"`
}

// PluginAction names a plugin action to run.
type PluginAction struct {
	Plugin string `json:"plugin"`
	Action string `json:"action"`
}

// PluginConfig holds action plugin settings. Bindings map a navigation
// action ("next", "previous", "first", "last") to a plugin action.
type PluginConfig struct {
	Dir       string                  `json:"dir,omitempty"`
	TimeoutMs int                     `json:"timeout_ms"`
	Bindings  map[string]PluginAction `json:"bindings,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	g := gesture.DefaultConfig()
	return &Config{
		Camera: CameraConfig{
			Device: 0,
			Width:  640,
			Height: 480,
		},
		Detection: DetectionConfig{
			AutoStart:       true,
			FPS:             30,
			InitTimeoutMs:   30000,
			MotionGating:    false,
			MotionThreshold: 0.5,
		},
		Gesture: GestureConfig{
			SwipeThresholdPx: g.SwipeThresholdPx,
			CooldownMs:       int(g.Cooldown / time.Millisecond),
			MinConfidence:    g.MinConfidence,
		},
		Estimator: EstimatorConfig{
			Kind: EstimatorSubprocess,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		UI: UIConfig{
			Mode: UITerminal,
		},
		Log: LogConfig{
			Level: "info",
		},
		Plugins: PluginConfig{
			TimeoutMs: 5000,
		},
	}
}

// Dir returns the application data directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".airdeck")
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads the config at path over the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if err := c.ClassifierConfig().Validate(); err != nil {
		return fmt.Errorf("gesture: %w", err)
	}
	if c.Detection.FPS <= 0 {
		return fmt.Errorf("detection fps must be positive, got %d", c.Detection.FPS)
	}
	switch c.Estimator.Kind {
	case EstimatorSubprocess, EstimatorMock:
	case EstimatorHTTP:
		if c.Estimator.URL == "" {
			return errors.New("http estimator requires a url")
		}
	default:
		return fmt.Errorf("unknown estimator kind %q", c.Estimator.Kind)
	}
	switch c.UI.Mode {
	case UITray, UITerminal, UIHeadless:
	default:
		return fmt.Errorf("unknown ui mode %q", c.UI.Mode)
	}
	return nil
}

// ClassifierConfig converts the gesture section for the classifier.
func (c *Config) ClassifierConfig() gesture.Config {
	return gesture.Config{
		SwipeThresholdPx: c.Gesture.SwipeThresholdPx,
		Cooldown:         time.Duration(c.Gesture.CooldownMs) * time.Millisecond,
		MinConfidence:    c.Gesture.MinConfidence,
	}
}

// SetClassifierConfig stores g in the gesture section.
func (c *Config) SetClassifierConfig(g gesture.Config) {
	c.Gesture = GestureConfig{
		SwipeThresholdPx: g.SwipeThresholdPx,
		CooldownMs:       int(g.Cooldown / time.Millisecond),
		MinConfidence:    g.MinConfidence,
	}
}

// InitTimeout returns the estimator initialisation bound.
func (c *Config) InitTimeout() time.Duration {
	if c.Detection.InitTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Detection.InitTimeoutMs) * time.Millisecond
}

// PluginTimeout returns the per-action plugin timeout.
func (c *Config) PluginTimeout() time.Duration {
	if c.Plugins.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Plugins.TimeoutMs) * time.Millisecond
}

// PluginDir returns the plugin directory, defaulting under Dir.
func (c *Config) PluginDir() string {
	if c.Plugins.Dir != "" {
		return c.Plugins.Dir
	}
	return filepath.Join(Dir(), "plugins")
}
