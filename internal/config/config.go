package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Helper kinds, matching the kinds the daemon supervises.
const (
	HelperKeyListener    = "key-listener"
	HelperMediaInfo      = "media-info"
	HelperTaskbarList    = "taskbar-item-list"
	HelperTaskbarManager = "taskbar-manager"
)

// HelperKinds lists every helper kind the config knows about.
var HelperKinds = []string{HelperKeyListener, HelperMediaInfo, HelperTaskbarList, HelperTaskbarManager}

// HelperConfig configures one bundled helper executable.
type HelperConfig struct {
	Enabled bool `yaml:"enabled"`
	// Binary is resolved against bins_dir unless absolute.
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args,omitempty"`
	// Modes is only meaningful for the key listener.
	Modes []string `yaml:"modes,omitempty"`
}

// TaskbarManagerConfig reserves workspace space around the primary display.
type TaskbarManagerConfig struct {
	TopOffset    int `yaml:"top_offset"`
	BottomOffset int `yaml:"bottom_offset"`
}

type SupervisorConfig struct {
	FrameBuffer  int           `yaml:"frame_buffer"`
	KillGrace    time.Duration `yaml:"kill_grace"`
	MaxLineBytes int           `yaml:"max_line_bytes"`
}

type ArbiterConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// BridgeConfig controls the surface websocket bridge. The bridge always
// listens on the runtime socket; TCPAddr adds a loopback TCP listener.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	TCPAddr string `yaml:"tcp_addr,omitempty"`
}

// OverlaysConfig controls the per-display overlays the daemon keeps alive.
type OverlaysConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
	Path    string `yaml:"path"`
}

// RendererConfig is the command started for every overlay surface.
type RendererConfig struct {
	Command   []string      `yaml:"command,omitempty"`
	StopGrace time.Duration `yaml:"stop_grace"`
}

type HotkeysConfig struct {
	ToggleOverlays string `yaml:"toggle_overlays"`
	RestartHelpers string `yaml:"restart_helpers"`
}

// CacheConfig configures the asset cache. An empty Dir keeps the cache in
// memory.
type CacheConfig struct {
	Dir             string        `yaml:"dir,omitempty"`
	IconTTL         time.Duration `yaml:"icon_ttl"`
	ScreenshotFresh time.Duration `yaml:"screenshot_fresh"`
	ScreenshotTTL   time.Duration `yaml:"screenshot_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// LoggingConfig configures the daemon logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is one of auto, text, json.
	Format string `yaml:"format"`
	// File is empty for stderr.
	File      string `yaml:"file,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Config holds the daemon configuration.
type Config struct {
	AppPath           string                  `yaml:"app_path,omitempty"`
	BinsDir           string                  `yaml:"bins_dir,omitempty"`
	Helpers           map[string]HelperConfig `yaml:"helpers"`
	TaskbarManager    TaskbarManagerConfig    `yaml:"taskbar_manager"`
	Supervisor        SupervisorConfig        `yaml:"supervisor"`
	Arbiter           ArbiterConfig           `yaml:"arbiter"`
	Bridge            BridgeConfig            `yaml:"bridge"`
	Overlays          OverlaysConfig          `yaml:"overlays"`
	Renderer          RendererConfig          `yaml:"renderer"`
	ReconcileInterval time.Duration           `yaml:"reconcile_interval"`
	Hotkeys           HotkeysConfig           `yaml:"hotkeys"`
	Cache             CacheConfig             `yaml:"cache"`
	Logging           LoggingConfig           `yaml:"logging"`
}

func DefaultConfig() *Config {
	return &Config{
		Helpers: map[string]HelperConfig{
			HelperKeyListener: {
				Enabled: true,
				Binary:  "key-listener",
				Modes:   []string{"mouse", "complex"},
			},
			HelperMediaInfo: {
				Enabled: true,
				Binary:  "media-info/media-info",
			},
			HelperTaskbarList: {
				Enabled: true,
				Binary:  "taskbar-item-list",
			},
			HelperTaskbarManager: {
				Enabled: false,
				Binary:  "taskbar-manager",
			},
		},
		TaskbarManager: TaskbarManagerConfig{TopOffset: 0, BottomOffset: 48},
		Supervisor: SupervisorConfig{
			FrameBuffer:  64,
			KillGrace:    3 * time.Second,
			MaxLineBytes: 4 << 20,
		},
		Arbiter: ArbiterConfig{Debounce: 50 * time.Millisecond},
		Bridge:  BridgeConfig{Enabled: true},
		Overlays: OverlaysConfig{
			Enabled: true,
			Prefix:  "overlay-",
			Path:    "/",
		},
		Renderer:          RendererConfig{StopGrace: 2 * time.Second},
		ReconcileInterval: 5 * time.Second,
		Hotkeys: HotkeysConfig{
			ToggleOverlays: "Mod4-Mod1-o",
			RestartHelpers: "Mod4-Mod1-h",
		},
		Cache: CacheConfig{
			IconTTL:         7 * 24 * time.Hour,
			ScreenshotFresh: 5 * time.Second,
			ScreenshotTTL:   5 * time.Minute,
			SweepInterval:   10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "auto",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// Helper returns the config for kind and whether it is enabled.
func (c *Config) Helper(kind string) (HelperConfig, bool) {
	if c == nil {
		return HelperConfig{}, false
	}
	h, ok := c.Helpers[kind]
	return h, ok && h.Enabled
}

// ResolvedBinsDir returns bins_dir, defaulting to <app_path>/bins.
func (c *Config) ResolvedBinsDir() string {
	if c.BinsDir != "" {
		return c.BinsDir
	}
	if c.AppPath != "" {
		return filepath.Join(c.AppPath, "bins")
	}
	return ""
}

// Save writes the configuration to path.
//
// Note: this marshals the effective config and will not preserve comments
// or include structure from the original YAML.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal renders the effective config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	for _, kind := range sortedKeys(c.Helpers) {
		h := c.Helpers[kind]
		if !slices.Contains(HelperKinds, kind) {
			return &ValidationError{Path: "helpers." + kind, Err: fmt.Errorf("unknown helper kind; want one of: %s", strings.Join(HelperKinds, ", "))}
		}
		if h.Enabled && strings.TrimSpace(h.Binary) == "" {
			return &ValidationError{Path: "helpers." + kind + ".binary", Err: fmt.Errorf("binary is required when the helper is enabled")}
		}
		if len(h.Modes) > 0 && kind != HelperKeyListener {
			return &ValidationError{Path: "helpers." + kind + ".modes", Err: fmt.Errorf("modes are only supported for %s", HelperKeyListener)}
		}
		for i, mode := range h.Modes {
			if mode != "mouse" && mode != "complex" {
				return &ValidationError{Path: fmt.Sprintf("helpers.%s.modes.%d", kind, i), Err: fmt.Errorf("mode must be one of: mouse, complex")}
			}
		}
	}
	if c.TaskbarManager.TopOffset < 0 || c.TaskbarManager.BottomOffset < 0 {
		return &ValidationError{Path: "taskbar_manager", Err: fmt.Errorf("offsets must be >= 0")}
	}
	if c.Supervisor.FrameBuffer <= 0 {
		return &ValidationError{Path: "supervisor.frame_buffer", Err: fmt.Errorf("frame_buffer must be > 0")}
	}
	if c.Supervisor.KillGrace <= 0 {
		return &ValidationError{Path: "supervisor.kill_grace", Err: fmt.Errorf("kill_grace must be > 0")}
	}
	if c.Supervisor.MaxLineBytes < 1024 {
		return &ValidationError{Path: "supervisor.max_line_bytes", Err: fmt.Errorf("max_line_bytes must be >= 1024")}
	}
	if c.Arbiter.Debounce < 0 {
		return &ValidationError{Path: "arbiter.debounce", Err: fmt.Errorf("debounce must be >= 0")}
	}
	if c.ReconcileInterval <= 0 {
		return &ValidationError{Path: "reconcile_interval", Err: fmt.Errorf("reconcile_interval must be > 0")}
	}
	if c.Overlays.Enabled && strings.TrimSpace(c.Overlays.Prefix) == "" {
		return &ValidationError{Path: "overlays.prefix", Err: fmt.Errorf("prefix is required when overlays are enabled")}
	}
	if strings.Contains(c.Overlays.Prefix, "/") {
		return &ValidationError{Path: "overlays.prefix", Err: fmt.Errorf("prefix must not contain '/'")}
	}
	if c.Renderer.StopGrace <= 0 {
		return &ValidationError{Path: "renderer.stop_grace", Err: fmt.Errorf("stop_grace must be > 0")}
	}
	if c.Cache.IconTTL <= 0 {
		return &ValidationError{Path: "cache.icon_ttl", Err: fmt.Errorf("icon_ttl must be > 0")}
	}
	if c.Cache.ScreenshotFresh <= 0 {
		return &ValidationError{Path: "cache.screenshot_fresh", Err: fmt.Errorf("screenshot_fresh must be > 0")}
	}
	if c.Cache.ScreenshotTTL < c.Cache.ScreenshotFresh {
		return &ValidationError{Path: "cache.screenshot_ttl", Err: fmt.Errorf("screenshot_ttl must be >= screenshot_fresh")}
	}
	if c.Cache.SweepInterval <= 0 {
		return &ValidationError{Path: "cache.sweep_interval", Err: fmt.Errorf("sweep_interval must be > 0")}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Path: "logging.level", Err: fmt.Errorf("level must be one of: debug, info, warn, error")}
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return &ValidationError{Path: "logging.format", Err: fmt.Errorf("format must be one of: auto, text, json")}
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return &ValidationError{Path: "logging", Err: fmt.Errorf("max_size_mb and max_files must be >= 0")}
	}

	if warnings := c.validationWarnings(); len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}
	return nil
}

func (c *Config) validationWarnings() []string {
	var warnings []string
	if c.Overlays.Enabled && len(c.Renderer.Command) == 0 {
		warnings = append(warnings, "overlays are enabled but renderer.command is empty; overlay windows will stay blank until a surface connects")
	}
	if c.Hotkeys.ToggleOverlays != "" && c.Hotkeys.ToggleOverlays == c.Hotkeys.RestartHelpers {
		warnings = append(warnings, fmt.Sprintf("hotkeys.toggle_overlays and hotkeys.restart_helpers are both %q; only the first binding will work", c.Hotkeys.ToggleOverlays))
	}
	return warnings
}
