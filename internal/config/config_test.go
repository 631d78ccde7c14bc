package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Renderer.Command = []string{"renderer", "{path}"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Arbiter.Debounce != 50*time.Millisecond {
		t.Fatalf("default debounce = %v, want 50ms", cfg.Arbiter.Debounce)
	}
	for _, kind := range HelperKinds {
		if _, ok := cfg.Helpers[kind]; !ok {
			t.Fatalf("default config has no helper %q", kind)
		}
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Files) != 0 {
		t.Fatalf("Files = %v, want none", res.Files)
	}
	if res.Config.ReconcileInterval != 5*time.Second {
		t.Fatalf("reconcile_interval = %v, want 5s", res.Config.ReconcileInterval)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "# empty\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Logging.Level != "info" {
		t.Fatalf("expected logging.level info, got %q", res.Config.Logging.Level)
	}
}

func TestLoadFromPath_Sections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"app_path: /opt/overlayshell",
		"helpers:",
		"  media-info:",
		"    enabled: false",
		"  key-listener:",
		"    modes: [mouse]",
		"    args: [--verbose]",
		"taskbar_manager:",
		"  bottom_offset: 64",
		"supervisor:",
		"  kill_grace: 500ms",
		"arbiter:",
		"  debounce: 80ms",
		"bridge:",
		"  tcp_addr: 127.0.0.1:7420",
		"reconcile_interval: 2s",
		"cache:",
		"  dir: /var/cache/overlayshell",
		"  screenshot_fresh: 1s",
		"logging:",
		"  format: json",
		"",
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config

	if got := cfg.ResolvedBinsDir(); got != "/opt/overlayshell/bins" {
		t.Errorf("ResolvedBinsDir = %q, want /opt/overlayshell/bins", got)
	}
	if _, ok := cfg.Helper(HelperMediaInfo); ok {
		t.Errorf("media-info should be disabled")
	}
	keys, ok := cfg.Helper(HelperKeyListener)
	if !ok {
		t.Fatalf("key-listener should stay enabled")
	}
	if keys.Binary != "key-listener" {
		t.Errorf("key-listener binary = %q, want default kept", keys.Binary)
	}
	if len(keys.Modes) != 1 || keys.Modes[0] != "mouse" || len(keys.Args) != 1 {
		t.Errorf("key-listener = %+v", keys)
	}
	if cfg.TaskbarManager.BottomOffset != 64 || cfg.TaskbarManager.TopOffset != 0 {
		t.Errorf("taskbar_manager = %+v", cfg.TaskbarManager)
	}
	if cfg.Supervisor.KillGrace != 500*time.Millisecond || cfg.Supervisor.FrameBuffer != 64 {
		t.Errorf("supervisor = %+v", cfg.Supervisor)
	}
	if cfg.Arbiter.Debounce != 80*time.Millisecond {
		t.Errorf("arbiter.debounce = %v", cfg.Arbiter.Debounce)
	}
	if !cfg.Bridge.Enabled || cfg.Bridge.TCPAddr != "127.0.0.1:7420" {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if cfg.ReconcileInterval != 2*time.Second {
		t.Errorf("reconcile_interval = %v", cfg.ReconcileInterval)
	}
	if cfg.Cache.Dir != "/var/cache/overlayshell" || cfg.Cache.ScreenshotFresh != time.Second {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFromPath_StrictUnknownKeyErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "unknown_key: 1\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "unknown_key") && !strings.Contains(err.Error(), "field") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error to include file path, got %v", err)
	}
}

func TestLoadFromPath_BadDurationErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "arbiter:\n  debounce: soon\n")

	if _, err := LoadFromPath(path); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestLoadFromPath_ValidationErrorHasSourceContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "supervisor:\n  frame_buffer: 0\n")

	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Path != "supervisor.frame_buffer" {
		t.Fatalf("Path = %q, want supervisor.frame_buffer", verr.Path)
	}
	if verr.Source.File == "" || verr.Source.Line != 2 {
		t.Fatalf("Source = %+v, want line 2 of %s", verr.Source, path)
	}
	if !strings.Contains(err.Error(), path+":2:") {
		t.Fatalf("expected file:line prefix, got %v", err)
	}
}

func TestLoadFromPath_ValidationErrorUsesEnclosingSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "helpers:\n  key-listener:\n    modes:\n      - keyboard\n")

	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Path != "helpers.key-listener.modes.0" {
		t.Fatalf("Path = %q", verr.Path)
	}
	if verr.Source.Kind != SourceFile || verr.Source.Line != 4 {
		t.Fatalf("Source = %+v, want the modes list on line 4", verr.Source)
	}
}

func TestLoadFromPath_RelativePathsFollowTheirFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.d", "paths.yaml"), "bins_dir: bins\ncache:\n  dir: ../cache\n")
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "include: config.d\nlogging:\n  file: logs/shell.log\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	root := filepath.Dir(res.Files[len(res.Files)-1])
	cfg := res.Config
	if want := filepath.Join(root, "config.d", "bins"); cfg.ResolvedBinsDir() != want {
		t.Errorf("bins_dir = %q, want %q", cfg.ResolvedBinsDir(), want)
	}
	if want := filepath.Join(root, "cache"); cfg.Cache.Dir != want {
		t.Errorf("cache.dir = %q, want %q", cfg.Cache.Dir, want)
	}
	if want := filepath.Join(root, "logs", "shell.log"); cfg.Logging.File != want {
		t.Errorf("logging.file = %q, want %q", cfg.Logging.File, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"unknown helper", func(c *Config) { c.Helpers["screen-reader"] = HelperConfig{Binary: "x"} }, "helpers.screen-reader"},
		{"enabled without binary", func(c *Config) { c.Helpers[HelperMediaInfo] = HelperConfig{Enabled: true} }, "helpers.media-info.binary"},
		{"modes on non listener", func(c *Config) {
			c.Helpers[HelperTaskbarList] = HelperConfig{Enabled: true, Binary: "t", Modes: []string{"mouse"}}
		}, "helpers.taskbar-item-list.modes"},
		{"bad mode", func(c *Config) {
			c.Helpers[HelperKeyListener] = HelperConfig{Enabled: true, Binary: "k", Modes: []string{"keyboard"}}
		}, "helpers.key-listener.modes.0"},
		{"negative offset", func(c *Config) { c.TaskbarManager.TopOffset = -1 }, "taskbar_manager"},
		{"small line limit", func(c *Config) { c.Supervisor.MaxLineBytes = 10 }, "supervisor.max_line_bytes"},
		{"negative debounce", func(c *Config) { c.Arbiter.Debounce = -time.Millisecond }, "arbiter.debounce"},
		{"zero reconcile", func(c *Config) { c.ReconcileInterval = 0 }, "reconcile_interval"},
		{"prefix with slash", func(c *Config) { c.Overlays.Prefix = "a/b" }, "overlays.prefix"},
		{"ttl below fresh", func(c *Config) { c.Cache.ScreenshotTTL = time.Second }, "cache.screenshot_ttl"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Renderer.Command = []string{"renderer"}
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if verr.Path != tt.path {
				t.Fatalf("Path = %q, want %q", verr.Path, tt.path)
			}
		})
	}
}

func TestLoadFromPath_IncludeDirectoryOrderAndMainOverrides(t *testing.T) {
	dir := t.TempDir()

	// config.d loaded first, in sorted order.
	writeFile(t, filepath.Join(dir, "config.d", "10-base.yaml"), "reconcile_interval: 3s\nbins_dir: /a\n")
	writeFile(t, filepath.Join(dir, "config.d", "20-override.yaml"), "reconcile_interval: 4s\n")
	writeFile(t, filepath.Join(dir, "config.d", "notes.txt"), "not yaml")

	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"include:",
		"  - config.d",
		"reconcile_interval: 7s",
		"",
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.ReconcileInterval != 7*time.Second {
		t.Fatalf("expected reconcile_interval 7s, got %v", res.Config.ReconcileInterval)
	}
	if res.Config.BinsDir != "/a" {
		t.Fatalf("expected bins_dir from include, got %q", res.Config.BinsDir)
	}
	if len(res.Files) != 3 {
		t.Fatalf("Files = %v, want two includes and the main file", res.Files)
	}
	if !strings.HasSuffix(res.Files[0], "10-base.yaml") || !strings.HasSuffix(res.Files[2], "config.yaml") {
		t.Fatalf("Files order = %v", res.Files)
	}
}

func TestLoadFromPath_IncludeMergesHelperFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "helpers.yaml"), "helpers:\n  taskbar-manager:\n    enabled: true\n")
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "include: helpers.yaml\nhelpers:\n  taskbar-manager:\n    binary: /usr/lib/overlayshell/tbm\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	h, ok := res.Config.Helper(HelperTaskbarManager)
	if !ok {
		t.Fatalf("taskbar-manager should be enabled by the include")
	}
	if h.Binary != "/usr/lib/overlayshell/tbm" {
		t.Fatalf("binary = %q", h.Binary)
	}
}

func TestLoadFromPath_IncludeMissingPathHasContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "include:\n  - missing.yaml\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "include") || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("expected include error, got %v", err)
	}
	if !strings.Contains(err.Error(), path+":") {
		t.Fatalf("expected error to include file:line:col prefix, got %v", err)
	}
}

func TestLoadFromPath_IncludeCycleDetection(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	writeFile(t, a, "include: b.yaml\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "include: a.yaml\n")

	_, err := LoadFromPath(a)
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if !strings.Contains(err.Error(), "include cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "arbiter:\n  debounce: 75ms\nhelpers:\n  key-listener:\n    modes:\n      - complex\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	val, src, err := Explain(res, "arbiter.debounce")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != "75ms" {
		t.Fatalf("value = %#v, want \"75ms\"", val)
	}
	if src.Kind != SourceFile || src.Line != 2 {
		t.Fatalf("source = %+v, want file line 2", src)
	}

	val, src, err = Explain(res, "helpers.key-listener.modes.0")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != "complex" || src.Kind != SourceFile {
		t.Fatalf("modes.0 = %#v from %+v", val, src)
	}

	_, src, err = Explain(res, "logging.level")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if src.Kind != SourceDefault {
		t.Fatalf("logging.level source = %+v, want default", src)
	}

	if _, _, err := Explain(res, "logging.colour"); err == nil {
		t.Fatalf("expected unknown path error")
	}
}

func TestSave_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Renderer.Command = []string{"renderer", "--surface", "{id}"}
	cfg.Cache.IconTTL = time.Hour

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load saved: %v", err)
	}
	if res.Config.Cache.IconTTL != time.Hour {
		t.Fatalf("icon_ttl = %v, want 1h", res.Config.Cache.IconTTL)
	}
	if len(res.Config.Renderer.Command) != 3 {
		t.Fatalf("renderer.command = %v", res.Config.Renderer.Command)
	}
}
