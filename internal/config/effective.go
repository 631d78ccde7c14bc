package config

import (
	"fmt"
	"slices"
	"sort"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BuildEffectiveConfig applies raw over DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	assign(&cfg.AppPath, raw.AppPath)
	assign(&cfg.BinsDir, raw.BinsDir)
	assign(&cfg.ReconcileInterval, raw.ReconcileInterval)

	for _, kind := range sortedKeys(raw.Helpers) {
		patch := raw.Helpers[kind]
		// Unknown kinds pass through so Validate can name them.
		h := cfg.Helpers[kind]
		assign(&h.Enabled, patch.Enabled)
		assign(&h.Binary, patch.Binary)
		if patch.Args != nil {
			h.Args = slices.Clone(patch.Args)
		}
		if patch.Modes != nil {
			h.Modes = slices.Clone(patch.Modes)
		}
		cfg.Helpers[kind] = h
	}

	if r := raw.TaskbarManager; r != nil {
		assign(&cfg.TaskbarManager.TopOffset, r.TopOffset)
		assign(&cfg.TaskbarManager.BottomOffset, r.BottomOffset)
	}
	if r := raw.Supervisor; r != nil {
		assign(&cfg.Supervisor.FrameBuffer, r.FrameBuffer)
		assign(&cfg.Supervisor.KillGrace, r.KillGrace)
		assign(&cfg.Supervisor.MaxLineBytes, r.MaxLineBytes)
	}
	if r := raw.Arbiter; r != nil {
		assign(&cfg.Arbiter.Debounce, r.Debounce)
	}
	if r := raw.Bridge; r != nil {
		assign(&cfg.Bridge.Enabled, r.Enabled)
		assign(&cfg.Bridge.TCPAddr, r.TCPAddr)
	}
	if r := raw.Overlays; r != nil {
		assign(&cfg.Overlays.Enabled, r.Enabled)
		assign(&cfg.Overlays.Prefix, r.Prefix)
		assign(&cfg.Overlays.Path, r.Path)
	}
	if r := raw.Renderer; r != nil {
		if r.Command != nil {
			cfg.Renderer.Command = slices.Clone(r.Command)
		}
		assign(&cfg.Renderer.StopGrace, r.StopGrace)
	}
	if r := raw.Hotkeys; r != nil {
		assign(&cfg.Hotkeys.ToggleOverlays, r.ToggleOverlays)
		assign(&cfg.Hotkeys.RestartHelpers, r.RestartHelpers)
	}
	if r := raw.Cache; r != nil {
		assign(&cfg.Cache.Dir, r.Dir)
		assign(&cfg.Cache.IconTTL, r.IconTTL)
		assign(&cfg.Cache.ScreenshotFresh, r.ScreenshotFresh)
		assign(&cfg.Cache.ScreenshotTTL, r.ScreenshotTTL)
		assign(&cfg.Cache.SweepInterval, r.SweepInterval)
	}
	if r := raw.Logging; r != nil {
		assign(&cfg.Logging.Level, r.Level)
		assign(&cfg.Logging.Format, r.Format)
		assign(&cfg.Logging.File, r.File)
		assign(&cfg.Logging.MaxSizeMB, r.MaxSizeMB)
		assign(&cfg.Logging.MaxFiles, r.MaxFiles)
	}

	return cfg, nil
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
