package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawHelper struct {
	Enabled *bool    `yaml:"enabled"`
	Binary  *string  `yaml:"binary"`
	Args    []string `yaml:"args"`
	Modes   []string `yaml:"modes"`
}

type RawTaskbarManager struct {
	TopOffset    *int `yaml:"top_offset"`
	BottomOffset *int `yaml:"bottom_offset"`
}

type RawSupervisor struct {
	FrameBuffer  *int           `yaml:"frame_buffer"`
	KillGrace    *time.Duration `yaml:"kill_grace"`
	MaxLineBytes *int           `yaml:"max_line_bytes"`
}

type RawArbiter struct {
	Debounce *time.Duration `yaml:"debounce"`
}

type RawBridge struct {
	Enabled *bool   `yaml:"enabled"`
	TCPAddr *string `yaml:"tcp_addr"`
}

type RawOverlays struct {
	Enabled *bool   `yaml:"enabled"`
	Prefix  *string `yaml:"prefix"`
	Path    *string `yaml:"path"`
}

type RawRenderer struct {
	Command   []string       `yaml:"command"`
	StopGrace *time.Duration `yaml:"stop_grace"`
}

type RawHotkeys struct {
	ToggleOverlays *string `yaml:"toggle_overlays"`
	RestartHelpers *string `yaml:"restart_helpers"`
}

type RawCache struct {
	Dir             *string        `yaml:"dir"`
	IconTTL         *time.Duration `yaml:"icon_ttl"`
	ScreenshotFresh *time.Duration `yaml:"screenshot_fresh"`
	ScreenshotTTL   *time.Duration `yaml:"screenshot_ttl"`
	SweepInterval   *time.Duration `yaml:"sweep_interval"`
}

type RawLogging struct {
	Level     *string `yaml:"level"`
	Format    *string `yaml:"format"`
	File      *string `yaml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files"`
}

type RawConfig struct {
	Include           IncludeList          `yaml:"include"`
	AppPath           *string              `yaml:"app_path"`
	BinsDir           *string              `yaml:"bins_dir"`
	Helpers           map[string]RawHelper `yaml:"helpers"`
	TaskbarManager    *RawTaskbarManager   `yaml:"taskbar_manager"`
	Supervisor        *RawSupervisor       `yaml:"supervisor"`
	Arbiter           *RawArbiter          `yaml:"arbiter"`
	Bridge            *RawBridge           `yaml:"bridge"`
	Overlays          *RawOverlays         `yaml:"overlays"`
	Renderer          *RawRenderer         `yaml:"renderer"`
	ReconcileInterval *time.Duration       `yaml:"reconcile_interval"`
	Hotkeys           *RawHotkeys          `yaml:"hotkeys"`
	Cache             *RawCache            `yaml:"cache"`
	Logging           *RawLogging          `yaml:"logging"`
}

// set copies src over *dst when src is non-nil.
func set[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	set(&out.AppPath, overlay.AppPath)
	set(&out.BinsDir, overlay.BinsDir)
	set(&out.ReconcileInterval, overlay.ReconcileInterval)

	if overlay.Helpers != nil {
		merged := make(map[string]RawHelper, len(out.Helpers)+len(overlay.Helpers))
		for kind, h := range out.Helpers {
			merged[kind] = h
		}
		for kind, h := range overlay.Helpers {
			merged[kind] = mergeRawHelper(merged[kind], h)
		}
		out.Helpers = merged
	}

	if o := overlay.TaskbarManager; o != nil {
		m := derefOr(out.TaskbarManager)
		set(&m.TopOffset, o.TopOffset)
		set(&m.BottomOffset, o.BottomOffset)
		out.TaskbarManager = &m
	}
	if o := overlay.Supervisor; o != nil {
		m := derefOr(out.Supervisor)
		set(&m.FrameBuffer, o.FrameBuffer)
		set(&m.KillGrace, o.KillGrace)
		set(&m.MaxLineBytes, o.MaxLineBytes)
		out.Supervisor = &m
	}
	if o := overlay.Arbiter; o != nil {
		m := derefOr(out.Arbiter)
		set(&m.Debounce, o.Debounce)
		out.Arbiter = &m
	}
	if o := overlay.Bridge; o != nil {
		m := derefOr(out.Bridge)
		set(&m.Enabled, o.Enabled)
		set(&m.TCPAddr, o.TCPAddr)
		out.Bridge = &m
	}
	if o := overlay.Overlays; o != nil {
		m := derefOr(out.Overlays)
		set(&m.Enabled, o.Enabled)
		set(&m.Prefix, o.Prefix)
		set(&m.Path, o.Path)
		out.Overlays = &m
	}
	if o := overlay.Renderer; o != nil {
		m := derefOr(out.Renderer)
		if o.Command != nil {
			m.Command = o.Command
		}
		set(&m.StopGrace, o.StopGrace)
		out.Renderer = &m
	}
	if o := overlay.Hotkeys; o != nil {
		m := derefOr(out.Hotkeys)
		set(&m.ToggleOverlays, o.ToggleOverlays)
		set(&m.RestartHelpers, o.RestartHelpers)
		out.Hotkeys = &m
	}
	if o := overlay.Cache; o != nil {
		m := derefOr(out.Cache)
		set(&m.Dir, o.Dir)
		set(&m.IconTTL, o.IconTTL)
		set(&m.ScreenshotFresh, o.ScreenshotFresh)
		set(&m.ScreenshotTTL, o.ScreenshotTTL)
		set(&m.SweepInterval, o.SweepInterval)
		out.Cache = &m
	}
	if o := overlay.Logging; o != nil {
		m := derefOr(out.Logging)
		set(&m.Level, o.Level)
		set(&m.Format, o.Format)
		set(&m.File, o.File)
		set(&m.MaxSizeMB, o.MaxSizeMB)
		set(&m.MaxFiles, o.MaxFiles)
		out.Logging = &m
	}

	return out
}

// derefOr returns a copy of *p, or the zero value when p is nil.
func derefOr[T any](p *T) T {
	var v T
	if p != nil {
		v = *p
	}
	return v
}

func mergeRawHelper(base RawHelper, overlay RawHelper) RawHelper {
	out := base
	set(&out.Enabled, overlay.Enabled)
	set(&out.Binary, overlay.Binary)
	if overlay.Args != nil {
		out.Args = overlay.Args
	}
	if overlay.Modes != nil {
		out.Modes = overlay.Modes
	}
	return out
}
