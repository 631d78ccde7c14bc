package mcp

import (
	"time"

	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

// ListHelpersInput is the input for the list_helpers tool.
type ListHelpersInput struct{}

// HelperEntry describes one running helper.
type HelperEntry struct {
	Kind      string `json:"kind"`
	Mode      string `json:"mode,omitempty"`
	PID       int    `json:"pid"`
	State     string `json:"state"`
	Path      string `json:"path"`
	StartedAt string `json:"started_at"`
}

func helperEntry(h supervisor.HelperInfo) HelperEntry {
	return HelperEntry{
		Kind:      h.Key.Kind,
		Mode:      h.Key.Mode,
		PID:       h.PID,
		State:     string(h.State),
		Path:      h.Path,
		StartedAt: h.StartedAt.UTC().Format(time.RFC3339),
	}
}

// ListHelpersOutput is the output for the list_helpers tool.
type ListHelpersOutput struct {
	Helpers []HelperEntry `json:"helpers"`
}

// HelperInput names a helper instance for start_helper and stop_helper.
type HelperInput struct {
	Kind string `json:"kind" jsonschema:"required,Helper kind: key-listener, media-info, taskbar-item-list or taskbar-manager"`
	Mode string `json:"mode,omitempty" jsonschema:"Helper mode. Only the key-listener has modes (mouse or complex)."`
}

// HelperOutput reports the helper after the action.
type HelperOutput struct {
	Kind    string `json:"kind"`
	Mode    string `json:"mode,omitempty"`
	Running bool   `json:"running"`
}

type RestartHelpersInput struct{}

type RestartHelpersOutput struct {
	Running int `json:"running"`
}

type ListSurfacesInput struct{}

// SurfaceEntry describes one surface.
type SurfaceEntry struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	ScreenID         int    `json:"screen_id"`
	Path             string `json:"path,omitempty"`
	X                int    `json:"x"`
	Y                int    `json:"y"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Visible          bool   `json:"visible"`
	InputTransparent bool   `json:"input_transparent"`
	Connected        bool   `json:"connected"`
}

func surfaceEntry(info surface.Info) SurfaceEntry {
	return SurfaceEntry{
		ID:               info.ID,
		Kind:             string(info.Kind),
		ScreenID:         info.ScreenID,
		Path:             info.Path,
		X:                info.Bounds.X,
		Y:                info.Bounds.Y,
		Width:            info.Bounds.Width,
		Height:           info.Bounds.Height,
		Visible:          info.Visible,
		InputTransparent: info.InputTransparent,
		Connected:        info.Connected,
	}
}

type ListSurfacesOutput struct {
	Surfaces []SurfaceEntry `json:"surfaces"`
}

// SetInputTransparentInput is the input for set_surface_input_transparent.
type SetInputTransparentInput struct {
	ID          string `json:"id" jsonschema:"required,Surface id as shown by list_surfaces"`
	Transparent bool   `json:"transparent" jsonschema:"When true, mouse input passes through the surface to the windows below"`
}

// SurfaceInput names one surface.
type SurfaceInput struct {
	ID string `json:"id" jsonschema:"required,Surface id as shown by list_surfaces"`
}

// SurfaceOutput acknowledges a surface action.
type SurfaceOutput struct {
	ID string `json:"id"`
	OK bool   `json:"ok"`
}

type ToggleOverlaysInput struct{}

type ToggleOverlaysOutput struct {
	Visible bool `json:"visible"`
}

// BroadcastInput is the input for the broadcast tool.
type BroadcastInput struct {
	Name string `json:"name" jsonschema:"required,Event name. Surfaces receive it as broadcast:<name>."`
	Data any    `json:"data,omitempty" jsonschema:"Optional JSON payload delivered with the event"`
}

type BroadcastOutput struct {
	Name string `json:"name"`
	Sent bool   `json:"sent"`
}

// MediaControlInput is the input for the media_control tool.
type MediaControlInput struct {
	Command string `json:"command" jsonschema:"required,One of skip-track, previous-track, toggle-play-pause, pause, resume"`
}

type MediaControlOutput struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
}

type MediaStatusInput struct{}

// MediaStatusOutput is the last session the media helper reported.
type MediaStatusOutput struct {
	Available bool              `json:"available"`
	State     events.MediaState `json:"state"`
}

type TaskbarItemsInput struct {
	All bool `json:"all,omitempty" jsonschema:"Include windows that do not belong on a taskbar"`
}

type TaskbarItemsOutput struct {
	Available bool                 `json:"available"`
	Items     []events.TaskbarItem `json:"items"`
}
