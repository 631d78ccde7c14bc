package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/ipc"
	"github.com/1broseidon/overlayshell/internal/logging"
	"github.com/1broseidon/overlayshell/internal/platform"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

type fakeDaemon struct {
	helpers     []supervisor.HelperInfo
	surfaces    []surface.Info
	transparent map[string]bool
	fronted     []string
	broadcasts  map[string]json.RawMessage
	media       []string
	visible     bool
	err         error
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{
		transparent: map[string]bool{},
		broadcasts:  map[string]json.RawMessage{},
	}
}

func (f *fakeDaemon) ListHelpers() ([]supervisor.HelperInfo, error) { return f.helpers, f.err }

func (f *fakeDaemon) StartHelper(kind, mode string) error {
	if f.err != nil {
		return f.err
	}
	f.helpers = append(f.helpers, supervisor.HelperInfo{Key: supervisor.Key{Kind: kind, Mode: mode}, State: supervisor.StateRunning})
	return nil
}

func (f *fakeDaemon) StopHelper(kind, mode string) error { return f.err }

func (f *fakeDaemon) RestartHelpers() error { return f.err }

func (f *fakeDaemon) ListSurfaces() ([]surface.Info, error) { return f.surfaces, f.err }

func (f *fakeDaemon) SetInputTransparent(id string, transparent bool) error {
	f.transparent[id] = transparent
	return f.err
}

func (f *fakeDaemon) BringToFront(id string) error {
	f.fronted = append(f.fronted, id)
	return f.err
}

func (f *fakeDaemon) ToggleOverlays() (bool, error) {
	f.visible = !f.visible
	return f.visible, f.err
}

func (f *fakeDaemon) Broadcast(name string, data json.RawMessage) error {
	f.broadcasts[name] = data
	return f.err
}

func (f *fakeDaemon) GetMedia() (*ipc.MediaData, error) {
	return &ipc.MediaData{Available: true, State: events.MediaState{Title: "Track", PlaybackStatus: events.PlaybackPaused}}, f.err
}

func (f *fakeDaemon) MediaCommand(command string) error {
	f.media = append(f.media, command)
	return f.err
}

func (f *fakeDaemon) GetTaskbar() (*ipc.TaskbarData, error) {
	return &ipc.TaskbarData{
		Available: true,
		Inventory: events.TaskbarInventory{Items: []events.TaskbarItem{
			{Title: "Editor", HWND: 1, IsDefinitelyTaskbar: true},
			{Title: "", HWND: 2, IsDefinitelyTaskbar: true},
			{Title: "Tray", HWND: 3, IsDefinitelyTray: true},
		}},
	}, f.err
}

func newTestServer(d *fakeDaemon) *Server {
	return NewServer(d, logging.Discard())
}

func TestNewServer_RegistersTools(t *testing.T) {
	if s := newTestServer(newFakeDaemon()); s.mcpServer == nil {
		t.Fatal("mcp server not created")
	}
}

func TestHandleListHelpers(t *testing.T) {
	d := newFakeDaemon()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.helpers = []supervisor.HelperInfo{{
		Key:       supervisor.Key{Kind: "key-listener", Mode: "mouse"},
		PID:       99,
		State:     supervisor.StateRunning,
		StartedAt: started,
	}}
	s := newTestServer(d)

	_, out, err := s.handleListHelpers(context.Background(), nil, ListHelpersInput{})
	if err != nil {
		t.Fatalf("list_helpers: %v", err)
	}
	if len(out.Helpers) != 1 {
		t.Fatalf("helpers = %+v", out.Helpers)
	}
	h := out.Helpers[0]
	if h.Kind != "key-listener" || h.Mode != "mouse" || h.PID != 99 || h.State != "running" {
		t.Fatalf("helper = %+v", h)
	}
	if h.StartedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("started_at = %q", h.StartedAt)
	}

	d.helpers = nil
	_, out, _ = s.handleListHelpers(context.Background(), nil, ListHelpersInput{})
	if out.Helpers == nil {
		t.Fatal("empty helper list should encode as [] not null")
	}
}

func TestHandleStartStopHelper(t *testing.T) {
	d := newFakeDaemon()
	s := newTestServer(d)

	if _, _, err := s.handleStartHelper(context.Background(), nil, HelperInput{Kind: "  "}); err == nil {
		t.Fatal("expected error for empty kind")
	}
	_, out, err := s.handleStartHelper(context.Background(), nil, HelperInput{Kind: "media-info"})
	if err != nil || !out.Running || out.Kind != "media-info" {
		t.Fatalf("start_helper = %+v, %v", out, err)
	}
	_, out, err = s.handleStopHelper(context.Background(), nil, HelperInput{Kind: "media-info"})
	if err != nil || out.Running {
		t.Fatalf("stop_helper = %+v, %v", out, err)
	}

	d.err = errors.New("daemon error: unknown helper kind")
	if _, _, err := s.handleStartHelper(context.Background(), nil, HelperInput{Kind: "x"}); err == nil {
		t.Fatal("daemon error not returned")
	}
}

func TestHandleSurfaceTools(t *testing.T) {
	d := newFakeDaemon()
	d.surfaces = []surface.Info{
		{ID: surface.MainID, Kind: surface.KindMain, ScreenID: -1},
		{ID: "overlay-DP-1", Kind: surface.KindOverlay, Bounds: platform.Rect{X: 1920, Width: 2560, Height: 1440}, Connected: true},
	}
	s := newTestServer(d)

	_, list, err := s.handleListSurfaces(context.Background(), nil, ListSurfacesInput{})
	if err != nil {
		t.Fatalf("list_surfaces: %v", err)
	}
	if len(list.Surfaces) != 2 || list.Surfaces[1].X != 1920 || !list.Surfaces[1].Connected {
		t.Fatalf("surfaces = %+v", list.Surfaces)
	}

	if _, _, err := s.handleSetInputTransparent(context.Background(), nil, SetInputTransparentInput{}); err == nil {
		t.Fatal("expected error without id")
	}
	if _, _, err := s.handleSetInputTransparent(context.Background(), nil, SetInputTransparentInput{ID: "overlay-DP-1", Transparent: true}); err != nil {
		t.Fatalf("set_surface_input_transparent: %v", err)
	}
	if !d.transparent["overlay-DP-1"] {
		t.Fatal("transparency not forwarded")
	}
	if _, _, err := s.handleBringToFront(context.Background(), nil, SurfaceInput{ID: "overlay-DP-1"}); err != nil {
		t.Fatalf("bring_surface_to_front: %v", err)
	}
	if len(d.fronted) != 1 {
		t.Fatalf("fronted = %v", d.fronted)
	}
	_, vis, err := s.handleToggleOverlays(context.Background(), nil, ToggleOverlaysInput{})
	if err != nil || !vis.Visible {
		t.Fatalf("toggle_overlays = %+v, %v", vis, err)
	}
}

func TestHandleBroadcast_EncodesData(t *testing.T) {
	d := newFakeDaemon()
	s := newTestServer(d)

	_, out, err := s.handleBroadcast(context.Background(), nil, BroadcastInput{
		Name: "theme.changed",
		Data: map[string]any{"dark": true},
	})
	if err != nil || !out.Sent {
		t.Fatalf("broadcast = %+v, %v", out, err)
	}
	if got := string(d.broadcasts["theme.changed"]); got != `{"dark":true}` {
		t.Fatalf("data = %s", got)
	}

	if _, _, err := s.handleBroadcast(context.Background(), nil, BroadcastInput{Name: "ping"}); err != nil {
		t.Fatalf("broadcast without data: %v", err)
	}
	if d.broadcasts["ping"] != nil {
		t.Fatalf("data = %s, want none", d.broadcasts["ping"])
	}
	if _, _, err := s.handleBroadcast(context.Background(), nil, BroadcastInput{}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestHandleMediaTools(t *testing.T) {
	d := newFakeDaemon()
	s := newTestServer(d)

	if _, _, err := s.handleMediaControl(context.Background(), nil, MediaControlInput{}); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, _, err := s.handleMediaControl(context.Background(), nil, MediaControlInput{Command: "pause"}); err != nil {
		t.Fatalf("media_control: %v", err)
	}
	if len(d.media) != 1 || d.media[0] != "pause" {
		t.Fatalf("media = %v", d.media)
	}

	_, status, err := s.handleMediaStatus(context.Background(), nil, MediaStatusInput{})
	if err != nil || status.State.Title != "Track" {
		t.Fatalf("media_status = %+v, %v", status, err)
	}
}

func TestHandleTaskbarItems_FiltersByDefault(t *testing.T) {
	s := newTestServer(newFakeDaemon())

	_, out, err := s.handleTaskbarItems(context.Background(), nil, TaskbarItemsInput{})
	if err != nil {
		t.Fatalf("taskbar_items: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Title != "Editor" {
		t.Fatalf("items = %+v", out.Items)
	}

	_, out, _ = s.handleTaskbarItems(context.Background(), nil, TaskbarItemsInput{All: true})
	if len(out.Items) != 3 {
		t.Fatalf("all items = %d, want 3", len(out.Items))
	}
}
