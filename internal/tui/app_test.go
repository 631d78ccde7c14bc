package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/ipc"
	"github.com/1broseidon/overlayshell/internal/platform"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

type fakeSource struct {
	down        bool
	visible     bool
	restarts    int
	fronted     []string
	transparent map[string]bool
}

func (f *fakeSource) GetStatus() (*ipc.StatusData, error) {
	if f.down {
		return nil, errors.New("failed to connect to daemon")
	}
	return &ipc.StatusData{DaemonRunning: true, UptimeSeconds: 42, Helpers: 1, Surfaces: 2, Displays: 1, OverlaysVisible: f.visible}, nil
}

func (f *fakeSource) ListHelpers() ([]supervisor.HelperInfo, error) {
	return []supervisor.HelperInfo{{
		Key:       supervisor.Key{Kind: "key-listener", Mode: "mouse"},
		PID:       4242,
		State:     supervisor.StateRunning,
		StartedAt: time.Unix(1000, 0),
	}}, nil
}

func (f *fakeSource) ListSurfaces() ([]surface.Info, error) {
	return []surface.Info{
		{ID: "main", Kind: surface.KindMain},
		{ID: "overlay-0", Kind: surface.KindOverlay, Bounds: platform.Rect{Width: 1920, Height: 1080}, InputTransparent: f.transparent["overlay-0"]},
	}, nil
}

func (f *fakeSource) GetMedia() (*ipc.MediaData, error) {
	return &ipc.MediaData{Available: true, State: events.MediaState{Title: "Song", Artist: "Band", PlaybackStatus: events.PlaybackPlaying}}, nil
}

func (f *fakeSource) GetTaskbar() (*ipc.TaskbarData, error) {
	return &ipc.TaskbarData{Available: true, Inventory: events.TaskbarInventory{Items: []events.TaskbarItem{
		{HWND: 77, ProcessName: "editor.exe", Title: "notes.txt", IsFocused: true},
	}}}, nil
}

func (f *fakeSource) RestartHelpers() error {
	f.restarts++
	return nil
}

func (f *fakeSource) ToggleOverlays() (bool, error) {
	f.visible = !f.visible
	return f.visible, nil
}

func (f *fakeSource) BringToFront(id string) error {
	f.fronted = append(f.fronted, id)
	return nil
}

func (f *fakeSource) SetInputTransparent(id string, transparent bool) error {
	if f.transparent == nil {
		f.transparent = map[string]bool{}
	}
	f.transparent[id] = transparent
	return nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// ready returns a sized model that has seen one poll.
func ready(t *testing.T, src *fakeSource) model {
	t.Helper()
	m := newModel(src, time.Second)
	m.now = func() time.Time { return time.Unix(1090, 0) }
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	next, _ = next.Update(poll(src)())
	return next.(model)
}

func update(m model, msg tea.Msg) (model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestModel_ViewShowsHelpersAndStatus(t *testing.T) {
	m := ready(t, &fakeSource{})
	view := m.View()
	for _, want := range []string{"daemon connected", "helpers:1", "surfaces:2", "key-listener:mouse", "4242", "running", "1m30s"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_TabsRenderEachSection(t *testing.T) {
	m := ready(t, &fakeSource{})

	m, _ = update(m, key("tab"))
	if m.activeTab != TabSurfaces {
		t.Fatalf("activeTab = %v, want Surfaces", m.activeTab)
	}
	if view := m.View(); !strings.Contains(view, "overlay-0") || !strings.Contains(view, "main") {
		t.Fatalf("surfaces view:\n%s", view)
	}

	m, _ = update(m, key("3"))
	if view := m.View(); !strings.Contains(view, "Song") || !strings.Contains(view, "Band") {
		t.Fatalf("media view:\n%s", view)
	}

	m, _ = update(m, key("4"))
	if view := m.View(); !strings.Contains(view, "editor.exe") || !strings.Contains(view, "notes.txt") {
		t.Fatalf("taskbar view:\n%s", view)
	}
}

func TestModel_ActionsReportStatus(t *testing.T) {
	src := &fakeSource{}
	m := ready(t, src)

	_, cmd := update(m, key("t"))
	if cmd == nil {
		t.Fatal("toggle produced no command")
	}
	msg, ok := cmd().(statusMsg)
	if !ok || msg.text != "overlays: visible" {
		t.Fatalf("toggle result = %#v", cmd())
	}
	m, _ = update(m, msg)
	if !strings.Contains(m.View(), "overlays: visible") {
		t.Fatalf("notice not shown:\n%s", m.View())
	}

	_, cmd = update(m, key("r"))
	if got := cmd().(statusMsg); got.text != "helpers restarted" || src.restarts != 1 {
		t.Fatalf("restart = %#v, restarts = %d", got, src.restarts)
	}
}

func TestModel_SurfaceActionsUseSelection(t *testing.T) {
	src := &fakeSource{}
	m := ready(t, src)
	m, _ = update(m, key("2"))
	m, _ = update(m, key("down"))

	info, ok := m.surfacesTab.Selected()
	if !ok || info.ID != "overlay-0" {
		t.Fatalf("selected = %+v, %v", info, ok)
	}

	_, cmd := update(m, key("f"))
	cmd()
	_, cmd = update(m, key("i"))
	cmd()
	if len(src.fronted) != 1 || src.fronted[0] != "overlay-0" {
		t.Fatalf("fronted = %v", src.fronted)
	}
	if !src.transparent["overlay-0"] {
		t.Fatalf("transparent = %v, want overlay-0 made transparent", src.transparent)
	}

	// A later poll keeps the selection on the same surface.
	m, _ = update(m, poll(src)())
	if info, _ := m.surfacesTab.Selected(); info.ID != "overlay-0" || !info.InputTransparent {
		t.Fatalf("selected after poll = %+v", info)
	}
}

func TestModel_DisconnectedDaemon(t *testing.T) {
	src := &fakeSource{down: true}
	m := ready(t, src)

	view := m.View()
	if !strings.Contains(view, "daemon not running") {
		t.Fatalf("view:\n%s", view)
	}
	if _, cmd := update(m, key("r")); cmd != nil {
		t.Fatal("restart issued while disconnected")
	}

	src.down = false
	m, _ = update(m, poll(src)())
	if !m.connected || !strings.Contains(m.View(), "daemon connected") {
		t.Fatalf("model did not reconnect:\n%s", m.View())
	}
}

func TestModel_Quit(t *testing.T) {
	m := ready(t, &fakeSource{})
	_, cmd := update(m, key("q"))
	if cmd == nil {
		t.Fatal("q produced no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q = %T, want tea.QuitMsg", cmd())
	}
}
