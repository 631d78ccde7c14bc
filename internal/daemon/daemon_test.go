package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/1broseidon/overlayshell/internal/cache"
	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/ipc"
	"github.com/1broseidon/overlayshell/internal/logging"
	"github.com/1broseidon/overlayshell/internal/native"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

type daemonFixture struct {
	d          *Daemon
	dir        string
	configPath string
}

// newDaemon builds a headless daemon whose helpers point at an empty bins
// directory, so every helper start is a spawn failure.
func newDaemon(t *testing.T, configYAML string) *daemonFixture {
	t.Helper()
	// Unix socket paths are short; t.TempDir can exceed the limit.
	dir, err := os.MkdirTemp("", "osd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	f := &daemonFixture{dir: dir, configPath: filepath.Join(dir, "config.yaml")}
	f.writeConfig(t, configYAML)

	c, err := cache.NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	d, err := New(Options{
		ConfigPath:   f.configPath,
		Headless:     true,
		SocketPath:   filepath.Join(dir, "ctl.sock"),
		BridgeSocket: filepath.Join(dir, "br.sock"),
		Cache:        c,
		Logger:       logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.d = d
	return f
}

func (f *daemonFixture) writeConfig(t *testing.T, extra string) {
	t.Helper()
	body := "app_path: " + f.dir + "\n" + extra
	if err := os.WriteFile(f.configPath, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDaemon_SurfaceControl(t *testing.T) {
	f := newDaemon(t, "")
	t.Cleanup(func() { f.d.host.Close() })
	d := f.d

	info, err := d.CreateSurface(0, "panel", "/ui/panel/")
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	if info.ID != "panel" || info.Kind != surface.KindOverlay || info.Path != "ui/panel" {
		t.Fatalf("info = %+v", info)
	}
	if info.Bounds.Width != 1920 || info.Bounds.Height != 1080 {
		t.Fatalf("bounds = %+v, want the headless display", info.Bounds)
	}
	if _, err := d.CreateSurface(7, "nowhere", ""); !errors.Is(err, surface.ErrUnknownScreen) {
		t.Fatalf("CreateSurface(unknown screen) error = %v, want ErrUnknownScreen", err)
	}

	if err := d.SetSurfaceInputTransparent("panel", false); err != nil {
		t.Fatalf("SetSurfaceInputTransparent: %v", err)
	}
	if err := d.SetSurfaceInputTransparent("missing", true); err != nil {
		t.Fatalf("SetSurfaceInputTransparent(missing) = %v, want nil", err)
	}

	if visible := d.ToggleOverlays(); visible {
		t.Fatal("ToggleOverlays() = true, want false")
	}
	st := d.Status()
	if !st.DaemonRunning || st.Surfaces != 2 || st.Displays != 1 || st.OverlaysVisible {
		t.Fatalf("Status() = %+v", st)
	}
	if st.ConfigPath != f.configPath {
		t.Fatalf("ConfigPath = %q, want %q", st.ConfigPath, f.configPath)
	}

	if err := d.DestroySurface("panel"); err != nil {
		t.Fatalf("DestroySurface: %v", err)
	}
	if got := len(d.Surfaces()); got != 1 {
		t.Fatalf("len(Surfaces()) = %d, want only the main surface", got)
	}
}

func TestDaemon_StartHelperErrors(t *testing.T) {
	f := newDaemon(t, "")
	t.Cleanup(func() { f.d.host.Close() })
	d := f.d

	if err := d.StartHelper("screensaver", ""); !errors.Is(err, ErrUnknownHelper) {
		t.Fatalf("unknown kind error = %v, want ErrUnknownHelper", err)
	}
	// taskbar-manager is disabled by default.
	if err := d.StartHelper(native.KindTaskbarManager, ""); !errors.Is(err, native.ErrNotConfigured) {
		t.Fatalf("disabled kind error = %v, want ErrNotConfigured", err)
	}
	if err := d.StartHelper(native.KindKeyListener, "wheel"); !errors.Is(err, native.ErrUnknownMode) {
		t.Fatalf("unknown mode error = %v, want ErrUnknownMode", err)
	}
	if err := d.StartHelper(native.KindMediaInfo, ""); !errors.Is(err, supervisor.ErrSpawn) {
		t.Fatalf("missing binary error = %v, want ErrSpawn", err)
	}
	if got := d.Helpers(); len(got) != 0 {
		t.Fatalf("Helpers() = %+v, want none registered after spawn failure", got)
	}
	if err := d.StopHelper(native.KindMediaInfo, ""); err != nil {
		t.Fatalf("StopHelper(not running) = %v", err)
	}
}

func TestDaemon_MediaAndTaskbarCommands(t *testing.T) {
	f := newDaemon(t, "")
	t.Cleanup(func() { f.d.host.Close() })
	d := f.d
	ctx := context.Background()

	if m := d.Media(); m.Available {
		t.Fatalf("Media() = %+v before any record", m)
	}
	if err := d.MediaCommand(ctx, "rewind"); !errors.Is(err, native.ErrUnknownCommand) {
		t.Fatalf("MediaCommand(rewind) = %v, want ErrUnknownCommand", err)
	}

	if tb := d.Taskbar(); tb.Available {
		t.Fatalf("Taskbar() = %+v before any snapshot", tb)
	}
	if _, err := d.TaskbarCommand(ctx, ipc.TaskbarCommandPayload{Action: "shake-window", HWND: 1}); !errors.Is(err, native.ErrUnknownCommand) {
		t.Fatalf("TaskbarCommand(shake-window) = %v, want ErrUnknownCommand", err)
	}
}

func TestDaemon_TranslateRoutesToAdapters(t *testing.T) {
	f := newDaemon(t, "")
	t.Cleanup(func() { f.d.host.Close() })
	d := f.d

	ev, err := d.translate(supervisor.Key{Kind: native.KindMediaInfo},
		json.RawMessage(`{"title":"Song","playback_status":"Playing","has_artwork":false}`))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if _, ok := ev.(events.MediaSession); !ok {
		t.Fatalf("translate() = %T, want events.MediaSession", ev)
	}
	m := d.Media()
	if !m.Available || m.State.Title != "Song" || m.Artwork {
		t.Fatalf("Media() = %+v", m)
	}
}

func TestDaemon_ReloadSwapsHelpers(t *testing.T) {
	f := newDaemon(t, "")
	t.Cleanup(func() { f.d.host.Close() })
	d := f.d

	f.writeConfig(t, "helpers:\n  media-info:\n    enabled: false\n  taskbar-manager:\n    enabled: true\n")
	if err := d.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if err := d.StartHelper(native.KindMediaInfo, ""); !errors.Is(err, native.ErrNotConfigured) {
		t.Fatalf("media-info after reload = %v, want ErrNotConfigured", err)
	}
	if err := d.StartHelper(native.KindTaskbarManager, ""); !errors.Is(err, supervisor.ErrSpawn) {
		t.Fatalf("taskbar-manager after reload = %v, want ErrSpawn", err)
	}

	f.writeConfig(t, "bogus_key: 1\n")
	if err := d.Reload(); err == nil {
		t.Fatal("Reload accepted an unknown key")
	}
	// A failed reload keeps the previous helpers.
	if err := d.StartHelper(native.KindMediaInfo, ""); !errors.Is(err, native.ErrNotConfigured) {
		t.Fatalf("media-info after failed reload = %v, want ErrNotConfigured", err)
	}
}

func TestDaemon_BroadcastReachesMainSurface(t *testing.T) {
	f := newDaemon(t, "")
	t.Cleanup(func() { f.d.host.Close() })
	d := f.d

	got := make(chan events.Broadcast, 1)
	d.Host().OnBroadcast("theme.changed", func(b events.Broadcast) { got <- b })

	if err := d.SendBroadcast("theme.changed", json.RawMessage(`{"theme":"dark"}`)); err != nil {
		t.Fatalf("SendBroadcast: %v", err)
	}
	select {
	case b := <-got:
		if string(b.Data) != `{"theme":"dark"}` || b.Origin != surface.MainID {
			t.Fatalf("broadcast = %+v", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast not delivered to the main surface")
	}
}

func TestDaemon_RunServesControlSocket(t *testing.T) {
	f := newDaemon(t, "")
	d := f.d

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	client := ipc.NewClientAt(d.SocketPath())
	deadline := time.Now().Add(3 * time.Second)
	for client.Ping() != nil {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("daemon never answered on its control socket")
		}
		time.Sleep(20 * time.Millisecond)
	}

	surfaces, err := client.ListSurfaces()
	if err != nil {
		t.Fatalf("ListSurfaces: %v", err)
	}
	var overlay bool
	for _, s := range surfaces {
		if s.ID == "overlay-headless" {
			overlay = true
		}
	}
	if !overlay {
		t.Fatalf("surfaces = %+v, want the reconciled overlay-headless", surfaces)
	}

	st, err := client.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.BridgeAddr != filepath.Join(f.dir, "br.sock") {
		t.Fatalf("BridgeAddr = %q", st.BridgeAddr)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(d.SocketPath()); !os.IsNotExist(err) {
		t.Fatalf("control socket still present: %v", err)
	}
}
