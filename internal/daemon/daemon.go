package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/1broseidon/overlayshell/internal/bridge"
	"github.com/1broseidon/overlayshell/internal/cache"
	"github.com/1broseidon/overlayshell/internal/clock"
	"github.com/1broseidon/overlayshell/internal/config"
	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/hotkeys"
	"github.com/1broseidon/overlayshell/internal/ipc"
	"github.com/1broseidon/overlayshell/internal/logging"
	"github.com/1broseidon/overlayshell/internal/native"
	"github.com/1broseidon/overlayshell/internal/platform"
	"github.com/1broseidon/overlayshell/internal/runtimepath"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

// ErrUnknownHelper is returned for a helper kind the daemon does not run.
var ErrUnknownHelper = errors.New("unknown helper kind")

const shutdownTimeout = 5 * time.Second

// Display is a platform backend with its own event loop, such as X11.
type Display interface {
	platform.Backend
	hotkeys.X11
	EventLoop()
	Quit()
	Disconnect()
}

// Options configures a Daemon. Zero values pick the standard locations.
type Options struct {
	ConfigPath string
	// Headless runs on the in-memory backend with no hotkeys.
	Headless bool
	// Backend replaces the display backend.
	Backend      platform.Backend
	SocketPath   string
	BridgeSocket string
	// Cache replaces the configured asset cache; the daemon does not
	// close it.
	Cache  *cache.Cache
	Clock  clock.Clock
	Logger *slog.Logger
}

// Daemon owns every long-lived component of the shell host and serves
// the control socket.
type Daemon struct {
	opts       Options
	configPath string
	clock      clock.Clock
	startedAt  time.Time

	log     *logging.Logger
	logger  *slog.Logger
	display Display
	backend platform.Backend

	router     *events.Router
	sup        *supervisor.Supervisor
	cache      *cache.Cache
	ownsCache  bool
	host       *surface.Host
	bridge     *bridge.Server
	bridgeAddr string
	ipc        *ipc.Server
	reconciler *Reconciler
	sweeper    *Sweeper
	hotkeys    *hotkeys.Handler

	mu      sync.RWMutex
	cfg     *config.Config
	natives *native.Set
}

// New loads the configuration and builds every component. Nothing runs
// until Run.
func New(opts Options) (*Daemon, error) {
	path := opts.ConfigPath
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := res.Config

	d := &Daemon{opts: opts, configPath: path, cfg: cfg, clock: opts.Clock}
	if d.clock == nil {
		d.clock = clock.Real()
	}
	d.startedAt = d.clock.Now()

	d.logger = opts.Logger
	if d.logger == nil {
		l, err := logging.New(logging.Options{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			File:      cfg.Logging.File,
			MaxSizeMB: cfg.Logging.MaxSizeMB,
			MaxFiles:  cfg.Logging.MaxFiles,
		})
		if err != nil {
			return nil, fmt.Errorf("set up logging: %w", err)
		}
		d.log = l
		d.logger = l.Logger
	}

	if err := d.build(cfg); err != nil {
		d.closeResources()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) build(cfg *config.Config) error {
	switch {
	case d.opts.Backend != nil:
		d.backend = d.opts.Backend
	case d.opts.Headless:
		full := platform.Rect{Width: 1920, Height: 1080}
		d.backend = platform.NewMemoryBackend(platform.Display{ID: 0, Name: "headless", Bounds: full, Usable: full})
	default:
		disp, err := openDisplay()
		if err != nil {
			return err
		}
		d.display = disp
		d.backend = disp
	}

	d.cache = d.opts.Cache
	if d.cache == nil {
		c, err := cache.Open(cache.Config{Dir: cfg.Cache.Dir, Logger: d.logger.With("component", "cache")})
		if err != nil {
			return err
		}
		d.cache = c
		d.ownsCache = true
	}

	paths, err := surface.DefaultPaths(cfg.AppPath, cfg.ResolvedBinsDir())
	if err != nil {
		return err
	}

	bridgeSocket := d.opts.BridgeSocket
	if bridgeSocket == "" && cfg.Bridge.Enabled {
		if bridgeSocket, err = runtimepath.BridgeSocketPath(); err != nil {
			return err
		}
	}

	d.router = events.NewRouter(d.logger.With("component", "router"))
	d.sup = supervisor.New(supervisor.Config{
		Router:       d.router,
		Translator:   d.translate,
		Logger:       d.logger.With("component", "supervisor"),
		Clock:        d.clock,
		FrameBuffer:  cfg.Supervisor.FrameBuffer,
		KillGrace:    cfg.Supervisor.KillGrace,
		MaxLineBytes: cfg.Supervisor.MaxLineBytes,
	})
	d.natives = d.buildNatives(cfg, paths.Bins)

	var launcher surface.Launcher
	if len(cfg.Renderer.Command) > 0 {
		launcher = &surface.CommandLauncher{
			Command:      cfg.Renderer.Command,
			BridgeSocket: bridgeSocket,
			Logger:       d.logger.With("component", "renderer"),
			StopGrace:    cfg.Renderer.StopGrace,
		}
	}
	d.host = surface.New(surface.Config{
		Backend:  d.backend,
		Router:   d.router,
		Paths:    paths,
		Launcher: launcher,
		Clock:    d.clock,
		Logger:   d.logger.With("component", "surface"),
	})

	if cfg.Bridge.Enabled {
		d.bridge = bridge.NewServer(bridge.ServerConfig{
			Hub:        d.host.Hub(),
			Controller: d.host,
			Logger:     d.logger.With("component", "bridge"),
		})
		d.bridgeAddr = bridgeSocket
	}

	if cfg.Overlays.Enabled {
		d.reconciler = NewReconciler(ReconcilerConfig{
			Interval: cfg.ReconcileInterval,
			Prefix:   cfg.Overlays.Prefix,
			Path:     cfg.Overlays.Path,
			Clock:    d.clock,
			Logger:   d.logger.With("component", "reconciler"),
		}, d.host)
	}
	d.sweeper = NewSweeper(d.cache, cfg.Cache.SweepInterval, d.clock, d.logger.With("component", "sweeper"))

	d.ipc, err = ipc.NewServer(ipc.ServerConfig{
		SocketPath: d.opts.SocketPath,
		Controller: d,
		Logger:     d.logger.With("component", "ipc"),
	})
	if err != nil {
		return err
	}

	if d.display != nil {
		d.hotkeys = hotkeys.NewHandler(d.display, d, d.logger.With("component", "hotkeys"))
	}
	return nil
}

// buildNatives creates an adapter for every enabled helper kind.
func (d *Daemon) buildNatives(cfg *config.Config, binsDir string) *native.Set {
	set := &native.Set{}
	logger := d.logger.With("component", "native")

	if h, ok := cfg.Helper(config.HelperKeyListener); ok {
		set.Keys = native.NewKeyListener(native.KeyListenerConfig{
			Supervisor: d.sup,
			Helper:     native.Resolve(binsDir, h.Binary, h.Args...),
			Modes:      h.Modes,
			Logger:     logger,
		})
	}
	if h, ok := cfg.Helper(config.HelperMediaInfo); ok {
		set.Media = native.NewMediaInfo(native.MediaInfoConfig{
			Supervisor: d.sup,
			Helper:     native.Resolve(binsDir, h.Binary, h.Args...),
			Logger:     logger,
		})
	}
	if h, ok := cfg.Helper(config.HelperTaskbarList); ok {
		set.Taskbar = native.NewTaskbarList(native.TaskbarListConfig{
			Supervisor:      d.sup,
			Helper:          native.Resolve(binsDir, h.Binary, h.Args...),
			Cache:           d.cache,
			Clock:           d.clock,
			Logger:          logger,
			IconTTL:         cfg.Cache.IconTTL,
			ScreenshotFresh: cfg.Cache.ScreenshotFresh,
			ScreenshotTTL:   cfg.Cache.ScreenshotTTL,
		})
	}
	if h, ok := cfg.Helper(config.HelperTaskbarManager); ok {
		set.Manager = native.NewTaskbarManager(native.TaskbarManagerConfig{
			Supervisor:   d.sup,
			Helper:       native.Resolve(binsDir, h.Binary, h.Args...),
			TopOffset:    cfg.TaskbarManager.TopOffset,
			BottomOffset: cfg.TaskbarManager.BottomOffset,
			Logger:       logger,
		})
	}
	return set
}

func (d *Daemon) translate(key supervisor.Key, raw json.RawMessage) (events.Event, error) {
	return d.currentNatives().Translate(key, raw)
}

func (d *Daemon) currentNatives() *native.Set {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.natives
}

func (d *Daemon) config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Host returns the surface host.
func (d *Daemon) Host() *surface.Host { return d.host }

// SocketPath returns the control socket path.
func (d *Daemon) SocketPath() string { return d.ipc.SocketPath() }

// Run starts the helpers and servers and blocks until ctx is cancelled or
// SIGINT/SIGTERM arrives. SIGHUP reloads the configuration.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.ipc.Start(); err != nil {
		d.closeResources()
		return err
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if d.bridge != nil {
		l, err := bridge.ListenUnix(d.bridgeAddr)
		if err != nil {
			d.ipc.Stop()
			d.closeResources()
			return err
		}
		d.serveBridge(&wg, l, errCh)
		if addr := d.config().Bridge.TCPAddr; addr != "" {
			tl, err := net.Listen("tcp", addr)
			if err != nil {
				d.logger.Warn("bridge tcp listener failed", "addr", addr, "error", err)
			} else {
				d.serveBridge(&wg, tl, errCh)
			}
		}
	}

	if err := d.currentNatives().StartAll(); err != nil {
		// Spawn failures are already published as helper errors.
		d.logger.Warn("some helpers failed to start", "error", err)
	}

	if d.reconciler != nil {
		d.reconciler.ReconcileNow()
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.reconciler.Run(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.sweeper.Run(ctx)
	}()

	if d.hotkeys != nil {
		hk := d.config().Hotkeys
		if err := d.hotkeys.Register(hotkeys.Bindings{
			ToggleOverlays: hk.ToggleOverlays,
			RestartHelpers: hk.RestartHelpers,
		}); err != nil {
			d.logger.Warn("hotkey registration failed", "error", err)
		}
	}
	if d.display != nil {
		go d.display.EventLoop()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	d.logger.Info("daemon started",
		"config", d.configPath,
		"socket", d.ipc.SocketPath(),
		"bridge", d.bridgeAddr,
	)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-hup:
			d.logger.Info("received SIGHUP, reloading config")
			if err := d.Reload(); err != nil {
				d.logger.Error("config reload failed", "error", err)
			}
		case err := <-errCh:
			runErr = err
			break loop
		}
	}

	d.logger.Info("shutting down daemon")
	d.shutdown()
	wg.Wait()
	d.closeResources()
	return runErr
}

func (d *Daemon) serveBridge(wg *sync.WaitGroup, l net.Listener, errCh chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.bridge.Serve(l); err != nil {
			errCh <- fmt.Errorf("bridge: %w", err)
		}
	}()
}

// shutdown stops accepting work and terminates helpers and renderers.
func (d *Daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.hotkeys != nil {
		d.hotkeys.Unregister()
	}
	d.ipc.Stop()
	if d.bridge != nil {
		if err := d.bridge.Shutdown(ctx); err != nil {
			d.logger.Warn("bridge shutdown", "error", err)
		}
		_ = os.Remove(d.bridgeAddr)
	}
	if err := d.sup.Shutdown(ctx); err != nil {
		d.logger.Warn("helpers did not exit in time", "error", err)
	}
	if err := d.host.Close(); err != nil {
		d.logger.Warn("surface cleanup", "error", err)
	}
	if d.display != nil {
		d.display.Quit()
	}
}

// closeResources releases what New acquired. It is safe on a partially
// built daemon.
func (d *Daemon) closeResources() {
	if n := d.currentNatives(); n != nil {
		n.Close()
	}
	if d.cache != nil && d.ownsCache {
		if err := d.cache.Close(); err != nil {
			d.logger.Warn("close cache", "error", err)
		}
	}
	if d.display != nil {
		d.display.Disconnect()
	}
	if d.log != nil {
		_ = d.log.Close()
	}
}

// Reload re-reads the config file. Helper settings and the log level take
// effect immediately; other sections need a restart.
func (d *Daemon) Reload() error {
	res, err := config.LoadFromPath(d.configPath)
	if err != nil {
		return err
	}
	cfg := res.Config

	if d.log != nil {
		if err := d.log.SetLevel(cfg.Logging.Level); err != nil {
			return err
		}
	}

	paths, err := surface.DefaultPaths(cfg.AppPath, cfg.ResolvedBinsDir())
	if err != nil {
		return err
	}
	next := d.buildNatives(cfg, paths.Bins)

	d.mu.Lock()
	prev := d.natives
	d.natives = next
	d.cfg = cfg
	d.mu.Unlock()

	prev.StopAll()
	prev.Close()
	if err := next.StartAll(); err != nil {
		d.logger.Warn("some helpers failed to start", "error", err)
	}
	d.logger.Info("config reloaded", "path", d.configPath)
	return nil
}

// Status implements ipc.Controller.
func (d *Daemon) Status() ipc.StatusData {
	displays, _ := d.host.Displays()
	return ipc.StatusData{
		UptimeSeconds:   int64(d.clock.Now().Sub(d.startedAt).Seconds()),
		DaemonRunning:   true,
		ConfigPath:      d.configPath,
		Helpers:         d.sup.Registry().Len(),
		Surfaces:        len(d.host.Surfaces()),
		Displays:        len(displays),
		OverlaysVisible: d.host.OverlaysVisible(),
		BridgeAddr:      d.bridgeAddr,
	}
}

func (d *Daemon) Helpers() []supervisor.HelperInfo {
	return d.sup.Registry().List()
}

// StartHelper starts, or restarts, one configured helper.
func (d *Daemon) StartHelper(kind, mode string) error {
	n := d.currentNatives()
	switch kind {
	case native.KindKeyListener:
		if n.Keys == nil {
			return notConfigured(kind)
		}
		return n.Keys.Start(mode)
	case native.KindMediaInfo:
		if n.Media == nil {
			return notConfigured(kind)
		}
		return n.Media.Start()
	case native.KindTaskbarList:
		if n.Taskbar == nil {
			return notConfigured(kind)
		}
		return n.Taskbar.Start()
	case native.KindTaskbarManager:
		if n.Manager == nil {
			return notConfigured(kind)
		}
		return n.Manager.Start()
	}
	return fmt.Errorf("%w: %q", ErrUnknownHelper, kind)
}

// StopHelper stops one helper instance. Stopping one that is not running
// is a no-op.
func (d *Daemon) StopHelper(kind, mode string) error {
	d.sup.Stop(supervisor.Key{Kind: kind, Mode: mode})
	return nil
}

// RestartHelpers stops and restarts every configured helper.
func (d *Daemon) RestartHelpers() error {
	n := d.currentNatives()
	n.StopAll()
	err := n.StartAll()
	d.logger.Info("helpers restarted", "error", err)
	return err
}

func (d *Daemon) Surfaces() []surface.Info {
	return d.host.Surfaces()
}

func (d *Daemon) CreateSurface(screenID int, id, path string) (surface.Info, error) {
	if err := d.host.CreateSurface(screenID, id, path); err != nil {
		return surface.Info{}, err
	}
	info, ok := d.host.Get(id)
	if !ok {
		return surface.Info{}, fmt.Errorf("surface %q vanished after creation", id)
	}
	return info, nil
}

func (d *Daemon) DestroySurface(id string) error {
	return d.host.DestroySurface(id)
}

func (d *Daemon) SetSurfaceInputTransparent(id string, transparent bool) error {
	return d.host.SetSurfaceInputTransparent(id, transparent)
}

func (d *Daemon) BringSurfaceToFront(id string) error {
	return d.host.BringSurfaceToFront(id)
}

// ToggleOverlays hides or shows every overlay and returns the new
// visibility.
func (d *Daemon) ToggleOverlays() bool {
	visible := d.host.ToggleOverlays()
	d.logger.Info("overlays toggled", "visible", visible)
	return visible
}

// SendBroadcast emits name from the main surface. Empty data is sent as
// JSON null.
func (d *Daemon) SendBroadcast(name string, data json.RawMessage) error {
	if len(data) == 0 {
		return d.host.SendBroadcast(name, nil)
	}
	return d.host.SendBroadcast(name, data)
}

func (d *Daemon) Media() ipc.MediaData {
	n := d.currentNatives()
	if n.Media == nil {
		return ipc.MediaData{}
	}
	state, artwork, seen := n.Media.Current()
	return ipc.MediaData{Available: seen, State: state, Artwork: artwork != ""}
}

func (d *Daemon) MediaCommand(ctx context.Context, command string) error {
	cmd, err := native.ParseMediaCommand(command)
	if err != nil {
		return err
	}
	n := d.currentNatives()
	if n.Media == nil {
		return notConfigured(native.KindMediaInfo)
	}
	_, err = n.Media.Command(ctx, cmd)
	return err
}

func (d *Daemon) Taskbar() ipc.TaskbarData {
	n := d.currentNatives()
	if n.Taskbar == nil {
		return ipc.TaskbarData{}
	}
	inv, ok := n.Taskbar.Snapshot()
	return ipc.TaskbarData{Available: ok, Inventory: inv}
}

// TaskbarCommand runs one taskbar helper action.
func (d *Daemon) TaskbarCommand(ctx context.Context, req ipc.TaskbarCommandPayload) (ipc.TaskbarResult, error) {
	n := d.currentNatives()
	if n.Taskbar == nil {
		return ipc.TaskbarResult{}, notConfigured(native.KindTaskbarList)
	}
	tl := n.Taskbar

	switch req.Action {
	case "get-executable-icon":
		img, err := tl.ExecutableIcon(ctx, req.Path, req.Force)
		return ipc.TaskbarResult{Image: img}, err
	case "get-window-screenshot":
		img, err := tl.WindowScreenshot(ctx, req.HWND, req.Force)
		return ipc.TaskbarResult{Image: img}, err
	case "start-executable":
		return ipc.TaskbarResult{}, tl.StartExecutable(ctx, req.Path)
	case "open-start-menu":
		return ipc.TaskbarResult{}, tl.OpenStartMenu(ctx)
	}
	action, err := native.ParseWindowAction(req.Action)
	if err != nil {
		return ipc.TaskbarResult{}, err
	}
	return ipc.TaskbarResult{}, tl.Window(ctx, action, req.HWND)
}

func notConfigured(kind string) error {
	return fmt.Errorf("%w: %s", native.ErrNotConfigured, kind)
}

var (
	_ ipc.Controller  = (*Daemon)(nil)
	_ hotkeys.Actions = (*Daemon)(nil)
)
