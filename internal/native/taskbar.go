package native

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1broseidon/overlayshell/internal/cache"
	"github.com/1broseidon/overlayshell/internal/clock"
	"github.com/1broseidon/overlayshell/internal/events"
)

const (
	DefaultIconTTL         = 24 * time.Hour
	DefaultScreenshotFresh = 15 * time.Second
	DefaultScreenshotTTL   = 15 * time.Minute
	DefaultWarmConcurrency = 4

	// ScreenshotSize is the bounding box requested from the helper.
	ScreenshotSize = "256x256"
	// MinScreenshotEdge rejects captures of collapsed or hidden windows.
	MinScreenshotEdge = 50

	iconNamespace       = "icon"
	screenshotNamespace = "shot"
)

var (
	ErrNoWindow           = errors.New("window has no handle")
	ErrScreenshotTooSmall = errors.New("screenshot too small")
)

// WindowAction is a one-shot command on a single window.
type WindowAction string

const (
	WindowMinimize    WindowAction = "minimize-window"
	WindowMaximize    WindowAction = "maximize-window"
	WindowRestore     WindowAction = "restore-window"
	WindowClose       WindowAction = "close-window"
	WindowFocus       WindowAction = "focus-window"
	WindowUnfocus     WindowAction = "unfocus-window"
	WindowToggleFocus WindowAction = "toggle-focus-window"
)

// WindowActions lists every supported WindowAction.
var WindowActions = []WindowAction{
	WindowMinimize, WindowMaximize, WindowRestore, WindowClose,
	WindowFocus, WindowUnfocus, WindowToggleFocus,
}

// ParseWindowAction validates s as a WindowAction.
func ParseWindowAction(s string) (WindowAction, error) {
	for _, a := range WindowActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: window %q", ErrUnknownCommand, s)
}

// TaskbarListConfig configures a TaskbarList adapter.
type TaskbarListConfig struct {
	Supervisor Supervisor
	Helper     Helper
	Runner     Runner
	// Cache is required for icons and screenshots.
	Cache           *cache.Cache
	Clock           clock.Clock
	Logger          *slog.Logger
	IconTTL         time.Duration
	ScreenshotFresh time.Duration
	ScreenshotTTL   time.Duration
	WarmConcurrency int
}

// TaskbarList runs the window inventory helper, keeps the latest snapshot
// and serves icons and screenshots through the asset cache.
type TaskbarList struct {
	sup             Supervisor
	helper          Helper
	runner          Runner
	cache           *cache.Cache
	clock           clock.Clock
	logger          *slog.Logger
	iconTTL         time.Duration
	screenshotFresh time.Duration
	screenshotTTL   time.Duration
	warmLimit       int

	mu       sync.Mutex
	snapshot events.TaskbarInventory
	seen     bool

	ctx     context.Context
	cancel  context.CancelFunc
	warming atomic.Bool
	wg      sync.WaitGroup
}

func NewTaskbarList(cfg TaskbarListConfig) *TaskbarList {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IconTTL <= 0 {
		cfg.IconTTL = DefaultIconTTL
	}
	if cfg.ScreenshotFresh <= 0 {
		cfg.ScreenshotFresh = DefaultScreenshotFresh
	}
	if cfg.ScreenshotTTL <= 0 {
		cfg.ScreenshotTTL = DefaultScreenshotTTL
	}
	if cfg.WarmConcurrency <= 0 {
		cfg.WarmConcurrency = DefaultWarmConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskbarList{
		sup:             cfg.Supervisor,
		helper:          cfg.Helper,
		runner:          cfg.Runner,
		cache:           cfg.Cache,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		iconTTL:         cfg.IconTTL,
		screenshotFresh: cfg.ScreenshotFresh,
		screenshotTTL:   cfg.ScreenshotTTL,
		warmLimit:       cfg.WarmConcurrency,
		ctx:             ctx,
		cancel:          cancel,
	}
}

func (t *TaskbarList) Kind() string { return KindTaskbarList }

// Start (re)starts the inventory stream.
func (t *TaskbarList) Start() error {
	return t.sup.Start(t.helper.spec(KindTaskbarList, ""))
}

// Stop stops the inventory stream.
func (t *TaskbarList) Stop() {
	t.sup.Stop(events.HelperKey{Kind: KindTaskbarList})
}

// Close cancels cache warming and waits for it to finish.
func (t *TaskbarList) Close() {
	t.cancel()
	t.wg.Wait()
}

// Snapshot returns the most recent inventory.
func (t *TaskbarList) Snapshot() (events.TaskbarInventory, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot, t.seen
}

// Translate decodes an inventory record. Records whose action is not
// "list" are passed through raw.
func (t *TaskbarList) Translate(key events.HelperKey, raw json.RawMessage) (events.Event, error) {
	var inv events.TaskbarInventory
	if err := decode(KindTaskbarList, raw, &inv); err != nil {
		return nil, err
	}
	if inv.Action != "list" {
		return events.HelperRecord{Source: key, Raw: raw}, nil
	}

	t.mu.Lock()
	t.snapshot = inv
	t.seen = true
	t.mu.Unlock()

	t.warm(inv)
	return events.TaskbarSnapshot{Source: key, Snapshot: inv}, nil
}

// warm fetches icons and screenshots for a snapshot in the background. A
// snapshot that arrives while a pass is running is skipped; the next one
// catches up.
func (t *TaskbarList) warm(inv events.TaskbarInventory) {
	if t.cache == nil || !t.warming.CompareAndSwap(false, true) {
		return
	}
	if t.ctx.Err() != nil {
		t.warming.Store(false)
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.warming.Store(false)

		sem := make(chan struct{}, t.warmLimit)
		var wg sync.WaitGroup
		run := func(f func()) {
			select {
			case sem <- struct{}{}:
			case <-t.ctx.Done():
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				f()
			}()
		}

		icons := make(map[string]bool)
		for _, item := range inv.Items {
			if (item.IsDefinitelyTaskbar || item.IsDefinitelyTray || item.IsFocused) &&
				item.ExecutablePath != "" && !icons[item.ExecutablePath] {
				icons[item.ExecutablePath] = true
				path := item.ExecutablePath
				run(func() {
					if _, err := t.ExecutableIcon(t.ctx, path, false); err != nil {
						t.logger.Debug("icon warm failed", "path", path, "error", err)
					}
				})
			}
			if item.IsDefinitelyTaskbar && item.HWND != 0 {
				hwnd := item.HWND
				run(func() {
					if _, err := t.WindowScreenshot(t.ctx, hwnd, false); err != nil {
						t.logger.Debug("screenshot warm failed", "hwnd", hwnd, "error", err)
					}
				})
			}
		}
		wg.Wait()
	}()
}

// ExecutableIcon returns the base64 PNG icon of the executable at path,
// from the cache unless force is set.
func (t *TaskbarList) ExecutableIcon(ctx context.Context, path string, force bool) (string, error) {
	if t.cache == nil {
		return "", fmt.Errorf("%w: asset cache", ErrNotConfigured)
	}
	key := cache.Key(iconNamespace, path)
	if !force {
		entry, ok, err := t.cache.Get(key)
		if err != nil {
			t.logger.Warn("icon cache read failed", "error", err)
		}
		if ok {
			return entry.Data, nil
		}
	}

	res, err := runCommand(ctx, t.runner, t.helper, "get-executable-icon", "--path", path)
	if err != nil {
		_ = t.cache.Delete(key)
		return "", err
	}
	entry := cache.Entry{Data: res.IconBase64, CreatedAt: t.clock.Now()}
	if err := t.cache.Set(key, entry, t.iconTTL); err != nil {
		t.logger.Warn("icon cache write failed", "error", err)
	}
	return res.IconBase64, nil
}

// WindowScreenshot returns a base64 PNG capture of hwnd. A cached capture
// younger than the freshness window is reused unless force is set.
func (t *TaskbarList) WindowScreenshot(ctx context.Context, hwnd int64, force bool) (string, error) {
	if hwnd == 0 {
		return "", ErrNoWindow
	}
	if t.cache == nil {
		return "", fmt.Errorf("%w: asset cache", ErrNotConfigured)
	}
	key := cache.Key(screenshotNamespace, strconv.FormatInt(hwnd, 10))
	if !force {
		entry, ok, err := t.cache.Get(key)
		if err != nil {
			t.logger.Warn("screenshot cache read failed", "error", err)
		}
		if ok && t.clock.Now().Sub(entry.CreatedAt) < t.screenshotFresh {
			return entry.Data, nil
		}
	}

	res, err := runCommand(ctx, t.runner, t.helper,
		"get-window-screenshot", "--hwnd", strconv.FormatInt(hwnd, 10), "--size", ScreenshotSize)
	if err != nil {
		_ = t.cache.Delete(key)
		return "", err
	}
	// Helpers that do not report dimensions are trusted.
	if (res.Width > 0 && res.Width < MinScreenshotEdge) || (res.Height > 0 && res.Height < MinScreenshotEdge) {
		return "", fmt.Errorf("%w: %dx%d", ErrScreenshotTooSmall, res.Width, res.Height)
	}

	entry := cache.Entry{
		Data:      res.ScreenshotBase64,
		Width:     res.Width,
		Height:    res.Height,
		CreatedAt: t.clock.Now(),
	}
	if err := t.cache.Set(key, entry, t.screenshotTTL); err != nil {
		t.logger.Warn("screenshot cache write failed", "error", err)
	}
	return res.ScreenshotBase64, nil
}

// Window runs action on hwnd.
func (t *TaskbarList) Window(ctx context.Context, action WindowAction, hwnd int64) error {
	if _, err := ParseWindowAction(string(action)); err != nil {
		return err
	}
	if hwnd == 0 {
		return ErrNoWindow
	}
	_, err := runCommand(ctx, t.runner, t.helper, string(action), "--hwnd", strconv.FormatInt(hwnd, 10))
	return err
}

// StartExecutable launches the executable at path.
func (t *TaskbarList) StartExecutable(ctx context.Context, path string) error {
	_, err := runCommand(ctx, t.runner, t.helper, "start-executable", "--path", path)
	return err
}

// OpenStartMenu opens the system launcher.
func (t *TaskbarList) OpenStartMenu(ctx context.Context) error {
	_, err := runCommand(ctx, t.runner, t.helper, "open-start-menu")
	return err
}
