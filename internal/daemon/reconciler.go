package daemon

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/1broseidon/overlayshell/internal/clock"
	"github.com/1broseidon/overlayshell/internal/platform"
	"github.com/1broseidon/overlayshell/internal/surface"
)

const (
	DefaultInterval      = 5 * time.Second
	DefaultOverlayPrefix = "overlay-"
)

// SurfaceHost is the part of surface.Host the reconciler drives.
type SurfaceHost interface {
	Displays() ([]platform.Display, error)
	Surfaces() []surface.Info
	CreateSurface(screenID int, id, path string) error
	DestroySurface(id string) error
	AlignSurface(id string, a surface.Align) error
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	// Prefix marks the overlays the reconciler owns; others are left alone.
	Prefix string
	// Path is the renderer path given to every overlay it creates.
	Path   string
	Clock  clock.Clock
	Logger *slog.Logger
}

// Result lists the surface ids touched by one pass.
type Result struct {
	Created   []string
	Destroyed []string
	Aligned   []string
}

// Changed reports whether the pass did anything.
func (r Result) Changed() bool {
	return len(r.Created)+len(r.Destroyed)+len(r.Aligned) > 0
}

// Reconciler keeps one overlay per display: it creates overlays for new
// displays, destroys those whose display went away and follows geometry
// changes.
type Reconciler struct {
	interval time.Duration
	prefix   string
	path     string
	host     SurfaceHost
	clock    clock.Clock
	logger   *slog.Logger

	// seen holds the display bounds each overlay was last fitted to.
	seen map[string]platform.Rect
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, host SurfaceHost) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultOverlayPrefix
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reconciler{
		interval: cfg.Interval,
		prefix:   cfg.Prefix,
		path:     cfg.Path,
		host:     host,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		seen:     make(map[string]platform.Rect),
	}
}

// OverlayID returns the id of the overlay owned for display d.
func (r *Reconciler) OverlayID(d platform.Display) string {
	name := strings.NewReplacer("/", "-", " ", "-").Replace(d.Name)
	if name == "" {
		name = "display" + strconv.Itoa(d.ID)
	}
	return r.prefix + name
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

// ReconcileNow runs one pass immediately.
func (r *Reconciler) ReconcileNow() Result {
	return r.reconcile()
}

func (r *Reconciler) reconcile() (res Result) {
	// A failing backend must not take the daemon down.
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	displays, err := r.host.Displays()
	if err != nil {
		r.logger.Error("reconciler: failed to list displays", "error", err)
		return res
	}

	wanted := make(map[string]platform.Display, len(displays))
	for _, d := range displays {
		wanted[r.OverlayID(d)] = d
	}

	existing := make(map[string]surface.Info)
	for _, s := range r.host.Surfaces() {
		if s.Kind == surface.KindOverlay && strings.HasPrefix(s.ID, r.prefix) {
			existing[s.ID] = s
		}
	}

	for id := range existing {
		if _, ok := wanted[id]; ok {
			continue
		}
		r.logger.Info("reconciler: display gone, destroying overlay", "surface", id)
		if err := r.host.DestroySurface(id); err != nil {
			r.logger.Warn("reconciler: destroy failed", "surface", id, "error", err)
			continue
		}
		delete(r.seen, id)
		res.Destroyed = append(res.Destroyed, id)
	}

	for id, d := range wanted {
		s, ok := existing[id]
		switch {
		case !ok || s.ScreenID != d.ID:
			r.logger.Info("reconciler: creating overlay", "surface", id, "display", d.Name, "bounds", d.Bounds)
			if err := r.host.CreateSurface(d.ID, id, r.path); err != nil {
				r.logger.Warn("reconciler: create failed", "surface", id, "error", err)
				continue
			}
			r.seen[id] = d.Bounds
			res.Created = append(res.Created, id)
		case r.seen[id] != d.Bounds:
			b := d.Bounds
			if err := r.host.AlignSurface(id, surface.Align{X: &b.X, Y: &b.Y, Width: &b.Width, Height: &b.Height}); err != nil {
				r.logger.Warn("reconciler: align failed", "surface", id, "error", err)
				continue
			}
			r.logger.Info("reconciler: display geometry changed", "surface", id, "bounds", b)
			r.seen[id] = b
			res.Aligned = append(res.Aligned, id)
		}
	}

	sort.Strings(res.Created)
	sort.Strings(res.Destroyed)
	sort.Strings(res.Aligned)
	return res
}
