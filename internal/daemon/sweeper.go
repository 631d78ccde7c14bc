package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/1broseidon/overlayshell/internal/clock"
)

// DefaultSweepInterval is how often expired cache entries are reclaimed.
const DefaultSweepInterval = 10 * time.Minute

// Sweepable is a store that can reclaim expired entries.
type Sweepable interface {
	Sweep() error
}

// Sweeper periodically reclaims expired asset cache entries.
type Sweeper struct {
	store    Sweepable
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSweeper returns a Sweeper for store.
func NewSweeper(store Sweepable, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, clock: clk, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

// SweepNow runs one sweep and logs its outcome.
func (s *Sweeper) SweepNow() {
	start := s.clock.Now()
	if err := s.store.Sweep(); err != nil {
		s.logger.Warn("cache sweep failed", "error", err)
		return
	}
	s.logger.Debug("cache swept", "duration", s.clock.Now().Sub(start))
}
