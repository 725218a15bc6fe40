package registry

import (
	"context"
	"time"

	"github.com/piyushrajyadav/drop-fade/internal/logging"
)

// DefaultSweepInterval is how often expired records are purged.
const DefaultSweepInterval = time.Minute

// SweepConfig holds configuration for the sweep job
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	Store    *Store
	Logger   *logging.Logger
	// OnSwept receives the records removed by each run, e.g. to delete
	// their blobs. It runs after the store lock is released.
	OnSwept func(ctx context.Context, removed []ContentRecord)
}

// StartSweepJob periodically purges expired records until ctx is cancelled.
// It blocks, so callers normally run it in its own goroutine.
func StartSweepJob(ctx context.Context, cfg SweepConfig) {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	log = log.With(logging.Fields{"service": "sweep"})

	if !cfg.Enabled || cfg.Store == nil {
		log.Info("disabled", nil)
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}

	log.Info("starting", logging.Fields{"interval": cfg.Interval.String()})

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting_down", nil)
			return
		case <-ticker.C:
			RunSweep(ctx, cfg, log)
		}
	}
}

// RunSweep performs a single sweep pass and returns how many records it removed.
func RunSweep(ctx context.Context, cfg SweepConfig, log *logging.Logger) int {
	start := time.Now()
	removed := cfg.Store.SweepExpired(cfg.Store.Now())

	if len(removed) > 0 && cfg.OnSwept != nil {
		cfg.OnSwept(ctx, removed)
	}

	if log != nil && len(removed) > 0 {
		log.Info("sweep_complete", logging.Fields{
			"removed":     len(removed),
			"remaining":   cfg.Store.Len(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
	return len(removed)
}
