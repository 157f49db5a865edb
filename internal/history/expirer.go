package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petrel0/omnidex/internal/storage"
)

const (
	// DefaultSweepInterval is how often the expirer wakes up.
	DefaultSweepInterval = 3 * time.Minute

	// DefaultRetention is how long a page survives without a visit.
	DefaultRetention = 90 * 24 * time.Hour
)

// Expirer periodically deletes pages not visited within the retention
// window, then favicons no remaining page references. Sweeps run one at a
// time on a single goroutine; a tick that fires mid-sweep is coalesced by
// the ticker instead of starting a concurrent sweep.
type Expirer struct {
	store     storage.Store
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpirer creates an Expirer over store. interval and retention fall
// back to DefaultSweepInterval and DefaultRetention when non-positive; a
// nil logger falls back to slog.Default.
func NewExpirer(store storage.Store, interval, retention time.Duration, logger *slog.Logger) *Expirer {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Expirer{
		store:     store,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Start launches the background sweep loop. Starting a running Expirer is
// a no-op.
func (e *Expirer) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	go e.run(ctx, done)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
// Stopping a stopped Expirer is a no-op.
func (e *Expirer) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return
	}

	e.cancel()
	<-e.done
	e.cancel = nil
	e.done = nil
}

func (e *Expirer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("expirer started", "interval", e.interval, "retention", e.retention)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("expirer stopped")
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs both delete passes once: stale pages first, then orphaned
// favicons. The passes are independent; a failure is logged and the other
// pass still runs. There is no result consumer, so nothing is retried.
func (e *Expirer) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-e.retention)

	pages, err := e.store.PruneExpired(ctx, cutoff)
	if err != nil {
		e.logger.Warn("prune pages failed", "error", err)
	} else if pages > 0 {
		e.logger.Info("pruned pages", "count", pages, "cutoff", cutoff.Unix())
	}

	favicons, err := e.store.PruneOrphanFavicons(ctx)
	if err != nil {
		e.logger.Warn("prune favicons failed", "error", err)
	} else if favicons > 0 {
		e.logger.Info("pruned favicons", "count", favicons)
	}
}
