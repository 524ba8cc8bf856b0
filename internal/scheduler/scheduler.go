// Package scheduler drives the engine's background maintenance: the
// periodic checkpoint-expiry sweep and the quality-gate config cache
// refresh. Each sweep is a named closure with its own interval; a
// failed run is logged and retried on the next tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is one maintenance sweep's body.
type Func func(ctx context.Context) error

// Entry pairs a sweep with its cadence. Constructors for the engine's
// sweeps live in maintenance.go.
type Entry struct {
	Name     string
	Interval time.Duration
	Run      Func
}

// Runner owns a fixed set of entries, each ticking on its own
// goroutine between Start and Stop (or context cancellation).
type Runner struct {
	logger  *zap.Logger
	entries []Entry
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New builds a runner over the given entries. A nil logger is replaced
// with a no-op one.
func New(logger *zap.Logger, entries ...Entry) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, entries: entries, stop: make(chan struct{})}
}

// Start launches every well-formed entry. Entries with no body or a
// non-positive interval are skipped.
func (r *Runner) Start(ctx context.Context) {
	for _, e := range r.entries {
		if e.Run == nil || e.Interval <= 0 {
			r.logger.Warn("skipping malformed maintenance entry", zap.String("sweep", e.Name))
			continue
		}
		r.wg.Add(1)
		go r.tick(ctx, e)
	}
}

func (r *Runner) tick(ctx context.Context, e Entry) {
	defer r.wg.Done()

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	r.logger.Info("maintenance sweep scheduled",
		zap.String("sweep", e.Name), zap.Duration("interval", e.Interval))

	for {
		select {
		case <-ticker.C:
			if err := e.Run(ctx); err != nil {
				r.logger.Warn("maintenance sweep failed",
					zap.String("sweep", e.Name), zap.Error(err))
			}
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts every sweep and waits for in-flight runs to return. Safe
// to call more than once.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
	r.logger.Info("maintenance stopped")
}
