package scheduler

import (
	"context"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/qualitygate"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// CheckpointSweep deletes expired checkpoints across every task, the
// same operation checkpoint_cleanup performs on demand, run hourly so
// expired rows don't linger until someone asks.
func CheckpointSweep(s *store.Store) Entry {
	return Entry{
		Name:     "checkpoint_sweep",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			_, err := s.CleanupCheckpoints(ctx, time.Now().UTC(), time.Time{}, "", 0)
			return err
		},
	}
}

// GateConfigRefresh clears the quality-gate config cache every ten
// minutes so edits to .claude/quality-gates.json take effect without a
// restart.
func GateConfigRefresh(c *qualitygate.Cache) Entry {
	return Entry{
		Name:     "gate_config_refresh",
		Interval: 10 * time.Minute,
		Run: func(context.Context) error {
			c.Clear()
			return nil
		},
	}
}
