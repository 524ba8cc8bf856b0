package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskflow-dev/taskflowmcp/internal/qualitygate"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

func TestCheckpointSweep_RemovesExpiredCheckpoints(t *testing.T) {
	s, cleanup, err := store.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	ctx := context.Background()
	now := time.Now().UTC()
	task, err := s.CreateTask(ctx, &store.Task{Title: "t"}, now)
	require.NoError(t, err)

	expired := now.Add(-time.Hour)
	_, err = s.InsertCheckpoint(ctx, &store.Checkpoint{TaskID: task.ID, Trigger: "auto", Status: "saved", CreatedAt: now, ExpiresAt: &expired})
	require.NoError(t, err)

	sweep := CheckpointSweep(s)
	assert.Equal(t, "checkpoint_sweep", sweep.Name)
	assert.Equal(t, time.Hour, sweep.Interval)
	require.NoError(t, sweep.Run(ctx))

	cps, err := s.ListCheckpoints(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func TestGateConfigRefresh_ClearsCache(t *testing.T) {
	cache := qualitygate.NewCache("/nonexistent/quality-gates.json")
	_, err := cache.Load()
	require.NoError(t, err)

	sweep := GateConfigRefresh(cache)
	assert.Equal(t, "gate_config_refresh", sweep.Name)
	assert.NoError(t, sweep.Run(context.Background()))
}
