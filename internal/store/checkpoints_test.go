package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertCheckpoint_PrunesBeyondFive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)

	var totalPruned int
	for i := 0; i < 7; i++ {
		pruned, err := s.InsertCheckpoint(ctx, &Checkpoint{TaskID: task.ID, Trigger: "manual", Status: "saved", CreatedAt: now.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
		totalPruned += pruned
	}

	cps, err := s.ListCheckpoints(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, cps, MaxCheckpointsPerTask)
	assert.Equal(t, 2, totalPruned)
	// Newest sequence first; the two oldest (sequence 1, 2) were pruned.
	assert.Equal(t, 7, cps[0].Sequence)
	assert.Equal(t, 3, cps[len(cps)-1].Sequence)
}

func TestInsertCheckpoint_SequenceIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)

	_, err = s.InsertCheckpoint(ctx, &Checkpoint{TaskID: task.ID, Trigger: "manual", Status: "saved", CreatedAt: now})
	require.NoError(t, err)
	_, err = s.InsertCheckpoint(ctx, &Checkpoint{TaskID: task.ID, Trigger: "manual", Status: "saved", CreatedAt: now})
	require.NoError(t, err)

	next, err := s.NextCheckpointSequence(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func TestLatestCheckpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)

	cp, err := s.LatestCheckpoint(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, cp)

	_, err = s.InsertCheckpoint(ctx, &Checkpoint{TaskID: task.ID, Trigger: "manual", Status: "saved", Notes: "first", CreatedAt: now})
	require.NoError(t, err)
	_, err = s.InsertCheckpoint(ctx, &Checkpoint{TaskID: task.ID, Trigger: "manual", Status: "saved", Notes: "second", CreatedAt: now})
	require.NoError(t, err)

	cp, err = s.LatestCheckpoint(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "second", cp.Notes)
}

func TestCheckpoint_IterationConfigRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)

	cp := &Checkpoint{TaskID: task.ID, Trigger: "iteration", Status: "saved", CreatedAt: now}
	require.NoError(t, cp.SetIterationConfig(&IterationConfig{MaxIterations: 5}))
	one := 1
	cp.IterationNumber = &one
	require.NoError(t, cp.SetCompletionPromises([]string{"DONE"}))

	_, err = s.InsertCheckpoint(ctx, cp)
	require.NoError(t, err)
	assert.True(t, cp.IsIteration())

	fetched, err := s.GetCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.True(t, fetched.IsIteration())

	cfg, err := fetched.IterationConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, []string{"DONE"}, fetched.CompletionPromises())
}

func TestCheckpoint_NonIterationHasNilConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)

	cp := &Checkpoint{TaskID: task.ID, Trigger: "manual", Status: "saved", CreatedAt: now}
	_, err = s.InsertCheckpoint(ctx, cp)
	require.NoError(t, err)

	assert.False(t, cp.IsIteration())
	cfg, err := cp.IterationConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestUpdateCheckpointIteration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)

	cp := &Checkpoint{TaskID: task.ID, Trigger: "iteration", Status: "saved", CreatedAt: now}
	require.NoError(t, cp.SetIterationConfig(&IterationConfig{MaxIterations: 3}))
	one := 1
	cp.IterationNumber = &one
	_, err = s.InsertCheckpoint(ctx, cp)
	require.NoError(t, err)

	two := 2
	cp.IterationNumber = &two
	require.NoError(t, cp.SetValidationState(map[string]any{"completionSignal": "CONTINUE"}))
	require.NoError(t, s.UpdateCheckpointIteration(ctx, cp))

	fetched, err := s.GetCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.IterationNumber)
	assert.Equal(t, 2, *fetched.IterationNumber)
	state, ok := fetched.ValidationState()
	require.True(t, ok)
	assert.Equal(t, "CONTINUE", state["completionSignal"])
}

func TestUpdateCheckpointIteration_MissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateCheckpointIteration(context.Background(), &Checkpoint{ID: "CP-missing"})
	assert.Error(t, err)
}

func TestCleanupCheckpoints_RemovesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)

	expired := now.Add(-time.Hour)
	_, err = s.InsertCheckpoint(ctx, &Checkpoint{TaskID: task.ID, Trigger: "auto", Status: "saved", CreatedAt: now, ExpiresAt: &expired})
	require.NoError(t, err)
	_, err = s.InsertCheckpoint(ctx, &Checkpoint{TaskID: task.ID, Trigger: "manual", Status: "saved", CreatedAt: now})
	require.NoError(t, err)

	result, err := s.CleanupCheckpoints(ctx, now, time.Time{}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Remaining)
}

func TestCleanupCheckpoints_PrunesToKeepLatestForOneTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.InsertCheckpoint(ctx, &Checkpoint{TaskID: task.ID, Trigger: "manual", Status: "saved", CreatedAt: now})
		require.NoError(t, err)
	}

	result, err := s.CleanupCheckpoints(ctx, now, time.Time{}, task.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)

	cps, err := s.ListCheckpoints(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, cps, 1)
}
