package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, cleanup, err := OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return s
}

func TestCreateTask_AssignsIDAndDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "build the thing"}, now)
	require.NoError(t, err)

	assert.True(t, hasPrefixTask(task.ID))
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, now, task.CreatedAt)
}

func hasPrefixTask(id string) bool {
	return len(id) > 5 && id[:5] == "TASK-"
}

func TestGetTask_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := s.CreateTask(ctx, &Task{Title: "a task"}, now)
	require.NoError(t, err)

	fetched, err := s.GetTask(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "a task", fetched.Title)
}

func TestGetTask_MissingReturnsNilNoError(t *testing.T) {
	s := newTestStore(t)
	task, err := s.GetTask(context.Background(), "TASK-does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSubtaskCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	parent, err := s.CreateTask(ctx, &Task{Title: "parent"}, now)
	require.NoError(t, err)

	child1, err := s.CreateTask(ctx, &Task{Title: "child1", ParentID: &parent.ID}, now)
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, &Task{Title: "child2", ParentID: &parent.ID}, now)
	require.NoError(t, err)

	total, completed, err := s.SubtaskCounts(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, completed)

	_, err = s.ApplyTaskUpdate(ctx, child1.ID, TaskUpdate{Status: TaskStatusCompleted, SetStatus: true}, now)
	require.NoError(t, err)

	total, completed, err = s.SubtaskCounts(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, completed)
}

func TestApplyTaskUpdate_MergesMetadataPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)
	require.NoError(t, s.ApplyTaskMetadata(ctx, task.ID, map[string]any{"streamName": "Foundation"}, now))
	_, err = s.ApplyTaskUpdate(ctx, task.ID, TaskUpdate{MetadataPatch: map[string]any{"streamPhase": "foundation"}}, now)
	require.NoError(t, err)

	updated, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	md := updated.Metadata()
	assert.Equal(t, "foundation", md["streamPhase"])
	assert.Equal(t, "Foundation", md["streamName"])
}

func TestApplyTaskUpdate_RejectsArchivedTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	streamID := "foundation"
	task, err := s.CreateTask(ctx, &Task{Title: "t", StreamID: &streamID}, now)
	require.NoError(t, err)

	n, err := s.ArchiveTasksByStream(ctx, []string{streamID}, "INIT-1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.ApplyTaskUpdate(ctx, task.ID, TaskUpdate{Notes: strPtr("x")}, now)
	assert.Error(t, err)
}

func TestApplyTaskMetadata_OverwritesWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "t"}, now)
	require.NoError(t, err)
	require.NoError(t, s.ApplyTaskMetadata(ctx, task.ID, map[string]any{"keepMe": "no"}, now))

	err = s.ApplyTaskMetadata(ctx, task.ID, map[string]any{"continuation": map[string]any{"continuationCount": 3}}, now)
	require.NoError(t, err)

	updated, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	md := updated.Metadata()
	_, hasOldKey := md["keepMe"]
	assert.False(t, hasOldKey, "ApplyTaskMetadata must overwrite, not merge")
	assert.Contains(t, md, "continuation")
}

func TestApplyTaskMetadata_MissingTaskReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.ApplyTaskMetadata(context.Background(), "TASK-missing", map[string]any{}, time.Now().UTC())
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }
