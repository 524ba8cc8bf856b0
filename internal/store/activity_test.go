package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendActivityNow_AndListActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	init, _, err := s.LinkInitiative(ctx, "INIT-1", "initiative", "desc", now)
	require.NoError(t, err)

	require.NoError(t, s.AppendActivityNow(ctx, init.ID, "task", "TASK-1", "created task", map[string]any{"status": "pending"}, now))
	require.NoError(t, s.AppendActivityNow(ctx, init.ID, "task", "TASK-1", "started task", nil, now.Add(time.Minute)))

	entries, err := s.ListActivity(ctx, init.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "started task", entries[0].Summary) // newest first
}

func TestListActivity_UnboundedWhenNonPositiveLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	init, _, err := s.LinkInitiative(ctx, "INIT-1", "initiative", "desc", now)
	require.NoError(t, err)
	require.NoError(t, s.AppendActivityNow(ctx, init.ID, "task", "TASK-1", "created", nil, now))

	entries, err := s.ListActivity(ctx, init.ID, -5)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInitiativeIDForTask_WalksParentChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	init, _, err := s.LinkInitiative(ctx, "INIT-1", "initiative", "desc", now)
	require.NoError(t, err)
	prd, err := s.CreatePRD(ctx, &PRD{InitiativeID: init.ID, Title: "prd"}, now)
	require.NoError(t, err)

	parent, err := s.CreateTask(ctx, &Task{Title: "parent", PRDID: &prd.ID}, now)
	require.NoError(t, err)
	child, err := s.CreateTask(ctx, &Task{Title: "child", ParentID: &parent.ID}, now)
	require.NoError(t, err)

	resolved, err := s.InitiativeIDForTask(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, init.ID, resolved)
}

func TestInitiativeIDForTask_NoPRDReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task, err := s.CreateTask(ctx, &Task{Title: "orphan"}, now)
	require.NoError(t, err)

	resolved, err := s.InitiativeIDForTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
