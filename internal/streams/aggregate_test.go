package streams

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

func streamTask(id, streamID, status, metadataJSON string, archived bool) *store.Task {
	sid := streamID
	task := &store.Task{ID: id, Title: id + "-title", Status: status, Archived: archived, StreamID: &sid}
	var md map[string]any
	if err := json.Unmarshal([]byte(metadataJSON), &md); err != nil {
		panic(err)
	}
	if err := task.SetMetadata(md); err != nil {
		panic(err)
	}
	return task
}

func TestAggregate_GroupsByStreamAndComputesRollup(t *testing.T) {
	tasks := []*store.Task{
		streamTask("TASK-1", "foundation", store.TaskStatusCompleted, `{"streamName":"Foundation","streamPhase":"foundation","files":["a.go"]}`, false),
		streamTask("TASK-2", "foundation", store.TaskStatusInProgress, `{"streamName":"Foundation","streamPhase":"foundation","files":["b.go"]}`, false),
		streamTask("TASK-3", "parallel", store.TaskStatusBlocked, `{"streamName":"Parallel","streamPhase":"parallel","streamDependencies":["foundation"]}`, false),
	}

	summaries := Aggregate(tasks, false)

	require.Len(t, summaries, 2)
	// foundation sorts before parallel by phase order.
	assert.Equal(t, "foundation", summaries[0].StreamID)
	assert.Equal(t, 2, summaries[0].TotalTasks)
	assert.Equal(t, 1, summaries[0].CompletedTasks)
	assert.Equal(t, 1, summaries[0].InProgressTasks)
	assert.Equal(t, []string{"a.go", "b.go"}, summaries[0].Files)

	assert.Equal(t, "parallel", summaries[1].StreamID)
	assert.Equal(t, []string{"foundation"}, summaries[1].Dependencies)
}

func TestAggregate_ExcludesArchivedByDefault(t *testing.T) {
	tasks := []*store.Task{
		streamTask("TASK-1", "a", store.TaskStatusCompleted, `{}`, true),
	}
	assert.Empty(t, Aggregate(tasks, false))
	assert.Len(t, Aggregate(tasks, true), 1)
}

func TestAggregate_IgnoresTasksWithoutStream(t *testing.T) {
	t1 := &store.Task{ID: "TASK-1", Status: store.TaskStatusPending}
	assert.Empty(t, Aggregate([]*store.Task{t1}, false))
}

func TestOverallStatus(t *testing.T) {
	t.Run("all completed", func(t *testing.T) {
		ts := []*store.Task{{Status: store.TaskStatusCompleted}, {Status: store.TaskStatusCompleted}}
		assert.Equal(t, store.TaskStatusCompleted, OverallStatus(ts))
	})
	t.Run("any blocked wins", func(t *testing.T) {
		ts := []*store.Task{{Status: store.TaskStatusCompleted}, {Status: store.TaskStatusBlocked}}
		assert.Equal(t, store.TaskStatusBlocked, OverallStatus(ts))
	})
	t.Run("any in progress without blocked", func(t *testing.T) {
		ts := []*store.Task{{Status: store.TaskStatusPending}, {Status: store.TaskStatusInProgress}}
		assert.Equal(t, store.TaskStatusInProgress, OverallStatus(ts))
	})
	t.Run("empty defaults to pending", func(t *testing.T) {
		assert.Equal(t, store.TaskStatusPending, OverallStatus(nil))
	})
}

func TestIsIsolated(t *testing.T) {
	isolated := streamTask("TASK-1", "s", store.TaskStatusInProgress, `{"worktreePath":"/tmp/wt"}`, false)
	notIsolated := streamTask("TASK-2", "s", store.TaskStatusInProgress, `{}`, false)
	assert.True(t, IsIsolated([]*store.Task{isolated}))
	assert.False(t, IsIsolated([]*store.Task{notIsolated}))
}

func TestConflictCheck(t *testing.T) {
	t.Run("finds conflicting active task outside excluded stream", func(t *testing.T) {
		other := streamTask("TASK-2", "other", store.TaskStatusInProgress, `{"streamName":"Other","files":["shared.go"]}`, false)
		conflicts := ConflictCheck([]*store.Task{other}, []string{"shared.go"}, "mine")
		require.Len(t, conflicts, 1)
		assert.Equal(t, "shared.go", conflicts[0].File)
		assert.Equal(t, "other", conflicts[0].StreamID)
	})

	t.Run("isolated excluded stream short-circuits to no conflicts", func(t *testing.T) {
		mine := streamTask("TASK-1", "mine", store.TaskStatusInProgress, `{"worktreePath":"/tmp/wt"}`, false)
		other := streamTask("TASK-2", "other", store.TaskStatusInProgress, `{"files":["shared.go"]}`, false)
		conflicts := ConflictCheck([]*store.Task{mine, other}, []string{"shared.go"}, "mine")
		assert.Empty(t, conflicts)
	})

	t.Run("isolated other stream is exempt from conflicts", func(t *testing.T) {
		other := streamTask("TASK-2", "other", store.TaskStatusInProgress, `{"worktreePath":"/tmp/wt","files":["shared.go"]}`, false)
		conflicts := ConflictCheck([]*store.Task{other}, []string{"shared.go"}, "mine")
		assert.Empty(t, conflicts)
	})

	t.Run("pending task does not conflict; only in_progress or completed tasks do", func(t *testing.T) {
		pending := streamTask("TASK-2", "other", store.TaskStatusPending, `{"files":["shared.go"]}`, false)
		conflicts := ConflictCheck([]*store.Task{pending}, []string{"shared.go"}, "mine")
		assert.Empty(t, conflicts)
	})
}
