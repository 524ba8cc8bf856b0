package entities

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/qualitygate"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
	"github.com/taskflow-dev/taskflowmcp/internal/validation"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, cleanup, err := store.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return s
}

func decodeResult(t *testing.T, text string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(text), v))
}

// gateCacheWithConfig writes a quality-gates.json to a temp dir and
// returns a Cache pointed at it, so tests can control exactly which
// gates are effective without touching a real project.
func gateCacheWithConfig(t *testing.T, cfg qualitygate.FileConfig) *qualitygate.Cache {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "quality-gates.json")
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return qualitygate.NewCache(path)
}

func TestTaskCreate_AssignsIDAndAutoDetectsActivationMode(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	tool := NewTaskCreate(s, bus, zap.NewNop())

	params, err := json.Marshal(map[string]any{"title": "ultrawork the auth migration"})
	require.NoError(t, err)

	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	assert.Equal(t, store.TaskStatusPending, body.Status)
	assert.NotEmpty(t, body.ID)
}

func TestTaskCreate_StreamDependencyCycleFails(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	tool := NewTaskCreate(s, bus, zap.NewNop())
	ctx := context.Background()

	mkTask := func(streamID string, deps []string) *mcp.ToolsCallResult {
		params, err := json.Marshal(map[string]any{
			"title": "work in " + streamID, "streamId": streamID, "streamDependencies": deps,
		})
		require.NoError(t, err)
		res, err := tool.Execute(ctx, params)
		require.NoError(t, err)
		return res
	}

	require.False(t, mkTask("stream-a", nil).IsError)
	require.False(t, mkTask("stream-b", []string{"stream-a"}).IsError)

	res := mkTask("stream-a", []string{"stream-b"})
	require.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "Circular dependency detected")
}

func TestTaskCreate_ExplicitNullDisablesActivationDetection(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	tool := NewTaskCreate(s, bus, zap.NewNop())

	res, err := tool.Execute(context.Background(),
		json.RawMessage(`{"title": "quick thorough analysis", "activationMode": null}`))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var created struct {
		ID string `json:"id"`
	}
	decodeResult(t, res.Content[0].Text, &created)
	task, err := s.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	_, hasMode := task.Metadata()["activationMode"]
	assert.False(t, hasMode)
}

func TestTaskCreate_LastActivationKeywordWins(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	tool := NewTaskCreate(s, bus, zap.NewNop())

	res, err := tool.Execute(context.Background(),
		json.RawMessage(`{"title": "quick pass", "description": "then a thorough review"}`))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var created struct {
		ID string `json:"id"`
	}
	decodeResult(t, res.Content[0].Text, &created)
	task, err := s.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "thorough", task.Metadata()["activationMode"])
}

func TestTaskCreate_RejectsMissingTitle(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	tool := NewTaskCreate(s, bus, zap.NewNop())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTaskUpdate_CompletionWithNoGatesConfiguredSucceeds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "ship it"}, time.Now().UTC())
	require.NoError(t, err)

	bus := eventbus.New(zap.NewNop())
	validators := validation.NewRegistry()
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{Version: "1.0", Gates: map[string]qualitygate.Gate{}})
	tool := NewTaskUpdate(s, bus, validators, gateCache, t.TempDir(), false, zap.NewNop())

	status := store.TaskStatusCompleted
	params, err := json.Marshal(map[string]any{"taskId": task.ID, "status": status})
	require.NoError(t, err)

	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		Task *store.Task `json:"task"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	assert.Equal(t, store.TaskStatusCompleted, body.Task.Status)
}

func TestTaskUpdate_FailingGateRewritesCompletionToBlocked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "ship it"}, time.Now().UTC())
	require.NoError(t, err)

	bus := eventbus.New(zap.NewNop())
	validators := validation.NewRegistry()
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{
		Version:      "1.0",
		DefaultGates: []string{"lint"},
		Gates: map[string]qualitygate.Gate{
			"lint": {Command: "exit 1", ExpectedExitCode: 0},
		},
	})
	tool := NewTaskUpdate(s, bus, validators, gateCache, t.TempDir(), false, zap.NewNop())

	status := store.TaskStatusCompleted
	params, err := json.Marshal(map[string]any{"taskId": task.ID, "status": status})
	require.NoError(t, err)

	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		Task         *store.Task            `json:"task"`
		QualityGates *qualitygate.RunResult `json:"qualityGates"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	assert.Equal(t, store.TaskStatusBlocked, body.Task.Status)
	require.NotNil(t, body.QualityGates)
	assert.False(t, body.QualityGates.AllPassed)
	assert.NotEmpty(t, body.Task.BlockedReason)
}

func TestTaskUpdate_ForceStillRunsQualityGates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "ship it"}, time.Now().UTC())
	require.NoError(t, err)

	bus := eventbus.New(zap.NewNop())
	validators := validation.NewRegistry()
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{
		Version:      "1.0",
		DefaultGates: []string{"lint"},
		Gates: map[string]qualitygate.Gate{
			"lint": {Command: "exit 1", ExpectedExitCode: 0},
		},
	})
	tool := NewTaskUpdate(s, bus, validators, gateCache, t.TempDir(), false, zap.NewNop())

	status := store.TaskStatusCompleted
	params, err := json.Marshal(map[string]any{"taskId": task.ID, "status": status, "force": true})
	require.NoError(t, err)

	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		Task *store.Task `json:"task"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	// force bypasses only the subtask-completion guard; a failing
	// quality gate still rewrites the transition to blocked.
	assert.Equal(t, store.TaskStatusBlocked, body.Task.Status)
}

func TestTaskUpdate_AutoCheckpointsOnInProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "a task"}, time.Now().UTC())
	require.NoError(t, err)

	bus := eventbus.New(zap.NewNop())
	validators := validation.NewRegistry()
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{Version: "1.0", Gates: map[string]qualitygate.Gate{}})
	tool := NewTaskUpdate(s, bus, validators, gateCache, t.TempDir(), true, zap.NewNop())

	params, err := json.Marshal(map[string]any{"taskId": task.ID, "status": store.TaskStatusInProgress})
	require.NoError(t, err)
	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	cps, err := s.ListCheckpoints(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, store.TriggerAutoStatus, cps[0].Trigger)
	assert.Equal(t, store.TaskStatusInProgress, cps[0].Status)
}

func TestTaskUpdate_CompletedToCompletedIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "done already"}, time.Now().UTC())
	require.NoError(t, err)
	_, err = s.ApplyTaskUpdate(ctx, task.ID, store.TaskUpdate{
		Status: store.TaskStatusCompleted, SetStatus: true,
	}, time.Now().UTC())
	require.NoError(t, err)

	bus := eventbus.New(zap.NewNop())
	validators := validation.NewRegistry()
	// A failing default gate would rewrite the transition if it ran.
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{
		Version:      "1.0",
		DefaultGates: []string{"lint"},
		Gates:        map[string]qualitygate.Gate{"lint": {Command: "exit 1"}},
	})
	tool := NewTaskUpdate(s, bus, validators, gateCache, t.TempDir(), false, zap.NewNop())

	params, err := json.Marshal(map[string]any{"taskId": task.ID, "status": store.TaskStatusCompleted})
	require.NoError(t, err)
	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		Task *store.Task `json:"task"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	assert.Equal(t, store.TaskStatusCompleted, body.Task.Status)
}

func TestTaskUpdate_CompletionRecordsSuccessOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := "backend-dev"
	task, err := s.CreateTask(ctx, &store.Task{Title: "ship it", AssignedAgent: &agent}, time.Now().UTC())
	require.NoError(t, err)

	bus := eventbus.New(zap.NewNop())
	validators := validation.NewRegistry()
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{Version: "1.0", Gates: map[string]qualitygate.Gate{}})
	tool := NewTaskUpdate(s, bus, validators, gateCache, t.TempDir(), false, zap.NewNop())

	params, err := json.Marshal(map[string]any{"taskId": task.ID, "status": store.TaskStatusCompleted})
	require.NoError(t, err)
	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	records, err := s.AgentPerformance(ctx, agent)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.OutcomeSuccess, records[0].Outcome)
}

func TestTaskUpdate_RejectsIllegalTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "a task"}, time.Now().UTC())
	require.NoError(t, err)
	_, err = s.ApplyTaskUpdate(ctx, task.ID, store.TaskUpdate{
		Status: store.TaskStatusCancelled, SetStatus: true,
	}, time.Now().UTC())
	require.NoError(t, err)

	bus := eventbus.New(zap.NewNop())
	validators := validation.NewRegistry()
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{Version: "1.0", Gates: map[string]qualitygate.Gate{}})
	tool := NewTaskUpdate(s, bus, validators, gateCache, t.TempDir(), false, zap.NewNop())

	status := store.TaskStatusInProgress
	params, err := json.Marshal(map[string]any{"taskId": task.ID, "status": status})
	require.NoError(t, err)

	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
