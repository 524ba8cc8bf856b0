package iteration

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
	"github.com/taskflow-dev/taskflowmcp/internal/qualitygate"
	"github.com/taskflow-dev/taskflowmcp/internal/stophooks"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
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

func gateCacheWithConfig(t *testing.T, cfg qualitygate.FileConfig) *qualitygate.Cache {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "quality-gates.json")
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return qualitygate.NewCache(path)
}

func startIteration(t *testing.T, s *store.Store, bus *eventbus.Bus, taskID string) string {
	t.Helper()
	tool := NewStart(s, bus)
	params, err := json.Marshal(map[string]any{
		"taskId": taskID, "maxIterations": 3, "completionPromises": []string{"DONE"},
	})
	require.NoError(t, err)
	res, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		IterationID string `json:"iterationId"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	require.NotEmpty(t, body.IterationID)
	return body.IterationID
}

func TestStart_RejectsMissingCompletionPromises(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "a task"}, time.Now().UTC())
	require.NoError(t, err)

	tool := NewStart(s, bus)
	params, err := json.Marshal(map[string]any{"taskId": task.ID, "maxIterations": 3})
	require.NoError(t, err)

	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestStart_RejectsZeroMaxIterations(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "a task"}, time.Now().UTC())
	require.NoError(t, err)

	tool := NewStart(s, bus)
	params, err := json.Marshal(map[string]any{
		"taskId": task.ID, "maxIterations": 0, "completionPromises": []string{"DONE"},
	})
	require.NoError(t, err)

	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNext_RejectsAdvanceAtMaxIterations(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "a task"}, time.Now().UTC())
	require.NoError(t, err)

	startTool := NewStart(s, bus)
	params, err := json.Marshal(map[string]any{
		"taskId": task.ID, "maxIterations": 1, "completionPromises": []string{"DONE"},
	})
	require.NoError(t, err)
	res, err := startTool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var started struct {
		IterationID string `json:"iterationId"`
	}
	decodeResult(t, res.Content[0].Text, &started)

	nextTool := NewNext(s, bus)
	nextParams, err := json.Marshal(map[string]any{"iterationId": started.IterationID})
	require.NoError(t, err)
	res, err = nextTool.Execute(ctx, nextParams)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestComplete_HappyPathWithNoGatesCompletesTaskAndClearsHooks(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "iterate on this"}, time.Now().UTC())
	require.NoError(t, err)

	iterationID := startIteration(t, s, bus, task.ID)

	hooks := stophooks.New()
	hooks.Register(task.ID, stophooks.Default())
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{Version: "1.0", Gates: map[string]qualitygate.Gate{}})
	tool := NewComplete(s, bus, hooks, gateCache, t.TempDir())

	params, err := json.Marshal(map[string]any{"iterationId": iterationID, "completionPromise": "DONE"})
	require.NoError(t, err)

	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)

	var body struct {
		Task            *store.Task            `json:"task"`
		TotalIterations int                     `json:"totalIterations"`
		QualityGates    *qualitygate.RunResult `json:"qualityGates"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	assert.Equal(t, store.TaskStatusCompleted, body.Task.Status)
	// With no gate configured the runner returns no result at all.
	assert.Nil(t, body.QualityGates)

	_, stillRegistered := hooks.Evaluate(task.ID, stophooks.Input{IterationID: iterationID})
	assert.False(t, stillRegistered, "hooks must be cleared once the task completes")
}

func TestComplete_FailingGateRewritesCompletionToBlockedAndKeepsHooks(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "iterate on this"}, time.Now().UTC())
	require.NoError(t, err)

	iterationID := startIteration(t, s, bus, task.ID)

	hooks := stophooks.New()
	hooks.Register(task.ID, stophooks.Default())
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{
		Version:      "1.0",
		DefaultGates: []string{"lint"},
		Gates: map[string]qualitygate.Gate{
			"lint": {Command: "exit 1", ExpectedExitCode: 0},
		},
	})
	tool := NewComplete(s, bus, hooks, gateCache, t.TempDir())

	params, err := json.Marshal(map[string]any{"iterationId": iterationID, "completionPromise": "DONE"})
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

	_, stillRegistered := hooks.Evaluate(task.ID, stophooks.Input{IterationID: iterationID})
	assert.True(t, stillRegistered, "hooks must not be cleared when completion is blocked by a failing gate")
}

func TestIterationLoop_HappyPath(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	ctx := context.Background()
	hooks := stophooks.New()

	task, err := s.CreateTask(ctx, &store.Task{Title: "iterate on this"}, time.Now().UTC())
	require.NoError(t, err)

	startTool := NewStart(s, bus)
	params, err := json.Marshal(map[string]any{
		"taskId": task.ID, "maxIterations": 3,
		"completionPromises": []string{"<promise>COMPLETE</promise>"},
	})
	require.NoError(t, err)
	res, err := startTool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)
	var started struct {
		IterationID string `json:"iterationId"`
	}
	decodeResult(t, res.Content[0].Text, &started)

	validateTool := NewValidate(s, bus, hooks)

	vparams, err := json.Marshal(map[string]any{"iterationId": started.IterationID, "agentOutput": "working"})
	require.NoError(t, err)
	res, err = validateTool.Execute(ctx, vparams)
	require.NoError(t, err)
	require.False(t, res.IsError)
	var first struct {
		CompletionSignal string `json:"completionSignal"`
	}
	decodeResult(t, res.Content[0].Text, &first)
	assert.Equal(t, "CONTINUE", first.CompletionSignal)

	nextTool := NewNext(s, bus)
	nparams, err := json.Marshal(map[string]any{"iterationId": started.IterationID})
	require.NoError(t, err)
	res, err = nextTool.Execute(ctx, nparams)
	require.NoError(t, err)
	require.False(t, res.IsError)

	vparams, err = json.Marshal(map[string]any{
		"iterationId": started.IterationID, "agentOutput": "done <promise>COMPLETE</promise>",
	})
	require.NoError(t, err)
	res, err = validateTool.Execute(ctx, vparams)
	require.NoError(t, err)
	require.False(t, res.IsError)
	var second struct {
		CompletionSignal string `json:"completionSignal"`
		DetectedPromise  string `json:"detectedPromise"`
	}
	decodeResult(t, res.Content[0].Text, &second)
	assert.Equal(t, "COMPLETE", second.CompletionSignal)
	assert.Contains(t, second.DetectedPromise, "<promise>COMPLETE</promise>")

	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{Version: "1.0", Gates: map[string]qualitygate.Gate{}})
	completeTool := NewComplete(s, bus, hooks, gateCache, t.TempDir())
	cparams, err := json.Marshal(map[string]any{
		"iterationId": started.IterationID, "completionPromise": "<promise>COMPLETE</promise>",
	})
	require.NoError(t, err)
	res, err = completeTool.Execute(ctx, cparams)
	require.NoError(t, err)
	require.False(t, res.IsError)

	completed, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskStatusCompleted, completed.Status)
	assert.Contains(t, completed.Notes, "Iteration completed: <promise>COMPLETE</promise>")
}

func TestValidate_CircuitBreakerEscalates(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	ctx := context.Background()
	hooks := stophooks.New()

	task, err := s.CreateTask(ctx, &store.Task{Title: "stubborn task"}, time.Now().UTC())
	require.NoError(t, err)

	startTool := NewStart(s, bus)
	params, err := json.Marshal(map[string]any{
		"taskId": task.ID, "maxIterations": 10,
		"completionPromises":      []string{"DONE"},
		"circuitBreakerThreshold": 2,
	})
	require.NoError(t, err)
	res, err := startTool.Execute(ctx, params)
	require.NoError(t, err)
	require.False(t, res.IsError)
	var started struct {
		IterationID string `json:"iterationId"`
	}
	decodeResult(t, res.Content[0].Text, &started)

	nextTool := NewNext(s, bus)
	for i := 0; i < 2; i++ {
		nparams, err := json.Marshal(map[string]any{
			"iterationId":      started.IterationID,
			"validationResult": map[string]any{"validationPassed": false},
		})
		require.NoError(t, err)
		res, err = nextTool.Execute(ctx, nparams)
		require.NoError(t, err)
		require.False(t, res.IsError)
	}

	validateTool := NewValidate(s, bus, hooks)
	vparams, err := json.Marshal(map[string]any{"iterationId": started.IterationID, "agentOutput": "still failing"})
	require.NoError(t, err)
	res, err = validateTool.Execute(ctx, vparams)
	require.NoError(t, err)
	require.False(t, res.IsError)
	var body struct {
		CompletionSignal string `json:"completionSignal"`
	}
	decodeResult(t, res.Content[0].Text, &body)
	assert.Equal(t, "ESCALATE", body.CompletionSignal)
}

func TestComplete_RejectsUnconfiguredPromise(t *testing.T) {
	s := newTestStore(t)
	bus := eventbus.New(zap.NewNop())
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{Title: "iterate on this"}, time.Now().UTC())
	require.NoError(t, err)

	iterationID := startIteration(t, s, bus, task.ID)

	hooks := stophooks.New()
	gateCache := gateCacheWithConfig(t, qualitygate.FileConfig{Version: "1.0", Gates: map[string]qualitygate.Gate{}})
	tool := NewComplete(s, bus, hooks, gateCache, t.TempDir())

	params, err := json.Marshal(map[string]any{"iterationId": iterationID, "completionPromise": "NOT-CONFIGURED"})
	require.NoError(t, err)

	res, err := tool.Execute(ctx, params)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
