// Package checkpoint implements the checkpoint_create/_get/_list/_resume/
// _cleanup tools: recoverable, ordered task snapshots.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

const (
	maxDraftContentBytes = 50 * 1024
	truncationMarker      = "\n\n[TRUNCATED]"
	draftPreviewLen       = 200
)

// createParams defines the input for checkpoint_create.
type createParams struct {
	TaskID          string                 `json:"taskId"`
	Trigger         string                 `json:"trigger"`
	ExecutionPhase  string                 `json:"executionPhase,omitempty"`
	ExecutionStep   string                 `json:"executionStep,omitempty"`
	AgentContext    map[string]any         `json:"agentContext,omitempty"`
	DraftContent    string                 `json:"draftContent,omitempty"`
	DraftType       string                 `json:"draftType,omitempty"`
	PauseMetadata   map[string]any         `json:"pauseMetadata,omitempty"`
	IterationConfig *store.IterationConfig `json:"iterationConfig,omitempty"`
	IterationNumber *int                   `json:"iterationNumber,omitempty"`
	ExpiresIn       int                    `json:"expiresIn,omitempty"`
}

// pauseKeys are the fields pauseMetadata contributes to agentContext;
// pausedAt marks the context as paused for resume detection.
var pauseKeys = []string{"pauseReason", "pausedBy", "nextSteps", "blockers", "keyFiles", "estimatedResumeTime", "pausedAt"}

// Create implements checkpoint_create: snapshots a task's current
// subtask states, computes the trigger-appropriate expiry, truncates
// oversized draft content, folds any pause metadata into the agent
// context, and prunes checkpoints beyond the per-task retention cap.
type Create struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewCreate builds the checkpoint_create tool.
func NewCreate(s *store.Store, bus *eventbus.Bus) *Create { return &Create{store: s, bus: bus} }

func (t *Create) Name() string { return "checkpoint_create" }

func (t *Create) Description() string {
	return "Create a recoverable snapshot of a task's current state. Manual checkpoints expire after 7 days, auto-triggered ones after 24 hours. Draft content over 50KiB is truncated. Retains at most 5 checkpoints per task, pruning the oldest."
}

func (t *Create) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "taskId": {"type": "string"},
    "trigger": {"type": "string", "enum": ["manual", "auto_status", "auto_iteration"]},
    "executionPhase": {"type": "string"},
    "executionStep": {"type": "string"},
    "agentContext": {"type": "object"},
    "draftContent": {"type": "string"},
    "draftType": {"type": "string"},
    "pauseMetadata": {"type": "object", "description": "pauseReason, pausedBy, nextSteps, blockers, keyFiles, estimatedResumeTime; merged into agentContext"},
    "iterationConfig": {"type": "object", "description": "Presence marks this an iteration checkpoint"},
    "iterationNumber": {"type": "integer"},
    "expiresIn": {"type": "integer", "description": "Override expiry, in minutes"}
  },
  "required": ["taskId", "trigger"]
}`)
}

func (t *Create) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p createParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.TaskID == "" || p.Trigger == "" {
		return mcp.ErrorResult("taskId and trigger are required"), nil
	}

	task, err := t.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	if task == nil {
		return mcp.ErrorResult(fmt.Sprintf("task %q not found", p.TaskID)), nil
	}

	now := time.Now().UTC()
	var expires *time.Time
	switch p.Trigger {
	case store.TriggerManual:
		e := now.Add(store.ManualTTL)
		expires = &e
	case store.TriggerAutoStatus, store.TriggerAutoIteration:
		e := now.Add(store.AutoTTL)
		expires = &e
	default:
		return mcp.ErrorResult(fmt.Sprintf("unknown trigger %q", p.Trigger)), nil
	}
	if p.ExpiresIn > 0 {
		e := now.Add(time.Duration(p.ExpiresIn) * time.Minute)
		expires = &e
	}
	// Iteration checkpoints never expire, regardless of trigger.
	if p.IterationConfig != nil {
		expires = nil
	}

	draft := p.DraftContent
	if len(draft) > maxDraftContentBytes {
		draft = draft[:maxDraftContentBytes] + truncationMarker
	}

	agentContext := p.AgentContext
	if agentContext == nil {
		agentContext = map[string]any{}
	}
	if p.PauseMetadata != nil {
		for _, k := range pauseKeys {
			if v, ok := p.PauseMetadata[k]; ok {
				agentContext[k] = v
			}
		}
		if _, ok := agentContext["pausedAt"]; !ok {
			agentContext["pausedAt"] = now.Format(time.RFC3339)
		}
	}

	subtasks, err := t.store.Subtasks(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading subtasks: %w", err)
	}
	states := make([]store.SubtaskState, 0, len(subtasks))
	for _, st := range subtasks {
		states = append(states, store.SubtaskState{ID: st.ID, Status: st.Status})
	}

	// Snapshot the task's current fields (status, notes, metadata,
	// blocked reason, assigned agent).
	cp := &store.Checkpoint{
		TaskID: p.TaskID, Trigger: p.Trigger, Status: task.Status, Notes: task.Notes,
		MetadataRaw: task.MetadataRaw, BlockedReason: task.BlockedReason, AssignedAgent: task.AssignedAgent,
		ExecutionPhase: p.ExecutionPhase, ExecutionStep: p.ExecutionStep,
		DraftContent: draft, DraftType: p.DraftType, CreatedAt: now, ExpiresAt: expires,
	}
	if err := cp.SetAgentContext(agentContext); err != nil {
		return nil, fmt.Errorf("encoding agent context: %w", err)
	}
	if err := cp.SetSubtaskStates(states); err != nil {
		return nil, fmt.Errorf("encoding subtask states: %w", err)
	}
	if p.IterationConfig != nil {
		if err := cp.SetIterationConfig(p.IterationConfig); err != nil {
			return nil, fmt.Errorf("encoding iteration config: %w", err)
		}
		if err := cp.SetCompletionPromises(p.IterationConfig.CompletionPromises); err != nil {
			return nil, fmt.Errorf("encoding completion promises: %w", err)
		}
		n := 1
		if p.IterationNumber != nil && *p.IterationNumber > 0 {
			n = *p.IterationNumber
		}
		cp.IterationNumber = &n
	}

	pruned, err := t.store.InsertCheckpoint(ctx, cp)
	if err != nil {
		return nil, fmt.Errorf("storing checkpoint: %w", err)
	}

	if initID, _ := t.store.InitiativeIDForTask(ctx, p.TaskID); initID != "" {
		_ = t.store.AppendActivityNow(ctx, initID, "checkpoint_created", cp.ID,
			fmt.Sprintf("Checkpoint #%d created for task %q (%s)", cp.Sequence, task.Title, cp.Trigger), nil, now)
	}

	t.bus.Publish(eventbus.Event{Topic: eventbus.CheckpointCreated, Payload: map[string]any{
		"taskId": p.TaskID, "checkpointId": cp.ID, "sequence": cp.Sequence,
	}})

	return mcp.JSONResult(map[string]any{"checkpoint": cp, "pruned": pruned})
}

// getParams defines the input for checkpoint_get.
type getParams struct {
	CheckpointID string `json:"checkpointId"`
}

// Get implements checkpoint_get.
type Get struct{ store *store.Store }

// NewGet builds the checkpoint_get tool.
func NewGet(s *store.Store) *Get { return &Get{store: s} }

func (t *Get) Name() string        { return "checkpoint_get" }
func (t *Get) Description() string { return "Fetch a checkpoint by id." }
func (t *Get) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"checkpointId":{"type":"string"}},"required":["checkpointId"]}`)
}

func (t *Get) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p getParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	cp, err := t.store.GetCheckpoint(ctx, p.CheckpointID)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	if cp == nil {
		return mcp.ErrorResult(fmt.Sprintf("checkpoint %q not found", p.CheckpointID)), nil
	}
	return mcp.JSONResult(cp)
}

// listParams defines the input for checkpoint_list.
type listParams struct {
	TaskID string `json:"taskId"`
}

// List implements checkpoint_list.
type List struct{ store *store.Store }

// NewList builds the checkpoint_list tool.
func NewList(s *store.Store) *List { return &List{store: s} }

func (t *List) Name() string        { return "checkpoint_list" }
func (t *List) Description() string { return "List a task's checkpoints, newest sequence first." }
func (t *List) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"taskId":{"type":"string"}},"required":["taskId"]}`)
}

func (t *List) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p listParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	cps, err := t.store.ListCheckpoints(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	return mcp.JSONResult(map[string]any{"checkpoints": cps, "count": len(cps)})
}

// resumeParams defines the input for checkpoint_resume.
type resumeParams struct {
	TaskID       string `json:"taskId"`
	CheckpointID string `json:"checkpointId,omitempty"`
}

// Resume implements checkpoint_resume: reconstructs a human-readable
// resumption briefing from a stored checkpoint, surfacing its restored
// status/phase/step, a draft preview, a subtask summary, any pause
// metadata, and its iteration fields when it is an iteration checkpoint.
type Resume struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewResume builds the checkpoint_resume tool.
func NewResume(s *store.Store, bus *eventbus.Bus) *Resume { return &Resume{store: s, bus: bus} }

func (t *Resume) Name() string { return "checkpoint_resume" }

func (t *Resume) Description() string {
	return "Reconstruct a resumption briefing from a stored checkpoint: restored status/phase/step, a draft preview, subtask summary, and (for iteration checkpoints) the current iteration number and completion promises."
}

func (t *Resume) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "taskId": {"type": "string"},
    "checkpointId": {"type": "string", "description": "Resume a specific checkpoint instead of the task's latest"}
  },
  "required": ["taskId"]
}`)
}

func (t *Resume) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p resumeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.TaskID == "" {
		return mcp.ErrorResult("taskId is required"), nil
	}

	var cp *store.Checkpoint
	var err error
	if p.CheckpointID != "" {
		cp, err = t.store.GetCheckpoint(ctx, p.CheckpointID)
	} else {
		cp, err = t.store.LatestCheckpoint(ctx, p.TaskID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	// Nothing to resume: absent or expired checkpoints yield null.
	if cp == nil || cp.TaskID != p.TaskID || (cp.ExpiresAt != nil && cp.ExpiresAt.Before(time.Now().UTC())) {
		return mcp.NullResult(), nil
	}

	task, err := t.store.GetTask(ctx, cp.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}

	preview := cp.DraftContent
	if r := []rune(preview); len(r) > draftPreviewLen {
		preview = string(r[:draftPreviewLen]) + "..."
	}

	states := cp.SubtaskStates()
	var completed, pending, blocked int
	for _, s := range states {
		switch s.Status {
		case store.TaskStatusCompleted:
			completed++
		case store.TaskStatusBlocked:
			blocked++
		case store.TaskStatusPending:
			pending++
		}
	}

	agentContext := cp.AgentContext()
	pause := map[string]any{}
	for _, k := range pauseKeys {
		if v, ok := agentContext[k]; ok {
			pause[k] = v
		}
	}
	paused := len(pause) > 0

	var instructions strings.Builder
	if task != nil {
		fmt.Fprintf(&instructions, "Resuming task %q at checkpoint #%d (%s).", task.Title, cp.Sequence, cp.Trigger)
	} else {
		fmt.Fprintf(&instructions, "Resuming task %q at checkpoint #%d (%s).", cp.TaskID, cp.Sequence, cp.Trigger)
	}
	if cp.ExecutionPhase != "" {
		fmt.Fprintf(&instructions, "\nExecution was at phase %q", cp.ExecutionPhase)
		if cp.ExecutionStep != "" {
			fmt.Fprintf(&instructions, ", step %q", cp.ExecutionStep)
		}
		instructions.WriteString(".")
	}
	if cp.BlockedReason != "" {
		fmt.Fprintf(&instructions, "\nThe task was blocked: %s", cp.BlockedReason)
	}
	if cp.DraftContent != "" {
		fmt.Fprintf(&instructions, "\nA %s draft was in progress; review the preview before rewriting it.", orUnknown(cp.DraftType))
	}
	if cp.AssignedAgent != nil {
		fmt.Fprintf(&instructions, "\nThe task was assigned to %s.", *cp.AssignedAgent)
	}
	if paused {
		instructions.WriteString("\nThis checkpoint carries pause metadata; review it before resuming.")
	}
	if cp.IsIteration() {
		fmt.Fprintf(&instructions, "\nThis is iteration checkpoint round %d.", deref(cp.IterationNumber))
	}

	resp := map[string]any{
		"checkpoint":         cp,
		"restoredStatus":     cp.Status,
		"restoredPhase":      cp.ExecutionPhase,
		"restoredStep":       cp.ExecutionStep,
		"agentContext":       agentContext,
		"hasDraft":           cp.DraftContent != "",
		"draftPreview":       preview,
		"subtaskSummary":     map[string]any{"total": len(states), "completed": completed, "pending": pending, "blocked": blocked},
		"resumeInstructions": instructions.String(),
	}
	if paused {
		resp["pauseMetadata"] = pause
	}
	if cp.IsIteration() {
		cfg, cfgErr := cp.IterationConfig()
		if cfgErr != nil {
			return nil, fmt.Errorf("decoding iteration config: %w", cfgErr)
		}
		resp["iterationConfig"] = cfg
		resp["iterationNumber"] = deref(cp.IterationNumber)
		resp["completionPromises"] = cp.CompletionPromises()
		resp["iterationHistory"] = cp.IterationHistory()
		if state, ok := cp.ValidationState(); ok {
			resp["validationState"] = state
		}
	}

	now := time.Now().UTC()
	if task != nil {
		if initID, _ := t.store.InitiativeIDForTask(ctx, cp.TaskID); initID != "" {
			_ = t.store.AppendActivityNow(ctx, initID, "checkpoint_resumed", cp.ID,
				fmt.Sprintf("Checkpoint #%d resumed for task %q", cp.Sequence, task.Title), nil, now)
		}
	}
	t.bus.Publish(eventbus.Event{Topic: eventbus.CheckpointResumed, Payload: map[string]any{
		"taskId": cp.TaskID, "checkpointId": cp.ID,
	}})

	return mcp.JSONResult(resp)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func orUnknown(s string) string {
	if s == "" {
		return "untyped"
	}
	return s
}

// cleanupParams defines the input for checkpoint_cleanup.
type cleanupParams struct {
	TaskID        string `json:"taskId,omitempty"`
	CutoffDays    int    `json:"cutoffDays,omitempty"`
	KeepLatest    int    `json:"keepLatest,omitempty"`
}

// Cleanup implements checkpoint_cleanup: deletes expired checkpoints,
// then checkpoints older than an optional cutoff, then (for a given
// task) prunes down to keepLatest newest. Idempotent.
type Cleanup struct{ store *store.Store }

// NewCleanup builds the checkpoint_cleanup tool.
func NewCleanup(s *store.Store) *Cleanup { return &Cleanup{store: s} }

func (t *Cleanup) Name() string { return "checkpoint_cleanup" }

func (t *Cleanup) Description() string {
	return "Delete expired checkpoints, plus (optionally) checkpoints older than cutoffDays, plus (optionally, scoped to taskId) prune down to keepLatest newest. Safe to call repeatedly."
}

func (t *Cleanup) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "taskId": {"type": "string", "description": "Scope keepLatest pruning to this task"},
    "cutoffDays": {"type": "integer", "description": "Also delete checkpoints created more than this many days ago"},
    "keepLatest": {"type": "integer", "description": "With taskId, prune down to this many newest checkpoints"}
  }
}`)
}

func (t *Cleanup) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p cleanupParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	now := time.Now().UTC()
	var cutoff time.Time
	if p.CutoffDays > 0 {
		cutoff = now.AddDate(0, 0, -p.CutoffDays)
	}
	keepLatest := p.KeepLatest
	if keepLatest == 0 && p.TaskID != "" {
		keepLatest = store.MaxCheckpointsPerTask
	}
	result, err := t.store.CleanupCheckpoints(ctx, now, cutoff, p.TaskID, keepLatest)
	if err != nil {
		return nil, fmt.Errorf("cleaning up checkpoints: %w", err)
	}
	return mcp.JSONResult(result)
}
