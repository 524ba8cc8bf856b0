// Package entities implements the MCP tools for the core workflow
// entities: initiatives, PRDs, tasks, work products, handoffs, scope
// change requests, protocol violations, and agent performance.
package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/classify"
	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/qualitygate"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
	"github.com/taskflow-dev/taskflowmcp/internal/streams"
	"github.com/taskflow-dev/taskflowmcp/internal/validation"
)

// taskCreateParams defines the input for task_create.
type taskCreateParams struct {
	PRDID          string         `json:"prdId,omitempty"`
	ParentID       string         `json:"parentId,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	AssignedAgent  string         `json:"assignedAgent,omitempty"`
	StreamID       string         `json:"streamId,omitempty"`
	StreamName     string         `json:"streamName,omitempty"`
	StreamPhase    string         `json:"streamPhase,omitempty"`
	StreamDeps     []string       `json:"streamDependencies,omitempty"`
	Files          []string       `json:"files,omitempty"`
	WorktreePath   string         `json:"worktreePath,omitempty"`
	BranchName     string         `json:"branchName,omitempty"`
	Complexity     string         `json:"complexity,omitempty"`
	QualityGates   []string       `json:"qualityGates,omitempty"`
	// Raw so an explicit null (disable detection) is distinguishable
	// from an absent field (auto-detect).
	ActivationMode json.RawMessage `json:"activationMode,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// TaskCreate implements task_create: inserts a task, auto-detects its
// activation mode from title/description unless overridden, and
// enforces stream-dependency acyclicity when the task declares a
// streamId.
type TaskCreate struct {
	store  *store.Store
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewTaskCreate builds the task_create tool.
func NewTaskCreate(s *store.Store, bus *eventbus.Bus, logger *zap.Logger) *TaskCreate {
	return &TaskCreate{store: s, bus: bus, logger: logger}
}

func (t *TaskCreate) Name() string { return "task_create" }

func (t *TaskCreate) Description() string {
	return "Create a task or subtask under a PRD or parent task. Auto-detects activation mode (ultrawork/analyze/quick/thorough) from title and description unless activationMode is explicitly set."
}

func (t *TaskCreate) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "prdId": {"type": "string", "description": "PRD this task belongs to (omit for a standalone task)"},
    "parentId": {"type": "string", "description": "Parent task id, if this is a subtask"},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "assignedAgent": {"type": "string"},
    "streamId": {"type": "string", "description": "Groups this task into a parallel work stream"},
    "streamName": {"type": "string"},
    "streamPhase": {"type": "string", "enum": ["foundation", "parallel", "integration"]},
    "streamDependencies": {"type": "array", "items": {"type": "string"}, "description": "Stream ids this stream depends on"},
    "files": {"type": "array", "items": {"type": "string"}, "description": "Paths this task touches, for conflict detection"},
    "worktreePath": {"type": "string", "description": "Isolated git worktree for this stream, if any"},
    "branchName": {"type": "string"},
    "complexity": {"type": "string", "enum": ["low", "medium", "high"]},
    "qualityGates": {"type": "array", "items": {"type": "string"}, "description": "Overrides the default gate list; empty disables gates"},
    "activationMode": {"type": ["string", "null"], "description": "Override auto-detected activation mode; null disables detection"},
    "metadata": {"type": "object"}
  },
  "required": ["title"]
}`)
}

func (t *TaskCreate) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p taskCreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Title == "" {
		return mcp.ErrorResult("title is required"), nil
	}

	if p.StreamID != "" {
		existing, err := t.store.AllStreamTaskMetadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading stream graph: %w", err)
		}
		if err := streams.CheckAcyclic(existing, p.StreamID, p.StreamDeps); err != nil {
			return mcp.ErrorResult(err.Error()), nil
		}
	}

	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	if p.StreamID != "" {
		meta["streamId"] = p.StreamID
	}
	if p.StreamName != "" {
		meta["streamName"] = p.StreamName
	}
	if p.StreamPhase != "" {
		meta["streamPhase"] = p.StreamPhase
	}
	if len(p.StreamDeps) > 0 {
		meta["streamDependencies"] = toAnySlice(p.StreamDeps)
	}
	if len(p.Files) > 0 {
		meta["files"] = toAnySlice(p.Files)
	}
	if p.WorktreePath != "" {
		meta["worktreePath"] = p.WorktreePath
	}
	if p.BranchName != "" {
		meta["branchName"] = p.BranchName
	}
	if p.Complexity != "" {
		meta["complexity"] = p.Complexity
	}
	if p.QualityGates != nil {
		meta["qualityGates"] = toAnySlice(p.QualityGates)
	}

	override, err := decodeActivationOverride(p.ActivationMode)
	if err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	mode, ok := classify.ResolveActivationMode(p.Title, p.Description, override)
	if ok {
		meta["activationMode"] = string(mode)
	}

	task := &store.Task{
		Title:       p.Title,
		Description: p.Description,
	}
	if p.PRDID != "" {
		task.PRDID = &p.PRDID
	}
	if p.ParentID != "" {
		task.ParentID = &p.ParentID
	}
	if p.AssignedAgent != "" {
		task.AssignedAgent = &p.AssignedAgent
	}
	if p.StreamID != "" {
		task.StreamID = &p.StreamID
	}
	if err := task.SetMetadata(meta); err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	now := time.Now().UTC()
	created, err := t.store.CreateTask(ctx, task, now)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	if initID, err := t.store.InitiativeIDForTask(ctx, created.ID); err == nil && initID != "" {
		_ = t.store.AppendActivityNow(ctx, initID, "task", created.ID,
			fmt.Sprintf("Created task %q", created.Title), map[string]any{"status": created.Status}, now)
	}

	t.bus.Publish(eventbus.Event{Topic: eventbus.TaskCreated, Payload: map[string]any{
		"taskId": created.ID, "prdId": p.PRDID, "streamId": p.StreamID,
	}})

	return mcp.JSONResult(created)
}

// decodeActivationOverride maps the raw activationMode field to the
// classify override: absent -> nil (auto-detect), explicit null -> a
// pointer to "" (detection disabled), a string -> that mode, validated.
func decodeActivationOverride(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if string(raw) == "null" {
		disabled := ""
		return &disabled, nil
	}
	var mode string
	if err := json.Unmarshal(raw, &mode); err != nil {
		return nil, fmt.Errorf("activationMode must be a string or null")
	}
	switch store.ActivationMode(mode) {
	case store.ActivationUltrawork, store.ActivationAnalyze, store.ActivationQuick, store.ActivationThorough:
		return &mode, nil
	}
	return nil, fmt.Errorf("invalid activation mode %q", mode)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// taskUpdateParams defines the input for task_update.
type taskUpdateParams struct {
	TaskID        string         `json:"taskId"`
	Status        *string        `json:"status,omitempty"`
	AssignedAgent *string        `json:"assignedAgent,omitempty"`
	BlockedReason *string        `json:"blockedReason,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	AppendNotes   *string        `json:"appendNotes,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Force         bool           `json:"force,omitempty"`
}

// TaskUpdate implements task_update: validates the requested status
// transition, runs quality gates before allowing a completion, tracks
// reassignment as a performance outcome, and appends an activity entry.
type TaskUpdate struct {
	store          *store.Store
	bus            *eventbus.Bus
	validators     *validation.Registry
	gateCache      *qualitygate.Cache
	projectRoot    string
	autoCheckpoint bool
	logger         *zap.Logger
}

// NewTaskUpdate builds the task_update tool. autoCheckpoint enables the
// snapshot taken on transitions to in_progress or blocked.
func NewTaskUpdate(s *store.Store, bus *eventbus.Bus, validators *validation.Registry, gateCache *qualitygate.Cache, projectRoot string, autoCheckpoint bool, logger *zap.Logger) *TaskUpdate {
	return &TaskUpdate{store: s, bus: bus, validators: validators, gateCache: gateCache, projectRoot: projectRoot, autoCheckpoint: autoCheckpoint, logger: logger}
}

func (t *TaskUpdate) Name() string { return "task_update" }

func (t *TaskUpdate) Description() string {
	return "Update a task's status, assignment, notes, or metadata. A transition to completed runs the task's effective quality gates first; a failed gate rewrites the transition to blocked instead of failing outright."
}

func (t *TaskUpdate) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "taskId": {"type": "string"},
    "status": {"type": "string", "enum": ["pending", "in_progress", "completed", "blocked", "cancelled"]},
    "assignedAgent": {"type": "string"},
    "blockedReason": {"type": "string"},
    "notes": {"type": "string"},
    "appendNotes": {"type": "string"},
    "metadata": {"type": "object", "description": "Shallow-merged into existing metadata"},
    "force": {"type": "boolean", "description": "Bypass the subtask-completion guard"}
  },
  "required": ["taskId"]
}`)
}

func (t *TaskUpdate) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p taskUpdateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.TaskID == "" {
		return mcp.ErrorResult("taskId is required"), nil
	}

	existing, err := t.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	if existing == nil {
		return mcp.ErrorResult(fmt.Sprintf("task %q not found", p.TaskID)), nil
	}
	if existing.Archived {
		return mcp.ErrorResult(fmt.Sprintf(
			"task %q is archived (stream %q) and cannot be updated; unarchive its stream first", p.TaskID, derefOr(existing.StreamID, ""))), nil
	}

	now := time.Now().UTC()
	var gateResult *qualitygate.RunResult

	// completed -> completed is an idempotent no-op: no validation, no
	// gate run, no transition activity.
	if p.Status != nil && *p.Status == existing.Status && existing.Status == store.TaskStatusCompleted {
		p.Status = nil
	}

	requestedCompleted := p.Status != nil && *p.Status == store.TaskStatusCompleted

	if p.Status != nil {
		tctx := &validation.TransitionContext{Store: t.store, Ctx: ctx, Force: p.Force}
		if err := t.validators.Validate("task", existing.Status, *p.Status, tctx, p.TaskID); err != nil {
			return mcp.ErrorResult(err.Error()), nil
		}

		if requestedCompleted {
			res, err := qualitygate.EvaluateForCompletion(ctx, t.gateCache, existing.Metadata(), t.projectRoot)
			if err != nil {
				if isValidationErr(err) {
					return mcp.ErrorResult(err.Error()), nil
				}
				return nil, fmt.Errorf("running quality gates: %w", err)
			}
			if res != nil {
				gateResult = res
				if !res.AllPassed {
					blocked := store.TaskStatusBlocked
					p.Status = &blocked
					reason := res.FailureSummary()
					p.BlockedReason = &reason
					details := gateFailureDetails(res)
					if p.AppendNotes != nil {
						details = *p.AppendNotes + "\n" + details
					}
					p.AppendNotes = &details
				}
			}
		}
	}

	update := store.TaskUpdate{MetadataPatch: p.Metadata}
	if p.Status != nil {
		update.Status = *p.Status
		update.SetStatus = true
	}
	if p.AssignedAgent != nil {
		update.AssignedAgent = p.AssignedAgent
		update.SetAssignedAgent = true
	}
	update.BlockedReason = p.BlockedReason
	update.Notes = p.Notes
	update.AppendNotes = p.AppendNotes

	reassigned := p.AssignedAgent != nil && existing.AssignedAgent != nil && *existing.AssignedAgent != *p.AssignedAgent

	updated, err := t.store.ApplyTaskUpdate(ctx, p.TaskID, update, now)
	if err != nil {
		if archivedErr, ok := err.(*apperr.ArchivedTaskError); ok {
			return mcp.ErrorResult(archivedErr.Error()), nil
		}
		return nil, fmt.Errorf("updating task: %w", err)
	}

	if t.autoCheckpoint && p.Status != nil &&
		(updated.Status == store.TaskStatusInProgress || updated.Status == store.TaskStatusBlocked) {
		if err := t.snapshotStatusCheckpoint(ctx, updated, now); err != nil {
			t.logger.Warn("auto-checkpoint failed", zap.String("taskId", updated.ID), zap.Error(err))
		}
	}

	initID, _ := t.store.InitiativeIDForTask(ctx, updated.ID)
	if initID != "" {
		summary := fmt.Sprintf("Updated task %q", updated.Title)
		if p.Status != nil {
			summary = fmt.Sprintf("%s → %s", existing.Status, updated.Status)
		}
		_ = t.store.AppendActivityNow(ctx, initID, "task", updated.ID, summary, map[string]any{"status": updated.Status}, now)
	}

	if reassigned {
		_ = t.store.RecordPerformanceNow(ctx, &store.PerformanceRecord{
			AgentID: derefOr(existing.AssignedAgent, ""), TaskID: updated.ID, Outcome: store.OutcomeReassigned,
		}, now)
	}
	if outcome := outcomeForTransition(requestedCompleted, p.Status, updated.Status); outcome != "" && updated.AssignedAgent != nil {
		complexity, _ := updated.Metadata()["complexity"].(string)
		_ = t.store.RecordPerformanceNow(ctx, &store.PerformanceRecord{
			AgentID: *updated.AssignedAgent, TaskID: updated.ID, Complexity: complexity, Outcome: outcome,
		}, now)
	}

	t.bus.Publish(eventbus.Event{Topic: eventbus.TaskUpdated, Payload: map[string]any{
		"taskId": updated.ID, "status": updated.Status,
	}})

	result := map[string]any{"task": updated}
	if gateResult != nil {
		result["qualityGates"] = gateResult
	}
	return mcp.JSONResult(result)
}

// snapshotStatusCheckpoint records an auto_status checkpoint capturing
// the task's post-transition state and its subtasks' statuses.
func (t *TaskUpdate) snapshotStatusCheckpoint(ctx context.Context, task *store.Task, now time.Time) error {
	subtasks, err := t.store.Subtasks(ctx, task.ID)
	if err != nil {
		return err
	}
	states := make([]store.SubtaskState, 0, len(subtasks))
	for _, st := range subtasks {
		states = append(states, store.SubtaskState{ID: st.ID, Status: st.Status})
	}

	expires := now.Add(store.AutoTTL)
	cp := &store.Checkpoint{
		TaskID: task.ID, Trigger: store.TriggerAutoStatus, Status: task.Status,
		Notes: task.Notes, MetadataRaw: task.MetadataRaw, BlockedReason: task.BlockedReason,
		AssignedAgent: task.AssignedAgent, CreatedAt: now, ExpiresAt: &expires,
	}
	if err := cp.SetAgentContext(nil); err != nil {
		return err
	}
	if err := cp.SetSubtaskStates(states); err != nil {
		return err
	}
	_, err = t.store.InsertCheckpoint(ctx, cp)
	if err != nil {
		return err
	}
	t.bus.Publish(eventbus.Event{Topic: eventbus.CheckpointCreated, Payload: map[string]any{
		"taskId": task.ID, "checkpointId": cp.ID, "trigger": store.TriggerAutoStatus,
	}})
	return nil
}

// gateFailureDetails renders the per-gate failure text appended to a
// task's notes when a completion transition is rewritten to blocked.
func gateFailureDetails(res *qualitygate.RunResult) string {
	var b strings.Builder
	b.WriteString(res.FailureSummary())
	for _, r := range res.Results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(&b, "\n- %s: %s", r.GateName, r.Message)
		if r.Stderr != "" {
			fmt.Fprintf(&b, " (stderr: %s)", strings.TrimSpace(r.Stderr))
		}
	}
	return b.String()
}

// outcomeForTransition maps a terminal transition to the performance
// outcome recorded against the assigned agent. requestedCompleted is
// whether the caller asked for completed before any gate rewrite.
func outcomeForTransition(requestedCompleted bool, status *string, final string) string {
	if status == nil {
		return ""
	}
	switch final {
	case store.TaskStatusCompleted:
		return store.OutcomeSuccess
	case store.TaskStatusCancelled:
		return store.OutcomeFailure
	case store.TaskStatusBlocked:
		// Only a gate-rewritten completion is terminal here; a plain
		// blocked transition is not.
		if requestedCompleted {
			return store.OutcomeBlocked
		}
	}
	return ""
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

// isValidationErr reports whether err is an apperr.Error carrying a
// caller-facing validation kind (e.g. an undefined quality gate name),
// as opposed to a hard store/config failure.
func isValidationErr(err error) bool {
	ae, ok := err.(*apperr.Error)
	return ok && ae.Kind == apperr.KindValidation
}

// taskGetParams defines the input for task_get.
type taskGetParams struct {
	TaskID              string `json:"taskId"`
	IncludeSubtasks     bool   `json:"includeSubtasks,omitempty"`
	IncludeWorkProducts bool   `json:"includeWorkProducts,omitempty"`
}

// TaskGet implements task_get.
type TaskGet struct{ store *store.Store }

// NewTaskGet builds the task_get tool.
func NewTaskGet(s *store.Store) *TaskGet { return &TaskGet{store: s} }

func (t *TaskGet) Name() string { return "task_get" }
func (t *TaskGet) Description() string {
	return "Fetch a task by id, including its subtask counts and whether it has work products. Optionally expands the subtask and work-product listings."
}
func (t *TaskGet) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "taskId": {"type": "string"},
    "includeSubtasks": {"type": "boolean"},
    "includeWorkProducts": {"type": "boolean"}
  },
  "required": ["taskId"]
}`)
}

func (t *TaskGet) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p taskGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	task, err := t.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	if task == nil {
		return mcp.ErrorResult(fmt.Sprintf("task %q not found", p.TaskID)), nil
	}
	total, completed, err := t.store.SubtaskCounts(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("counting subtasks: %w", err)
	}
	hasWPs, err := t.store.HasWorkProducts(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("checking work products: %w", err)
	}

	resp := map[string]any{
		"task": task, "subtaskCount": total, "subtasksCompleted": completed,
		"hasWorkProducts": hasWPs,
	}
	if p.IncludeSubtasks {
		subtasks, err := t.store.Subtasks(ctx, task.ID)
		if err != nil {
			return nil, fmt.Errorf("listing subtasks: %w", err)
		}
		resp["subtasks"] = subtasks
	}
	if p.IncludeWorkProducts {
		wps, err := t.store.ListWorkProducts(ctx, task.ID)
		if err != nil {
			return nil, fmt.Errorf("listing work products: %w", err)
		}
		resp["workProducts"] = wps
	}
	return mcp.JSONResult(resp)
}

// taskListParams defines the input for task_list.
type taskListParams struct {
	PRDID         string `json:"prdId,omitempty"`
	ParentID      string `json:"parentId,omitempty"`
	Status        string `json:"status,omitempty"`
	AssignedAgent string `json:"assignedAgent,omitempty"`
}

// TaskList implements task_list.
type TaskList struct{ store *store.Store }

// NewTaskList builds the task_list tool.
func NewTaskList(s *store.Store) *TaskList { return &TaskList{store: s} }

func (t *TaskList) Name() string        { return "task_list" }
func (t *TaskList) Description() string { return "List tasks, optionally filtered by PRD, parent, status, or assigned agent." }
func (t *TaskList) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "prdId": {"type": "string"},
    "parentId": {"type": "string"},
    "status": {"type": "string"},
    "assignedAgent": {"type": "string"}
  }
}`)
}

func (t *TaskList) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p taskListParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	tasks, err := t.store.ListTasks(ctx, store.TaskListFilter{
		PRDID: p.PRDID, ParentID: p.ParentID, Status: p.Status, AssignedAgent: p.AssignedAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return mcp.JSONResult(map[string]any{"tasks": tasks, "count": len(tasks)})
}
