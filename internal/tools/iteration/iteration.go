// Package iteration implements the iteration_start/_validate/_next/
// _complete tools: the bounded validate-advance-complete loop keyed to
// one iteration checkpoint. Decision logic itself lives
// in internal/iteration (the pure engine); this package is the
// store-backed tool layer that persists state between calls.
package iteration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	itereng "github.com/taskflow-dev/taskflowmcp/internal/iteration"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/qualitygate"
	"github.com/taskflow-dev/taskflowmcp/internal/stophooks"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

const continuationKey = "continuation"

// startParams defines the input for iteration_start.
type startParams struct {
	TaskID                  string              `json:"taskId"`
	MaxIterations           int                 `json:"maxIterations"`
	CompletionPromises      []string            `json:"completionPromises"`
	ValidationRules         []itereng.RuleSpec  `json:"validationRules,omitempty"`
	CircuitBreakerThreshold int                 `json:"circuitBreakerThreshold,omitempty"`
}

// Start implements iteration_start: validates the loop configuration,
// mints an iteration id, and creates iteration 1's checkpoint.
type Start struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewStart builds the iteration_start tool.
func NewStart(s *store.Store, bus *eventbus.Bus) *Start { return &Start{store: s, bus: bus} }

func (t *Start) Name() string { return "iteration_start" }

func (t *Start) Description() string {
	return "Start a bounded validate-advance-complete loop for a task. Requires a non-empty list of completion promise tags and a maximum iteration count."
}

func (t *Start) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "taskId": {"type": "string"},
    "maxIterations": {"type": "integer", "minimum": 1},
    "completionPromises": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "validationRules": {"type": "array", "items": {"type": "object"}},
    "circuitBreakerThreshold": {"type": "integer", "minimum": 1, "default": 3}
  },
  "required": ["taskId", "maxIterations", "completionPromises"]
}`)
}

func (t *Start) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p startParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.TaskID == "" {
		return mcp.ErrorResult("taskId is required"), nil
	}
	if p.MaxIterations < 1 {
		return mcp.ErrorResult("maxIterations must be >= 1"), nil
	}
	if len(p.CompletionPromises) == 0 {
		return mcp.ErrorResult("completionPromises must be non-empty"), nil
	}
	for _, rs := range p.ValidationRules {
		if rs.Name == "" || rs.Type == "" {
			return mcp.ErrorResult("each validation rule needs a type and a name"), nil
		}
	}
	threshold := p.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}

	task, err := t.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	if task == nil {
		return mcp.ErrorResult(fmt.Sprintf("task %q not found", p.TaskID)), nil
	}
	if task.Archived {
		return mcp.ErrorResult(fmt.Sprintf("task %q is archived and cannot start an iteration", p.TaskID)), nil
	}

	cfg := &store.IterationConfig{
		MaxIterations:           p.MaxIterations,
		CompletionPromises:      p.CompletionPromises,
		CircuitBreakerThreshold: threshold,
	}
	rules := make([]any, len(p.ValidationRules))
	for i, rs := range p.ValidationRules {
		rules[i] = rs
	}
	cfg.ValidationRules = rules

	now := time.Now().UTC()
	cp := &store.Checkpoint{
		TaskID: p.TaskID, Trigger: store.TriggerAutoIteration, Status: task.Status,
		CreatedAt: now,
	}
	if err := cp.SetAgentContext(map[string]any{}); err != nil {
		return nil, fmt.Errorf("encoding agent context: %w", err)
	}
	if err := cp.SetSubtaskStates(nil); err != nil {
		return nil, fmt.Errorf("encoding subtask states: %w", err)
	}
	if err := cp.SetIterationConfig(cfg); err != nil {
		return nil, fmt.Errorf("encoding iteration config: %w", err)
	}
	if err := cp.SetCompletionPromises(p.CompletionPromises); err != nil {
		return nil, fmt.Errorf("encoding completion promises: %w", err)
	}
	one := 1
	cp.IterationNumber = &one
	if err := cp.SetIterationHistory(nil); err != nil {
		return nil, fmt.Errorf("encoding iteration history: %w", err)
	}

	if _, err := t.store.InsertCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("storing iteration checkpoint: %w", err)
	}

	if initID, _ := t.store.InitiativeIDForTask(ctx, p.TaskID); initID != "" {
		_ = t.store.AppendActivityNow(ctx, initID, "iteration_started", cp.ID,
			fmt.Sprintf("Started iteration loop for task %q (max %d)", task.Title, p.MaxIterations),
			map[string]any{"maxIterations": p.MaxIterations}, now)
	}

	t.bus.Publish(eventbus.Event{Topic: eventbus.IterationStarted, Payload: map[string]any{
		"taskId": p.TaskID, "iterationId": cp.ID,
	}})

	return mcp.JSONResult(map[string]any{
		"iterationId":     cp.ID,
		"taskId":          p.TaskID,
		"iterationNumber": 1,
		"maxIterations":   p.MaxIterations,
	})
}

// validateParams defines the input for iteration_validate.
type validateParams struct {
	IterationID string `json:"iterationId"`
	AgentOutput string `json:"agentOutput,omitempty"`
}

// Validate implements iteration_validate: the core decision procedure
// combining promise-tag detection, the safety guard, stop hooks,
// configured validation rules, and the continuation guard.
type Validate struct {
	store *store.Store
	bus   *eventbus.Bus
	hooks *stophooks.Registry
}

// NewValidate builds the iteration_validate tool.
func NewValidate(s *store.Store, bus *eventbus.Bus, hooks *stophooks.Registry) *Validate {
	return &Validate{store: s, bus: bus, hooks: hooks}
}

func (t *Validate) Name() string { return "iteration_validate" }

func (t *Validate) Description() string {
	return "Run the iteration decision procedure: parses completion promises, checks the circuit breaker and iteration cap, consults registered stop hooks and validation rules, and evaluates the continuation guard. Returns a completionSignal of CONTINUE, COMPLETE, BLOCKED, or ESCALATE."
}

func (t *Validate) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "iterationId": {"type": "string"},
    "agentOutput": {"type": "string"}
  },
  "required": ["iterationId"]
}`)
}

func (t *Validate) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p validateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.IterationID == "" {
		return mcp.ErrorResult("iterationId is required"), nil
	}

	cp, err := t.store.GetCheckpoint(ctx, p.IterationID)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	if cp == nil || !cp.IsIteration() {
		return mcp.ErrorResult(fmt.Sprintf("iteration %q not found", p.IterationID)), nil
	}
	cfg, err := cp.IterationConfig()
	if err != nil {
		return nil, fmt.Errorf("decoding iteration config: %w", err)
	}
	iterationNumber := 1
	if cp.IterationNumber != nil {
		iterationNumber = *cp.IterationNumber
	}
	history := cp.IterationHistory()

	task, err := t.store.GetTask(ctx, cp.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	if task == nil {
		return mcp.ErrorResult(fmt.Sprintf("task %q not found", cp.TaskID)), nil
	}

	// 1. Parse completion promises.
	blockedPromise, blockedFound := itereng.DetectPromiseByTag(p.AgentOutput, "BLOCKED")
	completePromise, completeFound := itereng.DetectPromiseByTag(p.AgentOutput, "COMPLETE")

	// 2. Safety guards.
	hist := make([]itereng.HistoryEntry, len(history))
	for i, h := range history {
		passed := false
		if m, ok := h.ValidationResult.(map[string]any); ok {
			if v, ok := m["validationPassed"].(bool); ok {
				passed = v
			}
		}
		hist[i] = itereng.HistoryEntry{Iteration: h.Iteration, ValidationPassed: passed}
	}
	escalate, escalateReason := itereng.SafetyCheck(iterationNumber, cfg.MaxIterations, cfg.CircuitBreakerThreshold, hist)

	// 3. Base signal.
	signal := itereng.BaseSignal(blockedFound, completeFound, escalate)

	detectedPromise := ""
	switch {
	case blockedFound:
		detectedPromise = blockedPromise
	case completeFound:
		detectedPromise = completePromise
	}

	var feedback []string
	if escalate && signal == itereng.SignalEscalate {
		feedback = append(feedback, escalateReason)
	}

	// 4. Stop hooks, only when safety passed.
	var hookDecision map[string]any
	if !escalate {
		if dec, ok := t.hooks.Evaluate(cp.TaskID, stophooks.Input{IterationID: p.IterationID, AgentOutput: p.AgentOutput}); ok {
			hookDecision = map[string]any{
				"action": dec.Action, "reason": dec.Reason, "nextPrompt": dec.NextPrompt,
			}
			switch dec.Action {
			case stophooks.ActionComplete:
				if signal == itereng.SignalContinue {
					signal = itereng.SignalComplete
				}
			case stophooks.ActionEscalate:
				if signal == itereng.SignalContinue {
					signal = itereng.SignalEscalate
				}
			}
			if dec.Reason != "" {
				feedback = append(feedback, dec.Reason)
			}
		}
	}

	// 5. Configured validation rules.
	var ruleResults []itereng.Result
	if len(cfg.ValidationRules) > 0 && signal != itereng.SignalBlocked && signal != itereng.SignalComplete {
		specs := decodeRuleSpecs(cfg.ValidationRules)
		var latestWP string
		if wp, _ := t.store.LatestWorkProduct(ctx, cp.TaskID); wp != nil {
			latestWP = wp.Content
		}
		ruleResults = itereng.Run(ctx, specs, itereng.RuleInput{
			WorkProductContent: latestWP, TaskNotes: task.Notes, AgentOutput: p.AgentOutput,
		})
		for _, r := range ruleResults {
			if !r.Passed {
				feedback = append(feedback, r.Message)
			}
		}
	}

	legacyDetected := itereng.CompletionPromisesDetected(p.AgentOutput, cp.CompletionPromises())

	validationPassed := signal == itereng.SignalComplete
	allRulesPassed := true
	for _, r := range ruleResults {
		if !r.Passed {
			allRulesPassed = false
		}
	}
	if signal == itereng.SignalContinue {
		validationPassed = allRulesPassed
	}

	// 6. Persist validation state.
	valState := map[string]any{
		"iterationNumber":  iterationNumber,
		"validationPassed": validationPassed,
		"completionSignal": signal,
		"detectedPromise":  detectedPromise,
		"feedback":         feedback,
		"results":          ruleResults,
		"timestamp":        time.Now().UTC(),
	}
	if err := cp.SetValidationState(valState); err != nil {
		return nil, fmt.Errorf("encoding validation state: %w", err)
	}

	// 7. Continuation guard, over the last 100 characters.
	var continuationDecision map[string]any
	if itereng.Incomplete(p.AgentOutput) {
		meta := task.Metadata()
		var st itereng.State
		if raw, ok := meta[continuationKey]; ok {
			if b, err := json.Marshal(raw); err == nil {
				_ = json.Unmarshal(b, &st)
			}
		}
		reason := itereng.TrimmedSuffix(p.AgentOutput, 100)
		dec, newSt := itereng.Evaluate(st, reason, true, iterationNumber, cfg.MaxIterations)
		continuationDecision = map[string]any{"incomplete": true, "action": dec.Action, "warning": dec.Warning}
		meta[continuationKey] = newSt
		if err := task.SetMetadata(meta); err != nil {
			return nil, fmt.Errorf("encoding task metadata: %w", err)
		}
		if err := t.store.ApplyTaskMetadata(ctx, task.ID, meta, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("persisting continuation state: %w", err)
		}
	}

	if err := t.store.UpdateCheckpointIteration(ctx, cp); err != nil {
		return nil, fmt.Errorf("persisting validation state: %w", err)
	}

	t.bus.Publish(eventbus.Event{Topic: eventbus.IterationValidated, Payload: map[string]any{
		"taskId": cp.TaskID, "iterationId": p.IterationID, "signal": signal,
	}})

	return mcp.JSONResult(map[string]any{
		"iterationNumber":             iterationNumber,
		"validationPassed":            validationPassed,
		"completionSignal":            signal,
		"detectedPromise":             detectedPromise,
		"feedback":                    feedback,
		"results":                     ruleResults,
		"completionPromisesDetected":  legacyDetected,
		"hookDecision":                hookDecision,
		"continuationDecision":        continuationDecision,
	})
}

func decodeRuleSpecs(raw []any) []itereng.RuleSpec {
	specs := make([]itereng.RuleSpec, 0, len(raw))
	for _, r := range raw {
		b, err := json.Marshal(r)
		if err != nil {
			continue
		}
		var spec itereng.RuleSpec
		if err := json.Unmarshal(b, &spec); err != nil {
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

// nextParams defines the input for iteration_next.
type nextParams struct {
	IterationID      string `json:"iterationId"`
	ValidationResult any    `json:"validationResult,omitempty"`
	AgentContext     map[string]any `json:"agentContext,omitempty"`
}

// Next implements iteration_next: appends the supplied validation
// result to history and advances to the next iteration number.
type Next struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewNext builds the iteration_next tool.
func NewNext(s *store.Store, bus *eventbus.Bus) *Next { return &Next{store: s, bus: bus} }

func (t *Next) Name() string { return "iteration_next" }

func (t *Next) Description() string {
	return "Advance an iteration loop to the next round, recording the prior round's validation result in history. Fails if the iteration is already at its configured maximum."
}

func (t *Next) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "iterationId": {"type": "string"},
    "validationResult": {},
    "agentContext": {"type": "object"}
  },
  "required": ["iterationId"]
}`)
}

func (t *Next) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p nextParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.IterationID == "" {
		return mcp.ErrorResult("iterationId is required"), nil
	}

	cp, err := t.store.GetCheckpoint(ctx, p.IterationID)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	if cp == nil || !cp.IsIteration() {
		return mcp.ErrorResult(fmt.Sprintf("iteration %q not found", p.IterationID)), nil
	}
	cfg, err := cp.IterationConfig()
	if err != nil {
		return nil, fmt.Errorf("decoding iteration config: %w", err)
	}
	current := 1
	if cp.IterationNumber != nil {
		current = *cp.IterationNumber
	}
	if current >= cfg.MaxIterations {
		return mcp.ErrorResult(fmt.Sprintf("iteration %q is already at its maximum of %d iterations", p.IterationID, cfg.MaxIterations)), nil
	}

	now := time.Now().UTC()
	history := cp.IterationHistory()
	history = append(history, store.IterationHistoryEntry{
		Iteration: current, Timestamp: now, ValidationResult: p.ValidationResult, CheckpointID: cp.ID,
	})
	if err := cp.SetIterationHistory(history); err != nil {
		return nil, fmt.Errorf("encoding iteration history: %w", err)
	}

	next := current + 1
	cp.IterationNumber = &next

	if p.AgentContext != nil {
		if err := cp.SetAgentContext(p.AgentContext); err != nil {
			return nil, fmt.Errorf("encoding agent context: %w", err)
		}
	}

	if err := t.store.UpdateCheckpointIteration(ctx, cp); err != nil {
		return nil, fmt.Errorf("advancing iteration: %w", err)
	}

	t.bus.Publish(eventbus.Event{Topic: eventbus.IterationValidated, Payload: map[string]any{
		"taskId": cp.TaskID, "iterationId": p.IterationID, "iterationNumber": next,
	}})

	return mcp.JSONResult(map[string]any{
		"iterationId":     p.IterationID,
		"iterationNumber": next,
		"maxIterations":   cfg.MaxIterations,
	})
}

// completeParams defines the input for iteration_complete.
type completeParams struct {
	IterationID      string `json:"iterationId"`
	CompletionPromise string `json:"completionPromise"`
	WorkProductID    string `json:"workProductId,omitempty"`
}

// Complete implements iteration_complete: verifies the supplied promise
// matches the configured set verbatim, runs the task's effective quality
// gates exactly as task_update does for any other * -> completed
// transition, marks the task completed (or rewrites it to blocked on a
// failed gate), and clears the task's continuation bookkeeping. The
// task's stop hooks are cleared only when it completes.
type Complete struct {
	store       *store.Store
	bus         *eventbus.Bus
	hooks       *stophooks.Registry
	gateCache   *qualitygate.Cache
	projectRoot string
}

// NewComplete builds the iteration_complete tool.
func NewComplete(s *store.Store, bus *eventbus.Bus, hooks *stophooks.Registry, gateCache *qualitygate.Cache, projectRoot string) *Complete {
	return &Complete{store: s, bus: bus, hooks: hooks, gateCache: gateCache, projectRoot: projectRoot}
}

func (t *Complete) Name() string { return "iteration_complete" }

func (t *Complete) Description() string {
	return "Complete an iteration loop: the supplied completionPromise must appear verbatim in the loop's configured completion promises. Marks the task completed (or blocked when a quality gate fails) and records iteration-complete summary metadata."
}

func (t *Complete) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "iterationId": {"type": "string"},
    "completionPromise": {"type": "string"},
    "workProductId": {"type": "string"}
  },
  "required": ["iterationId", "completionPromise"]
}`)
}

func (t *Complete) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p completeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.IterationID == "" || p.CompletionPromise == "" {
		return mcp.ErrorResult("iterationId and completionPromise are required"), nil
	}

	cp, err := t.store.GetCheckpoint(ctx, p.IterationID)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	if cp == nil || !cp.IsIteration() {
		return mcp.ErrorResult(fmt.Sprintf("iteration %q not found", p.IterationID)), nil
	}

	matched := false
	for _, promise := range cp.CompletionPromises() {
		if promise == p.CompletionPromise {
			matched = true
			break
		}
	}
	if !matched {
		return mcp.ErrorResult(fmt.Sprintf("completionPromise %q is not one of this iteration's configured promises", p.CompletionPromise)), nil
	}

	task, err := t.store.GetTask(ctx, cp.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	if task == nil {
		return mcp.ErrorResult(fmt.Sprintf("task %q not found", cp.TaskID)), nil
	}

	now := time.Now().UTC()
	totalIterations := 1
	if cp.IterationNumber != nil {
		totalIterations = *cp.IterationNumber
	}

	notes := task.Notes
	if notes != "" {
		notes += "\n"
	}
	notes += fmt.Sprintf("Iteration completed: %s", p.CompletionPromise)

	meta := task.Metadata()
	delete(meta, continuationKey)
	meta["iterationComplete"] = map[string]any{
		"completedAt": now, "totalIterations": totalIterations,
		"completionPromise": p.CompletionPromise, "workProductId": p.WorkProductID,
	}

	targetStatus := store.TaskStatusCompleted
	var gateResult *qualitygate.RunResult

	res, err := qualitygate.EvaluateForCompletion(ctx, t.gateCache, meta, t.projectRoot)
	if err != nil {
		if ae, ok := err.(*apperr.Error); ok && ae.Kind == apperr.KindValidation {
			return mcp.ErrorResult(err.Error()), nil
		}
		return nil, fmt.Errorf("running quality gates: %w", err)
	}
	if res != nil {
		gateResult = res
		if !res.AllPassed {
			targetStatus = store.TaskStatusBlocked
			notes += fmt.Sprintf("\n%s", res.FailureSummary())
		}
	}

	update := store.TaskUpdate{
		Status: targetStatus, SetStatus: true,
		Notes: &notes, MetadataPatch: meta,
	}
	if targetStatus == store.TaskStatusBlocked {
		reason := gateResult.FailureSummary()
		update.BlockedReason = &reason
	}

	updated, err := t.store.ApplyTaskUpdate(ctx, task.ID, update, now)
	if err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	// The metadata patch merges, so the continuation key dropped from
	// meta is removed with a wholesale metadata write.
	if err := t.store.ApplyTaskMetadata(ctx, task.ID, meta, now); err != nil {
		return nil, fmt.Errorf("clearing continuation state: %w", err)
	}
	if err := updated.SetMetadata(meta); err != nil {
		return nil, fmt.Errorf("encoding task metadata: %w", err)
	}

	if targetStatus == store.TaskStatusCompleted {
		t.hooks.Clear(task.ID)
	}

	if initID, _ := t.store.InitiativeIDForTask(ctx, task.ID); initID != "" {
		summary := fmt.Sprintf("Iteration loop completed for task %q after %d iterations", task.Title, totalIterations)
		if targetStatus == store.TaskStatusBlocked {
			summary = fmt.Sprintf("Iteration loop for task %q blocked by failing quality gates after %d iterations", task.Title, totalIterations)
		}
		_ = t.store.AppendActivityNow(ctx, initID, "iteration_completed", p.IterationID,
			summary, map[string]any{"completionPromise": p.CompletionPromise, "status": targetStatus}, now)
	}

	if targetStatus == store.TaskStatusCompleted {
		t.bus.Publish(eventbus.Event{Topic: eventbus.IterationCompleted, Payload: map[string]any{
			"taskId": task.ID, "iterationId": p.IterationID,
		}})
	}

	result := map[string]any{"task": updated, "totalIterations": totalIterations}
	if gateResult != nil {
		result["qualityGates"] = gateResult
	}
	return mcp.JSONResult(result)
}
