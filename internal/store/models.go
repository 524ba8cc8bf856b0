package store

import "time"

// Initiative is the root of a workspace scope.
type Initiative struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Milestone is an ordered entry in a PRD's milestone list.
type Milestone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TaskIDs     []string `json:"taskIds"`
}

// PRDType enumerates the auto-classified PRD kinds.
type PRDType string

const (
	PRDTypeFeature    PRDType = "FEATURE"
	PRDTypeExperience PRDType = "EXPERIENCE"
	PRDTypeDefect     PRDType = "DEFECT"
	PRDTypeQuestion   PRDType = "QUESTION"
	PRDTypeTechnical  PRDType = "TECHNICAL"
)

// PRD is a specification document owned by an initiative.
type PRD struct {
	ID            string         `db:"id" json:"id"`
	InitiativeID  string         `db:"initiative_id" json:"initiativeId"`
	Title         string         `db:"title" json:"title"`
	Description   string         `db:"description" json:"description"`
	Content       string         `db:"content" json:"content"`
	PRDType       PRDType        `db:"prd_type" json:"prdType"`
	ScopeLocked   bool           `db:"scope_locked" json:"scopeLocked"`
	Priority      string         `db:"priority" json:"priority"`
	MilestonesRaw jsonText       `db:"milestones_json" json:"-"`
	MetadataRaw   jsonText       `db:"metadata_json" json:"-"`
	Status        string         `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`
}

const (
	PRDStatusActive   = "active"
	PRDStatusArchived = "archived"
)

// Task status enumeration.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusBlocked    = "blocked"
	TaskStatusCancelled  = "cancelled"
)

// StreamPhase enumerates the stream lifecycle phases used for stream_list
// ordering.
const (
	StreamPhaseFoundation  = "foundation"
	StreamPhaseParallel    = "parallel"
	StreamPhaseIntegration = "integration"
)

// ActivationMode enumerates the per-task depth-of-analysis hints.
type ActivationMode string

const (
	ActivationUltrawork ActivationMode = "ultrawork"
	ActivationAnalyze   ActivationMode = "analyze"
	ActivationQuick     ActivationMode = "quick"
	ActivationThorough  ActivationMode = "thorough"
)

// Task is a unit of work.
type Task struct {
	ID                     string    `db:"id" json:"id"`
	PRDID                  *string   `db:"prd_id" json:"prdId,omitempty"`
	ParentID               *string   `db:"parent_id" json:"parentId,omitempty"`
	Title                  string    `db:"title" json:"title"`
	Description            string    `db:"description" json:"description"`
	AssignedAgent          *string   `db:"assigned_agent" json:"assignedAgent,omitempty"`
	Status                 string    `db:"status" json:"status"`
	BlockedReason          string    `db:"blocked_reason" json:"blockedReason"`
	Notes                  string    `db:"notes" json:"notes"`
	MetadataRaw            jsonText  `db:"metadata_json" json:"-"`
	StreamID               *string   `db:"stream_id" json:"streamId,omitempty"`
	CreatedAt              time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time `db:"updated_at" json:"updatedAt"`
	Archived               bool      `db:"archived" json:"archived"`
	ArchivedAt             *time.Time `db:"archived_at" json:"archivedAt,omitempty"`
	ArchivedByInitiativeID *string   `db:"archived_by_initiative_id" json:"archivedByInitiativeId,omitempty"`
}

// WorkProductType enumerates the deliverable kinds.
const (
	WorkProductTechnicalDesign = "technical_design"
	WorkProductImplementation  = "implementation"
	WorkProductTestPlan        = "test_plan"
	WorkProductDocumentation   = "documentation"
	WorkProductOther           = "other"
)

// WorkProduct is an immutable, append-only deliverable.
type WorkProduct struct {
	ID          string    `db:"id" json:"id"`
	TaskID      string    `db:"task_id" json:"taskId"`
	Type        string    `db:"type" json:"type"`
	Title       string    `db:"title" json:"title"`
	Content     string    `db:"content" json:"content"`
	MetadataRaw jsonText  `db:"metadata_json" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Checkpoint triggers.
const (
	TriggerManual        = "manual"
	TriggerAutoStatus    = "auto_status"
	TriggerAutoIteration = "auto_iteration"
)

// Checkpoint is an ordered, recoverable task snapshot.
type Checkpoint struct {
	ID                     string     `db:"id" json:"id"`
	TaskID                 string     `db:"task_id" json:"taskId"`
	Sequence               int        `db:"sequence" json:"sequence"`
	Trigger                string     `db:"trigger" json:"trigger"`
	Status                 string     `db:"status" json:"status"`
	Notes                  string     `db:"notes" json:"notes"`
	MetadataRaw            jsonText   `db:"metadata_json" json:"-"`
	BlockedReason          string     `db:"blocked_reason" json:"blockedReason"`
	AssignedAgent          *string    `db:"assigned_agent" json:"assignedAgent,omitempty"`
	ExecutionPhase         string     `db:"execution_phase" json:"executionPhase"`
	ExecutionStep          string     `db:"execution_step" json:"executionStep"`
	AgentContextRaw        jsonText   `db:"agent_context_json" json:"-"`
	DraftContent           string     `db:"draft_content" json:"draftContent"`
	DraftType              string     `db:"draft_type" json:"draftType"`
	SubtaskStatesRaw       jsonText   `db:"subtask_states_json" json:"-"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt              *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	IterationConfigRaw     *jsonText  `db:"iteration_config_json" json:"-"`
	IterationNumber        *int       `db:"iteration_number" json:"iterationNumber,omitempty"`
	IterationHistoryRaw    jsonText   `db:"iteration_history_json" json:"-"`
	CompletionPromisesRaw  jsonText   `db:"completion_promises_json" json:"-"`
	ValidationStateRaw     *jsonText  `db:"validation_state_json" json:"-"`
}

// IsIteration reports whether this checkpoint carries iteration config
// (an iteration checkpoint is distinguished by a non-null config).
func (c *Checkpoint) IsIteration() bool { return c.IterationConfigRaw != nil }

// SubtaskState is a point-in-time snapshot of one subtask.
type SubtaskState struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// IterationHistoryEntry is one round of an iteration loop.
type IterationHistoryEntry struct {
	Iteration        int       `json:"iteration"`
	Timestamp        time.Time `json:"timestamp"`
	ValidationResult any       `json:"validationResult"`
	CheckpointID     string    `json:"checkpointId"`
}

// IterationConfig is the bounded-loop configuration.
type IterationConfig struct {
	MaxIterations           int      `json:"maxIterations"`
	CompletionPromises      []string `json:"completionPromises"`
	ValidationRules         []any    `json:"validationRules"`
	CircuitBreakerThreshold int      `json:"circuitBreakerThreshold"`
}

// Handoff records an agent-to-agent work transfer.
type Handoff struct {
	ID             string    `db:"id" json:"id"`
	TaskID         string    `db:"task_id" json:"taskId"`
	FromAgent      string    `db:"from_agent" json:"fromAgent"`
	ToAgent        string    `db:"to_agent" json:"toAgent"`
	WorkProductID  string    `db:"work_product_id" json:"workProductId"`
	HandoffContext string    `db:"handoff_context" json:"handoffContext"`
	ChainPosition  int       `db:"chain_position" json:"chainPosition"`
	ChainLength    int       `db:"chain_length" json:"chainLength"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Scope-change request types and statuses.
const (
	ScopeChangeAddTask    = "add_task"
	ScopeChangeModifyTask = "modify_task"
	ScopeChangeRemoveTask = "remove_task"

	ScopeChangePending  = "pending"
	ScopeChangeApproved = "approved"
	ScopeChangeRejected = "rejected"
)

// ScopeChangeRequest is a change proposal against a scope-locked PRD.
type ScopeChangeRequest struct {
	ID           string     `db:"id" json:"id"`
	PRDID        string     `db:"prd_id" json:"prdId"`
	RequestType  string     `db:"request_type" json:"requestType"`
	Description  string     `db:"description" json:"description"`
	Rationale    string     `db:"rationale" json:"rationale"`
	RequestedBy  string     `db:"requested_by" json:"requestedBy"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	ReviewedAt   *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewedBy   *string    `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewNotes  *string    `db:"review_notes" json:"reviewNotes,omitempty"`
}

// ActivityEntry is one append-only audit-trail row.
type ActivityEntry struct {
	ID           string    `db:"id" json:"id"`
	InitiativeID string    `db:"initiative_id" json:"initiativeId"`
	EntityType   string    `db:"entity_type" json:"entityType"`
	EntityID     string    `db:"entity_id" json:"entityId"`
	Summary      string    `db:"summary" json:"summary"`
	MetadataRaw  jsonText  `db:"metadata_json" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Performance outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeBlocked    = "blocked"
	OutcomeReassigned = "reassigned"
)

// PerformanceRecord is a per-agent outcome log entry.
type PerformanceRecord struct {
	ID              string    `db:"id" json:"id"`
	AgentID         string    `db:"agent_id" json:"agentId"`
	TaskID          string    `db:"task_id" json:"taskId"`
	WorkProductType *string   `db:"work_product_type" json:"workProductType,omitempty"`
	Complexity      string    `db:"complexity" json:"complexity"`
	Outcome         string    `db:"outcome" json:"outcome"`
	DurationMs      *int64    `db:"duration_ms" json:"durationMs,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// ProtocolViolation is a session-scoped guardrail-breach audit row.
type ProtocolViolation struct {
	ID            string    `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"sessionId"`
	InitiativeID  string    `db:"initiative_id" json:"initiativeId"`
	ViolationType string    `db:"violation_type" json:"violationType"`
	Severity      string    `db:"severity" json:"severity"`
	ContextRaw    jsonText  `db:"context_json" json:"-"`
	Suggestion    string    `db:"suggestion" json:"suggestion"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
