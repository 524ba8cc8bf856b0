package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/classify"
	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// prdCreateParams defines the input for prd_create.
type prdCreateParams struct {
	InitiativeID string            `json:"initiativeId"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Content      string            `json:"content,omitempty"`
	PRDType      string            `json:"prdType,omitempty"`
	ScopeLocked  *bool             `json:"scopeLocked,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	Milestones   []store.Milestone `json:"milestones,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

// PRDCreate implements prd_create: derives PRD type and scope-lock
// default from title/description via internal/classify unless the
// caller supplies explicit overrides.
type PRDCreate struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewPRDCreate builds the prd_create tool.
func NewPRDCreate(s *store.Store, bus *eventbus.Bus) *PRDCreate { return &PRDCreate{store: s, bus: bus} }

func (t *PRDCreate) Name() string { return "prd_create" }

func (t *PRDCreate) Description() string {
	return "Create a PRD under an initiative. prdType and scopeLocked are auto-classified from title/description keywords unless explicitly provided."
}

func (t *PRDCreate) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "initiativeId": {"type": "string"},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "content": {"type": "string"},
    "prdType": {"type": "string", "enum": ["FEATURE", "EXPERIENCE", "DEFECT", "QUESTION", "TECHNICAL"]},
    "scopeLocked": {"type": "boolean"},
    "priority": {"type": "string"},
    "milestones": {"type": "array", "items": {"type": "object"}, "description": "Ordered {id, name, description, taskIds} entries"},
    "metadata": {"type": "object"}
  },
  "required": ["initiativeId", "title"]
}`)
}

func (t *PRDCreate) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p prdCreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.InitiativeID == "" || p.Title == "" {
		return mcp.ErrorResult("initiativeId and title are required"), nil
	}

	init, err := t.store.GetInitiative(ctx, p.InitiativeID)
	if err != nil {
		return nil, fmt.Errorf("reading initiative: %w", err)
	}
	if init == nil {
		return mcp.ErrorResult(fmt.Sprintf("initiative %q not found", p.InitiativeID)), nil
	}

	prdType := store.PRDType(p.PRDType)
	if prdType == "" {
		prdType = classify.PRDType(p.Title, p.Description)
	}
	scopeLocked := classify.DefaultScopeLocked(prdType)
	if p.ScopeLocked != nil {
		scopeLocked = *p.ScopeLocked
	}

	prd := &store.PRD{
		InitiativeID: p.InitiativeID, Title: p.Title, Description: p.Description,
		Content: p.Content, PRDType: prdType, ScopeLocked: scopeLocked, Priority: p.Priority,
	}
	if p.Metadata != nil {
		if err := prd.SetMetadata(p.Metadata); err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
	}
	if len(p.Milestones) > 0 {
		if err := prd.SetMilestones(p.Milestones); err != nil {
			return nil, fmt.Errorf("encoding milestones: %w", err)
		}
	}

	now := time.Now().UTC()
	created, err := t.store.CreatePRD(ctx, prd, now)
	if err != nil {
		return nil, fmt.Errorf("creating prd: %w", err)
	}

	_ = t.store.AppendActivityNow(ctx, p.InitiativeID, "prd", created.ID,
		fmt.Sprintf("Created PRD %q (%s)", created.Title, created.PRDType), nil, now)

	return mcp.JSONResult(created)
}

// prdGetParams defines the input for prd_get.
type prdGetParams struct {
	PRDID string `json:"prdId"`
}

// PRDGet implements prd_get.
type PRDGet struct{ store *store.Store }

// NewPRDGet builds the prd_get tool.
func NewPRDGet(s *store.Store) *PRDGet { return &PRDGet{store: s} }

func (t *PRDGet) Name() string        { return "prd_get" }
func (t *PRDGet) Description() string { return "Fetch a PRD by id." }
func (t *PRDGet) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"prdId":{"type":"string"}},"required":["prdId"]}`)
}

func (t *PRDGet) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p prdGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	prd, err := t.store.GetPRD(ctx, p.PRDID)
	if err != nil {
		return nil, fmt.Errorf("reading prd: %w", err)
	}
	if prd == nil {
		return mcp.ErrorResult(fmt.Sprintf("prd %q not found", p.PRDID)), nil
	}
	return mcp.JSONResult(prd)
}

// prdListParams defines the input for prd_list.
type prdListParams struct {
	InitiativeID string `json:"initiativeId"`
	Status       string `json:"status,omitempty"`
}

// PRDList implements prd_list.
type PRDList struct{ store *store.Store }

// NewPRDList builds the prd_list tool.
func NewPRDList(s *store.Store) *PRDList { return &PRDList{store: s} }

func (t *PRDList) Name() string        { return "prd_list" }
func (t *PRDList) Description() string { return "List PRDs for an initiative, optionally filtered by status." }
func (t *PRDList) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"initiativeId": {"type": "string"}, "status": {"type": "string", "enum": ["active", "archived"]}},
  "required": ["initiativeId"]
}`)
}

func (t *PRDList) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p prdListParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	prds, err := t.store.ListPRDs(ctx, p.InitiativeID, p.Status)
	if err != nil {
		return nil, fmt.Errorf("listing prds: %w", err)
	}
	return mcp.JSONResult(map[string]any{"prds": prds, "count": len(prds)})
}
