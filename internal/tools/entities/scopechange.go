package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// scopeChangeRequestParams defines the input for scope_change_request.
type scopeChangeRequestParams struct {
	PRDID       string `json:"prdId"`
	RequestType string `json:"requestType"`
	Description string `json:"description"`
	Rationale   string `json:"rationale"`
	RequestedBy string `json:"requestedBy"`
}

// ScopeChangeRequest implements scope_change_request: only applicable
// to a scope-locked PRD.
type ScopeChangeRequest struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewScopeChangeRequest builds the scope_change_request tool.
func NewScopeChangeRequest(s *store.Store, bus *eventbus.Bus) *ScopeChangeRequest {
	return &ScopeChangeRequest{store: s, bus: bus}
}

func (t *ScopeChangeRequest) Name() string { return "scope_change_request" }

func (t *ScopeChangeRequest) Description() string {
	return "File a scope-change request against a scope-locked PRD. Fails if the PRD is not scope-locked."
}

func (t *ScopeChangeRequest) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "prdId": {"type": "string"},
    "requestType": {"type": "string", "enum": ["add_task", "modify_task", "remove_task"]},
    "description": {"type": "string"},
    "rationale": {"type": "string"},
    "requestedBy": {"type": "string"}
  },
  "required": ["prdId", "requestType", "description", "rationale", "requestedBy"]
}`)
}

func (t *ScopeChangeRequest) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p scopeChangeRequestParams
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
	if !prd.ScopeLocked {
		return mcp.ErrorResult(fmt.Sprintf("prd %q is not scope-locked; tasks can be changed directly", p.PRDID)), nil
	}

	req := &store.ScopeChangeRequest{
		PRDID: p.PRDID, RequestType: p.RequestType, Description: p.Description,
		Rationale: p.Rationale, RequestedBy: p.RequestedBy,
	}
	now := time.Now().UTC()
	created, err := t.store.CreateScopeChangeRequest(ctx, req, now)
	if err != nil {
		return nil, fmt.Errorf("creating scope change request: %w", err)
	}

	_ = t.store.AppendActivityNow(ctx, prd.InitiativeID, "scope_change_request", created.ID,
		fmt.Sprintf("%s requested a %s against PRD %q", created.RequestedBy, created.RequestType, prd.Title), nil, now)
	t.bus.Publish(eventbus.Event{Topic: eventbus.ScopeChangeFiled, Payload: map[string]any{"requestId": created.ID, "prdId": p.PRDID}})

	return mcp.JSONResult(created)
}

// scopeChangeReviewParams defines the input for scope_change_review.
type scopeChangeReviewParams struct {
	RequestID  string `json:"requestId"`
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewedBy"`
	ReviewNotes string `json:"reviewNotes,omitempty"`
}

// ScopeChangeReview implements scope_change_review: a one-shot review,
// status pending is the only reviewable state.
type ScopeChangeReview struct{ store *store.Store }

// NewScopeChangeReview builds the scope_change_review tool.
func NewScopeChangeReview(s *store.Store) *ScopeChangeReview { return &ScopeChangeReview{store: s} }

func (t *ScopeChangeReview) Name() string { return "scope_change_review" }

func (t *ScopeChangeReview) Description() string {
	return "Approve or reject a pending scope-change request. A request that has already been reviewed cannot be reviewed again."
}

func (t *ScopeChangeReview) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "requestId": {"type": "string"},
    "status": {"type": "string", "enum": ["approved", "rejected"]},
    "reviewedBy": {"type": "string"},
    "reviewNotes": {"type": "string"}
  },
  "required": ["requestId", "status", "reviewedBy"]
}`)
}

func (t *ScopeChangeReview) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p scopeChangeReviewParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	now := time.Now().UTC()
	updated, err := t.store.ReviewScopeChangeRequest(ctx, p.RequestID, p.Status, p.ReviewedBy, p.ReviewNotes, now)
	if err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	if prd, _ := t.store.GetPRD(ctx, updated.PRDID); prd != nil {
		_ = t.store.AppendActivityNow(ctx, prd.InitiativeID, "scope_change_request", updated.ID,
			fmt.Sprintf("%s %s the scope-change request", p.ReviewedBy, p.Status), nil, now)
	}

	return mcp.JSONResult(updated)
}

// scopeChangeListParams defines the input for scope_change_list.
type scopeChangeListParams struct {
	PRDID string `json:"prdId"`
}

// ScopeChangeList implements scope_change_list.
type ScopeChangeList struct{ store *store.Store }

// NewScopeChangeList builds the scope_change_list tool.
func NewScopeChangeList(s *store.Store) *ScopeChangeList { return &ScopeChangeList{store: s} }

func (t *ScopeChangeList) Name() string        { return "scope_change_list" }
func (t *ScopeChangeList) Description() string { return "List scope-change requests filed against a PRD." }
func (t *ScopeChangeList) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"prdId":{"type":"string"}},"required":["prdId"]}`)
}

func (t *ScopeChangeList) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p scopeChangeListParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	reqs, err := t.store.ListScopeChangeRequests(ctx, p.PRDID)
	if err != nil {
		return nil, fmt.Errorf("listing scope change requests: %w", err)
	}
	return mcp.JSONResult(map[string]any{"requests": reqs, "count": len(reqs)})
}
