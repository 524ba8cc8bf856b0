package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// protocolViolationLogParams defines the input for protocol_violation_log.
type protocolViolationLogParams struct {
	SessionID     string         `json:"sessionId"`
	InitiativeID  string         `json:"initiativeId"`
	ViolationType string         `json:"violationType"`
	Severity      string         `json:"severity"`
	Context       map[string]any `json:"context,omitempty"`
	Suggestion    string         `json:"suggestion,omitempty"`
}

// ProtocolViolationLog implements protocol_violation_log: records a
// main-session guardrail breach.
type ProtocolViolationLog struct{ store *store.Store }

// NewProtocolViolationLog builds the protocol_violation_log tool.
func NewProtocolViolationLog(s *store.Store) *ProtocolViolationLog { return &ProtocolViolationLog{store: s} }

func (t *ProtocolViolationLog) Name() string { return "protocol_violation_log" }

func (t *ProtocolViolationLog) Description() string {
	return "Log a protocol violation (guardrail breach) for a session, e.g. direct file edits that bypass the task workflow."
}

func (t *ProtocolViolationLog) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "sessionId": {"type": "string"},
    "initiativeId": {"type": "string"},
    "violationType": {"type": "string"},
    "severity": {"type": "string"},
    "context": {"type": "object"},
    "suggestion": {"type": "string"}
  },
  "required": ["sessionId", "initiativeId", "violationType", "severity"]
}`)
}

func (t *ProtocolViolationLog) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p protocolViolationLogParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	v := &store.ProtocolViolation{
		SessionID: p.SessionID, InitiativeID: p.InitiativeID,
		ViolationType: p.ViolationType, Severity: p.Severity, Suggestion: p.Suggestion,
	}
	if p.Context != nil {
		if err := v.SetContext(p.Context); err != nil {
			return nil, fmt.Errorf("encoding context: %w", err)
		}
	}

	now := time.Now().UTC()
	created, err := t.store.LogProtocolViolation(ctx, v, now)
	if err != nil {
		return nil, fmt.Errorf("logging protocol violation: %w", err)
	}

	_ = t.store.AppendActivityNow(ctx, p.InitiativeID, "protocol_violation", created.ID,
		fmt.Sprintf("Protocol violation: %s (%s)", created.ViolationType, created.Severity), nil, now)

	return mcp.JSONResult(created)
}

// protocolViolationsGetParams defines the input for protocol_violations_get.
type protocolViolationsGetParams struct {
	SessionID string `json:"sessionId"`
}

// ProtocolViolationsGet implements protocol_violations_get.
type ProtocolViolationsGet struct{ store *store.Store }

// NewProtocolViolationsGet builds the protocol_violations_get tool.
func NewProtocolViolationsGet(s *store.Store) *ProtocolViolationsGet {
	return &ProtocolViolationsGet{store: s}
}

func (t *ProtocolViolationsGet) Name() string { return "protocol_violations_get" }

func (t *ProtocolViolationsGet) Description() string {
	return "List protocol violations recorded for a session, newest first."
}

func (t *ProtocolViolationsGet) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"sessionId":{"type":"string"}},"required":["sessionId"]}`)
}

func (t *ProtocolViolationsGet) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p protocolViolationsGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	violations, err := t.store.ListProtocolViolations(ctx, p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("listing protocol violations: %w", err)
	}
	return mcp.JSONResult(map[string]any{"violations": violations, "count": len(violations)})
}
