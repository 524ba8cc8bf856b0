// Package hooks implements the security PreToolUse hook management
// tools: hook_register_security, hook_list_security, hook_test_security,
// hook_toggle_security. They operate against the same
// process-global security.Registry the server consults before every
// tools/call dispatch.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/security"
)

// registerParams defines the input for hook_register_security.
type registerParams struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Priority       int    `json:"priority"`
	Pattern        string `json:"pattern"`
	Action         string `json:"action"`
	Severity       string `json:"severity"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Register implements hook_register_security: adds a pattern-based rule
// to the process-global registry.
type Register struct{ registry *security.Registry }

// NewRegister builds the hook_register_security tool.
func NewRegister(r *security.Registry) *Register { return &Register{registry: r} }

func (t *Register) Name() string { return "hook_register_security" }

func (t *Register) Description() string {
	return "Register a pattern-based PreToolUse security rule. Rules are evaluated in descending priority order; the first pattern match on a rule wins."
}

func (t *Register) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string"},
    "description": {"type": "string"},
    "priority": {"type": "integer"},
    "pattern": {"type": "string", "description": "Case-insensitive regex tested against the concatenated tool input"},
    "action": {"type": "string", "enum": ["ALLOW", "WARN", "BLOCK"]},
    "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
    "recommendation": {"type": "string"}
  },
  "required": ["id", "name", "pattern", "action", "severity"]
}`)
}

func (t *Register) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p registerParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.ID == "" || p.Name == "" || p.Pattern == "" {
		return mcp.ErrorResult("id, name, and pattern are required"), nil
	}

	rule, err := security.PatternRule(p.ID, p.Name, p.Description, p.Priority, p.Pattern,
		security.Action(p.Action), security.Severity(p.Severity), p.Recommendation)
	if err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}
	t.registry.Register(rule)

	return mcp.JSONResult(map[string]any{"id": p.ID, "registered": true})
}

// List implements hook_list_security: returns every registered rule's
// metadata (not its compiled matcher).
type List struct{ registry *security.Registry }

// NewList builds the hook_list_security tool.
func NewList(r *security.Registry) *List { return &List{registry: r} }

func (t *List) Name() string        { return "hook_list_security" }
func (t *List) Description() string { return "List all registered PreToolUse security rules." }
func (t *List) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *List) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	return mcp.JSONResult(map[string]any{"rules": t.registry.List()})
}

// testParams defines the input for hook_test_security.
type testParams struct {
	ToolName  string         `json:"toolName"`
	ToolInput map[string]any `json:"toolInput"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Test implements hook_test_security: runs the full pipeline decision
// against a hypothetical call without executing anything, reporting
// how long evaluation took.
type Test struct{ registry *security.Registry }

// NewTest builds the hook_test_security tool.
func NewTest(r *security.Registry) *Test { return &Test{registry: r} }

func (t *Test) Name() string { return "hook_test_security" }
func (t *Test) Description() string {
	return "Evaluate the PreToolUse security pipeline against a hypothetical tool call without executing it, returning the aggregated decision and evaluation time."
}
func (t *Test) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "toolName": {"type": "string"},
    "toolInput": {"type": "object"},
    "metadata": {"type": "object"}
  },
  "required": ["toolName", "toolInput"]
}`)
}

func (t *Test) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p testParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.ToolName == "" {
		return mcp.ErrorResult("toolName is required"), nil
	}

	start := time.Now()
	decision := t.registry.Decide(security.Input{ToolName: p.ToolName, ToolInput: p.ToolInput, Metadata: p.Metadata})
	elapsed := time.Since(start)

	return mcp.JSONResult(security.TestResult{Decision: decision, ExecutionTime: float64(elapsed.Microseconds()) / 1000.0})
}

// toggleParams defines the input for hook_toggle_security.
type toggleParams struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

// Toggle implements hook_toggle_security: enables or disables a rule
// by id without removing it from the registry.
type Toggle struct{ registry *security.Registry }

// NewToggle builds the hook_toggle_security tool.
func NewToggle(r *security.Registry) *Toggle { return &Toggle{registry: r} }

func (t *Toggle) Name() string        { return "hook_toggle_security" }
func (t *Toggle) Description() string { return "Enable or disable a registered security rule by id." }
func (t *Toggle) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "id": {"type": "string"},
    "enabled": {"type": "boolean"}
  },
  "required": ["id", "enabled"]
}`)
}

func (t *Toggle) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p toggleParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.ID == "" {
		return mcp.ErrorResult("id is required"), nil
	}
	t.registry.SetEnabled(p.ID, p.Enabled)
	return mcp.JSONResult(map[string]any{"id": p.ID, "enabled": p.Enabled})
}
