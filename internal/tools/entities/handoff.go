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

const maxHandoffContextLen = 50

// agentHandoffParams defines the input for agent_handoff.
type agentHandoffParams struct {
	TaskID         string `json:"taskId"`
	FromAgent      string `json:"fromAgent"`
	ToAgent        string `json:"toAgent"`
	WorkProductID  string `json:"workProductId"`
	HandoffContext string `json:"handoffContext"`
	ChainPosition  int    `json:"chainPosition"`
	ChainLength    int    `json:"chainLength"`
}

// AgentHandoff implements agent_handoff: records a work transfer
// between agents, enforcing the 50-character context cap and the
// position-within-chain invariant.
type AgentHandoff struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewAgentHandoff builds the agent_handoff tool.
func NewAgentHandoff(s *store.Store, bus *eventbus.Bus) *AgentHandoff { return &AgentHandoff{store: s, bus: bus} }

func (t *AgentHandoff) Name() string { return "agent_handoff" }

func (t *AgentHandoff) Description() string {
	return "Record an agent-to-agent work transfer for a task. handoffContext is capped at 50 characters; chainPosition must fall within [1, chainLength]."
}

func (t *AgentHandoff) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "taskId": {"type": "string"},
    "fromAgent": {"type": "string"},
    "toAgent": {"type": "string"},
    "workProductId": {"type": "string"},
    "handoffContext": {"type": "string", "maxLength": 50},
    "chainPosition": {"type": "integer"},
    "chainLength": {"type": "integer"}
  },
  "required": ["taskId", "fromAgent", "toAgent", "workProductId", "handoffContext", "chainPosition", "chainLength"]
}`)
}

func (t *AgentHandoff) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p agentHandoffParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if n := len([]rune(p.HandoffContext)); n > maxHandoffContextLen {
		return mcp.ErrorResult(fmt.Sprintf("handoffContext is %d characters, maximum is %d", n, maxHandoffContextLen)), nil
	}
	if p.ChainPosition < 1 || p.ChainPosition > p.ChainLength {
		return mcp.ErrorResult(fmt.Sprintf("chainPosition %d is out of range [1, %d]", p.ChainPosition, p.ChainLength)), nil
	}

	task, err := t.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	if task == nil {
		return mcp.ErrorResult(fmt.Sprintf("task %q not found", p.TaskID)), nil
	}
	wp, err := t.store.GetWorkProduct(ctx, p.WorkProductID)
	if err != nil {
		return nil, fmt.Errorf("reading work product: %w", err)
	}
	if wp == nil {
		return mcp.ErrorResult(fmt.Sprintf("work product %q not found", p.WorkProductID)), nil
	}

	handoff := &store.Handoff{
		TaskID: p.TaskID, FromAgent: p.FromAgent, ToAgent: p.ToAgent, WorkProductID: p.WorkProductID,
		HandoffContext: p.HandoffContext, ChainPosition: p.ChainPosition, ChainLength: p.ChainLength,
	}
	now := time.Now().UTC()
	created, err := t.store.CreateHandoff(ctx, handoff, now)
	if err != nil {
		return nil, fmt.Errorf("creating handoff: %w", err)
	}

	if initID, _ := t.store.InitiativeIDForTask(ctx, p.TaskID); initID != "" {
		_ = t.store.AppendActivityNow(ctx, initID, "handoff", created.ID,
			fmt.Sprintf("%s → %s (%d/%d)", created.FromAgent, created.ToAgent, created.ChainPosition, created.ChainLength), nil, now)
	}

	t.bus.Publish(eventbus.Event{Topic: eventbus.HandoffCreated, Payload: map[string]any{
		"taskId": p.TaskID, "handoffId": created.ID,
	}})

	return mcp.JSONResult(created)
}

// agentChainGetParams defines the input for agent_chain_get.
type agentChainGetParams struct {
	TaskID string `json:"taskId"`
}

// AgentChainGet implements agent_chain_get: returns a task's handoffs
// in chain-position order, plus its work products each mapped to the
// from-agent of the handoff that carried it, or "unknown" for the
// final (no outgoing handoff) agent.
type AgentChainGet struct{ store *store.Store }

// NewAgentChainGet builds the agent_chain_get tool.
func NewAgentChainGet(s *store.Store) *AgentChainGet { return &AgentChainGet{store: s} }

func (t *AgentChainGet) Name() string { return "agent_chain_get" }

func (t *AgentChainGet) Description() string {
	return "Return a task's handoff chain in position order, with each work product attributed to the agent who produced it."
}

func (t *AgentChainGet) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"taskId":{"type":"string"}},"required":["taskId"]}`)
}

func (t *AgentChainGet) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p agentChainGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	handoffs, err := t.store.ListHandoffs(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("listing handoffs: %w", err)
	}
	workProducts, err := t.store.ListWorkProducts(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("listing work products: %w", err)
	}

	byWorkProduct := make(map[string]string, len(handoffs))
	for _, h := range handoffs {
		byWorkProduct[h.WorkProductID] = h.FromAgent
	}

	type attributed struct {
		*store.WorkProduct
		FromAgent string `json:"fromAgent"`
	}
	attributedProducts := make([]attributed, 0, len(workProducts))
	for _, wp := range workProducts {
		from, ok := byWorkProduct[wp.ID]
		if !ok {
			from = "unknown"
		}
		attributedProducts = append(attributedProducts, attributed{WorkProduct: wp, FromAgent: from})
	}

	return mcp.JSONResult(map[string]any{
		"handoffs":     handoffs,
		"workProducts": attributedProducts,
	})
}

// agentPerformanceGetParams defines the input for agent_performance_get.
type agentPerformanceGetParams struct {
	AgentID string `json:"agentId"`
}

// AgentPerformanceGet implements agent_performance_get.
type AgentPerformanceGet struct{ store *store.Store }

// NewAgentPerformanceGet builds the agent_performance_get tool.
func NewAgentPerformanceGet(s *store.Store) *AgentPerformanceGet { return &AgentPerformanceGet{store: s} }

func (t *AgentPerformanceGet) Name() string { return "agent_performance_get" }

func (t *AgentPerformanceGet) Description() string {
	return "Return every recorded outcome for an agent, with aggregate success/failure/blocked/reassigned counts."
}

func (t *AgentPerformanceGet) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"agentId":{"type":"string"}},"required":["agentId"]}`)
}

func (t *AgentPerformanceGet) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p agentPerformanceGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	records, err := t.store.AgentPerformance(ctx, p.AgentID)
	if err != nil {
		return nil, fmt.Errorf("reading agent performance: %w", err)
	}
	counts := map[string]int{}
	for _, r := range records {
		counts[r.Outcome]++
	}
	return mcp.JSONResult(map[string]any{"records": records, "counts": counts})
}
