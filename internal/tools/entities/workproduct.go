package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
	"github.com/taskflow-dev/taskflowmcp/internal/validation"
)

// workProductStoreParams defines the input for work_product_store.
type workProductStoreParams struct {
	TaskID  string `json:"taskId"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// WorkProductStore implements work_product_store: runs the work-product
// rule registry, rejects outright on any reject-level rule, otherwise
// stores the deliverable and returns a content summary plus any
// advisory warnings.
type WorkProductStore struct {
	store *store.Store
	bus   *eventbus.Bus
	rules *validation.WorkProductRegistry
}

// NewWorkProductStore builds the work_product_store tool.
func NewWorkProductStore(s *store.Store, bus *eventbus.Bus, rules *validation.WorkProductRegistry) *WorkProductStore {
	return &WorkProductStore{store: s, bus: bus, rules: rules}
}

func (t *WorkProductStore) Name() string { return "work_product_store" }

func (t *WorkProductStore) Description() string {
	return "Store an immutable work product (deliverable) against a task. Content is validated against the registered rules before being accepted; a reject-level finding blocks the store entirely."
}

func (t *WorkProductStore) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "taskId": {"type": "string"},
    "type": {"type": "string", "enum": ["technical_design", "implementation", "test_plan", "documentation", "other"]},
    "title": {"type": "string"},
    "content": {"type": "string"}
  },
  "required": ["taskId", "type", "title", "content"]
}`)
}

func (t *WorkProductStore) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p workProductStoreParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.TaskID == "" || p.Type == "" || p.Title == "" {
		return mcp.ErrorResult("taskId, type, and title are required"), nil
	}

	task, err := t.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	if task == nil {
		return mcp.ErrorResult(fmt.Sprintf("task %q not found", p.TaskID)), nil
	}

	candidate := &store.WorkProduct{TaskID: p.TaskID, Type: p.Type, Title: p.Title, Content: p.Content}
	results, rejected, warnings := t.rules.Evaluate(candidate)
	if len(rejected) > 0 {
		return mcp.ErrorResult(validation.RejectionFeedback(rejected)), nil
	}
	// Validation is advisory except for reject: the content is stored
	// untouched, with the verdicts kept under metadata.validation.
	if err := candidate.SetMetadata(map[string]any{"validation": results}); err != nil {
		return nil, fmt.Errorf("encoding validation metadata: %w", err)
	}

	now := time.Now().UTC()
	created, err := t.store.CreateWorkProduct(ctx, candidate, now)
	if err != nil {
		return nil, fmt.Errorf("storing work product: %w", err)
	}

	summary, wordCount := validation.Summarize(created.Content)

	if initID, _ := t.store.InitiativeIDForTask(ctx, created.TaskID); initID != "" {
		_ = t.store.AppendActivityNow(ctx, initID, "work_product", created.ID,
			fmt.Sprintf("Stored %s %q for task %s", created.Type, created.Title, created.TaskID), nil, now)
	}

	return mcp.JSONResult(map[string]any{
		"workProduct": created,
		"summary":     summary,
		"wordCount":   wordCount,
		"validation":  results,
		"warnings":    warnings,
	})
}

// workProductGetParams defines the input for work_product_get.
type workProductGetParams struct {
	WorkProductID string `json:"workProductId"`
}

// WorkProductGet implements work_product_get.
type WorkProductGet struct{ store *store.Store }

// NewWorkProductGet builds the work_product_get tool.
func NewWorkProductGet(s *store.Store) *WorkProductGet { return &WorkProductGet{store: s} }

func (t *WorkProductGet) Name() string        { return "work_product_get" }
func (t *WorkProductGet) Description() string { return "Fetch a work product by id." }
func (t *WorkProductGet) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"workProductId":{"type":"string"}},"required":["workProductId"]}`)
}

func (t *WorkProductGet) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p workProductGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	wp, err := t.store.GetWorkProduct(ctx, p.WorkProductID)
	if err != nil {
		return nil, fmt.Errorf("reading work product: %w", err)
	}
	if wp == nil {
		return mcp.ErrorResult(fmt.Sprintf("work product %q not found", p.WorkProductID)), nil
	}
	return mcp.JSONResult(wp)
}

// workProductListParams defines the input for work_product_list.
type workProductListParams struct {
	TaskID string `json:"taskId"`
}

// WorkProductList implements work_product_list.
type WorkProductList struct{ store *store.Store }

// NewWorkProductList builds the work_product_list tool.
func NewWorkProductList(s *store.Store) *WorkProductList { return &WorkProductList{store: s} }

func (t *WorkProductList) Name() string        { return "work_product_list" }
func (t *WorkProductList) Description() string { return "List a task's work products in creation order." }
func (t *WorkProductList) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"taskId":{"type":"string"}},"required":["taskId"]}`)
}

func (t *WorkProductList) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p workProductListParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	wps, err := t.store.ListWorkProducts(ctx, p.TaskID)
	if err != nil {
		return nil, fmt.Errorf("listing work products: %w", err)
	}
	return mcp.JSONResult(map[string]any{"workProducts": wps, "count": len(wps)})
}
