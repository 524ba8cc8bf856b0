package entities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// activityListParams defines the input for activity_list, which also
// backs the /api/activity read-only HTTP mirror endpoint.
type activityListParams struct {
	InitiativeID string `json:"initiativeId"`
	Limit        int    `json:"limit,omitempty"`
}

// ActivityList implements activity_list: the append-only audit trail
// for one initiative, newest first.
type ActivityList struct{ store *store.Store }

// NewActivityList builds the activity_list tool.
func NewActivityList(s *store.Store) *ActivityList { return &ActivityList{store: s} }

func (t *ActivityList) Name() string { return "activity_list" }

func (t *ActivityList) Description() string {
	return "List an initiative's activity log, newest first. Not every mutating tool writes an entry: initiative_archive, initiative_wipe, iteration_next, iteration_validate and the security hook tools write none."
}

func (t *ActivityList) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "initiativeId": {"type": "string"},
    "limit": {"type": "integer", "description": "Defaults to 100"}
  },
  "required": ["initiativeId"]
}`)
}

func (t *ActivityList) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p activityListParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.InitiativeID == "" {
		return mcp.ErrorResult("initiativeId is required"), nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	entries, err := t.store.ListActivity(ctx, p.InitiativeID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return mcp.JSONResult(map[string]any{"activity": entries, "count": len(entries)})
}

// ServeHTTPQuery turns the /api/activity?initiativeId=...&limit=... query
// string into activity_list's JSON arguments.
func (t *ActivityList) ServeHTTPQuery(params map[string]string, query map[string][]string) (json.RawMessage, error) {
	p := activityListParams{}
	if v := query["initiativeId"]; len(v) > 0 {
		p.InitiativeID = v[0]
	}
	if v := query["limit"]; len(v) > 0 {
		fmt.Sscanf(v[0], "%d", &p.Limit)
	}
	return json.Marshal(p)
}
