// Package stream implements the stream_list/_get/_conflict_check/
// _archive_all/_unarchive tools over the derived stream grouping.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
	"github.com/taskflow-dev/taskflowmcp/internal/streams"
)

// listParams defines the input for stream_list.
type listParams struct {
	InitiativeID    string `json:"initiativeId,omitempty"`
	PRDID           string `json:"prdId,omitempty"`
	IncludeArchived bool   `json:"includeArchived,omitempty"`
}

// List implements stream_list: aggregates tasks by their derived
// stream id and returns a rollup per stream, ordered by phase then
// name. Optionally scoped to one initiative or PRD.
type List struct{ store *store.Store }

// NewList builds the stream_list tool.
func NewList(s *store.Store) *List { return &List{store: s} }

func (t *List) Name() string        { return "stream_list" }
func (t *List) Description() string { return "List parallel work streams with their task-status rollups, ordered by phase then name. Optionally scoped to one initiative or PRD; archived streams are hidden unless includeArchived." }
func (t *List) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "initiativeId": {"type": "string"},
    "prdId": {"type": "string"},
    "includeArchived": {"type": "boolean"}
  }
}`)
}

func (t *List) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p listParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	var tasks []*store.Task
	var err error
	switch {
	case p.PRDID != "":
		tasks, err = t.store.ListTasks(ctx, store.TaskListFilter{PRDID: p.PRDID})
	case p.InitiativeID != "":
		tasks, err = t.store.ListTasksByInitiative(ctx, p.InitiativeID)
	default:
		tasks, err = t.store.ListTasks(ctx, store.TaskListFilter{})
	}
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	summaries := streams.Aggregate(tasks, p.IncludeArchived)
	return mcp.JSONResult(map[string]any{"streams": summaries, "count": len(summaries)})
}

// ServeHTTPQuery turns /api/streams?initiativeId=...&prdId=...&includeArchived=true
// into stream_list's JSON arguments.
func (t *List) ServeHTTPQuery(params map[string]string, query map[string][]string) (json.RawMessage, error) {
	p := listParams{}
	if v := query["initiativeId"]; len(v) > 0 {
		p.InitiativeID = v[0]
	}
	if v := query["prdId"]; len(v) > 0 {
		p.PRDID = v[0]
	}
	if v := query["includeArchived"]; len(v) > 0 {
		p.IncludeArchived = v[0] == "true" || v[0] == "1"
	}
	return json.Marshal(p)
}

// getParams defines the input for stream_get.
type getParams struct {
	StreamID string `json:"streamId"`
}

// Get implements stream_get: a single stream's rollup plus its
// overall status and isolation flag.
type Get struct{ store *store.Store }

// NewGet builds the stream_get tool.
func NewGet(s *store.Store) *Get { return &Get{store: s} }

func (t *Get) Name() string        { return "stream_get" }
func (t *Get) Description() string { return "Fetch one stream's task rollup, overall status, and isolation flag." }
func (t *Get) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"streamId":{"type":"string"}},"required":["streamId"]}`)
}

func (t *Get) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p getParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	tasks, err := t.store.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	var streamTasks []*store.Task
	for _, task := range tasks {
		if task.StreamID != nil && *task.StreamID == p.StreamID {
			streamTasks = append(streamTasks, task)
		}
	}
	if len(streamTasks) == 0 {
		return mcp.ErrorResult(fmt.Sprintf("stream %q not found", p.StreamID)), nil
	}

	summaries := streams.Aggregate(streamTasks, true)
	var summary any
	if len(summaries) > 0 {
		summary = summaries[0]
	}

	return mcp.JSONResult(map[string]any{
		"stream":        summary,
		"overallStatus": streams.OverallStatus(streamTasks),
		"isolated":      streams.IsIsolated(streamTasks),
		"tasks":         streamTasks,
	})
}

// conflictCheckParams defines the input for stream_conflict_check.
type conflictCheckParams struct {
	Files           []string `json:"files"`
	ExcludeStreamID string   `json:"excludeStreamId,omitempty"`
}

// ConflictCheck implements stream_conflict_check: finds active tasks
// outside the excluded (and any isolated) stream that claim the given
// files.
type ConflictCheck struct{ store *store.Store }

// NewConflictCheck builds the stream_conflict_check tool.
func NewConflictCheck(s *store.Store) *ConflictCheck { return &ConflictCheck{store: s} }

func (t *ConflictCheck) Name() string { return "stream_conflict_check" }

func (t *ConflictCheck) Description() string {
	return "Check whether any active task outside a given stream already claims one of the given files. Isolated streams (those with a worktree) are exempt and never reported."
}

func (t *ConflictCheck) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "files": {"type": "array", "items": {"type": "string"}},
    "excludeStreamId": {"type": "string"}
  },
  "required": ["files"]
}`)
}

func (t *ConflictCheck) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p conflictCheckParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	tasks, err := t.store.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	conflicts := streams.ConflictCheck(tasks, p.Files, p.ExcludeStreamID)
	return mcp.JSONResult(map[string]any{"conflicts": conflicts, "hasConflicts": len(conflicts) > 0})
}

// archiveAllParams defines the input for stream_archive_all.
type archiveAllParams struct {
	InitiativeID string `json:"initiativeId"`
	Confirm      bool   `json:"confirm"`
}

// ArchiveAll implements stream_archive_all: archives every stream-tagged
// task, the same mechanism initiative_link uses on a switch, exposed as
// a standalone, confirm-gated operation.
type ArchiveAll struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewArchiveAll builds the stream_archive_all tool.
func NewArchiveAll(s *store.Store, bus *eventbus.Bus) *ArchiveAll { return &ArchiveAll{store: s, bus: bus} }

func (t *ArchiveAll) Name() string { return "stream_archive_all" }

func (t *ArchiveAll) Description() string {
	return "Archive every stream-tagged task in the workspace, tagging each with the given initiative's id. Requires confirm=true."
}

func (t *ArchiveAll) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"initiativeId": {"type": "string"}, "confirm": {"type": "boolean"}},
  "required": ["initiativeId", "confirm"]
}`)
}

func (t *ArchiveAll) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p archiveAllParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if !p.Confirm {
		return mcp.ErrorResult("confirm must be true to archive every stream"), nil
	}

	streamTasks, err := t.store.AllStreamTaskMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stream tasks: %w", err)
	}
	streamIDs := make([]string, 0, len(streamTasks))
	for sid := range streamTasks {
		streamIDs = append(streamIDs, sid)
	}

	now := time.Now().UTC()
	archived, err := t.store.ArchiveTasksByStream(ctx, streamIDs, p.InitiativeID, now)
	if err != nil {
		return nil, fmt.Errorf("archiving streams: %w", err)
	}

	_ = t.store.AppendActivityNow(ctx, p.InitiativeID, "stream", "all",
		fmt.Sprintf("Archived all streams (%d tasks)", archived),
		map[string]any{"archivedTasks": archived}, now)

	t.bus.Publish(eventbus.Event{Topic: eventbus.StreamArchived, Payload: map[string]any{
		"initiativeId": p.InitiativeID, "archivedTasks": archived,
	}})

	return mcp.JSONResult(map[string]any{"archivedTasks": archived})
}

// unarchiveParams defines the input for stream_unarchive.
type unarchiveParams struct {
	StreamID        string `json:"streamId"`
	NewInitiativeID string `json:"newInitiativeId,omitempty"`
	PRDID           string `json:"prdId,omitempty"`
}

// Unarchive implements stream_unarchive: clears archived fields on a
// stream's tasks, optionally moving them under a new PRD, and ties the
// stream to the supplied (or current) initiative in the activity log.
type Unarchive struct{ store *store.Store }

// NewUnarchive builds the stream_unarchive tool.
func NewUnarchive(s *store.Store) *Unarchive { return &Unarchive{store: s} }

func (t *Unarchive) Name() string        { return "stream_unarchive" }
func (t *Unarchive) Description() string { return "Unarchive every task in a stream, optionally moving them under a new PRD; newInitiativeId only names the initiative the activity entry is filed against. Fails if no archived tasks match." }
func (t *Unarchive) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "streamId": {"type": "string"},
    "newInitiativeId": {"type": "string", "description": "Initiative to tie the revived stream to (defaults to the current one)"},
    "prdId": {"type": "string", "description": "Move the stream's tasks under this PRD"}
  },
  "required": ["streamId"]
}`)
}

func (t *Unarchive) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p unarchiveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.PRDID != "" {
		prd, err := t.store.GetPRD(ctx, p.PRDID)
		if err != nil {
			return nil, fmt.Errorf("reading prd: %w", err)
		}
		if prd == nil {
			return mcp.ErrorResult(fmt.Sprintf("prd %q not found", p.PRDID)), nil
		}
	}

	now := time.Now().UTC()
	n, err := t.store.UnarchiveStream(ctx, p.StreamID, p.PRDID, now)
	if err != nil {
		return nil, fmt.Errorf("unarchiving stream: %w", err)
	}
	if n == 0 {
		return mcp.ErrorResult(fmt.Sprintf("no archived tasks found for stream %q", p.StreamID)), nil
	}

	initID := p.NewInitiativeID
	if initID == "" {
		initID, _ = t.store.CurrentInitiativeID(ctx)
	}
	if initID != "" {
		_ = t.store.AppendActivityNow(ctx, initID, "stream", p.StreamID,
			fmt.Sprintf("Unarchived stream %s (%d tasks)", p.StreamID, n),
			map[string]any{"unarchivedTasks": n, "prdId": p.PRDID}, now)
	}

	return mcp.JSONResult(map[string]any{"unarchivedTasks": n, "initiativeId": initID})
}
