package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow-dev/taskflowmcp/internal/eventbus"
	"github.com/taskflow-dev/taskflowmcp/internal/mcp"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// initiativeLinkParams defines the input for initiative_link.
type initiativeLinkParams struct {
	InitiativeID string `json:"initiativeId"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
}

// InitiativeLink implements initiative_link: switches the workspace's
// current initiative. When the id actually changes, every stream-tagged
// task in the workspace is auto-archived and tagged with the previous
// initiative's id.
type InitiativeLink struct {
	store *store.Store
	bus   *eventbus.Bus
}

// NewInitiativeLink builds the initiative_link tool.
func NewInitiativeLink(s *store.Store, bus *eventbus.Bus) *InitiativeLink { return &InitiativeLink{store: s, bus: bus} }

func (t *InitiativeLink) Name() string { return "initiative_link" }

func (t *InitiativeLink) Description() string {
	return "Link (or switch to) an initiative. Switching away from a different current initiative auto-archives every stream-tagged task, tagging each with the previous initiative's id."
}

func (t *InitiativeLink) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"initiativeId": {"type": "string"}, "title": {"type": "string"}, "description": {"type": "string"}},
  "required": ["initiativeId"]
}`)
}

func (t *InitiativeLink) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p initiativeLinkParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.InitiativeID == "" {
		return mcp.ErrorResult("initiativeId is required"), nil
	}

	now := time.Now().UTC()
	init, previous, err := t.store.LinkInitiative(ctx, p.InitiativeID, p.Title, p.Description, now)
	if err != nil {
		return nil, fmt.Errorf("linking initiative: %w", err)
	}

	archivedCount := 0
	if previous != "" {
		streamTasks, err := t.store.AllStreamTaskMetadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading stream tasks: %w", err)
		}
		streamIDs := make([]string, 0, len(streamTasks))
		for sid := range streamTasks {
			streamIDs = append(streamIDs, sid)
		}
		archivedCount, err = t.store.ArchiveTasksByStream(ctx, streamIDs, previous, now)
		if err != nil {
			return nil, fmt.Errorf("archiving stream tasks: %w", err)
		}
		t.bus.Publish(eventbus.Event{Topic: eventbus.StreamArchived, Payload: map[string]any{
			"previousInitiativeId": previous, "archivedTasks": archivedCount,
		}})
	}

	_ = t.store.AppendActivityNow(ctx, init.ID, "initiative", init.ID,
		fmt.Sprintf("Linked initiative %q", init.Title),
		map[string]any{"previousInitiativeId": previous, "archivedTasks": archivedCount}, now)

	return mcp.JSONResult(map[string]any{
		"initiative": init, "previousInitiativeId": previous, "archivedTasks": archivedCount,
	})
}

// initiativeArchiveParams defines the input for initiative_archive.
type initiativeArchiveParams struct {
	InitiativeID string `json:"initiativeId"`
	ArchivePath  string `json:"archivePath,omitempty"`
}

// InitiativeArchive implements initiative_archive: writes a JSON
// snapshot of everything under the initiative, then wipes its
// dependents while leaving the initiative row in place.
type InitiativeArchive struct {
	store       *store.Store
	archiveRoot string
	logger      *zap.Logger
}

// NewInitiativeArchive builds the initiative_archive tool. archiveRoot
// is the default directory archive files are written under when the
// caller doesn't supply archivePath.
func NewInitiativeArchive(s *store.Store, archiveRoot string, logger *zap.Logger) *InitiativeArchive {
	return &InitiativeArchive{store: s, archiveRoot: archiveRoot, logger: logger}
}

func (t *InitiativeArchive) Name() string { return "initiative_archive" }

func (t *InitiativeArchive) Description() string {
	return "Write a full JSON snapshot of an initiative's PRDs, tasks, work products, and activity log to disk, then wipe those dependents (the initiative row itself is kept)."
}

func (t *InitiativeArchive) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"initiativeId": {"type": "string"}, "archivePath": {"type": "string", "description": "Override the default archive file path"}},
  "required": ["initiativeId"]
}`)
}

func (t *InitiativeArchive) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p initiativeArchiveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.InitiativeID == "" {
		return mcp.ErrorResult("initiativeId is required"), nil
	}

	now := time.Now().UTC()
	snapshot, err := t.store.GatherInitiativeArchive(ctx, p.InitiativeID, now)
	if err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	path := p.ArchivePath
	if path == "" {
		path = filepath.Join(t.archiveRoot, fmt.Sprintf("%s-%s.json", p.InitiativeID, now.Format("20060102T150405Z")))
	}
	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling archive snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return nil, fmt.Errorf("writing archive file: %w", err)
	}

	counts, err := t.store.WipeInitiativeDependents(ctx, p.InitiativeID)
	if err != nil {
		return nil, fmt.Errorf("wiping initiative dependents: %w", err)
	}

	t.logger.Info("archived initiative", zap.String("initiativeId", p.InitiativeID), zap.String("path", path))

	return mcp.JSONResult(map[string]any{
		"archivePath": path, "wiped": counts,
	})
}

// initiativeWipeParams defines the input for initiative_wipe.
type initiativeWipeParams struct {
	InitiativeID string `json:"initiativeId"`
	Confirm      bool   `json:"confirm"`
}

// InitiativeWipe implements initiative_wipe: the destructive,
// no-export counterpart to initiative_archive, guarded by an explicit
// confirm flag (mirrors stream_archive_all's safety switch).
type InitiativeWipe struct{ store *store.Store }

// NewInitiativeWipe builds the initiative_wipe tool.
func NewInitiativeWipe(s *store.Store) *InitiativeWipe { return &InitiativeWipe{store: s} }

func (t *InitiativeWipe) Name() string { return "initiative_wipe" }

func (t *InitiativeWipe) Description() string {
	return "Permanently delete an initiative's PRDs, tasks, work products, and activity log without writing an archive file. Requires confirm=true."
}

func (t *InitiativeWipe) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"initiativeId": {"type": "string"}, "confirm": {"type": "boolean"}},
  "required": ["initiativeId", "confirm"]
}`)
}

func (t *InitiativeWipe) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p initiativeWipeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if !p.Confirm {
		return mcp.ErrorResult("confirm must be true to wipe an initiative"), nil
	}
	counts, err := t.store.WipeInitiativeDependents(ctx, p.InitiativeID)
	if err != nil {
		return nil, fmt.Errorf("wiping initiative: %w", err)
	}
	return mcp.JSONResult(map[string]any{"wiped": counts})
}

// progressSummaryParams defines the input for progress_summary.
type progressSummaryParams struct {
	InitiativeID string `json:"initiativeId"`
}

// milestoneProgress is one milestone's aggregated task completion.
type milestoneProgress struct {
	PRDID       string `json:"prdId"`
	MilestoneID string `json:"milestoneId"`
	Name        string `json:"name"`
	TaskCount   int    `json:"taskCount"`
	Completed   int    `json:"completed"`
}

// ProgressSummary implements progress_summary: aggregates milestones
// across every PRD in an initiative. Milestones live in each PRD's
// milestone list; cross-PRD aggregation here is a read-only
// presentation concern, not a change to where milestones are stored.
type ProgressSummary struct{ store *store.Store }

// NewProgressSummary builds the progress_summary tool.
func NewProgressSummary(s *store.Store) *ProgressSummary { return &ProgressSummary{store: s} }

func (t *ProgressSummary) Name() string { return "progress_summary" }

func (t *ProgressSummary) Description() string {
	return "Aggregate milestone completion across every PRD in an initiative, plus overall task/PRD counts."
}

func (t *ProgressSummary) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"initiativeId":{"type":"string"}},"required":["initiativeId"]}`)
}

func (t *ProgressSummary) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p progressSummaryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	prds, err := t.store.ListPRDs(ctx, p.InitiativeID, "")
	if err != nil {
		return nil, fmt.Errorf("listing prds: %w", err)
	}

	var milestones []milestoneProgress
	totalTasks, completedTasks := 0, 0

	// Milestones may reference tasks from any PRD under the initiative,
	// so the status map is built across all PRDs before they are scored.
	taskStatus := make(map[string]string)
	for _, prd := range prds {
		tasks, err := t.store.ListTasks(ctx, store.TaskListFilter{PRDID: prd.ID})
		if err != nil {
			return nil, fmt.Errorf("listing tasks for prd %s: %w", prd.ID, err)
		}
		for _, task := range tasks {
			taskStatus[task.ID] = task.Status
			totalTasks++
			if task.Status == store.TaskStatusCompleted {
				completedTasks++
			}
		}
	}

	for _, prd := range prds {
		for _, m := range prd.Milestones() {
			mp := milestoneProgress{PRDID: prd.ID, MilestoneID: m.ID, Name: m.Name, TaskCount: len(m.TaskIDs)}
			for _, tid := range m.TaskIDs {
				if taskStatus[tid] == store.TaskStatusCompleted {
					mp.Completed++
				}
			}
			milestones = append(milestones, mp)
		}
	}

	return mcp.JSONResult(map[string]any{
		"initiativeId":   p.InitiativeID,
		"prdCount":       len(prds),
		"totalTasks":     totalTasks,
		"completedTasks": completedTasks,
		"milestones":     milestones,
	})
}
