package streams

import (
	"sort"

	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// Summary is one stream's aggregated view.
type Summary struct {
	StreamID           string   `json:"streamId"`
	StreamName         string   `json:"streamName"`
	Phase              string   `json:"phase"`
	Dependencies       []string `json:"dependencies"`
	TotalTasks         int      `json:"totalTasks"`
	CompletedTasks     int      `json:"completedTasks"`
	InProgressTasks    int      `json:"inProgressTasks"`
	BlockedTasks       int      `json:"blockedTasks"`
	PendingTasks       int      `json:"pendingTasks"`
	Files           []string `json:"files"`
	WorktreePath    string   `json:"worktreePath,omitempty"`
	BranchName      string   `json:"branchName,omitempty"`
	Archived        bool     `json:"archived"`
}

var phaseOrder = map[string]int{
	store.StreamPhaseFoundation:  0,
	store.StreamPhaseParallel:    1,
	store.StreamPhaseIntegration: 2,
}

// Aggregate groups tasks by their derived stream-id, computing the
// per-stream rollup stream_list returns. Tasks without a stream-id are
// ignored. Archived tasks are included only if includeArchived is set.
func Aggregate(tasks []*store.Task, includeArchived bool) []Summary {
	byStream := make(map[string][]*store.Task)
	for _, t := range tasks {
		if t.StreamID == nil || *t.StreamID == "" {
			continue
		}
		if t.Archived && !includeArchived {
			continue
		}
		byStream[*t.StreamID] = append(byStream[*t.StreamID], t)
	}

	summaries := make([]Summary, 0, len(byStream))
	for streamID, ts := range byStream {
		summaries = append(summaries, summarize(streamID, ts))
	}

	sort.Slice(summaries, func(i, j int) bool {
		pi, pj := phaseOrder[summaries[i].Phase], phaseOrder[summaries[j].Phase]
		if pi != pj {
			return pi < pj
		}
		return summaries[i].StreamName < summaries[j].StreamName
	})
	return summaries
}

func summarize(streamID string, ts []*store.Task) Summary {
	s := Summary{StreamID: streamID}
	fileSet := make(map[string]bool)
	depSet := make(map[string]bool)

	for i, t := range ts {
		md := t.Metadata()
		if i == 0 {
			s.StreamName = stringField(md, "streamName")
			s.Phase = stringField(md, "streamPhase")
			s.WorktreePath = stringField(md, "worktreePath")
			s.BranchName = stringField(md, "branchName")
		}
		if t.Archived {
			s.Archived = true
		}
		for _, f := range stringListField(md, "files") {
			fileSet[f] = true
		}
		for _, d := range stringListField(md, "streamDependencies") {
			depSet[d] = true
		}

		s.TotalTasks++
		switch t.Status {
		case store.TaskStatusCompleted:
			s.CompletedTasks++
		case store.TaskStatusInProgress:
			s.InProgressTasks++
		case store.TaskStatusBlocked:
			s.BlockedTasks++
		case store.TaskStatusPending:
			s.PendingTasks++
		}
	}

	for f := range fileSet {
		s.Files = append(s.Files, f)
	}
	sort.Strings(s.Files)
	for d := range depSet {
		s.Dependencies = append(s.Dependencies, d)
	}
	sort.Strings(s.Dependencies)
	return s
}

// OverallStatus derives stream_get's rollup status: completed if every
// task is completed; else blocked if any is blocked; else in_progress
// if any is in_progress; else pending.
func OverallStatus(ts []*store.Task) string {
	var anyBlocked, anyInProgress, allCompleted = false, false, true
	for _, t := range ts {
		if t.Status != store.TaskStatusCompleted {
			allCompleted = false
		}
		if t.Status == store.TaskStatusBlocked {
			anyBlocked = true
		}
		if t.Status == store.TaskStatusInProgress {
			anyInProgress = true
		}
	}
	switch {
	case allCompleted && len(ts) > 0:
		return store.TaskStatusCompleted
	case anyBlocked:
		return store.TaskStatusBlocked
	case anyInProgress:
		return store.TaskStatusInProgress
	default:
		return store.TaskStatusPending
	}
}

// IsIsolated reports whether any task in the stream carries a worktree
// path, exempting the stream from file-conflict detection.
func IsIsolated(ts []*store.Task) bool {
	for _, t := range ts {
		if stringField(t.Metadata(), "worktreePath") != "" {
			return true
		}
	}
	return false
}

// Conflict is one surviving file-ownership collision.
type Conflict struct {
	File       string `json:"file"`
	StreamID   string `json:"streamId"`
	StreamName string `json:"streamName"`
	TaskID     string `json:"taskId"`
	TaskTitle  string `json:"taskTitle"`
	TaskStatus string `json:"taskStatus"`
}

// ConflictCheck finds, for each file, active (in_progress/completed)
// tasks outside excludeStreamID whose metadata.files names that file.
// If excludeStreamID is itself isolated (has a worktree), it returns no
// conflicts immediately; any other isolated stream is likewise skipped.
func ConflictCheck(allTasks []*store.Task, files []string, excludeStreamID string) []Conflict {
	byStream := make(map[string][]*store.Task)
	for _, t := range allTasks {
		if t.StreamID != nil && *t.StreamID != "" {
			byStream[*t.StreamID] = append(byStream[*t.StreamID], t)
		}
	}

	if excludeStreamID != "" && IsIsolated(byStream[excludeStreamID]) {
		return nil
	}

	fileSet := make(map[string]bool, len(files))
	for _, f := range files {
		fileSet[f] = true
	}

	var conflicts []Conflict
	for streamID, ts := range byStream {
		if streamID == excludeStreamID {
			continue
		}
		if IsIsolated(ts) {
			continue
		}
		for _, t := range ts {
			if t.Status != store.TaskStatusInProgress && t.Status != store.TaskStatusCompleted {
				continue
			}
			md := t.Metadata()
			for _, f := range stringListField(md, "files") {
				if !fileSet[f] {
					continue
				}
				conflicts = append(conflicts, Conflict{
					File: f, StreamID: streamID, StreamName: stringField(md, "streamName"),
					TaskID: t.ID, TaskTitle: t.Title, TaskStatus: t.Status,
				})
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].File != conflicts[j].File {
			return conflicts[i].File < conflicts[j].File
		}
		return conflicts[i].TaskID < conflicts[j].TaskID
	})
	return conflicts
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func stringListField(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
