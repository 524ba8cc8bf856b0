package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

// CreateTask inserts a new task with status=pending. Callers are expected to
// have already run cycle detection (internal/streams) and activation-mode
// detection (internal/classify) before calling this.
func (s *Store) CreateTask(ctx context.Context, t *Task, now time.Time) (*Task, error) {
	t.ID = ids.New(ids.Task)
	t.Status = TaskStatusPending
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.MetadataRaw == "" {
		t.MetadataRaw = "{}"
	}
	// stream_id is generated from metadata_json; a caller-set StreamID
	// field is projected into the document so both stay in agreement.
	if t.StreamID != nil && *t.StreamID != "" {
		meta := t.Metadata()
		if _, ok := meta["streamId"]; !ok {
			meta["streamId"] = *t.StreamID
			if err := t.SetMetadata(meta); err != nil {
				return nil, err
			}
		}
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		// stream_id is a generated column projected from metadata_json.
		if _, err := tx.Exec(`
			INSERT INTO tasks (id, prd_id, parent_id, title, description, assigned_agent, status,
				blocked_reason, notes, metadata_json, created_at, updated_at, archived)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			t.ID, t.PRDID, t.ParentID, t.Title, t.Description, t.AssignedAgent, t.Status,
			t.BlockedReason, t.Notes, t.MetadataRaw, t.CreatedAt, t.UpdatedAt); err != nil {
			return apperr.Store("creating task", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	return getTask(ctx, s.reader(), id)
}

func getTask(ctx context.Context, q sqlx.QueryerContext, id string) (*Task, error) {
	var t Task
	err := sqlx.GetContext(ctx, q, &t, `SELECT * FROM tasks WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("reading task", err)
	}
	return &t, nil
}

// TaskListFilter narrows task_list results.
type TaskListFilter struct {
	PRDID         string
	ParentID      string
	Status        string
	AssignedAgent string
}

// ListTasks returns tasks matching the filter, in creation order.
func (s *Store) ListTasks(ctx context.Context, f TaskListFilter) ([]*Task, error) {
	query := `SELECT * FROM tasks WHERE 1=1`
	var args []any
	if f.PRDID != "" {
		query += ` AND prd_id = ?`
		args = append(args, f.PRDID)
	}
	if f.ParentID != "" {
		query += ` AND parent_id = ?`
		args = append(args, f.ParentID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.AssignedAgent != "" {
		query += ` AND assigned_agent = ?`
		args = append(args, f.AssignedAgent)
	}
	query += ` ORDER BY created_at ASC`

	var tasks []*Task
	if err := s.reader().SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, apperr.Store("listing tasks", err)
	}
	return tasks, nil
}

// ListTasksByInitiative returns every task under any PRD of the given
// initiative. The prd join stays inside this package so no cross-entity
// join leaks outside the store.
func (s *Store) ListTasksByInitiative(ctx context.Context, initiativeID string) ([]*Task, error) {
	var tasks []*Task
	if err := s.reader().SelectContext(ctx, &tasks, `
		SELECT t.* FROM tasks t JOIN prds p ON t.prd_id = p.id
		WHERE p.initiative_id = ? ORDER BY t.created_at ASC`, initiativeID); err != nil {
		return nil, apperr.Store("listing initiative tasks", err)
	}
	return tasks, nil
}

// Subtasks returns the direct children of a task.
func (s *Store) Subtasks(ctx context.Context, taskID string) ([]*Task, error) {
	var tasks []*Task
	if err := s.reader().SelectContext(ctx, &tasks, `SELECT * FROM tasks WHERE parent_id = ? ORDER BY created_at ASC`, taskID); err != nil {
		return nil, apperr.Store("listing subtasks", err)
	}
	return tasks, nil
}

// SubtaskCounts returns {total, completed} subtask counts for a task.
func (s *Store) SubtaskCounts(ctx context.Context, taskID string) (total, completed int, err error) {
	subtasks, err := s.Subtasks(ctx, taskID)
	if err != nil {
		return 0, 0, err
	}
	for _, st := range subtasks {
		total++
		if st.Status == TaskStatusCompleted {
			completed++
		}
	}
	return total, completed, nil
}

// HasWorkProducts reports whether any work products exist for a task.
func (s *Store) HasWorkProducts(ctx context.Context, taskID string) (bool, error) {
	var n int
	if err := s.reader().GetContext(ctx, &n, `SELECT COUNT(*) FROM work_products WHERE task_id = ?`, taskID); err != nil {
		return false, apperr.Store("counting work products", err)
	}
	return n > 0, nil
}

// AllStreamTaskMetadata returns {streamID -> streamDependencies} for every
// task that currently carries a streamId, used by the cycle check in
// internal/streams when a new task is about to join a stream.
func (s *Store) AllStreamTaskMetadata(ctx context.Context) (map[string][]string, error) {
	var tasks []*Task
	if err := s.reader().SelectContext(ctx, &tasks, `SELECT * FROM tasks WHERE stream_id IS NOT NULL`); err != nil {
		return nil, apperr.Store("listing stream tasks", err)
	}
	out := map[string][]string{}
	for _, t := range tasks {
		if t.StreamID == nil {
			continue
		}
		if _, seen := out[*t.StreamID]; seen {
			continue
		}
		meta := t.Metadata()
		out[*t.StreamID] = stringSlice(meta["streamDependencies"])
	}
	return out, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// TaskUpdate describes the fields task_update may change. Zero values mean
// "leave unchanged" except where a *Set flag says otherwise; metadata is
// always merged shallowly over the existing document.
type TaskUpdate struct {
	Status           string
	SetStatus        bool
	AssignedAgent    *string
	SetAssignedAgent bool
	BlockedReason    *string
	Notes            *string
	AppendNotes      *string
	MetadataPatch    map[string]any
}

// ApplyTaskUpdate merges an update into a task row inside its own write
// transaction (used by the task_update tool). An archived task is
// rejected with an ArchivedTaskError and left unchanged.
func (s *Store) ApplyTaskUpdate(ctx context.Context, taskID string, u TaskUpdate, now time.Time) (*Task, error) {
	var updated *Task
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		t, err := getTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		if t.Archived {
			return &apperr.ArchivedTaskError{
				TaskID:              t.ID,
				StreamID:            derefStr(t.StreamID),
				ArchivingInitiative: derefStr(t.ArchivedByInitiativeID),
			}
		}

		if u.SetStatus {
			t.Status = u.Status
		}
		if u.SetAssignedAgent {
			t.AssignedAgent = u.AssignedAgent
		}
		if u.BlockedReason != nil {
			t.BlockedReason = *u.BlockedReason
		}
		if u.Notes != nil {
			t.Notes = *u.Notes
		}
		if u.AppendNotes != nil {
			if t.Notes != "" {
				t.Notes += "\n"
			}
			t.Notes += *u.AppendNotes
		}
		if u.MetadataPatch != nil {
			merged := t.Metadata()
			for k, v := range u.MetadataPatch {
				merged[k] = v
			}
			if err := t.SetMetadata(merged); err != nil {
				return err
			}
		}
		t.UpdatedAt = now

		if _, err := tx.Exec(`
			UPDATE tasks SET status = ?, assigned_agent = ?, blocked_reason = ?, notes = ?,
				metadata_json = ?, updated_at = ? WHERE id = ?`,
			t.Status, t.AssignedAgent, t.BlockedReason, t.Notes, t.MetadataRaw, t.UpdatedAt, t.ID); err != nil {
			return apperr.Store("updating task", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyTaskMetadata overwrites a task's metadata document wholesale (no
// merge). Used by callers, like iteration_validate's continuation
// bookkeeping, that have already computed the full merged document.
func (s *Store) ApplyTaskMetadata(ctx context.Context, taskID string, metadata map[string]any, now time.Time) error {
	raw, err := toJSON(metadata)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`UPDATE tasks SET metadata_json = ?, updated_at = ? WHERE id = ?`, raw, now, taskID)
		if err != nil {
			return apperr.Store("updating task metadata", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("Task", taskID)
		}
		return nil
	})
}

func getTaskTx(tx *sqlx.Tx, id string) (*Task, error) {
	var t Task
	err := tx.Get(&t, `SELECT * FROM tasks WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Task", id)
	}
	if err != nil {
		return nil, apperr.Store("reading task", err)
	}
	return &t, nil
}

// ArchiveTasksByStream marks every task in the given streams as archived,
// recording the initiative that was current at the moment of the switch.
func (s *Store) ArchiveTasksByStream(ctx context.Context, streamIDs []string, byInitiativeID string, now time.Time) (int, error) {
	if len(streamIDs) == 0 {
		return 0, nil
	}
	var n int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, sid := range streamIDs {
			query, args, err := sqlx.In(`UPDATE tasks SET archived = 1, archived_at = ?, archived_by_initiative_id = ?
				WHERE stream_id = ? AND archived = 0`, now, byInitiativeID, sid)
			if err != nil {
				return apperr.Store("building archive query", err)
			}
			res, err := tx.Exec(tx.Rebind(query), args...)
			if err != nil {
				return apperr.Store("archiving stream tasks", err)
			}
			affected, _ := res.RowsAffected()
			n += int(affected)
		}
		return nil
	})
	return n, err
}

// UnarchiveStream clears archived fields on every task in the stream,
// optionally moving the tasks under newPRDID. Returns the number of
// tasks unarchived.
func (s *Store) UnarchiveStream(ctx context.Context, streamID, newPRDID string, now time.Time) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `UPDATE tasks SET archived = 0, archived_at = NULL, archived_by_initiative_id = NULL, updated_at = ?`
		args := []any{now}
		if newPRDID != "" {
			query += `, prd_id = ?`
			args = append(args, newPRDID)
		}
		query += ` WHERE stream_id = ? AND archived = 1`
		args = append(args, streamID)
		res, err := tx.Exec(query, args...)
		if err != nil {
			return apperr.Store("unarchiving stream", err)
		}
		affected, _ := res.RowsAffected()
		n = int(affected)
		return nil
	})
	return n, err
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
