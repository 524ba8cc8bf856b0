package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
)

// ArchiveFileVersion is the schema version stamped on every archive file
// produced by initiative_archive.
const ArchiveFileVersion = "1.0"

// InitiativeArchive is the full dependent-data snapshot initiative_archive
// writes to disk before wiping the initiative's dependents.
type InitiativeArchive struct {
	Version      string          `json:"version"`
	ArchivedAt   time.Time       `json:"archivedAt"`
	Initiative   *Initiative     `json:"initiative"`
	PRDs         []*PRD          `json:"prds"`
	Tasks        []*Task         `json:"tasks"`
	WorkProducts []*WorkProduct  `json:"workProducts"`
	ActivityLog  []*ActivityEntry `json:"activityLog"`
}

// GatherInitiativeArchive reads everything that hangs off initiativeID
// (its PRDs, their tasks, those tasks' work products, and the
// initiative's activity log) without mutating anything.
func (s *Store) GatherInitiativeArchive(ctx context.Context, initiativeID string, now time.Time) (*InitiativeArchive, error) {
	init, err := s.GetInitiative(ctx, initiativeID)
	if err != nil {
		return nil, err
	}
	if init == nil {
		return nil, apperr.NotFound("Initiative", initiativeID)
	}

	prds, err := s.ListPRDs(ctx, initiativeID, "")
	if err != nil {
		return nil, err
	}

	var tasks []*Task
	var workProducts []*WorkProduct
	for _, p := range prds {
		ts, err := s.ListTasks(ctx, TaskListFilter{PRDID: p.ID})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, ts...)
		for _, t := range ts {
			wps, err := s.ListWorkProducts(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			workProducts = append(workProducts, wps...)
		}
	}

	activity, err := s.ListActivity(ctx, initiativeID, 0)
	if err != nil {
		return nil, err
	}

	return &InitiativeArchive{
		Version: ArchiveFileVersion, ArchivedAt: now, Initiative: init,
		PRDs: prds, Tasks: tasks, WorkProducts: workProducts, ActivityLog: activity,
	}, nil
}

// WipeCounts reports how many rows of each kind were removed by
// WipeInitiativeDependents.
type WipeCounts struct {
	PRDs             int `json:"prds"`
	Tasks            int `json:"tasks"`
	WorkProducts     int `json:"workProducts"`
	Checkpoints      int `json:"checkpoints"`
	Handoffs         int `json:"handoffs"`
	ScopeChanges     int `json:"scopeChanges"`
	ActivityEntries  int `json:"activityEntries"`
}

// WipeInitiativeDependents deletes every PRD, task, work product,
// checkpoint, handoff, scope-change request, and activity entry that
// hangs off initiativeID, in dependency order, inside one transaction.
// The initiative row itself is left in place: archiving wipes its
// dependents but keeps the row.
func (s *Store) WipeInitiativeDependents(ctx context.Context, initiativeID string) (*WipeCounts, error) {
	counts := &WipeCounts{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var prdIDs []string
		if err := tx.Select(&prdIDs, `SELECT id FROM prds WHERE initiative_id = ?`, initiativeID); err != nil {
			return apperr.Store("listing prds for wipe", err)
		}
		if len(prdIDs) == 0 {
			return deleteActivity(tx, initiativeID, counts)
		}

		prdQuery, prdArgs, err := sqlx.In(`SELECT id FROM tasks WHERE prd_id IN (?)`, prdIDs)
		if err != nil {
			return apperr.Store("building task id query", err)
		}
		var taskIDs []string
		if err := tx.Select(&taskIDs, tx.Rebind(prdQuery), prdArgs...); err != nil {
			return apperr.Store("listing tasks for wipe", err)
		}

		if len(taskIDs) > 0 {
			if n, err := execIn(tx, `DELETE FROM handoffs WHERE task_id IN (?)`, taskIDs); err != nil {
				return err
			} else {
				counts.Handoffs = n
			}
			if n, err := execIn(tx, `DELETE FROM work_products WHERE task_id IN (?)`, taskIDs); err != nil {
				return err
			} else {
				counts.WorkProducts = n
			}
			if n, err := execIn(tx, `DELETE FROM checkpoints WHERE task_id IN (?)`, taskIDs); err != nil {
				return err
			} else {
				counts.Checkpoints = n
			}
			if n, err := execIn(tx, `DELETE FROM tasks WHERE id IN (?)`, taskIDs); err != nil {
				return err
			} else {
				counts.Tasks = n
			}
		}

		if n, err := execIn(tx, `DELETE FROM scope_change_requests WHERE prd_id IN (?)`, prdIDs); err != nil {
			return err
		} else {
			counts.ScopeChanges = n
		}
		if n, err := execIn(tx, `DELETE FROM prds WHERE id IN (?)`, prdIDs); err != nil {
			return err
		} else {
			counts.PRDs = n
		}

		return deleteActivity(tx, initiativeID, counts)
	})
	return counts, err
}

func deleteActivity(tx *sqlx.Tx, initiativeID string, counts *WipeCounts) error {
	res, err := tx.Exec(`DELETE FROM activity_log WHERE initiative_id = ?`, initiativeID)
	if err != nil {
		return apperr.Store("deleting activity log", err)
	}
	n, _ := res.RowsAffected()
	counts.ActivityEntries = int(n)
	return nil
}

func execIn(tx *sqlx.Tx, query string, ids []string) (int, error) {
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return 0, apperr.Store("building delete query", err)
	}
	res, err := tx.Exec(tx.Rebind(q), args...)
	if err != nil {
		return 0, apperr.Store("executing delete", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
