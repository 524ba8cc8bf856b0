package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

const (
	// MaxCheckpointsPerTask is the per-task retention cap.
	MaxCheckpointsPerTask = 5
	// ManualTTL is how long a manual checkpoint lives.
	ManualTTL = 7 * 24 * time.Hour
	// AutoTTL is how long an auto-triggered checkpoint lives.
	AutoTTL = 24 * time.Hour
)

// NextCheckpointSequence returns the next monotonic sequence number for a
// task's checkpoints (strictly increasing; gaps permitted after pruning).
func (s *Store) NextCheckpointSequence(ctx context.Context, taskID string) (int, error) {
	var max sql.NullInt64
	if err := s.reader().GetContext(ctx, &max, `SELECT MAX(sequence) FROM checkpoints WHERE task_id = ?`, taskID); err != nil {
		return 0, apperr.Store("reading max checkpoint sequence", err)
	}
	return int(max.Int64) + 1, nil
}

// InsertCheckpoint stores a new checkpoint row and prunes the oldest
// checkpoints for the task beyond MaxCheckpointsPerTask.
// Returns the number of rows pruned.
func (s *Store) InsertCheckpoint(ctx context.Context, cp *Checkpoint) (pruned int, err error) {
	if cp.IsIteration() {
		cp.ID = ids.New(ids.Iteration)
	} else {
		cp.ID = ids.New(ids.Checkpoint)
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		var max sql.NullInt64
		if err := tx.Get(&max, `SELECT MAX(sequence) FROM checkpoints WHERE task_id = ?`, cp.TaskID); err != nil {
			return apperr.Store("reading max checkpoint sequence", err)
		}
		cp.Sequence = int(max.Int64) + 1

		if _, err := tx.Exec(`
			INSERT INTO checkpoints (id, task_id, sequence, trigger, status, notes, metadata_json,
				blocked_reason, assigned_agent, execution_phase, execution_step, agent_context_json,
				draft_content, draft_type, subtask_states_json, created_at, expires_at,
				iteration_config_json, iteration_number, iteration_history_json,
				completion_promises_json, validation_state_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cp.ID, cp.TaskID, cp.Sequence, cp.Trigger, cp.Status, cp.Notes, cp.MetadataRaw,
			cp.BlockedReason, cp.AssignedAgent, cp.ExecutionPhase, cp.ExecutionStep, cp.AgentContextRaw,
			cp.DraftContent, cp.DraftType, cp.SubtaskStatesRaw, cp.CreatedAt, cp.ExpiresAt,
			cp.IterationConfigRaw, cp.IterationNumber, cp.IterationHistoryRaw,
			cp.CompletionPromisesRaw, cp.ValidationStateRaw); err != nil {
			return apperr.Store("inserting checkpoint", err)
		}

		var ids []string
		if err := tx.Select(&ids, `SELECT id FROM checkpoints WHERE task_id = ? ORDER BY sequence DESC`, cp.TaskID); err != nil {
			return apperr.Store("listing checkpoints for pruning", err)
		}
		if len(ids) > MaxCheckpointsPerTask {
			toDrop := ids[MaxCheckpointsPerTask:]
			query, args, err := sqlx.In(`DELETE FROM checkpoints WHERE id IN (?)`, toDrop)
			if err != nil {
				return apperr.Store("building prune query", err)
			}
			if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
				return apperr.Store("pruning checkpoints", err)
			}
			pruned = len(toDrop)
		}
		return nil
	})
	return pruned, err
}

// GetCheckpoint fetches a checkpoint by id.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.reader().GetContext(ctx, &cp, `SELECT * FROM checkpoints WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("reading checkpoint", err)
	}
	return &cp, nil
}

// ListCheckpoints returns all checkpoints for a task, newest sequence first.
func (s *Store) ListCheckpoints(ctx context.Context, taskID string) ([]*Checkpoint, error) {
	var cps []*Checkpoint
	if err := s.reader().SelectContext(ctx, &cps, `SELECT * FROM checkpoints WHERE task_id = ? ORDER BY sequence DESC`, taskID); err != nil {
		return nil, apperr.Store("listing checkpoints", err)
	}
	return cps, nil
}

// LatestCheckpoint returns the highest-sequence checkpoint for a task, or
// nil if none exist.
func (s *Store) LatestCheckpoint(ctx context.Context, taskID string) (*Checkpoint, error) {
	cps, err := s.ListCheckpoints(ctx, taskID)
	if err != nil || len(cps) == 0 {
		return nil, err
	}
	return cps[0], nil
}

// UpdateCheckpointIteration persists iteration bookkeeping fields back onto
// its owning checkpoint row (iteration_next/_validate mutate in place; the
// checkpoint IS the iteration).
func (s *Store) UpdateCheckpointIteration(ctx context.Context, cp *Checkpoint) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`
			UPDATE checkpoints SET iteration_number = ?, iteration_history_json = ?, validation_state_json = ?,
				agent_context_json = ?
			WHERE id = ?`, cp.IterationNumber, cp.IterationHistoryRaw, cp.ValidationStateRaw, cp.AgentContextRaw, cp.ID)
		if err != nil {
			return apperr.Store("updating checkpoint iteration state", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("Checkpoint", cp.ID)
		}
		return nil
	})
}

// CleanupResult reports what checkpoint_cleanup removed.
type CleanupResult struct {
	Deleted   int
	Remaining int
}

// CleanupCheckpoints deletes expired rows, then rows created before cutoff
// (if non-zero), then for taskID (if non-empty) prunes down to keepLatest
// newest. Idempotent.
func (s *Store) CleanupCheckpoints(ctx context.Context, now time.Time, cutoff time.Time, taskID string, keepLatest int) (*CleanupResult, error) {
	result := &CleanupResult{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`DELETE FROM checkpoints WHERE expires_at IS NOT NULL AND expires_at < ?`, now)
		if err != nil {
			return apperr.Store("deleting expired checkpoints", err)
		}
		n, _ := res.RowsAffected()
		result.Deleted += int(n)

		if !cutoff.IsZero() {
			res, err := tx.Exec(`DELETE FROM checkpoints WHERE created_at < ?`, cutoff)
			if err != nil {
				return apperr.Store("deleting checkpoints older than cutoff", err)
			}
			n, _ := res.RowsAffected()
			result.Deleted += int(n)
		}

		if taskID != "" && keepLatest > 0 {
			var ids []string
			if err := tx.Select(&ids, `SELECT id FROM checkpoints WHERE task_id = ? ORDER BY sequence DESC`, taskID); err != nil {
				return apperr.Store("listing checkpoints for cleanup", err)
			}
			if len(ids) > keepLatest {
				toDrop := ids[keepLatest:]
				query, args, err := sqlx.In(`DELETE FROM checkpoints WHERE id IN (?)`, toDrop)
				if err != nil {
					return apperr.Store("building cleanup query", err)
				}
				if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
					return apperr.Store("cleaning up checkpoints", err)
				}
				result.Deleted += len(toDrop)
			}
		}

		var remaining int
		if err := tx.Get(&remaining, `SELECT COUNT(*) FROM checkpoints`); err != nil {
			return apperr.Store("counting remaining checkpoints", err)
		}
		result.Remaining = remaining
		return nil
	})
	return result, err
}
