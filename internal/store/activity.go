package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

// AppendActivity inserts one audit-trail row. Accepts an open transaction
// so callers can fold it into the same commit as the mutation it
// describes. Not every mutating tool appends an entry: initiative_archive,
// initiative_wipe, iteration_next, iteration_validate and the security
// hook tools append none, and the entity tools skip the entry when the
// entity cannot be tied to an initiative.
func AppendActivity(tx *sqlx.Tx, initiativeID, entityType, entityID, summary string, metadata map[string]any, now time.Time) error {
	raw, err := toJSON(metadata)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO activity_log (id, initiative_id, entity_type, entity_id, summary, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, ids.New(ids.Activity), initiativeID, entityType, entityID, summary, raw, now); err != nil {
		return apperr.Store("appending activity", err)
	}
	return nil
}

// AppendActivityNow is a convenience wrapper that opens its own transaction;
// used by code paths that don't already hold one open.
func (s *Store) AppendActivityNow(ctx context.Context, initiativeID, entityType, entityID, summary string, metadata map[string]any, now time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return AppendActivity(tx, initiativeID, entityType, entityID, summary, metadata, now)
	})
}

// ListActivity returns activity for an initiative, newest first. A limit
// <= 0 means unbounded (initiative_archive needs the full log).
func (s *Store) ListActivity(ctx context.Context, initiativeID string, limit int) ([]*ActivityEntry, error) {
	query := `SELECT * FROM activity_log WHERE initiative_id = ? ORDER BY created_at DESC`
	args := []any{initiativeID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var entries []*ActivityEntry
	if err := s.reader().SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, apperr.Store("listing activity", err)
	}
	return entries, nil
}

// InitiativeIDForTask walks task -> prd -> initiative to resolve the
// initiative an activity entry should be filed under.
func (s *Store) InitiativeIDForTask(ctx context.Context, taskID string) (string, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil || task == nil {
		return "", err
	}
	if task.ParentID != nil {
		return s.InitiativeIDForTask(ctx, *task.ParentID)
	}
	if task.PRDID == nil {
		return "", nil
	}
	prd, err := s.GetPRD(ctx, *task.PRDID)
	if err != nil || prd == nil {
		return "", err
	}
	return prd.InitiativeID, nil
}
