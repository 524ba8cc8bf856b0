package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

// CreateWorkProduct appends an immutable deliverable to a task. The store
// has no update path for work products; they are deleted only by
// WipeInitiativeDependents.
func (s *Store) CreateWorkProduct(ctx context.Context, w *WorkProduct, now time.Time) (*WorkProduct, error) {
	w.ID = ids.New(ids.WorkProduct)
	w.CreatedAt = now
	if w.MetadataRaw == "" {
		w.MetadataRaw = "{}"
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO work_products (id, task_id, type, title, content, metadata_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, w.ID, w.TaskID, w.Type, w.Title, w.Content, w.MetadataRaw, w.CreatedAt); err != nil {
			return apperr.Store("creating work product", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetWorkProduct fetches a work product by id.
func (s *Store) GetWorkProduct(ctx context.Context, id string) (*WorkProduct, error) {
	var w WorkProduct
	err := s.reader().GetContext(ctx, &w, `SELECT * FROM work_products WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("reading work product", err)
	}
	return &w, nil
}

// ListWorkProducts returns a task's work products in creation order.
func (s *Store) ListWorkProducts(ctx context.Context, taskID string) ([]*WorkProduct, error) {
	var wps []*WorkProduct
	if err := s.reader().SelectContext(ctx, &wps, `SELECT * FROM work_products WHERE task_id = ? ORDER BY created_at ASC`, taskID); err != nil {
		return nil, apperr.Store("listing work products", err)
	}
	return wps, nil
}

// LatestWorkProduct returns the most recently stored work product for a
// task, used by content-predicate validation rules.
func (s *Store) LatestWorkProduct(ctx context.Context, taskID string) (*WorkProduct, error) {
	wps, err := s.ListWorkProducts(ctx, taskID)
	if err != nil || len(wps) == 0 {
		return nil, err
	}
	return wps[len(wps)-1], nil
}
