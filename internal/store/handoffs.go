package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

// CreateHandoff records an agent-to-agent work transfer. Callers must
// validate context length, chain bounds, and referenced-entity existence
// before calling this.
func (s *Store) CreateHandoff(ctx context.Context, h *Handoff, now time.Time) (*Handoff, error) {
	h.ID = ids.New(ids.Handoff)
	h.CreatedAt = now
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO handoffs (id, task_id, from_agent, to_agent, work_product_id,
			handoff_context, chain_position, chain_length, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.TaskID, h.FromAgent, h.ToAgent, h.WorkProductID, h.HandoffContext,
			h.ChainPosition, h.ChainLength, h.CreatedAt); err != nil {
			return apperr.Store("creating handoff", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ListHandoffs returns a task's handoffs ordered by chain position.
func (s *Store) ListHandoffs(ctx context.Context, taskID string) ([]*Handoff, error) {
	var hs []*Handoff
	if err := s.reader().SelectContext(ctx, &hs, `SELECT * FROM handoffs WHERE task_id = ? ORDER BY chain_position ASC`, taskID); err != nil {
		return nil, apperr.Store("listing handoffs", err)
	}
	return hs, nil
}

// GetHandoff fetches a handoff by id.
func (s *Store) GetHandoff(ctx context.Context, id string) (*Handoff, error) {
	var h Handoff
	err := s.reader().GetContext(ctx, &h, `SELECT * FROM handoffs WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("reading handoff", err)
	}
	return &h, nil
}
