package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

// RecordPerformance appends a per-agent outcome row inside an open
// transaction, so a caller can fold it into the same commit as another
// mutation.
func RecordPerformance(tx *sqlx.Tx, r *PerformanceRecord, now time.Time) error {
	r.ID = ids.New(ids.Performance)
	r.CreatedAt = now
	if _, err := tx.Exec(`INSERT INTO performance_records (id, agent_id, task_id, work_product_type,
		complexity, outcome, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgentID, r.TaskID, r.WorkProductType, r.Complexity, r.Outcome, r.DurationMs, r.CreatedAt); err != nil {
		return apperr.Store("recording performance", err)
	}
	return nil
}

// RecordPerformanceNow is a convenience wrapper that opens its own
// transaction; used by code paths that don't already hold one open.
func (s *Store) RecordPerformanceNow(ctx context.Context, r *PerformanceRecord, now time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return RecordPerformance(tx, r, now)
	})
}

// AgentPerformance returns every recorded outcome for an agent.
func (s *Store) AgentPerformance(ctx context.Context, agentID string) ([]*PerformanceRecord, error) {
	var rs []*PerformanceRecord
	if err := s.reader().SelectContext(ctx, &rs, `SELECT * FROM performance_records WHERE agent_id = ? ORDER BY created_at DESC`, agentID); err != nil {
		return nil, apperr.Store("listing performance records", err)
	}
	return rs, nil
}
