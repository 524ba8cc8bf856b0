package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

// LogProtocolViolation records a main-session guardrail breach.
func (s *Store) LogProtocolViolation(ctx context.Context, v *ProtocolViolation, now time.Time) (*ProtocolViolation, error) {
	v.ID = ids.New(ids.Violation)
	v.CreatedAt = now
	if v.ContextRaw == "" {
		v.ContextRaw = "{}"
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO protocol_violations (id, session_id, initiative_id, violation_type,
			severity, context_json, suggestion, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.SessionID, v.InitiativeID, v.ViolationType, v.Severity, v.ContextRaw, v.Suggestion, v.CreatedAt); err != nil {
			return apperr.Store("logging protocol violation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListProtocolViolations returns violations for a session, newest first.
func (s *Store) ListProtocolViolations(ctx context.Context, sessionID string) ([]*ProtocolViolation, error) {
	var vs []*ProtocolViolation
	if err := s.reader().SelectContext(ctx, &vs, `SELECT * FROM protocol_violations WHERE session_id = ? ORDER BY created_at DESC`, sessionID); err != nil {
		return nil, apperr.Store("listing protocol violations", err)
	}
	return vs, nil
}
