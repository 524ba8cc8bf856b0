package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

// CreateScopeChangeRequest records a pending request against a scope-locked
// PRD. Callers must have already checked the PRD is scope-locked.
func (s *Store) CreateScopeChangeRequest(ctx context.Context, r *ScopeChangeRequest, now time.Time) (*ScopeChangeRequest, error) {
	r.ID = ids.New(ids.ScopeChange)
	r.Status = ScopeChangePending
	r.CreatedAt = now
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO scope_change_requests (id, prd_id, request_type, description,
			rationale, requested_by, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.PRDID, r.RequestType, r.Description, r.Rationale, r.RequestedBy, r.Status, r.CreatedAt); err != nil {
			return apperr.Store("creating scope change request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetScopeChangeRequest fetches a request by id.
func (s *Store) GetScopeChangeRequest(ctx context.Context, id string) (*ScopeChangeRequest, error) {
	var r ScopeChangeRequest
	err := s.reader().GetContext(ctx, &r, `SELECT * FROM scope_change_requests WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("reading scope change request", err)
	}
	return &r, nil
}

// ListScopeChangeRequests returns requests for a PRD.
func (s *Store) ListScopeChangeRequests(ctx context.Context, prdID string) ([]*ScopeChangeRequest, error) {
	var rs []*ScopeChangeRequest
	if err := s.reader().SelectContext(ctx, &rs, `SELECT * FROM scope_change_requests WHERE prd_id = ? ORDER BY created_at ASC`, prdID); err != nil {
		return nil, apperr.Store("listing scope change requests", err)
	}
	return rs, nil
}

// ReviewScopeChangeRequest transitions a pending request to approved/
// rejected. Fails if the request is not currently pending: a request
// cannot be reviewed twice.
func (s *Store) ReviewScopeChangeRequest(ctx context.Context, id, status, reviewedBy, reviewNotes string, now time.Time) (*ScopeChangeRequest, error) {
	var updated *ScopeChangeRequest
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var r ScopeChangeRequest
		if err := tx.Get(&r, `SELECT * FROM scope_change_requests WHERE id = ?`, id); err != nil {
			if err == sql.ErrNoRows {
				return apperr.NotFound("ScopeChangeRequest", id)
			}
			return apperr.Store("reading scope change request", err)
		}
		if r.Status != ScopeChangePending {
			return apperr.Validation("scope change request %q is already %s and cannot be reviewed twice", id, r.Status)
		}
		r.Status = status
		r.ReviewedAt = &now
		r.ReviewedBy = &reviewedBy
		r.ReviewNotes = &reviewNotes
		if _, err := tx.Exec(`UPDATE scope_change_requests SET status = ?, reviewed_at = ?, reviewed_by = ?, review_notes = ?
			WHERE id = ?`, r.Status, r.ReviewedAt, r.ReviewedBy, r.ReviewNotes, r.ID); err != nil {
			return apperr.Store("updating scope change request", err)
		}
		updated = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
