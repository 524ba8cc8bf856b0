package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
	"github.com/taskflow-dev/taskflowmcp/internal/ids"
)

// CreatePRD inserts a new PRD under the given initiative. prdType and
// scopeLocked are resolved by the caller (internal/classify) before this is
// called.
func (s *Store) CreatePRD(ctx context.Context, p *PRD, now time.Time) (*PRD, error) {
	p.ID = ids.New(ids.PRD)
	p.Status = PRDStatusActive
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.MilestonesRaw == "" {
		p.MilestonesRaw = "[]"
	}
	if p.MetadataRaw == "" {
		p.MetadataRaw = "{}"
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO prds (id, initiative_id, title, description, content, prd_type, scope_locked,
				priority, milestones_json, metadata_json, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.InitiativeID, p.Title, p.Description, p.Content, string(p.PRDType), p.ScopeLocked,
			p.Priority, p.MilestonesRaw, p.MetadataRaw, p.Status, p.CreatedAt, p.UpdatedAt); err != nil {
			return apperr.Store("creating prd", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPRD fetches a PRD by id.
func (s *Store) GetPRD(ctx context.Context, id string) (*PRD, error) {
	var p PRD
	err := s.reader().GetContext(ctx, &p, `SELECT * FROM prds WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("reading prd", err)
	}
	return &p, nil
}

// ListPRDs returns PRDs for an initiative, optionally filtered by status.
func (s *Store) ListPRDs(ctx context.Context, initiativeID, status string) ([]*PRD, error) {
	var prds []*PRD
	query := `SELECT * FROM prds WHERE initiative_id = ?`
	args := []any{initiativeID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`
	if err := s.reader().SelectContext(ctx, &prds, query, args...); err != nil {
		return nil, apperr.Store("listing prds", err)
	}
	return prds, nil
}

// UpdatePRDStatus archives or reactivates a PRD.
func (s *Store) UpdatePRDStatus(ctx context.Context, id, status string, now time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`UPDATE prds SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
		if err != nil {
			return apperr.Store("updating prd status", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("PRD", id)
		}
		return nil
	})
}

// SetPRDMilestones persists a PRD's ordered milestone list.
func (s *Store) SetPRDMilestones(ctx context.Context, id string, milestones []Milestone, now time.Time) error {
	raw, err := toJSON(milestones)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`UPDATE prds SET milestones_json = ?, updated_at = ? WHERE id = ?`, raw, now, id)
		if err != nil {
			return apperr.Store("updating prd milestones", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("PRD", id)
		}
		return nil
	})
}
