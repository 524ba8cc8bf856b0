package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
)

// LinkInitiative creates the initiative on first link, updates title/
// description on re-link, and demotes any previously-current initiative.
// Re-linking the same id is a no-op.
// Returns the initiative and the previously-current initiative id, if any
// and if it differs (callers use this to drive stream auto-archival).
func (s *Store) LinkInitiative(ctx context.Context, id, title, description string, now time.Time) (*Initiative, string, error) {
	var init *Initiative
	var previous string

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var state struct {
			CurrentInitiativeID sql.NullString `db:"current_initiative_id"`
		}
		if err := tx.Get(&state, `SELECT current_initiative_id FROM workspace_state WHERE id = 1`); err != nil {
			return apperr.Store("reading workspace state", err)
		}
		previous = state.CurrentInitiativeID.String

		if previous == id {
			existing, err := getInitiativeTx(tx, id)
			if err != nil {
				return err
			}
			init = existing
			previous = "" // idempotent: no previous-initiative transition occurred
			return nil
		}

		existing, err := getInitiativeTx(tx, id)
		switch {
		case err == nil:
			existing.Title = title
			existing.Description = description
			existing.UpdatedAt = now
			if _, err := tx.Exec(`UPDATE initiatives SET title = ?, description = ?, updated_at = ? WHERE id = ?`,
				existing.Title, existing.Description, existing.UpdatedAt, existing.ID); err != nil {
				return apperr.Store("updating initiative", err)
			}
			init = existing
		case isNotFound(err):
			created := &Initiative{ID: id, Title: title, Description: description, CreatedAt: now, UpdatedAt: now}
			if _, err := tx.Exec(`INSERT INTO initiatives (id, title, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
				created.ID, created.Title, created.Description, created.CreatedAt, created.UpdatedAt); err != nil {
				return apperr.Store("creating initiative", err)
			}
			init = created
		default:
			return err
		}

		if _, err := tx.Exec(`UPDATE workspace_state SET current_initiative_id = ? WHERE id = 1`, id); err != nil {
			return apperr.Store("updating workspace state", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return init, previous, nil
}

// CurrentInitiativeID returns the id of the workspace's current initiative,
// or "" if none has been linked yet.
func (s *Store) CurrentInitiativeID(ctx context.Context) (string, error) {
	var state struct {
		CurrentInitiativeID sql.NullString `db:"current_initiative_id"`
	}
	if err := s.reader().GetContext(ctx, &state, `SELECT current_initiative_id FROM workspace_state WHERE id = 1`); err != nil {
		return "", apperr.Store("reading workspace state", err)
	}
	return state.CurrentInitiativeID.String, nil
}

// GetInitiative fetches an initiative by id.
func (s *Store) GetInitiative(ctx context.Context, id string) (*Initiative, error) {
	var init Initiative
	err := s.reader().GetContext(ctx, &init, `SELECT * FROM initiatives WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("reading initiative", err)
	}
	return &init, nil
}

func getInitiativeTx(tx *sqlx.Tx, id string) (*Initiative, error) {
	var init Initiative
	err := tx.Get(&init, `SELECT * FROM initiatives WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Initiative", id)
	}
	if err != nil {
		return nil, apperr.Store("reading initiative", err)
	}
	return &init, nil
}

func isNotFound(err error) bool {
	ae, ok := err.(*apperr.Error)
	return ok && ae.Kind == apperr.KindNotFound
}
