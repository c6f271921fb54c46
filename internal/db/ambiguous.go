package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const ambiguousColumns = `id, movement_id, candidates, status, chosen_payable_id, run_id, created_at, resolved_at`

type AmbiguousStore struct {
	db *sqlx.DB
}

func (s *AmbiguousStore) Create(ctx context.Context, m *models.AmbiguousMatch) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO ambiguous_matches (`+ambiguousColumns+`)
		VALUES (:id, :movement_id, :candidates, :status, :chosen_payable_id, :run_id, :created_at, :resolved_at)`, m)
	if err != nil {
		return fmt.Errorf("failed to create ambiguous match for movement %s: %w", m.MovementID, err)
	}
	return nil
}

func (s *AmbiguousStore) Get(ctx context.Context, id string) (*models.AmbiguousMatch, error) {
	var m models.AmbiguousMatch
	query := s.db.Rebind(`SELECT ` + ambiguousColumns + ` FROM ambiguous_matches WHERE id = ?`)
	if err := s.db.GetContext(ctx, &m, query, id); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *AmbiguousStore) List(ctx context.Context, status *models.AmbiguousStatus) ([]models.AmbiguousMatch, error) {
	query := `SELECT ` + ambiguousColumns + ` FROM ambiguous_matches`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at, id`

	var out []models.AmbiguousMatch
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list ambiguous matches: %w", err)
	}
	return out, nil
}

func (s *AmbiguousStore) Resolve(ctx context.Context, id string, status models.AmbiguousStatus, chosen *string, at time.Time) error {
	query := s.db.Rebind(`UPDATE ambiguous_matches
		SET status = ?, chosen_payable_id = ?, resolved_at = ?
		WHERE id = ? AND status = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query, status, chosen, at.UTC(), id, models.AmbiguousPending))
	if err != nil {
		return fmt.Errorf("failed to resolve ambiguous match %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	ok, err := exists(ctx, s.db, "ambiguous_matches", id)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotFound
	}
	return models.ErrAlreadyResolved
}

func (s *AmbiguousStore) Reopen(ctx context.Context, id string) error {
	query := s.db.Rebind(`UPDATE ambiguous_matches
		SET status = ?, chosen_payable_id = NULL, resolved_at = NULL
		WHERE id = ? AND status = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query, models.AmbiguousPending, id, models.AmbiguousConfirmed))
	if err != nil {
		return fmt.Errorf("failed to reopen ambiguous match %s: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *AmbiguousStore) DeletePending(ctx context.Context) (int, error) {
	query := s.db.Rebind(`DELETE FROM ambiguous_matches WHERE status = ?`)
	return rowsAffected(s.db.ExecContext(ctx, query, models.AmbiguousPending))
}

func (s *AmbiguousStore) BlockedMovementIDs(ctx context.Context, includeRejected bool) (map[string]bool, error) {
	statuses := []models.AmbiguousStatus{models.AmbiguousPending}
	if !includeRejected {
		statuses = append(statuses, models.AmbiguousRejected)
	}
	query, args, err := sqlx.In(`SELECT DISTINCT movement_id FROM ambiguous_matches WHERE status IN (?)`, statuses)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list blocked movements: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
