package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const runColumns = `id, kind, status, processed_count, matched_count, ambiguous_count, commission_count,
	unmatched_count, error_count, summary, started_at, completed_at`

type RunStore struct {
	db *sqlx.DB
}

// SaveRun inserts the run on its first save and updates counters and status afterwards.
func (s *RunStore) SaveRun(ctx context.Context, run *models.Run) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO reconciliation_runs (`+runColumns+`)
		VALUES (:id, :kind, :status, :processed_count, :matched_count, :ambiguous_count, :commission_count,
			:unmatched_count, :error_count, :summary, :started_at, :completed_at)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			processed_count = excluded.processed_count,
			matched_count = excluded.matched_count,
			ambiguous_count = excluded.ambiguous_count,
			commission_count = excluded.commission_count,
			unmatched_count = excluded.unmatched_count,
			error_count = excluded.error_count,
			summary = excluded.summary,
			completed_at = excluded.completed_at`, run)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	query := s.db.Rebind(`SELECT ` + runColumns + ` FROM reconciliation_runs WHERE id = ?`)
	if err := s.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

type ImportStore struct {
	db *sqlx.DB
}

func (s *ImportStore) CreateImport(ctx context.Context, rec *models.StatementImport) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO statement_imports (id, filename, row_count, created_at)
		VALUES (:id, :filename, :row_count, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("failed to create import: %w", err)
	}
	return nil
}

func (s *ImportStore) GetImport(ctx context.Context, id string) (*models.StatementImport, error) {
	var rec models.StatementImport
	query := s.db.Rebind(`SELECT id, filename, row_count, created_at FROM statement_imports WHERE id = ?`)
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (s *ImportStore) SetRowCount(ctx context.Context, id string, rows int) error {
	query := s.db.Rebind(`UPDATE statement_imports SET row_count = ? WHERE id = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query, rows, id))
	if err != nil {
		return fmt.Errorf("failed to update import %s: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
