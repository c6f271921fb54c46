package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const movementColumns = `id, import_id, position, movement_date, amount, description, direction,
	status, match_method, match_target, run_id, reconciled_at`

type MovementStore struct {
	db *sqlx.DB
}

func (s *MovementStore) ListUnreconciled(ctx context.Context) ([]models.BankMovement, error) {
	var out []models.BankMovement
	query := s.db.Rebind(`SELECT ` + movementColumns + ` FROM bank_movements
		WHERE status = ?
		ORDER BY movement_date, position, id`)
	if err := s.db.SelectContext(ctx, &out, query, models.MovementUnreconciled); err != nil {
		return nil, fmt.Errorf("failed to list unreconciled movements: %w", err)
	}
	return out, nil
}

// List returns every movement, optionally limited to one import.
func (s *MovementStore) List(ctx context.Context, importID string) ([]models.BankMovement, error) {
	query := `SELECT ` + movementColumns + ` FROM bank_movements`
	var args []interface{}
	if importID != "" {
		query += ` WHERE import_id = ?`
		args = append(args, importID)
	}
	query += ` ORDER BY movement_date, position, id`

	var out []models.BankMovement
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return out, nil
}

func (s *MovementStore) Get(ctx context.Context, id string) (*models.BankMovement, error) {
	var mv models.BankMovement
	query := s.db.Rebind(`SELECT ` + movementColumns + ` FROM bank_movements WHERE id = ?`)
	if err := s.db.GetContext(ctx, &mv, query, id); err != nil {
		return nil, notFound(err)
	}
	return &mv, nil
}

func (s *MovementStore) MarkReconciled(ctx context.Context, id string, status models.MovementStatus, method models.MatchMethod, target *string, runID *string, at time.Time) error {
	query := s.db.Rebind(`UPDATE bank_movements
		SET status = ?, match_method = ?, match_target = ?, run_id = ?, reconciled_at = ?
		WHERE id = ? AND status = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query, status, method, target, runID, at.UTC(), id, models.MovementUnreconciled))
	if err != nil {
		return fmt.Errorf("failed to mark movement %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	ok, err := exists(ctx, s.db, "bank_movements", id)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotFound
	}
	return models.ErrAlreadyReconciled
}

func (s *MovementStore) ResetAll(ctx context.Context) (int, error) {
	query := s.db.Rebind(`UPDATE bank_movements
		SET status = ?, match_method = NULL, match_target = NULL, run_id = NULL, reconciled_at = NULL
		WHERE status <> ? OR match_method IS NOT NULL`)
	return rowsAffected(s.db.ExecContext(ctx, query, models.MovementUnreconciled, models.MovementUnreconciled))
}

// InsertMany inserts in one transaction and skips ids already present, so
// re-importing the same statement is harmless.
func (s *MovementStore) InsertMany(ctx context.Context, movements []models.BankMovement) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO bank_movements (` + movementColumns + `)
		VALUES (:id, :import_id, :position, :movement_date, :amount, :description, :direction,
			:status, :match_method, :match_target, :run_id, :reconciled_at)
		ON CONFLICT (id) DO NOTHING`

	inserted := 0
	for _, mv := range movements {
		if mv.Status == "" {
			mv.Status = models.MovementUnreconciled
		}
		if mv.Direction == "" {
			mv.Direction = models.DirectionOf(mv.Amount)
		}
		mv.Date = models.Civil(mv.Date)
		n, err := rowsAffected(tx.NamedExecContext(ctx, query, mv))
		if err != nil {
			return 0, fmt.Errorf("failed to insert movement %s: %w", mv.ID, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit movements: %w", err)
	}
	return inserted, nil
}
