package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const checkColumns = `id, prefix, sequence, number, state, amount, beneficiary, payable_id,
	payable_linked_by_run, issue_date, cleared_by_movement_id, cleared_at, created_at`

var _ checks.Store = (*CheckStore)(nil)

type CheckStore struct {
	db *sqlx.DB
}

func (s *CheckStore) ExistingNumbers(ctx context.Context, numbers []string) ([]string, error) {
	return existingNumbers(ctx, s.db, numbers)
}

func existingNumbers(ctx context.Context, q sqlx.ExtContext, numbers []string) ([]string, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT number FROM checks WHERE number IN (?) ORDER BY sequence, number`, numbers)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := sqlx.SelectContext(ctx, q, &out, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to look up check numbers: %w", err)
	}
	return out, nil
}

// CreateBatch inserts the whole batch in one transaction. A unique violation
// from a concurrent batch is reported with the numbers that now conflict.
func (s *CheckStore) CreateBatch(ctx context.Context, batch []models.Check) error {
	numbers := make([]string, len(batch))
	for i, c := range batch {
		numbers[i] = c.Number
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := existingNumbers(ctx, tx, numbers)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return &checks.DuplicateBatchError{Conflicts: existing}
	}

	query := `INSERT INTO checks (` + checkColumns + `)
		VALUES (:id, :prefix, :sequence, :number, :state, :amount, :beneficiary, :payable_id,
			:payable_linked_by_run, :issue_date, :cleared_by_movement_id, :cleared_at, :created_at)`
	for _, c := range batch {
		if _, err := tx.NamedExecContext(ctx, query, c); err != nil {
			if isUniqueViolation(err) {
				tx.Rollback()
				conflicts, lookupErr := s.ExistingNumbers(ctx, numbers)
				if lookupErr != nil || len(conflicts) == 0 {
					conflicts = []string{c.Number}
				}
				return &checks.DuplicateBatchError{Conflicts: conflicts}
			}
			return fmt.Errorf("failed to insert check %s: %w", c.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit check batch: %w", err)
	}
	return nil
}

func (s *CheckStore) Get(ctx context.Context, id string) (*models.Check, error) {
	var c models.Check
	query := s.db.Rebind(`SELECT ` + checkColumns + ` FROM checks WHERE id = ?`)
	if err := s.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *CheckStore) Find(ctx context.Context, numberOrID string) (*models.Check, error) {
	var c models.Check
	query := s.db.Rebind(`SELECT ` + checkColumns + ` FROM checks WHERE id = ? OR number = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &c, query, numberOrID, numberOrID); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *CheckStore) FindBySequence(ctx context.Context, sequence int64) ([]models.Check, error) {
	var out []models.Check
	query := s.db.Rebind(`SELECT ` + checkColumns + ` FROM checks WHERE sequence = ? ORDER BY number`)
	if err := s.db.SelectContext(ctx, &out, query, sequence); err != nil {
		return nil, fmt.Errorf("failed to find checks by sequence: %w", err)
	}
	return out, nil
}

// List returns checks in numbering order, optionally in one state.
func (s *CheckStore) List(ctx context.Context, state *models.CheckState) ([]models.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks`
	var args []interface{}
	if state != nil {
		query += ` WHERE state = ?`
		args = append(args, *state)
	}
	query += ` ORDER BY prefix, sequence`

	var out []models.Check
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	return out, nil
}

func (s *CheckStore) UpdateState(ctx context.Context, c *models.Check) error {
	n, err := rowsAffected(s.db.NamedExecContext(ctx, `UPDATE checks
		SET state = :state, amount = :amount, beneficiary = :beneficiary, payable_id = :payable_id,
		    payable_linked_by_run = :payable_linked_by_run, issue_date = :issue_date, cleared_by_movement_id = :cleared_by_movement_id, cleared_at = :cleared_at
		WHERE id = :id`, c))
	if err != nil {
		return fmt.Errorf("failed to update check %s: %w", c.Number, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ResetCleared reverts engine-cleared checks to issued and drops payable
// links a run wrote.
func (s *CheckStore) ResetCleared(ctx context.Context) (int, error) {
	query := s.db.Rebind(`UPDATE checks
		SET state = ?, cleared_by_movement_id = NULL, cleared_at = NULL,
		    payable_id = CASE WHEN payable_linked_by_run THEN NULL ELSE payable_id END,
		    payable_linked_by_run = ?
		WHERE state = ? AND cleared_by_movement_id IS NOT NULL`)
	return rowsAffected(s.db.ExecContext(ctx, query, models.CheckIssued, false, models.CheckCleared))
}
