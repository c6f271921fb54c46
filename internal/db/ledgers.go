package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

type SettlementStore struct {
	db *sqlx.DB
}

func (s *SettlementStore) ListUnreconciled(ctx context.Context, from, to time.Time) ([]models.SettlementBatch, error) {
	var out []models.SettlementBatch
	query := s.db.Rebind(`SELECT id, batch_date, amount, reconciled, movement_id FROM settlement_batches
		WHERE reconciled = ? AND batch_date BETWEEN ? AND ?
		ORDER BY batch_date, id`)
	if err := s.db.SelectContext(ctx, &out, query, false, models.Civil(from), models.Civil(to)); err != nil {
		return nil, fmt.Errorf("failed to list settlement batches: %w", err)
	}
	return out, nil
}

func (s *SettlementStore) List(ctx context.Context) ([]models.SettlementBatch, error) {
	var out []models.SettlementBatch
	if err := s.db.SelectContext(ctx, &out, `SELECT id, batch_date, amount, reconciled, movement_id
		FROM settlement_batches ORDER BY batch_date, id`); err != nil {
		return nil, fmt.Errorf("failed to list settlement batches: %w", err)
	}
	return out, nil
}

func (s *SettlementStore) Insert(ctx context.Context, b models.SettlementBatch) error {
	b.Date = models.Civil(b.Date)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO settlement_batches (id, batch_date, amount, reconciled, movement_id)
		VALUES (:id, :batch_date, :amount, :reconciled, :movement_id)
		ON CONFLICT (id) DO NOTHING`, b)
	if err != nil {
		return fmt.Errorf("failed to insert settlement batch %s: %w", b.ID, err)
	}
	return nil
}

func (s *SettlementStore) MarkReconciled(ctx context.Context, ids []string, movementID string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE settlement_batches SET reconciled = ?, movement_id = ? WHERE id IN (?)`,
		true, movementID, ids)
	if err != nil {
		return err
	}
	n, err := rowsAffected(s.db.ExecContext(ctx, s.db.Rebind(query), args...))
	if err != nil {
		return fmt.Errorf("failed to mark settlement batches: %w", err)
	}
	if n != len(ids) {
		return models.ErrNotFound
	}
	return nil
}

func (s *SettlementStore) ResetAll(ctx context.Context) (int, error) {
	query := s.db.Rebind(`UPDATE settlement_batches SET reconciled = ?, movement_id = NULL
		WHERE reconciled = ? OR movement_id IS NOT NULL`)
	return rowsAffected(s.db.ExecContext(ctx, query, false, true))
}

type CashStore struct {
	db *sqlx.DB
}

func (s *CashStore) FindUnreconciledDeposits(ctx context.Context, date time.Time) ([]models.CashEntry, error) {
	var out []models.CashEntry
	query := s.db.Rebind(`SELECT id, entry_date, amount, kind, reconciled, movement_id FROM cash_entries
		WHERE reconciled = ? AND kind = ? AND entry_date = ?
		ORDER BY id`)
	if err := s.db.SelectContext(ctx, &out, query, false, models.CashEntryDeposit, models.Civil(date)); err != nil {
		return nil, fmt.Errorf("failed to find cash deposits: %w", err)
	}
	return out, nil
}

func (s *CashStore) List(ctx context.Context) ([]models.CashEntry, error) {
	var out []models.CashEntry
	if err := s.db.SelectContext(ctx, &out, `SELECT id, entry_date, amount, kind, reconciled, movement_id
		FROM cash_entries ORDER BY entry_date, id`); err != nil {
		return nil, fmt.Errorf("failed to list cash entries: %w", err)
	}
	return out, nil
}

func (s *CashStore) Insert(ctx context.Context, e models.CashEntry) error {
	e.Date = models.Civil(e.Date)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO cash_entries (id, entry_date, amount, kind, reconciled, movement_id)
		VALUES (:id, :entry_date, :amount, :kind, :reconciled, :movement_id)
		ON CONFLICT (id) DO NOTHING`, e)
	if err != nil {
		return fmt.Errorf("failed to insert cash entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *CashStore) MarkReconciled(ctx context.Context, id string, movementID string) error {
	query := s.db.Rebind(`UPDATE cash_entries SET reconciled = ?, movement_id = ? WHERE id = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query, true, movementID, id))
	if err != nil {
		return fmt.Errorf("failed to mark cash entry %s: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *CashStore) ResetAll(ctx context.Context) (int, error) {
	query := s.db.Rebind(`UPDATE cash_entries SET reconciled = ?, movement_id = NULL
		WHERE reconciled = ? OR movement_id IS NOT NULL`)
	return rowsAffected(s.db.ExecContext(ctx, query, false, true))
}

// Counterparty is a supplier or employee with its usual payment method.
type Counterparty struct {
	ID                   string  `db:"id"`
	Name                 string  `db:"name"`
	DefaultPaymentMethod *string `db:"default_payment_method"`
}

type CounterpartyStore struct {
	db *sqlx.DB
}

// DefaultPaymentMethod returns nil for unknown counterparties.
func (s *CounterpartyStore) DefaultPaymentMethod(ctx context.Context, counterpartyID string) (*string, error) {
	var method *string
	query := s.db.Rebind(`SELECT default_payment_method FROM counterparties WHERE id = ?`)
	err := s.db.GetContext(ctx, &method, query, counterpartyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read counterparty %s: %w", counterpartyID, err)
	}
	return method, nil
}

// Upsert inserts the counterparty or refreshes its name and default method.
func (s *CounterpartyStore) Upsert(ctx context.Context, c Counterparty) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO counterparties (id, name, default_payment_method)
		VALUES (:id, :name, :default_payment_method)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, default_payment_method = excluded.default_payment_method`, c)
	if err != nil {
		return fmt.Errorf("failed to upsert counterparty %s: %w", c.ID, err)
	}
	return nil
}
