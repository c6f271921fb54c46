package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const payableColumns = `id, kind, number, amount, counterparty, counterparty_id, document_date, direction,
	paid, payment_method, payment_date, reconciliation_source_id, confirmed_match_id,
	previous_payment_method, position`

type PayableStore struct {
	db *sqlx.DB
}

// FindUnpaid builds its WHERE clause from the non-nil filter fields. Amount
// bounds are cast to NUMERIC so sqlite compares them as numbers.
func (s *PayableStore) FindUnpaid(ctx context.Context, f models.PayableFilter) ([]models.Payable, error) {
	where := []string{"paid = ?"}
	args := []interface{}{false}

	if len(f.Kinds) > 0 {
		where = append(where, "kind IN (?)")
		args = append(args, f.Kinds)
	}
	if f.Number != nil {
		where = append(where, "UPPER(TRIM(number)) = ?")
		args = append(args, strings.ToUpper(strings.TrimSpace(*f.Number)))
	}
	if f.Amount != nil {
		where = append(where, "ABS(amount) BETWEEN CAST(? AS NUMERIC) AND CAST(? AS NUMERIC)")
		args = append(args, f.Amount.Min.String(), f.Amount.Max.String())
	}
	if f.CounterpartyID != nil {
		where = append(where, "counterparty_id = ?")
		args = append(args, *f.CounterpartyID)
	}

	query, args, err := sqlx.In(`SELECT `+payableColumns+` FROM payables
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY position, id`, args...)
	if err != nil {
		return nil, err
	}

	var out []models.Payable
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find unpaid payables: %w", err)
	}
	return out, nil
}

func (s *PayableStore) Get(ctx context.Context, id string) (*models.Payable, error) {
	var p models.Payable
	query := s.db.Rebind(`SELECT ` + payableColumns + ` FROM payables WHERE id = ?`)
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *PayableStore) List(ctx context.Context) ([]models.Payable, error) {
	var out []models.Payable
	if err := s.db.SelectContext(ctx, &out, `SELECT `+payableColumns+` FROM payables ORDER BY position, id`); err != nil {
		return nil, fmt.Errorf("failed to list payables: %w", err)
	}
	return out, nil
}

// Insert adds a payable unless its id exists. It reports whether a row was written.
func (s *PayableStore) Insert(ctx context.Context, p models.Payable) (bool, error) {
	p.DocumentDate = models.Civil(p.DocumentDate)
	n, err := rowsAffected(s.db.NamedExecContext(ctx, `INSERT INTO payables (`+payableColumns+`)
		VALUES (:id, :kind, :number, :amount, :counterparty, :counterparty_id, :document_date, :direction,
			:paid, :payment_method, :payment_date, :reconciliation_source_id, :confirmed_match_id,
			:previous_payment_method, :position)
		ON CONFLICT (id) DO NOTHING`, p))
	if err != nil {
		return false, fmt.Errorf("failed to insert payable %s: %w", p.ID, err)
	}
	return n == 1, nil
}

func (s *PayableStore) MarkPaid(ctx context.Context, id string, pay models.Payment) error {
	query := s.db.Rebind(`UPDATE payables
		SET previous_payment_method = payment_method,
		    paid = ?,
		    payment_method = ?,
		    payment_date = ?,
		    reconciliation_source_id = ?,
		    confirmed_match_id = ?
		WHERE id = ? AND paid = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query,
		true, pay.Method, models.Civil(pay.Date), pay.SourceMovementID, pay.ConfirmedMatchID, id, false))
	if err != nil {
		return fmt.Errorf("failed to mark payable %s paid: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	ok, err := exists(ctx, s.db, "payables", id)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotFound
	}
	return models.ErrAlreadyPaid
}

func (s *PayableStore) ResetPaymentFields(ctx context.Context, id string, method *string) error {
	query := s.db.Rebind(`UPDATE payables
		SET paid = ?, payment_method = ?, payment_date = NULL,
		    reconciliation_source_id = NULL, confirmed_match_id = NULL, previous_payment_method = NULL
		WHERE id = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query, false, method, id))
	if err != nil {
		return fmt.Errorf("failed to reset payable %s: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PayableStore) ListPaidWithMethods(ctx context.Context, methods []string) ([]models.Payable, error) {
	if len(methods) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(methods))
	for i, m := range methods {
		lowered[i] = strings.ToLower(strings.TrimSpace(m))
	}

	query, args, err := sqlx.In(`SELECT `+payableColumns+` FROM payables
		WHERE paid = ? AND LOWER(TRIM(payment_method)) IN (?)
		ORDER BY position, id`, true, lowered)
	if err != nil {
		return nil, err
	}

	var out []models.Payable
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list paid payables: %w", err)
	}
	return out, nil
}

func (s *PayableStore) ResetEngineClaims(ctx context.Context) (int, error) {
	query := s.db.Rebind(`UPDATE payables
		SET paid = ?, payment_method = previous_payment_method, payment_date = NULL,
		    reconciliation_source_id = NULL, confirmed_match_id = NULL, previous_payment_method = NULL
		WHERE reconciliation_source_id IS NOT NULL OR confirmed_match_id IS NOT NULL`)
	return rowsAffected(s.db.ExecContext(ctx, query, false))
}
