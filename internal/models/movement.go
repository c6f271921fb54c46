package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementStatus string

const (
	MovementUnreconciled       MovementStatus = "unreconciled"
	MovementReconciledAuto     MovementStatus = "reconciled_auto"
	MovementReconciledManual   MovementStatus = "reconciled_manual"
	MovementCommissionExcluded MovementStatus = "commission_excluded"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// DirectionOf derives the bank direction from a signed amount.
func DirectionOf(amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return DirectionDebit
	}
	return DirectionCredit
}

type MatchMethod string

const (
	MethodCommission      MatchMethod = "commission"
	MethodReferenceAmount MatchMethod = "reference+amount"
	MethodAmountUnique    MatchMethod = "amount_unique"
	MethodTaxPayment      MatchMethod = "tax_payment"
	MethodPOSSettlement   MatchMethod = "pos_settlement"
	MethodPOSWeekend      MatchMethod = "pos_weekend"
	MethodCashDeposit     MatchMethod = "cash_deposit"
	MethodManual          MatchMethod = "manual"
)

// BankMovement is one line of an imported bank statement.
type BankMovement struct {
	ID           string          `db:"id" json:"id"`
	ImportID     string          `db:"import_id" json:"importId"`
	Position     int             `db:"position" json:"position"`
	Date         time.Time       `db:"movement_date" json:"date"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Description  string          `db:"description" json:"description"`
	Direction    Direction       `db:"direction" json:"direction"`
	Status       MovementStatus  `db:"status" json:"status"`
	MatchMethod  *MatchMethod    `db:"match_method" json:"matchMethod,omitempty"`
	MatchTarget  *string         `db:"match_target" json:"matchTarget,omitempty"`
	RunID        *string         `db:"run_id" json:"runId,omitempty"`
	ReconciledAt *time.Time      `db:"reconciled_at" json:"reconciledAt,omitempty"`
}

// AbsAmount is the unsigned amount rounded to cents.
func (m BankMovement) AbsAmount() decimal.Decimal {
	return m.Amount.Abs().Round(2)
}

// IsReconciled reports whether the movement was linked to a record, automatically or manually.
func (m BankMovement) IsReconciled() bool {
	return m.Status == MovementReconciledAuto || m.Status == MovementReconciledManual
}

// SettlementBatch is the card (POS) takings of one business day.
type SettlementBatch struct {
	ID         string          `db:"id" json:"id"`
	Date       time.Time       `db:"batch_date" json:"date"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Reconciled bool            `db:"reconciled" json:"reconciled"`
	MovementID *string         `db:"movement_id" json:"movementId,omitempty"`
}

const CashEntryDeposit = "deposit"

// CashEntry is a line of the cash day-book (Prima Nota cassa).
type CashEntry struct {
	ID         string          `db:"id" json:"id"`
	Date       time.Time       `db:"entry_date" json:"date"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Kind       string          `db:"kind" json:"kind"`
	Reconciled bool            `db:"reconciled" json:"reconciled"`
	MovementID *string         `db:"movement_id" json:"movementId,omitempty"`
}

// Civil truncates t to midnight UTC of its calendar day.
func Civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
