package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PayableKind string

const (
	PayableInvoice   PayableKind = "invoice"
	PayablePayroll   PayableKind = "payroll"
	PayableTaxFiling PayableKind = "tax_filing"
)

// Payment method labels written by the engine.
const (
	PaymentBankTransfer = "bonifico"
	PaymentCheck        = "assegno"
	PaymentF24          = "f24"
)

// Payable is any record the business pays or collects through the bank:
// supplier invoices, payroll items and tax filings share the same payment fields.
type Payable struct {
	ID                     string          `db:"id" json:"id"`
	Kind                   PayableKind     `db:"kind" json:"kind"`
	Number                 *string         `db:"number" json:"number,omitempty"`
	Amount                 decimal.Decimal `db:"amount" json:"amount"`
	Counterparty           string          `db:"counterparty" json:"counterparty"`
	CounterpartyID         *string         `db:"counterparty_id" json:"counterpartyId,omitempty"`
	DocumentDate           time.Time       `db:"document_date" json:"documentDate"`
	Direction              *Direction      `db:"direction" json:"direction,omitempty"`
	Paid                   bool            `db:"paid" json:"paid"`
	PaymentMethod          *string         `db:"payment_method" json:"paymentMethod,omitempty"`
	PaymentDate            *time.Time      `db:"payment_date" json:"paymentDate,omitempty"`
	ReconciliationSourceID *string         `db:"reconciliation_source_id" json:"reconciliationSourceId,omitempty"`
	ConfirmedMatchID       *string         `db:"confirmed_match_id" json:"confirmedMatchId,omitempty"`
	PreviousPaymentMethod  *string         `db:"previous_payment_method" json:"-"`
	Position               int             `db:"position" json:"position"`
}

// DefaultMethod is the method the engine records when it settles a payable of this kind.
func (k PayableKind) DefaultMethod() string {
	if k == PayableTaxFiling {
		return PaymentF24
	}
	return PaymentBankTransfer
}

// AcceptsDirection reports whether a bank movement in direction d can settle the payable.
func (p Payable) AcceptsDirection(d Direction) bool {
	if p.Direction != nil {
		return *p.Direction == d
	}
	if p.Kind == PayablePayroll || p.Kind == PayableTaxFiling {
		return d == DirectionDebit
	}
	return true
}

// HasNumber compares document numbers ignoring case and surrounding blanks.
func (p Payable) HasNumber(number string) bool {
	if p.Number == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*p.Number), strings.TrimSpace(number))
}

// AmountRange is an inclusive range of absolute amounts.
type AmountRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Around returns the range amount±tolerance.
func Around(amount, tolerance decimal.Decimal) *AmountRange {
	return &AmountRange{Min: amount.Sub(tolerance), Max: amount.Add(tolerance)}
}

// Contains reports whether v lies in the range.
func (r AmountRange) Contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(r.Min) && v.LessThanOrEqual(r.Max)
}

// PayableFilter narrows FindUnpaid. Nil fields do not filter.
type PayableFilter struct {
	Kinds          []PayableKind
	Number         *string
	Amount         *AmountRange
	CounterpartyID *string
}

// Payment holds the fields written when a payable is settled.
type Payment struct {
	Method           string
	Date             time.Time
	SourceMovementID string
	ConfirmedMatchID *string
}
