package processor

import (
	"context"
	"time"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

// MovementStore holds imported bank movements.
type MovementStore interface {
	// ListUnreconciled returns unreconciled movements in import order.
	ListUnreconciled(ctx context.Context) ([]models.BankMovement, error)
	Get(ctx context.Context, id string) (*models.BankMovement, error)
	// MarkReconciled fails with models.ErrAlreadyReconciled unless the
	// movement is still unreconciled.
	MarkReconciled(ctx context.Context, id string, status models.MovementStatus, method models.MatchMethod, target *string, runID *string, at time.Time) error
	ResetAll(ctx context.Context) (int, error)
	InsertMany(ctx context.Context, movements []models.BankMovement) (int, error)
}

// PayableStore exposes invoices, payroll items and tax filings.
type PayableStore interface {
	// FindUnpaid returns unpaid payables in insertion order.
	FindUnpaid(ctx context.Context, filter models.PayableFilter) ([]models.Payable, error)
	Get(ctx context.Context, id string) (*models.Payable, error)
	// MarkPaid fails with models.ErrAlreadyPaid when the payable is already paid.
	// The current payment method is kept as the previous method.
	MarkPaid(ctx context.Context, id string, payment models.Payment) error
	// ResetPaymentFields marks the payable unpaid with the given method and
	// clears payment date and backlinks.
	ResetPaymentFields(ctx context.Context, id string, method *string) error
	// ListPaidWithMethods matches methods case-insensitively.
	ListPaidWithMethods(ctx context.Context, methods []string) ([]models.Payable, error)
	// ResetEngineClaims unpays every payable carrying a backlink and restores
	// its previous payment method.
	ResetEngineClaims(ctx context.Context) (int, error)
}

// CheckStore is the part of the checkbook the engine reads and clears.
type CheckStore interface {
	Find(ctx context.Context, numberOrID string) (*models.Check, error)
	FindBySequence(ctx context.Context, sequence int64) ([]models.Check, error)
	UpdateState(ctx context.Context, c *models.Check) error
	// ResetCleared moves checks cleared by a movement back to issued.
	ResetCleared(ctx context.Context) (int, error)
}

type AmbiguousStore interface {
	Create(ctx context.Context, m *models.AmbiguousMatch) error
	Get(ctx context.Context, id string) (*models.AmbiguousMatch, error)
	// List returns entries oldest first; a nil status lists all.
	List(ctx context.Context, status *models.AmbiguousStatus) ([]models.AmbiguousMatch, error)
	// Resolve moves a pending entry to status, failing with
	// models.ErrAlreadyResolved when it is no longer pending.
	Resolve(ctx context.Context, id string, status models.AmbiguousStatus, chosen *string, at time.Time) error
	// Reopen puts a confirmed entry back to pending.
	Reopen(ctx context.Context, id string) error
	DeletePending(ctx context.Context) (int, error)
	// BlockedMovementIDs returns movements with a pending entry, plus those
	// with a rejected entry unless includeRejected is set.
	BlockedMovementIDs(ctx context.Context, includeRejected bool) (map[string]bool, error)
}

type SettlementStore interface {
	// ListUnreconciled returns batches dated within [from, to].
	ListUnreconciled(ctx context.Context, from, to time.Time) ([]models.SettlementBatch, error)
	MarkReconciled(ctx context.Context, ids []string, movementID string) error
	ResetAll(ctx context.Context) (int, error)
}

type CashStore interface {
	FindUnreconciledDeposits(ctx context.Context, date time.Time) ([]models.CashEntry, error)
	MarkReconciled(ctx context.Context, id string, movementID string) error
	ResetAll(ctx context.Context) (int, error)
}

// CounterpartyDirectory knows each supplier's or employee's usual payment method.
type CounterpartyDirectory interface {
	DefaultPaymentMethod(ctx context.Context, counterpartyID string) (*string, error)
}

type RunStore interface {
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
}

// Stores bundles the collaborators the engine reads and writes.
type Stores struct {
	Movements      MovementStore
	Payables       PayableStore
	Checks         CheckStore
	Ambiguous      AmbiguousStore
	Settlements    SettlementStore
	Cash           CashStore
	Counterparties CounterpartyDirectory
	Runs           RunStore
}

// Locker serializes runs, resets, repairs and review decisions. Acquire returns
// models.ErrRunInProgress when the lock is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type noLock struct{}

func (noLock) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
