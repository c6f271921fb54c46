package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
)

// Store groups the SQL-backed collections. Queries are written with ? and
// rebound for the driver, so postgres and sqlite share them.
type Store struct {
	DB *sqlx.DB

	Movements      *MovementStore
	Payables       *PayableStore
	Checks         *CheckStore
	Ambiguous      *AmbiguousStore
	Settlements    *SettlementStore
	Cash           *CashStore
	Counterparties *CounterpartyStore
	Runs           *RunStore
	Imports        *ImportStore
	Jobs           *JobStore
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		DB:             db,
		Movements:      &MovementStore{db: db},
		Payables:       &PayableStore{db: db},
		Checks:         &CheckStore{db: db},
		Ambiguous:      &AmbiguousStore{db: db},
		Settlements:    &SettlementStore{db: db},
		Cash:           &CashStore{db: db},
		Counterparties: &CounterpartyStore{db: db},
		Runs:           &RunStore{db: db},
		Imports:        &ImportStore{db: db},
		Jobs:           &JobStore{db: db, now: time.Now},
	}
}

// Engine returns the collaborators the reconciliation engine needs.
func (s *Store) Engine() processor.Stores {
	return processor.Stores{
		Movements:      s.Movements,
		Payables:       s.Payables,
		Checks:         s.Checks,
		Ambiguous:      s.Ambiguous,
		Settlements:    s.Settlements,
		Cash:           s.Cash,
		Counterparties: s.Counterparties,
		Runs:           s.Runs,
	}
}

var (
	_ processor.MovementStore         = (*MovementStore)(nil)
	_ processor.PayableStore          = (*PayableStore)(nil)
	_ processor.CheckStore            = (*CheckStore)(nil)
	_ processor.AmbiguousStore        = (*AmbiguousStore)(nil)
	_ processor.SettlementStore       = (*SettlementStore)(nil)
	_ processor.CashStore             = (*CashStore)(nil)
	_ processor.CounterpartyDirectory = (*CounterpartyStore)(nil)
	_ processor.RunStore              = (*RunStore)(nil)
)

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func rowsAffected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// exists tells a conditional update that matched nothing because the row is
// missing apart from one that matched nothing because of its state.
func exists(ctx context.Context, db sqlx.ExtContext, table, id string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, db, &n, db.Rebind(`SELECT COUNT(*) FROM `+table+` WHERE id = ?`), id)
	return n > 0, err
}
