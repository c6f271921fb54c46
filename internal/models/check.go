package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckState string

const (
	CheckBlank   CheckState = "blank"
	CheckFilled  CheckState = "filled"
	CheckIssued  CheckState = "issued"
	CheckCleared CheckState = "cleared"
	CheckVoid    CheckState = "void"
	CheckExpired CheckState = "expired"
)

// Check is a physical check (assegno) from a checkbook. PayableLinkedByRun
// marks a PayableID written by a reconciliation run rather than by Fill.
type Check struct {
	ID                  string              `db:"id" json:"id"`
	Prefix              string              `db:"prefix" json:"prefix"`
	Sequence            int64               `db:"sequence" json:"sequence"`
	Number              string              `db:"number" json:"number"`
	State               CheckState          `db:"state" json:"state"`
	Amount              decimal.NullDecimal `db:"amount" json:"amount"`
	Beneficiary         *string             `db:"beneficiary" json:"beneficiary,omitempty"`
	PayableID           *string             `db:"payable_id" json:"payableId,omitempty"`
	PayableLinkedByRun  bool                `db:"payable_linked_by_run" json:"payableLinkedByRun"`
	IssueDate           *time.Time          `db:"issue_date" json:"issueDate,omitempty"`
	ClearedByMovementID *string             `db:"cleared_by_movement_id" json:"clearedByMovementId,omitempty"`
	ClearedAt           *time.Time          `db:"cleared_at" json:"clearedAt,omitempty"`
	CreatedAt           time.Time           `db:"created_at" json:"createdAt"`
}
