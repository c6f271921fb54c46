package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type AmbiguousStatus string

const (
	AmbiguousPending   AmbiguousStatus = "pending"
	AmbiguousConfirmed AmbiguousStatus = "confirmed"
	AmbiguousRejected  AmbiguousStatus = "rejected"
)

// Candidate is one payable offered to the reviewer for a movement.
type Candidate struct {
	PayableID    string          `json:"payableId"`
	Kind         PayableKind     `json:"kind"`
	Number       *string         `json:"number,omitempty"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	DocumentDate time.Time       `json:"documentDate"`
	Score        float64         `json:"score"`
	Reason       string          `json:"reason"`
	Rank         int             `json:"rank"`
}

// Candidates is stored as a JSON document column.
type Candidates []Candidate

func (c Candidates) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Candidates) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("candidates: unsupported column type %T", src)
	}
	return json.Unmarshal(raw, c)
}

// Has reports whether payableID is among the candidates.
func (c Candidates) Has(payableID string) (Candidate, bool) {
	for _, cand := range c {
		if cand.PayableID == payableID {
			return cand, true
		}
	}
	return Candidate{}, false
}

// AmbiguousMatch is a movement waiting for a human to pick the right payable.
type AmbiguousMatch struct {
	ID              string          `db:"id" json:"id"`
	MovementID      string          `db:"movement_id" json:"movementId"`
	Candidates      Candidates      `db:"candidates" json:"candidates"`
	Status          AmbiguousStatus `db:"status" json:"status"`
	ChosenPayableID *string         `db:"chosen_payable_id" json:"chosenPayableId,omitempty"`
	RunID           *string         `db:"run_id" json:"runId,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	ResolvedAt      *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
}
