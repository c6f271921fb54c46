// Package checks tracks physical checks (assegni) from the blank checkbook
// page to the bank clearing.
//
//	blank --fill--> filled --issue--> issued --clear--> cleared
//	filled, issued --void--> void
//	any state but expired --expire--> expired
package checks

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

type Event string

const (
	EventFill   Event = "fill"
	EventIssue  Event = "issue"
	EventClear  Event = "clear"
	EventVoid   Event = "void"
	EventExpire Event = "expire"
)

// InvalidTransitionError is returned when an event does not apply to the
// check's current state. The check is left unchanged.
type InvalidTransitionError struct {
	From  models.CheckState
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a check in state %s", e.Event, e.From)
}

// DuplicateBatchError lists every requested number that already exists.
type DuplicateBatchError struct {
	Conflicts []string
}

func (e *DuplicateBatchError) Error() string {
	return fmt.Sprintf("check batch rejected: %d number(s) already exist: %s",
		len(e.Conflicts), strings.Join(e.Conflicts, ", "))
}

var transitions = map[Event][]models.CheckState{
	EventFill:  {models.CheckBlank},
	EventIssue: {models.CheckFilled},
	EventClear: {models.CheckIssued},
	EventVoid:  {models.CheckFilled, models.CheckIssued},
}

// Can reports whether event applies to a check in state from.
func Can(from models.CheckState, event Event) bool {
	if event == EventExpire {
		return from != models.CheckExpired
	}
	for _, s := range transitions[event] {
		if s == from {
			return true
		}
	}
	return false
}

func guard(c *models.Check, event Event) error {
	if !Can(c.State, event) {
		return &InvalidTransitionError{From: c.State, Event: event}
	}
	return nil
}

// Fill writes beneficiary and amount on a blank check.
func Fill(c *models.Check, beneficiary string, amount decimal.Decimal, payableID *string) error {
	if err := guard(c, EventFill); err != nil {
		return err
	}
	if strings.TrimSpace(beneficiary) == "" {
		return fmt.Errorf("beneficiary is required")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount)
	}
	c.State = models.CheckFilled
	c.Beneficiary = &beneficiary
	c.Amount = decimal.NewNullDecimal(amount.Round(2))
	c.PayableID = payableID
	return nil
}

// Issue hands a filled check to its beneficiary.
func Issue(c *models.Check, date time.Time) error {
	if err := guard(c, EventIssue); err != nil {
		return err
	}
	d := models.Civil(date)
	c.State = models.CheckIssued
	c.IssueDate = &d
	return nil
}

// Clear records the bank movement that cashed the check.
func Clear(c *models.Check, movementID string, at time.Time) error {
	if err := guard(c, EventClear); err != nil {
		return err
	}
	c.State = models.CheckCleared
	c.ClearedByMovementID = &movementID
	c.ClearedAt = &at
	return nil
}

func Void(c *models.Check) error {
	if err := guard(c, EventVoid); err != nil {
		return err
	}
	c.State = models.CheckVoid
	return nil
}

func Expire(c *models.Check) error {
	if err := guard(c, EventExpire); err != nil {
		return err
	}
	c.State = models.CheckExpired
	return nil
}

// FormatNumber renders prefix-sequence, zero padding the sequence to width.
func FormatNumber(prefix string, sequence int64, width int) string {
	seq := strconv.FormatInt(sequence, 10)
	if len(seq) < width {
		seq = strings.Repeat("0", width-len(seq)) + seq
	}
	if prefix == "" {
		return seq
	}
	return prefix + "-" + seq
}

// ParseSequence extracts the trailing digit run of a check number as found on
// a bank statement ("ASSEGNO N. 0001234" -> 1234).
func ParseSequence(token string) (int64, bool) {
	end := len(token)
	start := end
	for start > 0 && token[start-1] >= '0' && token[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.ParseInt(token[start:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
