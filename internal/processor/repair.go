package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

type RepairSummary struct {
	RunID    string `json:"runId"`
	Scanned  int    `json:"scanned"`
	Repaired int    `json:"repaired"`
	Errors   int    `json:"errors"`
}

// Repair unpays every payable that claims a bank payment the engine cannot
// account for. Movements are never modified.
func (p *Processor) Repair(ctx context.Context) (*RepairSummary, error) {
	release, err := p.lock.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	run := &models.Run{ID: uuid.NewString(), Kind: models.RunKindRepair, Status: RunStatusProcessing, StartedAt: p.now().UTC()}
	if err := p.stores.Runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	rs, err := p.repair(ctx)
	completed := p.now().UTC()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = RunStatusFailed
	} else {
		rs.RunID = run.ID
		run.Status = RunStatusCompleted
		run.ProcessedCount = rs.Scanned
		run.MatchedCount = rs.Repaired
		run.ErrorCount = rs.Errors
	}
	if saveErr := p.stores.Runs.SaveRun(ctx, run); saveErr != nil {
		p.logger.WithError(saveErr).WithField("run", run.ID).Error("failed to save run record")
	}
	return rs, err
}

func (p *Processor) repair(ctx context.Context) (*RepairSummary, error) {
	methods := p.cfg.BankOriginMethods
	paid, err := p.stores.Payables.ListPaidWithMethods(ctx, methods)
	if err != nil {
		return nil, fmt.Errorf("failed to list paid payables: %w", err)
	}

	rs := &RepairSummary{Scanned: len(paid)}
	for _, payable := range paid {
		stale, err := p.staleness(ctx, payable)
		if err != nil {
			rs.Errors++
			p.logger.WithError(err).WithField("payable", payable.ID).Error("failed to verify payable backlink")
			continue
		}
		if stale == nil {
			continue
		}

		method, err := p.fallbackMethod(ctx, payable)
		if err != nil {
			rs.Errors++
			p.logger.WithError(err).WithField("payable", payable.ID).Error("failed to read counterparty default method")
			continue
		}
		if err := p.stores.Payables.ResetPaymentFields(ctx, payable.ID, method); err != nil {
			rs.Errors++
			p.logger.WithError(err).WithField("payable", payable.ID).Error("failed to reset payable")
			continue
		}
		rs.Repaired++

		fields := logrus.Fields{"payable": payable.ID, "kind": payable.Kind}
		if method != nil {
			fields["method"] = *method
		}
		p.logger.WithFields(fields).WithError(stale).Warn("stale payment reverted")
	}

	if rs.Repaired > 0 {
		p.logger.WithFields(logrus.Fields{
			"scanned":  rs.Scanned,
			"repaired": rs.Repaired,
		}).Info("repair pass completed")
	}
	return rs, nil
}

// staleness returns a StaleConsistencyError when neither backlink of the
// payable holds, and nil when one of them does.
func (p *Processor) staleness(ctx context.Context, payable models.Payable) (*StaleConsistencyError, error) {
	method := ""
	if payable.PaymentMethod != nil {
		method = *payable.PaymentMethod
	}

	if payable.ReconciliationSourceID != nil {
		m, err := p.stores.Movements.Get(ctx, *payable.ReconciliationSourceID)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			return nil, err
		case m.IsReconciled():
			ok, err := p.settles(ctx, m, payable.ID)
			if err != nil {
				return nil, err
			}
			if ok {
				return nil, nil
			}
		}
	}

	if payable.ConfirmedMatchID != nil {
		match, err := p.stores.Ambiguous.Get(ctx, *payable.ConfirmedMatchID)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			return nil, err
		case match.Status == models.AmbiguousConfirmed && match.ChosenPayableID != nil && *match.ChosenPayableID == payable.ID:
			return nil, nil
		}
	}

	reason := "no bank movement backlink"
	switch {
	case payable.ReconciliationSourceID != nil:
		reason = fmt.Sprintf("movement %s is missing, not reconciled or settled another record", *payable.ReconciliationSourceID)
	case payable.ConfirmedMatchID != nil:
		reason = fmt.Sprintf("match %s is missing or not confirmed", *payable.ConfirmedMatchID)
	}
	return &StaleConsistencyError{PayableID: payable.ID, Method: method, Reason: reason}, nil
}

// settles reports whether the reconciled movement m paid payableID, either
// directly or through the check it cleared.
func (p *Processor) settles(ctx context.Context, m *models.BankMovement, payableID string) (bool, error) {
	if m.MatchTarget == nil {
		return false, nil
	}
	if *m.MatchTarget == payableID {
		return true, nil
	}
	if m.MatchMethod == nil || *m.MatchMethod != models.MethodReferenceAmount {
		return false, nil
	}
	c, err := p.stores.Checks.Find(ctx, *m.MatchTarget)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return c.PayableID != nil && *c.PayableID == payableID &&
		c.ClearedByMovementID != nil && *c.ClearedByMovementID == m.ID, nil
}

// fallbackMethod is the counterparty's default method when that default does
// not itself imply a bank payment.
func (p *Processor) fallbackMethod(ctx context.Context, payable models.Payable) (*string, error) {
	if payable.CounterpartyID == nil {
		return nil, nil
	}
	def, err := p.stores.Counterparties.DefaultPaymentMethod(ctx, *payable.CounterpartyID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if def == nil || strings.TrimSpace(*def) == "" || p.isBankOrigin(*def) {
		return nil, nil
	}
	return def, nil
}

func (p *Processor) isBankOrigin(method string) bool {
	for _, m := range p.cfg.BankOriginMethods {
		if strings.EqualFold(strings.TrimSpace(method), m) {
			return true
		}
	}
	return false
}
