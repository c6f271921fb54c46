package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

// ResetSummary counts what a reset cleared.
type ResetSummary struct {
	RunID            string    `json:"runId"`
	Movements        int       `json:"movements"`
	AmbiguousDeleted int       `json:"ambiguousDeleted"`
	Payables         int       `json:"payables"`
	Checks           int       `json:"checks"`
	Settlements      int       `json:"settlements"`
	CashEntries      int       `json:"cashEntries"`
	CompletedAt      time.Time `json:"completedAt"`
}

// Reset removes every trace of previous runs so the next run starts from the
// imported data alone. Rejected review entries are kept: they record a
// decision made by a person.
func (p *Processor) Reset(ctx context.Context) (*ResetSummary, error) {
	release, err := p.lock.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	run := &models.Run{ID: uuid.NewString(), Kind: models.RunKindReset, Status: RunStatusProcessing, StartedAt: p.now().UTC()}
	if err := p.stores.Runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	rs := &ResetSummary{RunID: run.ID}
	steps := []struct {
		name  string
		count *int
		fn    func(context.Context) (int, error)
	}{
		{"payables", &rs.Payables, p.stores.Payables.ResetEngineClaims},
		{"checks", &rs.Checks, p.stores.Checks.ResetCleared},
		{"settlements", &rs.Settlements, p.stores.Settlements.ResetAll},
		{"cash entries", &rs.CashEntries, p.stores.Cash.ResetAll},
		{"ambiguous matches", &rs.AmbiguousDeleted, p.stores.Ambiguous.DeletePending},
		{"movements", &rs.Movements, p.stores.Movements.ResetAll},
	}
	for _, step := range steps {
		n, err := step.fn(ctx)
		if err != nil {
			run.Status = RunStatusFailed
			p.saveResetRun(ctx, run)
			return nil, fmt.Errorf("failed to reset %s: %w", step.name, err)
		}
		*step.count = n
	}

	rs.CompletedAt = p.now().UTC()
	run.Status = RunStatusCompleted
	run.ProcessedCount = rs.Movements
	p.saveResetRun(ctx, run)

	p.logger.WithFields(logrus.Fields{
		"run":         run.ID,
		"movements":   rs.Movements,
		"ambiguous":   rs.AmbiguousDeleted,
		"payables":    rs.Payables,
		"checks":      rs.Checks,
		"settlements": rs.Settlements,
		"cash":        rs.CashEntries,
	}).Info("reconciliation reset")
	return rs, nil
}

func (p *Processor) saveResetRun(ctx context.Context, run *models.Run) {
	completed := p.now().UTC()
	run.CompletedAt = &completed
	if err := p.stores.Runs.SaveRun(ctx, run); err != nil {
		p.logger.WithError(err).WithField("run", run.ID).Error("failed to save run record")
	}
}
