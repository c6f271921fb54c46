// Package processor reconciles bank movements against the ledgers: payables,
// checks, POS settlement batches and cash deposits.
//
// A run walks every unreconciled movement in import order. For each one the
// Resolver picks an outcome and the Processor writes it before moving on, so
// a payable paid by one movement is no longer offered to the next.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/calendar"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/counterparty"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const lockKey = "reconciliation"

const (
	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

type Config struct {
	Match MatchConfig
	// Payment methods that imply the money moved through the bank account.
	BankOriginMethods []string
	ProgressEvery     int
}

func DefaultConfig() Config {
	return Config{
		Match:             DefaultMatchConfig(),
		BankOriginMethods: []string{"bonifico", "assegno", "riba", "rid", "sdd", "banca", "carta"},
		ProgressEvery:     200,
	}
}

// Options tune a single run.
type Options struct {
	// IncludeRejected reprocesses movements whose review entry was rejected.
	IncludeRejected bool
	// RunID is used for the run record when set.
	RunID string
}

type Processor struct {
	stores   Stores
	resolver *Resolver
	lock     Locker
	cfg      Config
	logger   *logrus.Logger
	now      func() time.Time
}

// New wires a processor. names, cal and locker may be nil.
func New(stores Stores, names *counterparty.Matcher, cal *calendar.Calendar, locker Locker, cfg Config, logger *logrus.Logger) *Processor {
	if locker == nil {
		locker = noLock{}
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 200
	}
	return &Processor{
		stores:   stores,
		resolver: NewResolver(stores, names, cal, cfg.Match, logger),
		lock:     locker,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *Processor) Resolver() *Resolver {
	return p.resolver
}

// MovementFailure is a movement that could not be processed.
type MovementFailure struct {
	MovementID string `json:"movementId"`
	Error      string `json:"error"`
}

// Summary is the outcome of one run.
type Summary struct {
	RunID              string                     `json:"runId"`
	Processed          int                        `json:"processed"`
	Matched            map[models.MatchMethod]int `json:"matched"`
	Ambiguous          int                        `json:"ambiguous"`
	CommissionExcluded int                        `json:"commissionExcluded"`
	Unmatched          int                        `json:"unmatched"`
	Skipped            int                        `json:"skipped"`
	Errors             int                        `json:"errors"`
	Repaired           int                        `json:"repaired"`
	NewAmbiguous       []models.AmbiguousMatch    `json:"newAmbiguous"`
	Failures           []MovementFailure          `json:"failures,omitempty"`
	StartedAt          time.Time                  `json:"startedAt"`
	CompletedAt        time.Time                  `json:"completedAt"`
}

// MatchedTotal sums matches over all methods.
func (s *Summary) MatchedTotal() int {
	total := 0
	for _, n := range s.Matched {
		total += n
	}
	return total
}

// SummaryFromRun decodes the summary stored with a run record.
func SummaryFromRun(run *models.Run) (*Summary, error) {
	var s Summary
	if strings.TrimSpace(run.Summary) == "" {
		return nil, fmt.Errorf("run %s has no summary", run.ID)
	}
	if err := json.Unmarshal([]byte(run.Summary), &s); err != nil {
		return nil, fmt.Errorf("failed to decode summary of run %s: %w", run.ID, err)
	}
	return &s, nil
}

// Run reconciles every unreconciled movement and then runs the repair pass.
func (p *Processor) Run(ctx context.Context, opts Options) (*Summary, error) {
	release, err := p.lock.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	startTime := p.now()
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	run := &models.Run{
		ID:        runID,
		Kind:      models.RunKindReconcile,
		Status:    RunStatusProcessing,
		StartedAt: startTime.UTC(),
	}
	if err := p.stores.Runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	summary, err := p.process(ctx, run.ID, opts)
	if err != nil {
		p.finishRun(ctx, run, nil, err)
		return nil, err
	}

	repaired, err := p.repair(ctx)
	if err != nil {
		p.logger.WithError(err).WithField("run", run.ID).Error("repair pass after run failed")
	} else {
		summary.Repaired = repaired.Repaired
	}

	summary.CompletedAt = p.now().UTC()
	p.finishRun(ctx, run, summary, nil)

	p.logger.WithFields(logrus.Fields{
		"run":        run.ID,
		"processed":  summary.Processed,
		"matched":    summary.MatchedTotal(),
		"ambiguous":  summary.Ambiguous,
		"commission": summary.CommissionExcluded,
		"unmatched":  summary.Unmatched,
		"skipped":    summary.Skipped,
		"errors":     summary.Errors,
		"repaired":   summary.Repaired,
		"duration":   time.Since(startTime).String(),
	}).Info("reconciliation run completed")
	return summary, nil
}

func (p *Processor) process(ctx context.Context, runID string, opts Options) (*Summary, error) {
	movements, err := p.stores.Movements.ListUnreconciled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	blocked, err := p.stores.Ambiguous.BlockedMovementIDs(ctx, opts.IncludeRejected)
	if err != nil {
		return nil, fmt.Errorf("failed to load review queue: %w", err)
	}

	summary := &Summary{
		RunID:     runID,
		Matched:   make(map[models.MatchMethod]int),
		StartedAt: p.now().UTC(),
	}
	// Records taken during this run, by id: payables, checks, batches, cash entries.
	claimed := make(map[string]bool)

	for _, m := range movements {
		if blocked[m.ID] {
			summary.Skipped++
			continue
		}
		summary.Processed++

		d, match, err := p.processMovement(ctx, m, claimed, runID)
		if err != nil {
			summary.Errors++
			summary.Failures = append(summary.Failures, MovementFailure{MovementID: m.ID, Error: err.Error()})
			p.logger.WithError(err).WithField("movement", m.ID).Warn("movement skipped")
			continue
		}

		switch d.Outcome {
		case OutcomeMatched:
			summary.Matched[d.Method]++
		case OutcomeCommission:
			summary.CommissionExcluded++
		case OutcomeAmbiguous:
			summary.Ambiguous++
			summary.NewAmbiguous = append(summary.NewAmbiguous, *match)
		default:
			summary.Unmatched++
		}

		if summary.Processed%p.cfg.ProgressEvery == 0 {
			p.logger.WithFields(logrus.Fields{
				"run":       runID,
				"processed": summary.Processed,
				"total":     len(movements),
			}).Info("reconciliation progress")
		}
	}
	return summary, nil
}

// processMovement resolves and commits one movement. A panic caused by a
// malformed record is turned into a DataShapeError.
func (p *Processor) processMovement(ctx context.Context, m models.BankMovement, claimed map[string]bool, runID string) (d *Decision, match *models.AmbiguousMatch, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d, match = nil, nil
			err = &DataShapeError{MovementID: m.ID, Field: "record", Reason: fmt.Sprint(rec)}
		}
	}()

	d, err = p.resolver.Resolve(ctx, m, claimed)
	if err != nil {
		return nil, nil, err
	}

	switch d.Outcome {
	case OutcomeCommission:
		err = p.markMovement(ctx, m.ID, models.MovementCommissionExcluded, d.Method, nil, runID)
	case OutcomeMatched:
		err = p.commitMatch(ctx, m, d, claimed, runID)
	case OutcomeAmbiguous:
		match, err = p.enqueue(ctx, m, d, runID)
	}
	if err != nil {
		return nil, nil, err
	}
	return d, match, nil
}

// commitMatch writes the matched records first and the movement last, so an
// interrupted commit leaves a payable the repair pass can recognise.
func (p *Processor) commitMatch(ctx context.Context, m models.BankMovement, d *Decision, claimed map[string]bool, runID string) error {
	now := p.now().UTC()

	if d.Payable != nil {
		method := d.Payable.Kind.DefaultMethod()
		if d.Check != nil {
			method = models.PaymentCheck
		}
		err := p.stores.Payables.MarkPaid(ctx, d.Payable.ID, models.Payment{
			Method:           method,
			Date:             models.Civil(m.Date),
			SourceMovementID: m.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to mark payable %s paid: %w", d.Payable.ID, err)
		}
		claimed[d.Payable.ID] = true
	}

	if d.Check != nil {
		c := *d.Check
		if c.PayableID == nil && d.Payable != nil {
			id := d.Payable.ID
			c.PayableID = &id
			c.PayableLinkedByRun = true
		}
		if err := checks.Clear(&c, m.ID, now); err != nil {
			return err
		}
		if err := p.stores.Checks.UpdateState(ctx, &c); err != nil {
			return fmt.Errorf("failed to clear check %s: %w", c.Number, err)
		}
		claimed[c.ID] = true
	}

	if len(d.Batches) > 0 {
		ids := make([]string, 0, len(d.Batches))
		for _, b := range d.Batches {
			ids = append(ids, b.ID)
		}
		if err := p.stores.Settlements.MarkReconciled(ctx, ids, m.ID); err != nil {
			return fmt.Errorf("failed to flag settlement batches: %w", err)
		}
		for _, id := range ids {
			claimed[id] = true
		}
	}

	if d.CashEntry != nil {
		if err := p.stores.Cash.MarkReconciled(ctx, d.CashEntry.ID, m.ID); err != nil {
			return fmt.Errorf("failed to flag cash entry %s: %w", d.CashEntry.ID, err)
		}
		claimed[d.CashEntry.ID] = true
	}

	target := d.Target
	return p.markMovement(ctx, m.ID, models.MovementReconciledAuto, d.Method, &target, runID)
}

func (p *Processor) markMovement(ctx context.Context, id string, status models.MovementStatus, method models.MatchMethod, target *string, runID string) error {
	if err := p.stores.Movements.MarkReconciled(ctx, id, status, method, target, optional(runID), p.now().UTC()); err != nil {
		return fmt.Errorf("failed to update movement %s: %w", id, err)
	}
	return nil
}

func (p *Processor) enqueue(ctx context.Context, m models.BankMovement, d *Decision, runID string) (*models.AmbiguousMatch, error) {
	match := &models.AmbiguousMatch{
		ID:         uuid.NewString(),
		MovementID: m.ID,
		Candidates: d.Candidates,
		Status:     models.AmbiguousPending,
		RunID:      optional(runID),
		CreatedAt:  p.now().UTC(),
	}
	if err := p.stores.Ambiguous.Create(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to queue movement %s: %w", m.ID, err)
	}
	d.Target = match.ID
	return match, nil
}

// ReconcileMovement runs the strategies for a single movement outside a batch
// run. Review-queue outcomes are returned as *AmbiguityError.
func (p *Processor) ReconcileMovement(ctx context.Context, movementID string) (*Decision, error) {
	release, err := p.lock.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	m, err := p.stores.Movements.Get(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MovementUnreconciled {
		return nil, models.ErrAlreadyReconciled
	}

	pending := models.AmbiguousPending
	queued, err := p.stores.Ambiguous.List(ctx, &pending)
	if err != nil {
		return nil, err
	}
	for _, q := range queued {
		if q.MovementID == m.ID {
			return nil, &AmbiguityError{MovementID: m.ID, MatchID: q.ID, Candidates: q.Candidates}
		}
	}

	d, match, err := p.processMovement(ctx, *m, make(map[string]bool), "")
	if err != nil {
		return nil, err
	}
	if match != nil {
		return d, &AmbiguityError{MovementID: m.ID, MatchID: match.ID, Candidates: match.Candidates}
	}
	return d, nil
}

func (p *Processor) finishRun(ctx context.Context, run *models.Run, summary *Summary, runErr error) {
	completed := p.now().UTC()
	run.CompletedAt = &completed
	if runErr != nil {
		run.Status = RunStatusFailed
		if b, err := json.Marshal(map[string]string{"error": runErr.Error()}); err == nil {
			run.Summary = string(b)
		}
	} else {
		run.Status = RunStatusCompleted
		run.ProcessedCount = summary.Processed
		run.MatchedCount = summary.MatchedTotal()
		run.AmbiguousCount = summary.Ambiguous
		run.CommissionCount = summary.CommissionExcluded
		run.UnmatchedCount = summary.Unmatched
		run.ErrorCount = summary.Errors
		if b, err := json.Marshal(summary); err == nil {
			run.Summary = string(b)
		}
	}
	if err := p.stores.Runs.SaveRun(ctx, run); err != nil {
		p.logger.WithError(err).WithField("run", run.ID).Error("failed to save run record")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsAmbiguity reports whether err is an AmbiguityError.
func IsAmbiguity(err error) bool {
	var a *AmbiguityError
	return errors.As(err, &a)
}
