package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

// Queue is the manual side of the review queue: a person picks the right
// payable for an ambiguous movement, or dismisses it.
type Queue struct {
	stores Stores
	lock   Locker
	logger *logrus.Logger
	now    func() time.Time
}

// NewQueue builds a queue sharing the engine's run lock so a confirm or
// reject never interleaves with a run, reset or repair. locker may be nil.
func NewQueue(stores Stores, locker Locker, logger *logrus.Logger) *Queue {
	if locker == nil {
		locker = noLock{}
	}
	return &Queue{stores: stores, lock: locker, logger: logger, now: time.Now}
}

func (q *Queue) List(ctx context.Context, status *models.AmbiguousStatus) ([]models.AmbiguousMatch, error) {
	return q.stores.Ambiguous.List(ctx, status)
}

func (q *Queue) Get(ctx context.Context, id string) (*models.AmbiguousMatch, error) {
	return q.stores.Ambiguous.Get(ctx, id)
}

// Confirm settles the chosen payable with the queued movement. It fails with
// models.ErrAlreadyResolved when the entry is no longer pending and with
// models.ErrRunInProgress while the run lock is held.
func (q *Queue) Confirm(ctx context.Context, matchID, payableID string) (*models.AmbiguousMatch, error) {
	release, err := q.lock.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	match, err := q.stores.Ambiguous.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.AmbiguousPending {
		return nil, models.ErrAlreadyResolved
	}
	cand, ok := match.Candidates.Has(payableID)
	if !ok {
		return nil, ErrNotCandidate
	}

	payable, err := q.stores.Payables.Get(ctx, payableID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payable %s: %w", payableID, err)
	}
	if payable.Paid {
		return nil, models.ErrAlreadyPaid
	}
	movement, err := q.stores.Movements.Get(ctx, match.MovementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load movement %s: %w", match.MovementID, err)
	}
	if movement.Status != models.MovementUnreconciled {
		return nil, models.ErrAlreadyReconciled
	}

	now := q.now().UTC()
	chosen := payableID
	if err := q.stores.Ambiguous.Resolve(ctx, matchID, models.AmbiguousConfirmed, &chosen, now); err != nil {
		return nil, err
	}

	err = q.stores.Payables.MarkPaid(ctx, payableID, models.Payment{
		Method:           cand.Kind.DefaultMethod(),
		Date:             models.Civil(movement.Date),
		SourceMovementID: movement.ID,
		ConfirmedMatchID: &match.ID,
	})
	if err != nil {
		if reopenErr := q.stores.Ambiguous.Reopen(ctx, matchID); reopenErr != nil {
			q.logger.WithError(reopenErr).WithField("match", matchID).Error("failed to reopen match after payment error")
		}
		return nil, fmt.Errorf("failed to mark payable %s paid: %w", payableID, err)
	}

	target := payableID
	err = q.stores.Movements.MarkReconciled(ctx, movement.ID, models.MovementReconciledManual, models.MethodManual, &target, match.RunID, now)
	if err != nil && !errors.Is(err, models.ErrAlreadyReconciled) {
		return nil, fmt.Errorf("failed to update movement %s: %w", movement.ID, err)
	}

	q.logger.WithFields(logrus.Fields{
		"match":    matchID,
		"movement": movement.ID,
		"payable":  payableID,
		"method":   cand.Kind.DefaultMethod(),
	}).Info("ambiguous match confirmed")

	return q.stores.Ambiguous.Get(ctx, matchID)
}

// Reject dismisses the entry. The movement stays unreconciled and later runs
// skip it unless they include rejected entries.
func (q *Queue) Reject(ctx context.Context, matchID string) (*models.AmbiguousMatch, error) {
	release, err := q.lock.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	match, err := q.stores.Ambiguous.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.AmbiguousPending {
		return nil, models.ErrAlreadyResolved
	}
	if err := q.stores.Ambiguous.Resolve(ctx, matchID, models.AmbiguousRejected, nil, q.now().UTC()); err != nil {
		return nil, err
	}
	q.logger.WithFields(logrus.Fields{
		"match":    matchID,
		"movement": match.MovementID,
	}).Info("ambiguous match rejected")
	return q.stores.Ambiguous.Get(ctx, matchID)
}
