package checks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const MaxBatchSize = 500

var ErrInvalidBatch = errors.New("invalid check batch request")

// Store persists checks.
type Store interface {
	// ExistingNumbers returns the subset of numbers already present.
	ExistingNumbers(ctx context.Context, numbers []string) ([]string, error)
	// CreateBatch inserts all checks or none. A number taken concurrently
	// surfaces as *DuplicateBatchError.
	CreateBatch(ctx context.Context, checks []models.Check) error
	Get(ctx context.Context, id string) (*models.Check, error)
	// Find looks a check up by id or full number.
	Find(ctx context.Context, numberOrID string) (*models.Check, error)
	FindBySequence(ctx context.Context, sequence int64) ([]models.Check, error)
	UpdateState(ctx context.Context, c *models.Check) error
}

// BatchRequest asks for Count checks numbered from Start.
type BatchRequest struct {
	Prefix string `json:"prefix"`
	Start  int64  `json:"start" validate:"gte=0"`
	Count  int    `json:"count" validate:"gte=1,lte=500"`
	Width  int    `json:"width" validate:"gte=0,lte=18"`
}

// Service applies user-driven lifecycle actions and persists the result.
type Service struct {
	store  Store
	logger *logrus.Logger
	now    func() time.Time
}

func NewService(store Store, logger *logrus.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// CreateBatch creates Count blank checks with sequential numbers. When any
// number already exists nothing is created and the error lists all conflicts.
func (s *Service) CreateBatch(ctx context.Context, req BatchRequest) ([]models.Check, error) {
	if req.Count < 1 || req.Count > MaxBatchSize {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidBatch, MaxBatchSize)
	}
	if req.Start < 0 {
		return nil, fmt.Errorf("%w: start must not be negative", ErrInvalidBatch)
	}

	now := s.now().UTC()
	batch := make([]models.Check, 0, req.Count)
	numbers := make([]string, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		seq := req.Start + int64(i)
		number := FormatNumber(req.Prefix, seq, req.Width)
		numbers = append(numbers, number)
		batch = append(batch, models.Check{
			ID:        uuid.NewString(),
			Prefix:    req.Prefix,
			Sequence:  seq,
			Number:    number,
			State:     models.CheckBlank,
			CreatedAt: now,
		})
	}

	existing, err := s.store.ExistingNumbers(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing numbers: %w", err)
	}
	if len(existing) > 0 {
		return nil, &DuplicateBatchError{Conflicts: existing}
	}

	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"prefix": req.Prefix,
		"from":   numbers[0],
		"to":     numbers[len(numbers)-1],
		"count":  len(batch),
	}).Info("check batch created")
	return batch, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Check, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Fill(ctx context.Context, id, beneficiary string, amount decimal.Decimal, payableID *string) (*models.Check, error) {
	return s.apply(ctx, id, EventFill, func(c *models.Check) error {
		return Fill(c, beneficiary, amount, payableID)
	})
}

func (s *Service) Issue(ctx context.Context, id string, date time.Time) (*models.Check, error) {
	return s.apply(ctx, id, EventIssue, func(c *models.Check) error {
		return Issue(c, date)
	})
}

func (s *Service) Void(ctx context.Context, id string) (*models.Check, error) {
	return s.apply(ctx, id, EventVoid, Void)
}

func (s *Service) Expire(ctx context.Context, id string) (*models.Check, error) {
	return s.apply(ctx, id, EventExpire, Expire)
}

func (s *Service) apply(ctx context.Context, id string, event Event, fn func(*models.Check) error) (*models.Check, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := c.State
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.store.UpdateState(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save check %s: %w", c.Number, err)
	}
	s.logger.WithFields(logrus.Fields{
		"check": c.Number,
		"event": event,
		"from":  before,
		"to":    c.State,
	}).Info("check transition")
	return c, nil
}
