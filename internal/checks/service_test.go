package checks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

type fakeStore struct {
	byID map[string]models.Check
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]models.Check)}
}

func (f *fakeStore) ExistingNumbers(_ context.Context, numbers []string) ([]string, error) {
	var out []string
	for _, n := range numbers {
		for _, c := range f.byID {
			if c.Number == n {
				out = append(out, n)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateBatch(_ context.Context, checks []models.Check) error {
	for _, c := range checks {
		f.byID[c.ID] = c
	}
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*models.Check, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (f *fakeStore) Find(ctx context.Context, numberOrID string) (*models.Check, error) {
	for _, c := range f.byID {
		if c.ID == numberOrID || c.Number == numberOrID {
			c := c
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeStore) FindBySequence(_ context.Context, sequence int64) ([]models.Check, error) {
	var out []models.Check
	for _, c := range f.byID {
		if c.Sequence == sequence {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateState(_ context.Context, c *models.Check) error {
	f.byID[c.ID] = *c
	return nil
}

func newTestService() (*Service, *fakeStore, *test.Hook) {
	logger, hook := test.NewNullLogger()
	store := newFakeStore()
	svc := NewService(store, logger)
	svc.now = func() time.Time { return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC) }
	return svc, store, hook
}

func TestService_CreateBatch(t *testing.T) {
	svc, store, hook := newTestService()
	ctx := context.Background()

	created, err := svc.CreateBatch(ctx, BatchRequest{Prefix: "AB", Start: 100, Count: 5, Width: 7})
	require.NoError(t, err)
	require.Len(t, created, 5)
	assert.Equal(t, "AB-0000100", created[0].Number)
	assert.Equal(t, "AB-0000104", created[4].Number)
	for _, c := range created {
		assert.Equal(t, models.CheckBlank, c.State)
	}
	assert.Len(t, store.byID, 5)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestService_CreateBatch_Atomic(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateBatch(ctx, BatchRequest{Prefix: "AB", Start: 3, Count: 2})
	require.NoError(t, err)

	_, err = svc.CreateBatch(ctx, BatchRequest{Prefix: "AB", Start: 1, Count: 5})
	var dup *DuplicateBatchError
	require.True(t, errors.As(err, &dup))
	assert.ElementsMatch(t, []string{"AB-3", "AB-4"}, dup.Conflicts)
	assert.Len(t, store.byID, 2, "no check of the rejected batch is created")
}

func TestService_CreateBatch_Invalid(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateBatch(context.Background(), BatchRequest{Prefix: "AB", Count: 0})
	assert.ErrorIs(t, err, ErrInvalidBatch)

	_, err = svc.CreateBatch(context.Background(), BatchRequest{Prefix: "AB", Start: -1, Count: 1})
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestService_Transitions(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateBatch(ctx, BatchRequest{Prefix: "CK", Start: 1, Count: 1})
	require.NoError(t, err)
	id := created[0].ID

	_, err = svc.Issue(ctx, id, time.Now())
	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.CheckBlank, store.byID[id].State, "state unchanged after a rejected transition")

	c, err := svc.Fill(ctx, id, "Fornitore Srl", decimal.NewFromInt(120), nil)
	require.NoError(t, err)
	assert.Equal(t, models.CheckFilled, c.State)

	c, err = svc.Issue(ctx, id, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, models.CheckIssued, store.byID[id].State)

	c, err = svc.Void(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CheckVoid, c.State)

	c, err = svc.Expire(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.CheckExpired, c.State)

	_, err = svc.Expire(ctx, id)
	assert.Error(t, err)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
