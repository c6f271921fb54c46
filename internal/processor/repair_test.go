package processor

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

func paidWithoutBacklink(id, method string, counterpartyID *string) models.Payable {
	p := invoice(id, "", "FORNITORE", "100.00", day(2024, 1, 15))
	p.Paid = true
	p.PaymentMethod = str(method)
	paid := day(2024, 2, 1)
	p.PaymentDate = &paid
	p.CounterpartyID = counterpartyID
	return p
}

func TestRepair_StaleBankPayment(t *testing.T) {
	tests := []struct {
		name       string
		defaultFor string
		want       *string
	}{
		{"no counterparty default", "", nil},
		{"cash default", "contanti", str("contanti")},
		{"bank default", "Bonifico", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.defaultFor != "" {
				f.store.SetDefaultMethod("sup-1", tt.defaultFor)
			}
			f.store.AddPayable(paidWithoutBacklink("inv-1", "Bonifico", str("sup-1")))

			rs, err := f.proc.Repair(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, rs.Scanned)
			assert.Equal(t, 1, rs.Repaired)

			p := f.payable(t, "inv-1")
			assert.False(t, p.Paid)
			assert.Nil(t, p.PaymentDate)
			assert.Equal(t, tt.want, p.PaymentMethod)

			var warned bool
			for _, e := range f.hook.AllEntries() {
				if e.Level == logrus.WarnLevel && e.Message == "stale payment reverted" {
					warned = true
					assert.Equal(t, "inv-1", e.Data["payable"])
				}
			}
			assert.True(t, warned)
		})
	}
}

func TestRepair_LeavesValidAndNonBankPayments(t *testing.T) {
	f := newFixture(t)
	f.store.AddPayable(invoice("inv-1234", "1234", "CARTOLERIA ROSSI SRL", "150.00", day(2024, 2, 20)))
	f.store.AddPayable(paidWithoutBacklink("inv-cash", "contanti", nil))
	f.addMovements(t, movement("m1", day(2024, 3, 5), "-150.00", "PAGAMENTO FT 1234"))
	ctx := context.Background()

	_, err := f.proc.Run(ctx, Options{})
	require.NoError(t, err)

	rs, err := f.proc.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Scanned)
	assert.Zero(t, rs.Repaired)
	assert.True(t, f.payable(t, "inv-1234").Paid)
	assert.True(t, f.payable(t, "inv-cash").Paid)

	run, err := f.store.Runs.GetRun(ctx, rs.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunKindRepair, run.Kind)
	assert.Equal(t, RunStatusCompleted, run.Status)
}

func TestRepair_BacklinkToUnreconciledMovement(t *testing.T) {
	f := newFixture(t)
	p := paidWithoutBacklink("inv-1", "bonifico", nil)
	p.ReconciliationSourceID = str("m1")
	f.store.AddPayable(p)
	f.addMovements(t, movement("m1", day(2024, 2, 1), "-100.00", "BONIFICO SEPA"))

	rs, err := f.proc.Repair(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Repaired)
	assert.False(t, f.payable(t, "inv-1").Paid)
	assert.Nil(t, f.payable(t, "inv-1").ReconciliationSourceID)
}

func TestRepair_BacklinkToMovementThatSettledAnotherPayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := paidWithoutBacklink("inv-1", "bonifico", nil)
	stale.ReconciliationSourceID = str("m1")
	f.store.AddPayable(stale)
	valid := paidWithoutBacklink("inv-2", "bonifico", nil)
	valid.ReconciliationSourceID = str("m1")
	f.store.AddPayable(valid)
	f.addMovements(t, movement("m1", day(2024, 2, 1), "-100.00", "PAGAMENTO FT 2"))
	require.NoError(t, f.store.Movements.MarkReconciled(ctx, "m1", models.MovementReconciledAuto, models.MethodReferenceAmount, str("inv-2"), nil, fixedNow))

	rs, err := f.proc.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Repaired)
	assert.False(t, f.payable(t, "inv-1").Paid)
	assert.True(t, f.payable(t, "inv-2").Paid)
	assert.Equal(t, models.MovementReconciledAuto, f.movement(t, "m1").Status)
}

func TestRepair_ConfirmedMatchMustChooseThePayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chosen := "inv-other"
	require.NoError(t, f.store.Ambiguous.Create(ctx, &models.AmbiguousMatch{ID: "amb-1", MovementID: "m9", Status: models.AmbiguousPending}))
	require.NoError(t, f.store.Ambiguous.Resolve(ctx, "amb-1", models.AmbiguousConfirmed, &chosen, fixedNow))

	p := paidWithoutBacklink("inv-1", "bonifico", nil)
	p.ConfirmedMatchID = str("amb-1")
	f.store.AddPayable(p)

	rs, err := f.proc.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Repaired)
}

func TestRun_RepairsAfterMatching(t *testing.T) {
	f := newFixture(t)
	f.store.AddPayable(paidWithoutBacklink("inv-stale", "Bonifico", nil))

	summary, err := f.proc.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Repaired)
	assert.False(t, f.payable(t, "inv-stale").Paid)
}
