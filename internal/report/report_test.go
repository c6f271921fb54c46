package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
)

func TestWriteRun(t *testing.T) {
	started := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	done := started.Add(time.Minute)
	number := "FT-7"
	run := &models.Run{
		ID: "run-1", Kind: models.RunKindReconcile, Status: processor.RunStatusCompleted,
		ProcessedCount: 5, MatchedCount: 3, AmbiguousCount: 1, CommissionCount: 1,
		StartedAt: started, CompletedAt: &done,
	}
	summary := &processor.Summary{
		RunID:   "run-1",
		Matched: map[models.MatchMethod]int{models.MethodReferenceAmount: 2, models.MethodAmountUnique: 1},
		Skipped: 2,
	}
	entries := []models.AmbiguousMatch{{
		ID: "amb-1", MovementID: "m3", Status: models.AmbiguousPending,
		Candidates: models.Candidates{
			{PayableID: "inv-b", Kind: models.PayableInvoice, Number: &number, Counterparty: "BIANCHI", Amount: decimal.RequireFromString("300.00"), DocumentDate: started, Rank: 1, Reason: "same amount"},
			{PayableID: "inv-a", Kind: models.PayableInvoice, Counterparty: "ROSSI", Amount: decimal.RequireFromString("300.00"), DocumentDate: started, Rank: 2, Reason: "same amount"},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteRun(&buf, run, summary, entries))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, AmbiguousSheet}, f.GetSheetList())

	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		if len(r) == 2 {
			values[r[0]] = r[1]
		}
	}
	assert.Equal(t, "run-1", values["Run ID"])
	assert.Equal(t, "3", values["Matched"])
	assert.Equal(t, "2", values["Matched by reference+amount"])
	assert.Equal(t, "1", values["Matched by amount_unique"])
	assert.Equal(t, "2", values["Skipped"])

	amb, err := f.GetRows(AmbiguousSheet)
	require.NoError(t, err)
	require.Len(t, amb, 3)
	assert.Equal(t, "Match ID", amb[0][0])
	assert.Equal(t, []string{"amb-1", "m3", "pending", "1", "inv-b", "invoice", "FT-7", "BIANCHI", "300"}, amb[1][:9])
	assert.Equal(t, "inv-a", amb[2][4])
	assert.Equal(t, "", amb[2][6])
}

func TestWriteRun_NoSummary(t *testing.T) {
	run := &models.Run{ID: "run-2", Kind: models.RunKindReset, Status: processor.RunStatusCompleted}

	var buf bytes.Buffer
	require.NoError(t, WriteRun(&buf, run, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	amb, err := f.GetRows(AmbiguousSheet)
	require.NoError(t, err)
	assert.Len(t, amb, 1)
}
