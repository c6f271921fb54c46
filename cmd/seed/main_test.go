package main

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

func TestParseCSV(t *testing.T) {
	rows, err := parseCSV(strings.NewReader("\ufeffID, Name ,default_payment_method\nc1, ROSSI SRL ,bonifico\nc2,BIANCHI\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"id": "c1", "name": "ROSSI SRL", "default_payment_method": "bonifico"}, rows[0])
	assert.Equal(t, "", rows[1]["default_payment_method"])
}

func TestParsePayable(t *testing.T) {
	p, err := parsePayable(map[string]string{
		"id": "inv-1", "kind": "Invoice", "number": "FT-12", "amount": "150.004",
		"counterparty": "ROSSI SRL", "document_date": "2024-02-20", "direction": "debit",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PayableInvoice, p.Kind)
	assert.Equal(t, "FT-12", *p.Number)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), p.DocumentDate)
	require.NotNil(t, p.Direction)
	assert.Equal(t, models.DirectionDebit, *p.Direction)
	assert.Nil(t, p.CounterpartyID)

	tests := []struct {
		name string
		row  map[string]string
	}{
		{"missing id", map[string]string{"kind": "invoice", "amount": "1", "document_date": "2024-01-01"}},
		{"unknown kind", map[string]string{"id": "x", "kind": "receipt", "amount": "1", "document_date": "2024-01-01"}},
		{"bad amount", map[string]string{"id": "x", "kind": "invoice", "amount": "1,50", "document_date": "2024-01-01"}},
		{"bad date", map[string]string{"id": "x", "kind": "invoice", "amount": "1", "document_date": "01/01/2024"}},
		{"bad direction", map[string]string{"id": "x", "kind": "invoice", "amount": "1", "document_date": "2024-01-01", "direction": "out"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePayable(tt.row)
			assert.Error(t, err)
		})
	}
}
