// Command seed loads the ledgers the engine reconciles against from CSV
// files: payables, counterparties, POS settlement batches and cash entries.
// Rows whose id already exists are left untouched, so seeding is repeatable.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/db"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/logging"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	payablesFile := flag.String("payables", "", "CSV: id,kind,number,amount,counterparty,counterparty_id,document_date,direction")
	counterpartiesFile := flag.String("counterparties", "", "CSV: id,name,default_payment_method")
	settlementsFile := flag.String("settlements", "", "CSV: id,date,amount")
	cashFile := flag.String("cash", "", "CSV: id,date,amount,kind")
	flag.Parse()

	cfg := config.LoadOrEnv(*configPath)
	logger := logging.New(cfg.Logging)

	database, err := db.Open(cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer database.Close()

	store := db.NewStore(database)
	s := &seeder{store: store, logger: logger}
	ctx := context.Background()

	steps := []struct {
		name string
		path string
		fn   func(context.Context, []map[string]string) (int, error)
	}{
		{"counterparties", *counterpartiesFile, s.counterparties},
		{"payables", *payablesFile, s.payables},
		{"settlements", *settlementsFile, s.settlements},
		{"cash entries", *cashFile, s.cash},
	}
	for _, step := range steps {
		if step.path == "" {
			continue
		}
		rows, err := readCSV(step.path)
		if err != nil {
			logger.WithError(err).Fatalf("failed to read %s", step.name)
		}
		n, err := step.fn(ctx, rows)
		if err != nil {
			logger.WithError(err).Fatalf("failed to seed %s", step.name)
		}
		logger.WithFields(logrus.Fields{"file": step.path, "rows": len(rows), "inserted": n}).Infof("seeded %s", step.name)
	}
}

type seeder struct {
	store  *db.Store
	logger *logrus.Logger
}

func (s *seeder) payables(ctx context.Context, rows []map[string]string) (int, error) {
	inserted := 0
	for i, row := range rows {
		p, err := parsePayable(row)
		if err != nil {
			s.logger.WithError(err).WithField("row", i+2).Warn("skipping payable")
			continue
		}
		p.Position = i + 1
		ok, err := s.store.Payables.Insert(ctx, p)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func (s *seeder) counterparties(ctx context.Context, rows []map[string]string) (int, error) {
	for _, row := range rows {
		c := db.Counterparty{ID: row["id"], Name: row["name"], DefaultPaymentMethod: optional(row["default_payment_method"])}
		if err := s.store.Counterparties.Upsert(ctx, c); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (s *seeder) settlements(ctx context.Context, rows []map[string]string) (int, error) {
	inserted := 0
	for i, row := range rows {
		date, amount, err := parseDateAmount(row)
		if err != nil {
			s.logger.WithError(err).WithField("row", i+2).Warn("skipping settlement batch")
			continue
		}
		if err := s.store.Settlements.Insert(ctx, models.SettlementBatch{ID: row["id"], Date: date, Amount: amount}); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (s *seeder) cash(ctx context.Context, rows []map[string]string) (int, error) {
	inserted := 0
	for i, row := range rows {
		date, amount, err := parseDateAmount(row)
		if err != nil {
			s.logger.WithError(err).WithField("row", i+2).Warn("skipping cash entry")
			continue
		}
		kind := row["kind"]
		if kind == "" {
			kind = models.CashEntryDeposit
		}
		if err := s.store.Cash.Insert(ctx, models.CashEntry{ID: row["id"], Date: date, Amount: amount, Kind: kind}); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// readCSV returns one map per data row keyed by the lower-cased header.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("missing header row")
	}

	header := records[0]
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var payableKinds = map[string]models.PayableKind{
	"invoice":    models.PayableInvoice,
	"payroll":    models.PayablePayroll,
	"tax_filing": models.PayableTaxFiling,
}

func parsePayable(row map[string]string) (models.Payable, error) {
	if row["id"] == "" {
		return models.Payable{}, fmt.Errorf("missing id")
	}
	kind, ok := payableKinds[strings.ToLower(row["kind"])]
	if !ok {
		return models.Payable{}, fmt.Errorf("unknown kind %q", row["kind"])
	}
	amount, err := decimal.NewFromString(row["amount"])
	if err != nil {
		return models.Payable{}, fmt.Errorf("invalid amount %q: %w", row["amount"], err)
	}
	date, err := time.Parse(time.DateOnly, row["document_date"])
	if err != nil {
		return models.Payable{}, fmt.Errorf("invalid document_date %q: %w", row["document_date"], err)
	}

	p := models.Payable{
		ID:             row["id"],
		Kind:           kind,
		Number:         optional(row["number"]),
		Amount:         amount.Round(2),
		Counterparty:   row["counterparty"],
		CounterpartyID: optional(row["counterparty_id"]),
		DocumentDate:   date,
	}
	switch d := models.Direction(strings.ToLower(row["direction"])); d {
	case "":
	case models.DirectionCredit, models.DirectionDebit:
		p.Direction = &d
	default:
		return models.Payable{}, fmt.Errorf("invalid direction %q", row["direction"])
	}
	return p, nil
}

func parseDateAmount(row map[string]string) (time.Time, decimal.Decimal, error) {
	if row["id"] == "" {
		return time.Time{}, decimal.Decimal{}, fmt.Errorf("missing id")
	}
	date, err := time.Parse(time.DateOnly, row["date"])
	if err != nil {
		return time.Time{}, decimal.Decimal{}, fmt.Errorf("invalid date %q: %w", row["date"], err)
	}
	amount, err := decimal.NewFromString(row["amount"])
	if err != nil {
		return time.Time{}, decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", row["amount"], err)
	}
	return date, amount.Round(2), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
