package statement

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

// movementNamespace seeds the name-based movement ids.
var movementNamespace = uuid.MustParse("6f1c2a52-4a8e-4d55-9d1e-7c0c5b3f2e10")

// MovementID derives a stable id from the movement content. occurrence
// tells apart identical lines in the same statement.
func MovementID(row Row, occurrence int) string {
	key := fmt.Sprintf("%s|%s|%s|%d",
		row.Date.Format("2006-01-02"),
		row.Amount.StringFixed(2),
		strings.ToUpper(row.Description),
		occurrence)
	return uuid.NewSHA1(movementNamespace, []byte(key)).String()
}

// ToMovements converts parsed rows to unreconciled movements in file order.
func ToMovements(importID string, rows []Row) []models.BankMovement {
	seen := make(map[string]int, len(rows))
	out := make([]models.BankMovement, 0, len(rows))
	for i, row := range rows {
		base := MovementID(row, 0)
		n := seen[base]
		seen[base] = n + 1

		out = append(out, models.BankMovement{
			ID:          MovementID(row, n),
			ImportID:    importID,
			Position:    i + 1,
			Date:        models.Civil(row.Date),
			Amount:      row.Amount.Round(2),
			Description: row.Description,
			Direction:   models.DirectionOf(row.Amount),
			Status:      models.MovementUnreconciled,
		})
	}
	return out
}

type MovementInserter interface {
	InsertMany(ctx context.Context, movements []models.BankMovement) (int, error)
}

type ImportRecorder interface {
	SetRowCount(ctx context.Context, id string, rows int) error
}

// Result reports what an import wrote.
type Result struct {
	ImportID string     `json:"importId"`
	Rows     int        `json:"rows"`
	Inserted int        `json:"inserted"`
	Invalid  []RowError `json:"invalid,omitempty"`
}

// Importer loads statement files into the movement store.
type Importer struct {
	movements MovementInserter
	imports   ImportRecorder
	logger    *logrus.Logger
}

func NewImporter(movements MovementInserter, imports ImportRecorder, logger *logrus.Logger) *Importer {
	return &Importer{movements: movements, imports: imports, logger: logger}
}

// ImportFile parses the file at path and inserts its movements. Lines that
// cannot be parsed are logged and skipped; movements already imported are
// left untouched.
func (im *Importer) ImportFile(ctx context.Context, importID, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement: %w", err)
	}
	defer f.Close()

	parsed, err := Parse(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	for _, bad := range parsed.Invalid {
		im.logger.WithFields(logrus.Fields{
			"import": importID,
			"line":   bad.Line,
			"reason": bad.Reason,
		}).Warn("invalid statement row")
	}

	movements := ToMovements(importID, parsed.Rows)
	inserted, err := im.movements.InsertMany(ctx, movements)
	if err != nil {
		return nil, fmt.Errorf("failed to store movements: %w", err)
	}
	if err := im.imports.SetRowCount(ctx, importID, len(movements)); err != nil {
		return nil, fmt.Errorf("failed to update import: %w", err)
	}

	im.logger.WithFields(logrus.Fields{
		"import":   importID,
		"rows":     len(movements),
		"inserted": inserted,
		"invalid":  len(parsed.Invalid),
	}).Info("statement imported")

	return &Result{ImportID: importID, Rows: len(movements), Inserted: inserted, Invalid: parsed.Invalid}, nil
}
