// Package report exports reconciliation runs as Excel workbooks.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
)

const (
	SummarySheet   = "Summary"
	AmbiguousSheet = "Ambiguous"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var ambiguousHeadings = []interface{}{
	"Match ID", "Movement ID", "Status", "Rank", "Payable ID", "Kind", "Number",
	"Counterparty", "Amount", "Document date", "Score", "Reason",
}

// WriteRun writes a workbook with the run counters on the Summary sheet and
// one line per candidate of each review entry on the Ambiguous sheet.
func WriteRun(w io.Writer, run *models.Run, summary *processor.Summary, entries []models.AmbiguousMatch) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(AmbiguousSheet); err != nil {
		return err
	}

	if err := writeSummary(f, run, summary); err != nil {
		return fmt.Errorf("failed to write summary sheet: %w", err)
	}
	if err := writeAmbiguous(f, entries); err != nil {
		return fmt.Errorf("failed to write ambiguous sheet: %w", err)
	}

	return f.Write(w)
}

func writeSummary(f *excelize.File, run *models.Run, summary *processor.Summary) error {
	rows := [][]interface{}{
		{"Run ID", run.ID},
		{"Kind", string(run.Kind)},
		{"Status", run.Status},
		{"Started at", run.StartedAt},
	}
	if run.CompletedAt != nil {
		rows = append(rows, []interface{}{"Completed at", *run.CompletedAt})
	}
	rows = append(rows,
		[]interface{}{"Processed", run.ProcessedCount},
		[]interface{}{"Matched", run.MatchedCount},
		[]interface{}{"Ambiguous", run.AmbiguousCount},
		[]interface{}{"Commission excluded", run.CommissionCount},
		[]interface{}{"Unmatched", run.UnmatchedCount},
		[]interface{}{"Errors", run.ErrorCount},
	)

	if summary != nil {
		rows = append(rows, []interface{}{"Skipped", summary.Skipped}, []interface{}{"Repaired", summary.Repaired})

		methods := make([]string, 0, len(summary.Matched))
		for m := range summary.Matched {
			methods = append(methods, string(m))
		}
		sort.Strings(methods)
		for _, m := range methods {
			rows = append(rows, []interface{}{"Matched by " + m, summary.Matched[models.MatchMethod(m)]})
		}
		for _, fail := range summary.Failures {
			rows = append(rows, []interface{}{"Failed movement " + fail.MovementID, fail.Error})
		}
	}

	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cellRef, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(SummarySheet, "A", "A", 28)
}

func writeAmbiguous(f *excelize.File, entries []models.AmbiguousMatch) error {
	if err := f.SetSheetRow(AmbiguousSheet, "A1", &ambiguousHeadings); err != nil {
		return err
	}

	rowNo := 2
	for _, m := range entries {
		for _, c := range m.Candidates {
			number := ""
			if c.Number != nil {
				number = *c.Number
			}
			row := []interface{}{
				m.ID, m.MovementID, string(m.Status), c.Rank, c.PayableID, string(c.Kind), number,
				c.Counterparty, c.Amount.InexactFloat64(), c.DocumentDate, c.Score, c.Reason,
			}
			cellRef, err := excelize.CoordinatesToCellName(1, rowNo)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(AmbiguousSheet, cellRef, &row); err != nil {
				return err
			}
			rowNo++
		}
	}
	return nil
}
