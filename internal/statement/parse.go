// Package statement reads bank statement exports (CSV or XLSX) as produced
// by Italian home-banking portals and turns them into bank movements.
package statement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// headerScanRows is how far down the file the column header is searched;
// exports often start with account details.
const headerScanRows = 20

var ErrNoHeader = errors.New("statement header not found")

// Row is one parsed statement line.
type Row struct {
	Line        int
	Date        time.Time
	Amount      decimal.Decimal
	Description string
}

// RowError is a line that could not be parsed.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Parsed is the content of one statement file.
type Parsed struct {
	Rows    []Row
	Invalid []RowError
}

// Parse reads a statement. The format is chosen from the file extension:
// .xlsx is read as a workbook, anything else as delimited text.
func Parse(r io.Reader, filename string) (*Parsed, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return parseXLSX(r)
	}
	return parseCSV(r)
}

func parseCSV(r io.Reader) (*Parsed, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(raw) {
		raw, err = charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode statement: %w", err)
		}
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = detectSeparator(raw)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var records [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	return parseRecords(records, lines, false)
}

func parseXLSX(r io.Reader) (*Parsed, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return parseRecords(rows, nil, true)
}

// detectSeparator picks ';' or ',' from whichever occurs more often in the
// first lines; Italian exports mostly use ';' because ',' is the decimal mark.
func detectSeparator(raw []byte) rune {
	head := raw
	if len(head) > 4096 {
		head = head[:4096]
	}
	if bytes.Count(head, []byte(";")) >= bytes.Count(head, []byte(",")) && bytes.Contains(head, []byte(";")) {
		return ';'
	}
	if bytes.Count(head, []byte("\t")) > bytes.Count(head, []byte(",")) {
		return '\t'
	}
	return ','
}

type columns struct {
	date        int
	valueDate   int
	amount      int
	debit       int
	credit      int
	description []int
}

var (
	dateHeaders        = []string{"data", "data contabile", "data operazione", "data movimento", "data registrazione", "data op."}
	valueDateHeaders   = []string{"data valuta", "valuta"}
	amountHeaders      = []string{"importo", "importo eur", "importo (eur)", "importo euro", "ammontare"}
	debitHeaders       = []string{"dare", "uscite", "addebiti", "addebito"}
	creditHeaders      = []string{"avere", "entrate", "accrediti", "accredito"}
	descriptionHeaders = []string{"causale", "descrizione", "descrizione operazione", "dettaglio", "descrizione estesa", "causale abi"}
)

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "€", "eur")
	return strings.Join(strings.Fields(s), " ")
}

func indexOf(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func mapColumns(record []string) (columns, bool) {
	header := make([]string, len(record))
	for i, h := range record {
		header[i] = normalizeHeader(h)
	}
	cols := columns{
		date:      indexOf(header, dateHeaders),
		valueDate: indexOf(header, valueDateHeaders),
		amount:    indexOf(header, amountHeaders),
		debit:     indexOf(header, debitHeaders),
		credit:    indexOf(header, creditHeaders),
	}
	for _, name := range descriptionHeaders {
		if i := indexOf(header, []string{name}); i >= 0 {
			cols.description = append(cols.description, i)
		}
	}
	if cols.date < 0 {
		cols.date = cols.valueDate
	}
	hasAmount := cols.amount >= 0 || (cols.debit >= 0 && cols.credit >= 0)
	return cols, cols.date >= 0 && hasAmount && len(cols.description) > 0
}

// parseRecords finds the header and parses the rows below it. lines holds
// the file line of each record; nil means records are consecutive lines.
func parseRecords(records [][]string, lines []int, raw bool) (*Parsed, error) {
	headerAt := -1
	var cols columns
	for i := 0; i < len(records) && i < headerScanRows; i++ {
		if c, ok := mapColumns(records[i]); ok {
			headerAt, cols = i, c
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrNoHeader
	}

	out := &Parsed{}
	for i := headerAt + 1; i < len(records); i++ {
		record := records[i]
		line := i + 1
		if lines != nil {
			line = lines[i]
		}
		if blank(record) {
			continue
		}
		row, err := parseRow(record, cols, raw)
		if err != nil {
			out.Invalid = append(out.Invalid, RowError{Line: line, Reason: err.Error()})
			continue
		}
		row.Line = line
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseRow(record []string, cols columns, raw bool) (Row, error) {
	var row Row

	date, err := ParseDate(cell(record, cols.date), raw)
	if err != nil {
		return row, err
	}
	row.Date = date

	if cols.amount >= 0 {
		row.Amount, err = ParseAmount(cell(record, cols.amount), raw)
		if err != nil {
			return row, err
		}
	} else {
		debit, err := optionalAmount(cell(record, cols.debit), raw)
		if err != nil {
			return row, err
		}
		credit, err := optionalAmount(cell(record, cols.credit), raw)
		if err != nil {
			return row, err
		}
		if !debit.IsZero() && !credit.IsZero() {
			return row, errors.New("both debit and credit are set")
		}
		row.Amount = credit.Abs().Sub(debit.Abs())
	}
	if row.Amount.IsZero() {
		return row, errors.New("zero amount")
	}

	parts := make([]string, 0, len(cols.description))
	for _, i := range cols.description {
		if v := cell(record, i); v != "" {
			parts = append(parts, strings.Join(strings.Fields(v), " "))
		}
	}
	row.Description = strings.Join(parts, " ")
	return row, nil
}

// optionalAmount reads a Dare or Avere cell, where blank means zero.
func optionalAmount(s string, raw bool) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return ParseAmount(s, raw)
}

var dateLayouts = []string{"02/01/2006", "2/1/2006", "02/01/06", "2006-01-02", "02-01-2006", "02.01.2006", "2006/01/02"}

// ParseDate reads the date formats found in Italian statements. With raw
// set, a bare number is read as an Excel date serial.
func ParseDate(s string, raw bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	if raw {
		if serial, err := strconv.ParseFloat(s, 64); err == nil {
			t, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
			}
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if len(s) > 10 && strings.ContainsAny(s[10:], " T") {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseAmount reads Italian formatted amounts ("1.234,56", "-12,50",
// "€ 1.234,56", "(12,50)"). With raw set the value is a plain number as
// stored in a workbook cell.
func ParseAmount(s string, raw bool) (decimal.Decimal, error) {
	orig := s
	s = strings.TrimSpace(s)
	if raw {
		if d, err := decimal.NewFromString(s); err == nil {
			return d.Round(2), nil
		}
	}

	s = strings.NewReplacer("€", "", "EUR", "", "eur", "", " ", "", "\u00a0", "", "'", "").Replace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		neg = true
		s = strings.TrimSuffix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", orig)
	}

	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, fmt.Errorf("invalid amount %q", orig)
		}
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		// "1.234" and "1.234.567" are thousands; "150.00" is a decimal point
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", orig)
	}
	if neg {
		d = d.Neg()
	}
	return d.Round(2), nil
}
