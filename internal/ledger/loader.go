package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for workbook extensions other than
// .xlsx and .xls.
var ErrUnsupportedFormat = errors.New("ledger: unsupported workbook format")

// Column layout of the general-ledger workbook. The file has no header row:
// A=date, B=journal, C=account, D=document number, E=label, F=movement
// amount, G=invoice amount, I=reconciliation mark.
const (
	colDate = iota
	colJournal
	colAccount
	colDocNumber
	colLabel
	colMovement
	colInvoice
	_ // column H unused
	colMark
)

// maxXLSRows bounds how many rows are decoded from a legacy .xls workbook.
const maxXLSRows = 200000

// Load reads a general-ledger workbook and returns normalized entries.
// The filename is only used to pick the decoder by extension.
func Load(r io.Reader, filename string) ([]Entry, error) {
	rows, err := ReadRows(r, filename)
	if err != nil {
		return nil, err
	}
	return FromRows(rows), nil
}

// ReadRows decodes a workbook into its first sheet's cell grid.
func ReadRows(r io.Reader, filename string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("ledger: open xlsx: %w", err)
		}
		defer f.Close()
		sheet := f.GetSheetName(0)
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("ledger: read sheet %q: %w", sheet, err)
		}
		return rows, nil
	case ".xls":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("ledger: read xls: %w", err)
		}
		wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("ledger: open xls: %w", err)
		}
		return wb.ReadAllCells(maxXLSRows), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// FromRows converts a raw cell grid into normalized ledger entries. Data
// defects are coerced, never raised: unparseable dates become the zero time,
// unparseable amounts become 0, code cells are trimmed with spreadsheet
// artifacts (trailing ".0", "nan") stripped.
func FromRows(rows [][]string) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e := Entry{
			Date:      ParseDate(cell(row, colDate)),
			Journal:   CleanCode(cell(row, colJournal)),
			Account:   CleanCode(cell(row, colAccount)),
			DocNumber: CleanCode(cell(row, colDocNumber)),
			Label:     strings.TrimSpace(cell(row, colLabel)),
			Movement:  ParseAmount(cell(row, colMovement)),
			Invoice:   ParseAmount(cell(row, colInvoice)),
			Mark:      strings.TrimSpace(cell(row, colMark)),
		}
		if e.Mark == "nan" {
			e.Mark = ""
		}
		e.CorrectedMark = e.Mark
		entries = append(entries, e)
	}
	return entries
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

// CleanCode trims a code cell and strips the ".0" tail that spreadsheet
// readers append to numeric account and document numbers.
func CleanCode(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	if s == "nan" {
		return ""
	}
	return s
}

var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
	"01-02-06",
	"02/01/06",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"2006/01/02",
	time.RFC3339,
}

// ParseDate coerces a cell into a calendar date. Serial numbers use the
// Excel epoch. Anything unparseable yields the zero time.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == "nan" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
		return epoch.Add(time.Duration(serial * 24 * float64(time.Hour)))
	}
	return time.Time{}
}

// ParseAmount coerces a cell into a float64 amount. The cell text is parsed
// as an exact decimal first so formatted values ("1 234,56") survive the
// trip; invalid cells coerce to 0.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "nan" {
		return 0
	}
	s = strings.NewReplacer(" ", "", " ", "", " ", "", ",", ".").Replace(s)
	// A thousands-separated value like "1.234.56" keeps only the last dot.
	if parts := strings.Split(s, "."); len(parts) > 2 {
		s = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
