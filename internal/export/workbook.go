// Package export renders a reconciliation report as a styled xlsx workbook
// ready for the regulatory payment-delay filing.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/payrec/payrec/internal/recon"
)

const sheetName = "Rapprochement"

// amountFormat renders zero as a dash while keeping the cell numeric.
const amountFormat = `#,##0.00;-#,##0.00;"-"`

const dateFormat = "DD/MM/YYYY"

type columnKind int

const (
	colText columnKind = iota
	colDate
	colAmount
)

type column struct {
	title string
	width float64
	kind  columnKind
}

var columns = []column{
	{"Date de facture", 12, colDate},
	{"N° de facture", 15, colText},
	{"N° compte fournisseur", 12, colText},
	{"Nom du fournisseur", 25, colText},
	{"Libellé de l'opération", 30, colText},
	{"Montant de la facture", 15, colAmount},
	{"Avoir", 12, colAmount},
	{"Montant facture net", 15, colAmount},
	{"Date de paiement", 12, colDate},
	{"Montant du paiement", 15, colAmount},
	{"OD", 12, colAmount},
	{"Montant du paiement groupé", 15, colAmount},
	{"Lettrage", 10, colText},
	{"Lettrage corrigé", 12, colText},
	{"Solde", 12, colAmount},
}

// Workbook writes the report to w as an xlsx file: a styled header row, a
// TOTAL row summing every amount column, then one row per statement line.
func Workbook(report *recon.Report, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}

	styles, err := buildStyles(f)
	if err != nil {
		return err
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, col.title); err != nil {
			return fmt.Errorf("export: header: %w", err)
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, name, name, col.width); err != nil {
			return fmt.Errorf("export: column width: %w", err)
		}
	}

	if err := writeTotalRow(f, report); err != nil {
		return err
	}
	for rowIdx, row := range report.Rows {
		if err := writeDataRow(f, rowIdx+3, row); err != nil {
			return err
		}
	}

	if err := applyStyles(f, styles, len(report.Rows)); err != nil {
		return err
	}

	if err := f.SetRowHeight(sheetName, 1, 40); err != nil {
		return fmt.Errorf("export: header height: %w", err)
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      4,
		YSplit:      2,
		TopLeftCell: "E3",
		ActivePane:  "bottomRight",
	}); err != nil {
		return fmt.Errorf("export: freeze panes: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

func writeTotalRow(f *excelize.File, report *recon.Report) error {
	totals := make([]float64, len(columns))
	for _, row := range report.Rows {
		for i, v := range amountValues(row) {
			totals[i] += v
		}
	}

	cell, _ := excelize.CoordinatesToCellName(1, 2)
	if err := f.SetCellValue(sheetName, cell, "TOTAL"); err != nil {
		return fmt.Errorf("export: total row: %w", err)
	}
	for i, col := range columns {
		if col.kind != colAmount {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(sheetName, cell, totals[i]); err != nil {
			return fmt.Errorf("export: total row: %w", err)
		}
	}
	return nil
}

// amountValues maps a statement row onto the amount columns, indexed like
// the columns table.
func amountValues(row recon.ResultRow) map[int]float64 {
	return map[int]float64{
		5:  row.InvoiceAmount,
		6:  row.CreditNote,
		7:  row.NetInvoice,
		9:  row.PaymentAmount,
		10: row.Adjustment,
		11: row.GroupedPayment,
		14: row.Balance,
	}
}

func writeDataRow(f *excelize.File, rowNum int, row recon.ResultRow) error {
	values := []any{
		cellDate(row.InvoiceDate),
		row.DocNumber,
		row.Account,
		row.Supplier,
		row.Label,
		row.InvoiceAmount,
		row.CreditNote,
		row.NetInvoice,
		cellDate(row.PaymentDate),
		row.PaymentAmount,
		row.Adjustment,
		row.GroupedPayment,
		row.Mark,
		row.CorrectedMark,
		row.Balance,
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, rowNum)
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("export: row %d: %w", rowNum, err)
		}
	}
	return nil
}

// cellDate keeps null dates as empty cells.
func cellDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

type styleSet struct {
	header      int
	totalText   int
	totalAmount int
	text        int
	date        int
	amount      int
}

func buildStyles(f *excelize.File) (styleSet, error) {
	var s styleSet
	var err error

	border := []excelize.Border{
		{Type: "left", Color: "CCCCCC", Style: 1},
		{Type: "right", Color: "CCCCCC", Style: 1},
		{Type: "top", Color: "CCCCCC", Style: 1},
		{Type: "bottom", Color: "CCCCCC", Style: 1},
	}
	amountFmt := amountFormat
	dateFmt := dateFormat

	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 10},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1E3A5F"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return s, fmt.Errorf("export: header style: %w", err)
	}

	s.totalText, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 10},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E8F4FD"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return s, fmt.Errorf("export: total style: %w", err)
	}

	s.totalAmount, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true, Size: 10},
		Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E8F4FD"}},
		Alignment:    &excelize.Alignment{Horizontal: "right", Vertical: "center"},
		Border:       border,
		CustomNumFmt: &amountFmt,
	})
	if err != nil {
		return s, fmt.Errorf("export: total amount style: %w", err)
	}

	s.text, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return s, fmt.Errorf("export: text style: %w", err)
	}

	s.date, err = f.NewStyle(&excelize.Style{
		Alignment:    &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:       border,
		CustomNumFmt: &dateFmt,
	})
	if err != nil {
		return s, fmt.Errorf("export: date style: %w", err)
	}

	s.amount, err = f.NewStyle(&excelize.Style{
		Alignment:    &excelize.Alignment{Horizontal: "right", Vertical: "center"},
		Border:       border,
		CustomNumFmt: &amountFmt,
	})
	if err != nil {
		return s, fmt.Errorf("export: amount style: %w", err)
	}

	return s, nil
}

func applyStyles(f *excelize.File, s styleSet, dataRows int) error {
	lastCol, _ := excelize.ColumnNumberToName(len(columns))

	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", s.header); err != nil {
		return fmt.Errorf("export: apply header style: %w", err)
	}

	for i, col := range columns {
		name, _ := excelize.ColumnNumberToName(i + 1)

		totalStyle := s.totalText
		if col.kind == colAmount {
			totalStyle = s.totalAmount
		}
		if err := f.SetCellStyle(sheetName, name+"2", name+"2", totalStyle); err != nil {
			return fmt.Errorf("export: apply total style: %w", err)
		}

		if dataRows == 0 {
			continue
		}
		dataStyle := s.text
		switch col.kind {
		case colDate:
			dataStyle = s.date
		case colAmount:
			dataStyle = s.amount
		}
		top := fmt.Sprintf("%s3", name)
		bottom := fmt.Sprintf("%s%d", name, dataRows+2)
		if err := f.SetCellStyle(sheetName, top, bottom, dataStyle); err != nil {
			return fmt.Errorf("export: apply data style: %w", err)
		}
	}
	return nil
}
