package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/payrec/payrec/internal/recon"
)

func sampleReport() *recon.Report {
	d1 := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)
	return &recon.Report{
		Rows: []recon.ResultRow{
			{
				InvoiceDate:   d1,
				DocNumber:     "FAC-1",
				Account:       "44110001",
				Supplier:      "ACME SARL",
				Label:         "Achat matières",
				InvoiceAmount: 1000,
				NetInvoice:    1000,
				PaymentDate:   d2,
				PaymentAmount: 1000,
				Mark:          "AA",
				CorrectedMark: "",
			},
			{
				Account:       "44110002",
				Supplier:      "Bureau Plus",
				Label:         "Virement (reliquat)",
				PaymentDate:   d2,
				PaymentAmount: 200,
				Balance:       -200,
			},
		},
		ExpectedBalance: -200,
		TotalBalance:    -200,
		Balanced:        true,
	}
}

func TestWorkbookLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Workbook(sampleReport(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"Rapprochement"}, f.GetSheetList())

	header, err := f.GetCellValue("Rapprochement", "A1")
	require.NoError(t, err)
	require.Equal(t, "Date de facture", header)

	solde, err := f.GetCellValue("Rapprochement", "O1")
	require.NoError(t, err)
	require.Equal(t, "Solde", solde)

	total, err := f.GetCellValue("Rapprochement", "A2")
	require.NoError(t, err)
	require.Equal(t, "TOTAL", total)
}

func TestWorkbookTotalsAndRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Workbook(sampleReport(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	// Payment column total: 1000 + 200.
	payTotal, err := f.GetCellValue("Rapprochement", "J2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Equal(t, "1200", payTotal)

	// Balance column total.
	balTotal, err := f.GetCellValue("Rapprochement", "O2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Equal(t, "-200", balTotal)

	doc, err := f.GetCellValue("Rapprochement", "B3")
	require.NoError(t, err)
	require.Equal(t, "FAC-1", doc)

	supplier, err := f.GetCellValue("Rapprochement", "D4")
	require.NoError(t, err)
	require.Equal(t, "Bureau Plus", supplier)

	// The second row has no invoice, so its date cell stays empty.
	emptyDate, err := f.GetCellValue("Rapprochement", "A4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Empty(t, emptyDate)
}

func TestWorkbookEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Workbook(&recon.Report{}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	total, err := f.GetCellValue("Rapprochement", "A2")
	require.NoError(t, err)
	require.Equal(t, "TOTAL", total)
}
