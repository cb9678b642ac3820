package recon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payrec/payrec/internal/ledger"
	"github.com/payrec/payrec/internal/supplier"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig(), testLogger())
	require.NoError(t, err)
	return e
}

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

func invoiceEntry(account, mark string, amount float64, date time.Time) ledger.Entry {
	return ledger.Entry{
		Date: date, Journal: "ACHAT", Account: account,
		DocNumber: "FAC", Label: "facture",
		Invoice: amount, Mark: mark, CorrectedMark: mark,
	}
}

func paymentEntry(account, mark string, amount float64, date time.Time) ledger.Entry {
	return ledger.Entry{
		Date: date, Journal: "BANQUE", Account: account,
		DocNumber: "VIR", Label: "virement",
		Movement: amount, Mark: mark, CorrectedMark: mark,
	}
}

func creditEntry(account, mark string, amount float64, date time.Time) ledger.Entry {
	return ledger.Entry{
		Date: date, Journal: "ACHAT", Account: account,
		DocNumber: "AVR", Label: "avoir",
		Movement: amount, Mark: mark, CorrectedMark: mark,
	}
}

func refundEntry(account, mark string, amount float64, date time.Time) ledger.Entry {
	return ledger.Entry{
		Date: date, Journal: "BANQUE", Account: account,
		DocNumber: "RMB", Label: "remboursement",
		Invoice: amount, Mark: mark, CorrectedMark: mark,
	}
}

// lossEntry posts an exchange loss in the invoice column of an
// out-of-set journal.
func lossEntry(account, mark string, amount float64, date time.Time) ledger.Entry {
	return ledger.Entry{
		Date: date, Journal: "OD", Account: account,
		DocNumber: "OD", Label: "écart de change",
		Invoice: amount, Mark: mark, CorrectedMark: mark,
	}
}

// gainEntry posts an exchange gain in the movement column.
func gainEntry(account, mark string, amount float64, date time.Time) ledger.Entry {
	return ledger.Entry{
		Date: date, Journal: "OD", Account: account,
		DocNumber: "OD", Label: "écart de change",
		Movement: amount, Mark: mark, CorrectedMark: mark,
	}
}

func TestExactMatchSettlesToZero(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110001", "A", 1000, day(1)),
		paymentEntry("44110001", "A", 1000, day(10)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, supplier.Directory{"44110001": "ACME"})
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.Equal(t, "ACME", row.Supplier)
	require.InDelta(t, 1000.0, row.PaymentAmount, 0.001)
	require.Equal(t, day(10), row.PaymentDate)
	require.InDelta(t, 0.0, row.Balance, 0.001)
	require.True(t, report.Balanced)
	require.InDelta(t, 0.0, report.ExpectedBalance, 0.001)
}

func TestLossAdjustmentClosesTheGap(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110001", "A", 1000, day(1)),
		paymentEntry("44110001", "A", 1050, day(10)),
		lossEntry("44110001", "A", 50, day(11)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.InDelta(t, 50.0, row.Adjustment, 0.001)
	require.InDelta(t, 1050.0, row.PaymentAmount, 0.001)
	require.InDelta(t, 0.0, row.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestGainAdjustmentClosesTheGap(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110001", "A", 1000, day(1)),
		paymentEntry("44110001", "A", 950, day(10)),
		gainEntry("44110001", "A", 50, day(11)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.InDelta(t, -50.0, row.Adjustment, 0.001)
	require.InDelta(t, 0.0, row.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestUnmatchedPaymentStaysVisible(t *testing.T) {
	entries := []ledger.Entry{
		paymentEntry("44110002", "", 200, day(5)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.True(t, row.InvoiceDate.IsZero())
	require.InDelta(t, 0.0, row.InvoiceAmount, 0.001)
	require.InDelta(t, 200.0, row.PaymentAmount, 0.001)
	require.InDelta(t, -200.0, row.Balance, 0.001)
	require.Equal(t, supplier.Unknown, row.Supplier)
	require.True(t, report.Balanced)
}

func TestUnmatchedFIFOAllocation(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110003", "", 200, day(2)),
		invoiceEntry("44110003", "", 100, day(1)),
		paymentEntry("44110003", "", 150, day(20)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	// Oldest invoice settles fully, the second partially, the rest stays due.
	require.Len(t, report.Rows, 3)
	require.InDelta(t, 100.0, report.Rows[0].PaymentAmount, 0.001)
	require.InDelta(t, 0.0, report.Rows[0].Balance, 0.001)
	require.InDelta(t, 50.0, report.Rows[1].PaymentAmount, 0.001)
	require.InDelta(t, 0.0, report.Rows[1].Balance, 0.001)
	require.InDelta(t, 150.0, report.Rows[2].Balance, 0.001)
	require.True(t, report.Rows[2].PaymentDate.IsZero())
	require.True(t, report.Balanced)
	require.InDelta(t, 150.0, report.TotalBalance, 0.001)
}

func TestPaymentResidualGetsOwnRow(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110004", "", 100, day(1)),
		paymentEntry("44110004", "", 300, day(5)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	var residual *ResultRow
	for i := range report.Rows {
		if report.Rows[i].InvoiceDate.IsZero() {
			residual = &report.Rows[i]
		}
	}
	require.NotNil(t, residual)
	require.Contains(t, residual.Label, "(reliquat)")
	require.InDelta(t, 200.0, residual.PaymentAmount, 0.001)
	require.InDelta(t, -200.0, residual.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestCreditNoteOffsetsInvoice(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110005", "C", 500, day(1)),
		creditEntry("44110005", "C", 500, day(3)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.InDelta(t, 500.0, row.CreditNote, 0.001)
	require.InDelta(t, 0.0, row.NetInvoice, 0.001)
	require.InDelta(t, 0.0, row.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestCreditThenPaymentSplitsRows(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110006", "D", 1000, day(1)),
		creditEntry("44110006", "D", 200, day(2)),
		paymentEntry("44110006", "D", 800, day(5)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	creditRow, payRow := report.Rows[0], report.Rows[1]
	require.InDelta(t, 200.0, creditRow.CreditNote, 0.001)
	require.InDelta(t, 0.0, creditRow.NetInvoice, 0.001)
	require.InDelta(t, 0.0, creditRow.Balance, 0.001)
	require.InDelta(t, 800.0, payRow.PaymentAmount, 0.001)
	require.InDelta(t, 0.0, payRow.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestRefundPairsWithUnconsumedCredit(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110007", "R", 1000, day(1)),
		paymentEntry("44110007", "R", 1000, day(5)),
		creditEntry("44110007", "R", 200, day(8)),
		refundEntry("44110007", "R", 200, day(12)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	var creditRow *ResultRow
	for i := range report.Rows {
		if report.Rows[i].CreditNote > 0 {
			creditRow = &report.Rows[i]
		}
	}
	require.NotNil(t, creditRow)
	require.InDelta(t, 200.0, creditRow.CreditNote, 0.001)
	require.InDelta(t, -200.0, creditRow.PaymentAmount, 0.001)
	require.Equal(t, day(12), creditRow.PaymentDate)
	require.InDelta(t, 0.0, creditRow.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestGroupedPaymentCoversSeveralInvoices(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110008", "G", 300, day(1)),
		invoiceEntry("44110008", "G", 700, day(2)),
		paymentEntry("44110008", "G", 1020, day(9)),
		lossEntry("44110008", "G", 20, day(10)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	first, last := report.Rows[0], report.Rows[1]
	require.InDelta(t, 300.0, first.PaymentAmount, 0.001)
	require.InDelta(t, 0.0, first.Adjustment, 0.001)
	require.InDelta(t, 0.0, first.Balance, 0.001)
	require.InDelta(t, 720.0, last.PaymentAmount, 0.001)
	require.InDelta(t, 20.0, last.Adjustment, 0.001)
	require.InDelta(t, 0.0, last.Balance, 0.001)
	require.InDelta(t, 1020.0, first.GroupedPayment, 0.001)
	require.InDelta(t, 1020.0, last.GroupedPayment, 0.001)
	require.True(t, report.Balanced)
}

func TestNearestAmountPairingAssignsAdjustmentOnce(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110009", "N", 100, day(1)),
		invoiceEntry("44110009", "N", 200, day(2)),
		paymentEntry("44110009", "N", 95, day(9)),
		paymentEntry("44110009", "N", 200, day(10)),
		gainEntry("44110009", "N", 5, day(11)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	first, second := report.Rows[0], report.Rows[1]
	require.InDelta(t, 95.0, first.PaymentAmount, 0.001)
	require.InDelta(t, -5.0, first.Adjustment, 0.001)
	require.InDelta(t, 0.0, first.Balance, 0.001)
	require.InDelta(t, 200.0, second.PaymentAmount, 0.001)
	require.InDelta(t, 0.0, second.Adjustment, 0.001)
	require.InDelta(t, 0.0, second.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestAdjustmentAloneWritesOffInvoices(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110010", "W", 60, day(1)),
		invoiceEntry("44110010", "W", 40, day(2)),
		gainEntry("44110010", "W", 100, day(3)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	require.InDelta(t, -60.0, report.Rows[0].Adjustment, 0.001)
	require.InDelta(t, 0.0, report.Rows[0].Balance, 0.001)
	require.InDelta(t, -40.0, report.Rows[1].Adjustment, 0.001)
	require.InDelta(t, 0.0, report.Rows[1].Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestSingleInvoiceManyPaymentsProrated(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110011", "P", 1000, day(1)),
		paymentEntry("44110011", "P", 600, day(5)),
		paymentEntry("44110011", "P", 450, day(6)),
		lossEntry("44110011", "P", 50, day(7)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	var totalBalance, totalAdjustment float64
	for _, row := range report.Rows {
		totalBalance += row.Balance
		totalAdjustment += row.Adjustment
		require.InDelta(t, 0.0, row.Balance, 0.001)
	}
	require.InDelta(t, 50.0, totalAdjustment, 0.001)
	require.InDelta(t, 0.0, totalBalance, 0.001)
	require.True(t, report.Balanced)
}

func TestReclassificationStandsAlone(t *testing.T) {
	entries := []ledger.Entry{
		lossEntry("44110012", "Z", 120, day(4)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.InDelta(t, 120.0, row.Adjustment, 0.001)
	require.InDelta(t, 120.0, row.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestEffectPaymentUsesRealCashDate(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110013", "E", 1000, day(1)),
		// Effect creation clears the payable into the effects sub-account.
		{Date: day(2), Journal: "EFFET", Account: "44110013", Movement: 1000, Mark: "E", CorrectedMark: "E"},
		{Date: day(2), Journal: "EFFET", Account: "44150001", Invoice: 1000, Mark: "X", CorrectedMark: "X"},
		// The bank settles the effect three weeks later.
		{Date: day(23), Journal: "EFFET", Account: "44150001", Movement: 1000, Mark: "X", CorrectedMark: "X"},
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.Equal(t, day(23), row.PaymentDate)
	require.InDelta(t, 1000.0, row.PaymentAmount, 0.001)
	require.InDelta(t, 0.0, row.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestUnmarkedCreditAndRefundRows(t *testing.T) {
	entries := []ledger.Entry{
		creditEntry("44110014", "", 80, day(3)),
		refundEntry("44110014", "", 30, day(4)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	var creditRow, refundRow *ResultRow
	for i := range report.Rows {
		switch {
		case report.Rows[i].CreditNote > 0:
			creditRow = &report.Rows[i]
		case report.Rows[i].PaymentAmount < 0:
			refundRow = &report.Rows[i]
		}
	}
	require.NotNil(t, creditRow)
	require.InDelta(t, -80.0, creditRow.Balance, 0.001)
	require.NotNil(t, refundRow)
	require.InDelta(t, -30.0, refundRow.PaymentAmount, 0.001)
	require.InDelta(t, 30.0, refundRow.Balance, 0.001)
	require.True(t, report.Balanced)
}

func TestRowsSortedByAccountThenDate(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110021", "B", 100, day(9)),
		paymentEntry("44110021", "B", 100, day(12)),
		invoiceEntry("44110020", "A", 100, day(2)),
		paymentEntry("44110020", "A", 100, day(3)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	require.Equal(t, "44110020", report.Rows[0].Account)
	require.Equal(t, "44110021", report.Rows[1].Account)
}

func TestRunIsDeterministic(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110030", "M1", 1000, day(1)),
		paymentEntry("44110030", "M1", 1050, day(6)),
		lossEntry("44110030", "M1", 50, day(7)),
		invoiceEntry("44110031", "M2", 300, day(2)),
		invoiceEntry("44110031", "M2", 700, day(3)),
		paymentEntry("44110031", "M2", 1020, day(8)),
		lossEntry("44110031", "M2", 20, day(9)),
		invoiceEntry("44110032", "", 100, day(1)),
		invoiceEntry("44110032", "", 200, day(2)),
		paymentEntry("44110032", "", 150, day(20)),
		creditEntry("44110033", "C9", 40, day(4)),
		paymentEntry("44110034", "", 75, day(5)),
	}

	engine := testEngine(t)
	first, err := engine.Run(context.Background(), entries, supplier.Directory{"44110030": "ALPHA"})
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), entries, supplier.Directory{"44110030": "ALPHA"})
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestConservationOnMixedLedger(t *testing.T) {
	entries := []ledger.Entry{
		invoiceEntry("44110040", "K1", 1234.56, day(1)),
		paymentEntry("44110040", "K1", 1234.56, day(11)),
		invoiceEntry("44110041", "K2", 500, day(2)),
		creditEntry("44110041", "K2", 120, day(3)),
		paymentEntry("44110041", "K2", 380, day(14)),
		invoiceEntry("44110042", "", 90, day(4)),
		paymentEntry("44110042", "", 60, day(16)),
		lossEntry("44110043", "K3", 77, day(5)),
		creditEntry("44110044", "", 33, day(6)),
		refundEntry("44110044", "", 12, day(7)),
	}

	report, err := testEngine(t).Run(context.Background(), entries, nil)
	require.NoError(t, err)
	require.True(t, report.Balanced)
	require.InDelta(t, report.ExpectedBalance, report.TotalBalance, 0.01)
}

func TestInvalidConfigRejected(t *testing.T) {
	_, err := New(Config{}, testLogger())
	require.Error(t, err)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := []ledger.Entry{
		invoiceEntry("44110050", "A", 100, day(1)),
	}
	_, err := testEngine(t).Run(ctx, entries, nil)
	require.Error(t, err)
}
