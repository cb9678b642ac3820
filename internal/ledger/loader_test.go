package ledger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFromRowsNormalizesCells(t *testing.T) {
	rows := [][]string{
		{"15/03/2025", "ACHAT", "44110001.0", "FAC-12.0", "  Achat matières  ", "", "1 234,56", "", "AA"},
		{"", "BANQUE", "44110001", "VIR-7", "Virement", "1234.56", "", "", "nan"},
		{"nan", "OD", "nan", "", "", "", "", "", ""},
	}

	entries := FromRows(rows)
	require.Len(t, entries, 3)

	first := entries[0]
	require.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), first.Date)
	require.Equal(t, "ACHAT", first.Journal)
	require.Equal(t, "44110001", first.Account)
	require.Equal(t, "FAC-12", first.DocNumber)
	require.Equal(t, "Achat matières", first.Label)
	require.InDelta(t, 1234.56, first.Invoice, 0.001)
	require.Equal(t, "AA", first.Mark)
	require.Equal(t, "AA", first.CorrectedMark)

	second := entries[1]
	require.False(t, second.HasDate())
	require.InDelta(t, 1234.56, second.Movement, 0.001)
	require.Empty(t, second.Mark)

	third := entries[2]
	require.False(t, third.HasDate())
	require.Empty(t, third.Account)
}

func TestFromRowsShortRow(t *testing.T) {
	entries := FromRows([][]string{{"01/01/2025", "ACHAT"}})
	require.Len(t, entries, 1)
	require.Equal(t, "ACHAT", entries[0].Journal)
	require.Empty(t, entries[0].Account)
	require.Zero(t, entries[0].Invoice)
}

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)

	require.Equal(t, want, ParseDate("15/03/2025"))
	require.Equal(t, want, ParseDate("2025-03-15"))
	require.Equal(t, want, ParseDate("15-03-2025"))
	require.Equal(t, want, ParseDate(" 15/03/2025 "))
	require.True(t, ParseDate("").IsZero())
	require.True(t, ParseDate("nan").IsZero())
	require.True(t, ParseDate("pas une date").IsZero())
}

func TestParseDateExcelSerial(t *testing.T) {
	// 45731 is 15/03/2025 in the 1900 date system.
	got := ParseDate("45731")
	require.Equal(t, 2025, got.Year())
	require.Equal(t, time.March, got.Month())
	require.Equal(t, 15, got.Day())
}

func TestParseAmount(t *testing.T) {
	require.InDelta(t, 1234.56, ParseAmount("1234.56"), 0.001)
	require.InDelta(t, 1234.56, ParseAmount("1234,56"), 0.001)
	require.InDelta(t, 1234.56, ParseAmount("1 234,56"), 0.001)
	require.InDelta(t, 1234567.89, ParseAmount("1.234.567,89"), 0.001)
	require.InDelta(t, -500.0, ParseAmount("-500"), 0.001)
	require.Zero(t, ParseAmount(""))
	require.Zero(t, ParseAmount("nan"))
	require.Zero(t, ParseAmount("abc"))
}

func TestCleanCode(t *testing.T) {
	require.Equal(t, "44110001", CleanCode("44110001.0"))
	require.Equal(t, "ACHAT", CleanCode("  ACHAT  "))
	require.Empty(t, CleanCode("nan"))
}

func TestOnAccount(t *testing.T) {
	e := Entry{Account: "44110001"}
	require.True(t, e.OnAccount("4411"))
	require.False(t, e.OnAccount("4415"))
	require.False(t, e.OnAccount(""))
}

func TestLoadXLSXRoundTrip(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"15/03/2025", "ACHAT", "44110001", "FAC-1", "Achat", "", "1000", "", "AA"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"20/03/2025", "BANQUE", "44110001", "VIR-1", "Virement", "1000", "", "", "AA"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	entries, err := Load(&buf, "grand-livre.xlsx")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.InDelta(t, 1000.0, entries[0].Invoice, 0.001)
	require.InDelta(t, 1000.0, entries[1].Movement, 0.001)
	require.Equal(t, "AA", entries[0].CorrectedMark)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load(bytes.NewReader(nil), "grand-livre.csv")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
