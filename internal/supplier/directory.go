// Package supplier resolves payable account numbers to supplier names using
// the trial-balance workbook.
package supplier

import (
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/payrec/payrec/internal/ledger"
)

// Unknown is the sentinel name for accounts missing from the balance.
const Unknown = "Fournisseur inconnu"

// Directory maps a payable account number to the supplier name.
type Directory map[string]string

// Name resolves an account, falling back to the Unknown sentinel.
func (d Directory) Name(account string) string {
	if name, ok := d[account]; ok {
		return name
	}
	return Unknown
}

// Keywords identifying the account-number and supplier-name columns in a
// balance header row, matched on diacritic-folded lowercase text.
var (
	accountKeywords = []string{"compte", "n°", "numero", "code", "num"}
	nameKeywords    = []string{"nom", "intitule", "libelle", "raison", "designation"}
)

// Load builds a directory from a balance workbook. The header row is
// auto-detected: when the first cell of the first row parses as a number the
// sheet is assumed headerless and the first two columns are used.
func Load(r io.Reader, filename string) (Directory, error) {
	rows, err := ledger.ReadRows(r, filename)
	if err != nil {
		return nil, err
	}
	return FromRows(rows), nil
}

// FromRows builds a directory from a raw cell grid.
func FromRows(rows [][]string) Directory {
	dir := make(Directory)
	if len(rows) == 0 {
		return dir
	}

	accountCol, nameCol, hasHeader := detectColumns(rows[0])
	body := rows
	if hasHeader {
		body = rows[1:]
	}

	for _, row := range body {
		if accountCol >= len(row) {
			continue
		}
		account := ledger.CleanCode(row[accountCol])
		if account == "" {
			continue
		}
		var name string
		if nameCol < len(row) {
			name = strings.TrimSpace(row[nameCol])
		}
		if name == "" || name == "nan" {
			continue
		}
		dir[account] = name
	}
	return dir
}

// detectColumns picks the account and name columns from the first row.
func detectColumns(header []string) (accountCol, nameCol int, hasHeader bool) {
	accountCol, nameCol = 0, 1
	if len(header) == 0 {
		return accountCol, nameCol, false
	}

	// A numeric first cell means the sheet starts with data, not headers.
	first := strings.TrimSpace(header[0])
	if first == "" || ledger.ParseAmount(first) != 0 {
		return accountCol, nameCol, false
	}

	found := false
	for i, h := range header {
		if matchesAny(h, accountKeywords) {
			accountCol = i
			found = true
			break
		}
	}
	for i, h := range header {
		if matchesAny(h, nameKeywords) {
			nameCol = i
			found = true
			break
		}
	}
	if !found && len(header) < 2 {
		return 0, 1, false
	}
	return accountCol, nameCol, true
}

func matchesAny(header string, keywords []string) bool {
	folded := foldDiacritics(strings.ToLower(header))
	for _, kw := range keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// foldDiacritics strips combining marks so "libellé" matches "libelle".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
