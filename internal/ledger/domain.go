package ledger

import (
	"strings"
	"time"
)

// Entry is one normalized general-ledger row. Entries are immutable once
// loaded; the reconciliation engine never writes back into the store.
type Entry struct {
	Date          time.Time // zero value means the cell was empty or unparseable
	Journal       string
	Account       string
	DocNumber     string
	Label         string
	Movement      float64 // settlement column (colonne F)
	Invoice       float64 // invoice column (colonne G)
	Mark          string  // reconciliation mark (lettrage), empty = unmatched
	CorrectedMark string  // defaults to Mark
}

// HasDate reports whether the entry carries a usable calendar date.
func (e Entry) HasDate() bool {
	return !e.Date.IsZero()
}

// OnAccount reports whether the entry's account falls under the given
// account-class prefix (for example "4411" for ordinary payables).
func (e Entry) OnAccount(prefix string) bool {
	return prefix != "" && strings.HasPrefix(e.Account, prefix)
}
