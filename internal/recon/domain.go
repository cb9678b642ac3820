// Package recon implements the payable reconciliation engine: it matches
// supplier invoices against payments, credit notes and adjustment entries
// grouped by reconciliation mark, settles unmarked entries FIFO, and checks
// the produced statement against the ledger control total.
package recon

import (
	"time"

	"github.com/payrec/payrec/internal/ledger"
)

// Tolerances used across the engine. amountTol guards sign decisions and
// pairing comparisons; balanceTol guards residual balances and the control
// total.
const (
	amountTol  = 0.001
	balanceTol = 0.01
)

// Config carries the journal classification sets and account-class prefixes
// the engine needs. Journals outside both sets are treated as adjustment
// sources.
type Config struct {
	PurchaseJournals []string `validate:"required,min=1,dive,required"`
	BankJournals     []string `validate:"required,min=1,dive,required"`
	PayablePrefix    string   `validate:"required"`
	EffectsPrefix    string   `validate:"required"`
}

// DefaultConfig mirrors the journal codes and Moroccan chart-of-accounts
// prefixes the tool ships with.
func DefaultConfig() Config {
	return Config{
		PurchaseJournals: []string{"ACHAT", "ACH"},
		BankJournals:     []string{"BANQUE", "BNQ", "CHEQUE"},
		PayablePrefix:    "4411",
		EffectsPrefix:    "4415",
	}
}

func (c Config) isPurchase(journal string) bool { return contains(c.PurchaseJournals, journal) }
func (c Config) isBank(journal string) bool     { return contains(c.BankJournals, journal) }
func (c Config) isOther(journal string) bool {
	return !c.isPurchase(journal) && !c.isBank(journal)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// GroupKey identifies a reconciliation group.
type GroupKey struct {
	Account string
	Mark    string
}

// ResultRow is one line of the payment-delay statement. Rows are append-only:
// the engine never mutates a row after emitting it.
type ResultRow struct {
	InvoiceDate    time.Time `json:"invoice_date"`
	DocNumber      string    `json:"doc_number"`
	Account        string    `json:"account"`
	Supplier       string    `json:"supplier"`
	Label          string    `json:"label"`
	InvoiceAmount  float64   `json:"invoice_amount"`
	CreditNote     float64   `json:"credit_note"`
	NetInvoice     float64   `json:"net_invoice"`
	PaymentDate    time.Time `json:"payment_date"`
	PaymentAmount  float64   `json:"payment_amount"`
	Adjustment     float64   `json:"adjustment"` // the "OD" column
	GroupedPayment float64   `json:"grouped_payment"`
	Mark           string    `json:"mark"`
	CorrectedMark  string    `json:"corrected_mark"`
	Balance        float64   `json:"balance"`
}

// Report is the output of one engine run.
type Report struct {
	Rows            []ResultRow `json:"rows"`
	ExpectedBalance float64     `json:"expected_balance"`
	TotalBalance    float64     `json:"total_balance"`
	Discrepancy     float64     `json:"discrepancy"`
	Balanced        bool        `json:"balanced"`
}

// operation is a credit note, payment, synthetic effect payment or refund
// queued for chronological allocation within a group.
type operation struct {
	date      time.Time
	amount    float64 // refunds carry a negative amount
	kind      opKind
	remaining float64
	entry     *ledger.Entry // nil for synthetic effect payments
}

type opKind int

const (
	opCreditNote opKind = iota
	opPayment
	opEffectPayment
	opRefund
)

// paymentAlloc records one payment slice allocated to an invoice.
type paymentAlloc struct {
	amount  float64 // portion consumed by this invoice
	date    time.Time
	total   float64 // full amount of the originating operation
	refund  bool
}

// invoiceState tracks an invoice's running allocation inside a group.
type invoiceState struct {
	entry      ledger.Entry
	original   float64 // abs invoice amount
	remaining  float64
	creditUsed float64 // credit-note amount absorbed so far
	payments   []paymentAlloc
}

// dateKey orders zero (null) dates last.
func dateKey(t time.Time) time.Time {
	if t.IsZero() {
		return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// correctedDisplay returns the corrected mark only when it differs from the
// original, which is how the statement surfaces corrections.
func correctedDisplay(original, corrected string) string {
	if corrected != original {
		return corrected
	}
	return ""
}
