package recon

import (
	"math"
	"sort"

	"github.com/payrec/payrec/internal/ledger"
)

// classification partitions the payable-account entries into the role lists
// the allocator consumes. Group keys keep first-appearance order so a run is
// deterministic for identical input ordering.
type classification struct {
	groupOrder []GroupKey // groups that contain at least one invoice
	invoices   map[GroupKey][]ledger.Entry
	credits    map[GroupKey][]operation
	payments   map[GroupKey][]operation // includes synthetic effect payments
	refunds    map[GroupKey][]operation
	adjust     map[GroupKey]float64 // unsigned exchange-adjustment total

	reclass      map[GroupKey][]ledger.Entry
	reclassOrder []GroupKey
	creditOrder  []GroupKey // all groups holding credit notes

	unmarkedInvoices []ledger.Entry
	unmarkedCredits  []ledger.Entry
	unmarkedPayments []ledger.Entry
	unmarkedRefunds  []ledger.Entry
	unmarkedOther    []ledger.Entry // adjustment entries outside any group
}

// classify runs the role predicates over every entry. Entries settled
// through a bill of exchange (already present in effects) are not counted a
// second time as exchange adjustments.
func classify(entries []ledger.Entry, cfg Config, effects effectSet) *classification {
	cls := &classification{
		invoices: make(map[GroupKey][]ledger.Entry),
		credits:  make(map[GroupKey][]operation),
		payments: make(map[GroupKey][]operation),
		refunds:  make(map[GroupKey][]operation),
		adjust:   make(map[GroupKey]float64),
		reclass:  make(map[GroupKey][]ledger.Entry),
	}

	for i := range entries {
		e := entries[i]
		if !e.OnAccount(cfg.PayablePrefix) {
			continue
		}
		key := GroupKey{Account: e.Account, Mark: e.CorrectedMark}

		// Invoices: invoice column carries the amount, purchase journal.
		if cfg.isPurchase(e.Journal) && e.Invoice != 0 {
			if e.CorrectedMark == "" {
				cls.unmarkedInvoices = append(cls.unmarkedInvoices, e)
			} else {
				if _, seen := cls.invoices[key]; !seen {
					cls.groupOrder = append(cls.groupOrder, key)
				}
				cls.invoices[key] = append(cls.invoices[key], e)
			}
		}

		// Credit notes: positive movement in a purchase journal.
		if cfg.isPurchase(e.Journal) && e.Movement > 0 {
			if e.CorrectedMark == "" {
				cls.unmarkedCredits = append(cls.unmarkedCredits, e)
			} else {
				if _, seen := cls.credits[key]; !seen {
					cls.creditOrder = append(cls.creditOrder, key)
				}
				cls.credits[key] = append(cls.credits[key], operation{
					date:   e.Date,
					amount: e.Movement,
					kind:   opCreditNote,
					entry:  &entries[i],
				})
			}
		}

		// Payments: any movement in a bank journal.
		if cfg.isBank(e.Journal) && e.Movement != 0 {
			if e.CorrectedMark == "" {
				cls.unmarkedPayments = append(cls.unmarkedPayments, e)
			} else {
				cls.payments[key] = append(cls.payments[key], operation{
					date:   e.Date,
					amount: math.Abs(e.Movement),
					kind:   opPayment,
					entry:  &entries[i],
				})
			}
		}

		// Refunds: invoice-column amount in a bank journal, money coming
		// back from the supplier.
		if cfg.isBank(e.Journal) && e.Invoice > 0 {
			if e.CorrectedMark == "" {
				cls.unmarkedRefunds = append(cls.unmarkedRefunds, e)
			} else {
				cls.refunds[key] = append(cls.refunds[key], operation{
					date:   e.Date,
					amount: e.Invoice,
					kind:   opRefund,
					entry:  &entries[i],
				})
			}
		}
	}

	// Synthetic bill-of-exchange payments join the payment lists with the
	// real cash date.
	for _, key := range effects.order {
		eff := effects.byKey[key]
		cls.payments[key] = append(cls.payments[key], operation{
			date:   eff.paymentDate,
			amount: eff.amount,
			kind:   opEffectPayment,
		})
	}

	// Invoices settle oldest first.
	for key := range cls.invoices {
		group := cls.invoices[key]
		sort.SliceStable(group, func(i, j int) bool {
			return dateKey(group[i].Date).Before(dateKey(group[j].Date))
		})
	}

	// Adjustment entries: marked rows in journals that are neither purchase
	// nor bank.
	for _, e := range entries {
		if !e.OnAccount(cfg.PayablePrefix) || !cfg.isOther(e.Journal) {
			continue
		}
		if e.Invoice <= 0 && e.Movement <= 0 {
			if e.CorrectedMark == "" && (e.Invoice != 0 || e.Movement != 0) {
				cls.unmarkedOther = append(cls.unmarkedOther, e)
			}
			continue
		}
		if e.CorrectedMark == "" {
			cls.unmarkedOther = append(cls.unmarkedOther, e)
			continue
		}
		key := GroupKey{Account: e.Account, Mark: e.CorrectedMark}

		if e.Movement > 0 {
			// Classic exchange-difference posting, unless the movement is
			// already explained as a bill-of-exchange settlement.
			if effects.has(key) {
				continue
			}
			cls.adjust[key] += math.Abs(e.Movement)
			continue
		}

		// Invoice-column adjustment: a loss/gain when the group holds both
		// invoices and payments, a reclassification otherwise. Rows mixing a
		// positive invoice amount with a negative movement fit neither shape
		// and are left to the control-total warning.
		if e.Movement != 0 {
			continue
		}
		hasInvoices := len(cls.invoices[key]) > 0
		hasPayments := len(cls.payments[key]) > 0
		if hasInvoices && hasPayments {
			cls.adjust[key] += math.Abs(e.Invoice)
			continue
		}
		if _, seen := cls.reclass[key]; !seen {
			cls.reclassOrder = append(cls.reclassOrder, key)
		}
		cls.reclass[key] = append(cls.reclass[key], e)
	}

	return cls
}
