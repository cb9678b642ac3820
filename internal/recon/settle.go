package recon

import (
	"math"
	"sort"
	"time"

	"github.com/payrec/payrec/internal/ledger"
	"github.com/payrec/payrec/internal/supplier"
)

// settleUnmatched allocates unmarked bank payments against the open-invoice
// pool, oldest invoice of the same account first. The pool is fed by the
// marked groups' leftovers and by the unmarked invoices.
func settleUnmatched(cls *classification, leftovers []poolInvoice, suppliers supplier.Directory) []ResultRow {
	pool := make([]poolInvoice, 0, len(leftovers)+len(cls.unmarkedInvoices))
	pool = append(pool, leftovers...)
	for _, e := range cls.unmarkedInvoices {
		pool = append(pool, poolInvoice{
			date:      e.Date,
			docNumber: e.DocNumber,
			label:     e.Label,
			account:   e.Account,
			supplier:  suppliers.Name(e.Account),
			remaining: math.Abs(e.Invoice),
			mark:      e.Mark,
		})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].account != pool[j].account {
			return pool[i].account < pool[j].account
		}
		return dateKey(pool[i].date).Before(dateKey(pool[j].date))
	})

	payments := make([]ledger.Entry, len(cls.unmarkedPayments))
	copy(payments, cls.unmarkedPayments)
	sort.SliceStable(payments, func(i, j int) bool {
		return dateKey(payments[i].Date).Before(dateKey(payments[j].Date))
	})

	type allocation struct {
		amount float64
		date   time.Time
	}
	allocs := make([][]allocation, len(pool))

	type residual struct {
		payment ledger.Entry
		amount  float64
	}
	var residuals []residual
	var unallocated []ledger.Entry

	for _, p := range payments {
		rem := math.Abs(p.Movement)
		initial := rem
		for i := range pool {
			if rem <= balanceTol {
				break
			}
			if pool[i].account != p.Account || pool[i].remaining <= balanceTol {
				continue
			}
			take := math.Min(rem, pool[i].remaining)
			allocs[i] = append(allocs[i], allocation{amount: take, date: p.Date})
			pool[i].remaining -= take
			rem -= take
		}
		switch {
		case rem >= initial:
			unallocated = append(unallocated, p)
		case rem > balanceTol:
			residuals = append(residuals, residual{payment: p, amount: rem})
		}
	}

	var rows []ResultRow
	for i := range pool {
		inv := pool[i]
		for _, a := range allocs[i] {
			rows = append(rows, ResultRow{
				InvoiceDate:   inv.date,
				DocNumber:     inv.docNumber,
				Account:       inv.account,
				Supplier:      inv.supplier,
				Label:         inv.label,
				InvoiceAmount: a.amount,
				NetInvoice:    a.amount,
				PaymentDate:   a.date,
				PaymentAmount: a.amount,
				Mark:          inv.mark,
				CorrectedMark: inv.corrected,
			})
		}
		if inv.remaining > balanceTol {
			rows = append(rows, ResultRow{
				InvoiceDate:   inv.date,
				DocNumber:     inv.docNumber,
				Account:       inv.account,
				Supplier:      inv.supplier,
				Label:         inv.label,
				InvoiceAmount: inv.remaining,
				NetInvoice:    inv.remaining,
				Adjustment:    inv.adjustment,
				Mark:          inv.mark,
				CorrectedMark: inv.corrected,
				Balance:       inv.remaining + inv.adjustment,
			})
		}
	}

	// Payments that found no invoice at all stay visible as negative dues.
	for _, p := range unallocated {
		rows = append(rows, ResultRow{
			Account:       p.Account,
			Supplier:      suppliers.Name(p.Account),
			Label:         p.Label,
			PaymentDate:   p.Date,
			PaymentAmount: math.Abs(p.Movement),
			Balance:       -p.Movement,
		})
	}

	// Partially consumed payments leave their residue on its own line.
	for _, r := range residuals {
		rows = append(rows, ResultRow{
			Account:       r.payment.Account,
			Supplier:      suppliers.Name(r.payment.Account),
			Label:         r.payment.Label + " (reliquat)",
			PaymentDate:   r.payment.Date,
			PaymentAmount: r.amount,
			Balance:       -r.amount,
		})
	}

	return rows
}
