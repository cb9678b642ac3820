package recon

import (
	"math"
	"sort"
	"time"

	"github.com/payrec/payrec/internal/supplier"
)

// poolInvoice is an invoice balance handed to the unmatched-entry settler:
// either an unmarked invoice or the leftover of a marked group.
type poolInvoice struct {
	date       time.Time
	docNumber  string
	label      string
	account    string
	supplier   string
	remaining  float64
	mark       string
	corrected  string
	adjustment float64
}

// groupResult is the outcome of allocating one reconciliation group.
type groupResult struct {
	rows      []ResultRow
	leftovers []poolInvoice
}

// allocateGroup matches one marked group's credit notes, payments and
// refunds to its invoices, oldest first, and emits the statement rows.
//
// Four special-case policies take precedence over the general chronological
// fold; their order is part of the business rules and must not change.
func allocateGroup(key GroupKey, cls *classification, suppliers supplier.Directory) groupResult {
	var res groupResult

	invoices := cls.invoices[key]
	credits := cls.credits[key]
	payments := cls.payments[key]
	refunds := cls.refunds[key]
	adjustment := cls.adjust[key]
	name := suppliers.Name(key.Account)

	var totalInvoices, totalCredits, totalPayments, totalRefunds float64
	for _, inv := range invoices {
		totalInvoices += math.Abs(inv.Invoice)
	}
	for _, c := range credits {
		totalCredits += c.amount
	}
	for _, p := range payments {
		totalPayments += p.amount
	}
	for _, r := range refunds {
		totalRefunds += r.amount
	}
	netPayments := totalPayments - totalRefunds

	base := ResultRow{Account: key.Account, Supplier: name}

	// Policy 1: a single invoice split across several payments with an
	// adjustment — prorate the invoice and the adjustment by each payment's
	// share so every row balances to zero.
	if len(invoices) == 1 && len(payments) > 1 && adjustment > 0 {
		inv := invoices[0]
		original := math.Abs(inv.Invoice)
		isLoss := totalPayments > original+amountTol

		for _, p := range payments {
			ratio := 0.0
			if totalPayments > 0 {
				ratio = p.amount / totalPayments
			}
			share := original * ratio
			odShare := adjustment * ratio
			if !isLoss {
				odShare = -odShare
			}
			row := base
			row.InvoiceDate = inv.Date
			row.DocNumber = inv.DocNumber
			row.Label = inv.Label
			row.InvoiceAmount = share
			row.NetInvoice = share
			row.PaymentDate = p.date
			row.PaymentAmount = p.amount
			row.Adjustment = odShare
			row.Mark = inv.Mark
			row.CorrectedMark = correctedDisplay(inv.Mark, key.Mark)
			row.Balance = share - p.amount + odShare
			res.rows = append(res.rows, row)
		}
		return res
	}

	// A loss means more money went out than the invoices net of credit
	// notes required; the group adjustment then adds to the dues. A gain
	// subtracts.
	isLoss := netPayments > totalInvoices-totalCredits+amountTol
	signedAdj := 0.0
	if adjustment > 0 {
		if isLoss {
			signedAdj = adjustment
		} else {
			signedAdj = -adjustment
		}
	}

	// Credit notes, payments and refunds form one operation list walked in
	// date order; refunds ride along as negative payments but are matched
	// separately after the fold.
	ops := make([]operation, 0, len(credits)+len(payments)+len(refunds))
	for _, c := range credits {
		c.remaining = c.amount
		ops = append(ops, c)
	}
	for _, p := range payments {
		p.kind = opPayment
		p.remaining = p.amount
		ops = append(ops, p)
	}
	for _, r := range refunds {
		r.kind = opRefund
		r.amount = -r.amount
		r.remaining = r.amount
		ops = append(ops, r)
	}
	sort.SliceStable(ops, func(i, j int) bool {
		return dateKey(ops[i].date).Before(dateKey(ops[j].date))
	})

	// Grouped-payment total shown on multi-invoice rows.
	groupedTotal := 0.0
	for _, op := range ops {
		if op.kind == opPayment || op.kind == opRefund {
			groupedTotal += op.amount
		}
	}

	states := make([]invoiceState, len(invoices))
	for i, inv := range invoices {
		states[i] = invoiceState{
			entry:     inv,
			original:  math.Abs(inv.Invoice),
			remaining: math.Abs(inv.Invoice),
		}
	}

	var deferredRefunds []operation
	for _, op := range ops {
		if op.kind == opRefund {
			deferredRefunds = append(deferredRefunds, op)
			continue
		}
		rem := op.remaining
		for i := range states {
			if rem <= 0 {
				break
			}
			if states[i].remaining <= 0 {
				continue
			}
			take := math.Min(rem, states[i].remaining)
			if op.kind == opCreditNote {
				states[i].creditUsed += take
			} else {
				states[i].payments = append(states[i].payments, paymentAlloc{
					amount: take,
					date:   op.date,
					total:  op.amount,
				})
			}
			states[i].remaining -= take
			rem -= take
		}
	}

	// Each refund cancels a credit note: it attaches as a negative payment
	// to the first invoice that absorbed a credit note.
	for _, ref := range deferredRefunds {
		amt := math.Abs(ref.amount)
		for i := range states {
			if states[i].creditUsed > 0 {
				states[i].payments = append(states[i].payments, paymentAlloc{
					amount: -amt,
					date:   ref.date,
					total:  -amt,
					refund: true,
				})
				break
			}
		}
	}

	// Policy 2: several invoices covered by one grouped payment with an
	// adjustment. All but the last invoice settle at face value; the last
	// absorbs the payment remainder and the whole signed adjustment.
	if len(invoices) > 1 && len(payments) == 1 && totalCredits == 0 && adjustment > 0 {
		p := payments[0]
		remaining := p.amount
		for i := range states {
			st := &states[i]
			last := i == len(states)-1

			pay := st.original
			odShown := 0.0
			if last {
				pay = remaining
				odShown = signedAdjFor(adjustment, isLoss)
			} else {
				remaining -= st.original
			}

			row := base
			fillInvoice(&row, st, key.Mark)
			row.NetInvoice = st.original
			row.PaymentDate = p.date
			row.PaymentAmount = pay
			row.Adjustment = odShown
			row.GroupedPayment = p.amount
			row.Balance = st.original - pay + odShown
			res.rows = append(res.rows, row)
		}
		return res
	}

	// Policy 3: several invoices against several payments with an
	// adjustment — nearest-amount pairing, the adjustment landing on the
	// first pair that does not match exactly.
	if len(invoices) > 1 && len(payments) > 1 && totalCredits == 0 && adjustment > 0 {
		type candidate struct {
			amount float64
			date   time.Time
			used   bool
		}
		avail := make([]candidate, len(payments))
		for i, p := range payments {
			avail[i] = candidate{amount: p.amount, date: p.date}
		}

		odAssigned := false
		for i := range states {
			st := &states[i]

			best := -1
			bestGap := math.Inf(1)
			for ci := range avail {
				if avail[ci].used {
					continue
				}
				gap := math.Abs(avail[ci].amount - st.original)
				if gap < bestGap {
					bestGap = gap
					best = ci
				}
			}

			row := base
			fillInvoice(&row, st, key.Mark)
			row.NetInvoice = st.original
			row.GroupedPayment = groupedTotal
			if best >= 0 {
				avail[best].used = true
				pay := avail[best].amount
				odShown := 0.0
				if !odAssigned && math.Abs(st.original-pay) > amountTol {
					odShown = signedAdjFor(adjustment, isLoss)
					odAssigned = true
				}
				row.PaymentDate = avail[best].date
				row.PaymentAmount = pay
				row.Adjustment = odShown
				row.Balance = st.original - pay + odShown
			} else {
				row.Balance = st.original
			}
			res.rows = append(res.rows, row)
		}
		return res
	}

	// Policy 4: invoices written off by the adjustment alone — the
	// adjustment prorates across invoices by amount share.
	if len(invoices) > 1 && len(payments) == 0 && totalCredits == 0 && adjustment > 0 {
		for i := range states {
			st := &states[i]
			ratio := 0.0
			if totalInvoices > 0 {
				ratio = st.original / totalInvoices
			}
			odShare := adjustment * ratio

			row := base
			fillInvoice(&row, st, key.Mark)
			row.NetInvoice = st.original
			row.Adjustment = -odShare
			row.Balance = st.original - odShare
			res.rows = append(res.rows, row)
		}
		return res
	}

	// General emission: one row per allocation decision.
	for i := range states {
		st := &states[i]
		emitInvoiceRows(&res, base, st, key, adjustment, signedAdj, isLoss, groupedTotal, len(invoices))

		if st.remaining > balanceTol {
			real := st.remaining + signedAdj
			if real > balanceTol {
				res.leftovers = append(res.leftovers, poolInvoice{
					date:      st.entry.Date,
					docNumber: st.entry.DocNumber,
					label:     st.entry.Label,
					account:   key.Account,
					supplier:  name,
					remaining: real, // adjustment already folded in
					mark:      st.entry.Mark,
					corrected: correctedDisplay(st.entry.Mark, key.Mark),
				})
			}
		}
	}

	// Credit notes that outlived every invoice are emitted standalone,
	// paired proportionally against the group's refunds.
	var creditsUsed float64
	for i := range states {
		creditsUsed += states[i].creditUsed
	}
	if totalCredits >= creditsUsed+balanceTol {
		unassigned := totalCredits - creditsUsed
		for _, c := range credits {
			share := 0.0
			if totalCredits > 0 {
				share = c.amount * (unassigned / totalCredits)
			}
			if share <= balanceTol {
				continue
			}
			refundShare := 0.0
			if totalCredits > 0 {
				refundShare = totalRefunds * (c.amount / totalCredits)
			}

			row := base
			row.InvoiceDate = c.entry.Date
			row.DocNumber = c.entry.DocNumber
			row.Label = c.entry.Label
			row.CreditNote = share
			row.NetInvoice = -share
			if len(refunds) > 0 {
				row.PaymentDate = refunds[0].date
			}
			if refundShare > 0 {
				row.PaymentAmount = -refundShare
			}
			row.Mark = key.Mark
			row.Balance = -share + refundShare
			res.rows = append(res.rows, row)
		}
	}

	return res
}

func signedAdjFor(adjustment float64, isLoss bool) float64 {
	if isLoss {
		return adjustment
	}
	return -adjustment
}

func fillInvoice(row *ResultRow, st *invoiceState, groupMark string) {
	row.InvoiceDate = st.entry.Date
	row.DocNumber = st.entry.DocNumber
	row.Label = st.entry.Label
	row.InvoiceAmount = st.original
	row.Mark = st.entry.Mark
	row.CorrectedMark = correctedDisplay(st.entry.Mark, groupMark)
}

// emitInvoiceRows writes the general-case rows for one invoice: a credit
// row plus one row per payment slice, or their degenerate combinations.
func emitInvoiceRows(res *groupResult, base ResultRow, st *invoiceState, key GroupKey, adjustment, signedAdj float64, isLoss bool, groupedTotal float64, groupSize int) {
	mark := st.entry.Mark
	corrected := correctedDisplay(mark, key.Mark)
	allocs := st.payments

	grouped := 0.0
	if groupSize > 1 {
		grouped = groupedTotal
	}

	switch {
	case st.creditUsed > 0 && len(allocs) > 0:
		// The credit-note slice first.
		row := base
		row.InvoiceDate = st.entry.Date
		row.DocNumber = st.entry.DocNumber
		row.Label = st.entry.Label
		row.InvoiceAmount = st.creditUsed
		row.CreditNote = st.creditUsed
		row.NetInvoice = 0
		row.Adjustment = signedAdj
		row.Mark = mark
		row.CorrectedMark = corrected
		row.Balance = signedAdj
		res.rows = append(res.rows, row)

		for _, a := range allocs {
			row := base
			row.InvoiceDate = st.entry.Date
			row.DocNumber = st.entry.DocNumber
			row.Label = st.entry.Label
			row.InvoiceAmount = a.amount
			row.NetInvoice = a.amount
			row.PaymentDate = a.date
			row.PaymentAmount = a.amount
			row.Adjustment = signedAdj
			row.GroupedPayment = grouped
			row.Mark = mark
			row.CorrectedMark = corrected
			row.Balance = a.amount - a.amount + signedAdj
			res.rows = append(res.rows, row)
		}

	case st.creditUsed > 0:
		row := base
		fillInvoice(&row, st, key.Mark)
		row.CreditNote = st.creditUsed
		row.NetInvoice = st.original - st.creditUsed
		row.Adjustment = signedAdj
		row.Balance = row.NetInvoice + signedAdj
		res.rows = append(res.rows, row)

	case len(allocs) > 0:
		var allocTotal float64
		for _, a := range allocs {
			allocTotal += a.amount
		}

		switch {
		case isLoss && len(allocs) > 1 && adjustment > 0:
			// Loss spread over several payments: prorate invoice and
			// adjustment by payment share, each row balancing to zero.
			for _, a := range allocs {
				ratio := 0.0
				if allocTotal > 0 {
					ratio = a.amount / allocTotal
				}
				share := st.original * ratio
				odShare := adjustment * ratio

				row := base
				row.InvoiceDate = st.entry.Date
				row.DocNumber = st.entry.DocNumber
				row.Label = st.entry.Label
				row.InvoiceAmount = share
				row.NetInvoice = share
				row.PaymentDate = a.date
				row.PaymentAmount = a.amount
				row.Adjustment = odShare
				row.Mark = mark
				row.CorrectedMark = corrected
				row.Balance = share - a.amount + odShare
				res.rows = append(res.rows, row)
			}

		case len(allocs) > 1:
			for _, a := range allocs {
				ratio := 0.0
				if allocTotal > 0 {
					ratio = a.amount / allocTotal
				}
				share := st.original * ratio
				odShare := 0.0
				if signedAdj != 0 {
					odShare = signedAdj * ratio
				}

				row := base
				row.InvoiceDate = st.entry.Date
				row.DocNumber = st.entry.DocNumber
				row.Label = st.entry.Label
				row.InvoiceAmount = share
				row.NetInvoice = share
				row.PaymentDate = a.date
				row.PaymentAmount = a.amount
				row.Adjustment = odShare
				row.Mark = mark
				row.CorrectedMark = corrected
				row.Balance = share - a.amount + odShare
				res.rows = append(res.rows, row)
			}

		default:
			a := allocs[0]
			row := base
			row.InvoiceDate = st.entry.Date
			row.DocNumber = st.entry.DocNumber
			row.Label = st.entry.Label
			row.Mark = mark
			row.CorrectedMark = corrected
			row.GroupedPayment = grouped
			if adjustment > 0 {
				// With an adjustment in play the row shows the full payment
				// against the full invoice, the signed adjustment closing
				// the gap.
				row.InvoiceAmount = st.original
				row.NetInvoice = st.original
				row.PaymentDate = a.date
				row.PaymentAmount = a.total
				row.Adjustment = signedAdj
				row.Balance = st.original - a.total + signedAdj
			} else {
				row.InvoiceAmount = a.amount
				row.NetInvoice = a.amount
				row.PaymentDate = a.date
				row.PaymentAmount = a.amount
				row.Balance = 0
			}
			res.rows = append(res.rows, row)
		}

	default:
		row := base
		fillInvoice(&row, st, key.Mark)
		row.NetInvoice = st.original
		row.Adjustment = signedAdj
		row.Balance = st.original + signedAdj
		res.rows = append(res.rows, row)
	}
}
