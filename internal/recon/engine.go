package recon

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/payrec/payrec/internal/ledger"
	"github.com/payrec/payrec/internal/supplier"
)

// Engine produces the payment-delay statement from a general ledger.
type Engine struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) (*Engine, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("recon: invalid config: %w", err)
	}
	return &Engine{cfg: cfg, log: log}, nil
}

// Run reconciles the ledger entries and returns the statement. Groups are
// independent, so their allocation runs concurrently; rows are assembled in
// group order, which keeps the output deterministic.
func (e *Engine) Run(ctx context.Context, entries []ledger.Entry, suppliers supplier.Directory) (*Report, error) {
	effects := resolveEffects(entries, e.cfg)
	cls := classify(entries, e.cfg, effects)

	results := make([]groupResult, len(cls.groupOrder))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, key := range cls.groupOrder {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = allocateGroup(key, cls, suppliers)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []ResultRow
	var leftovers []poolInvoice
	for _, res := range results {
		rows = append(rows, res.rows...)
		leftovers = append(leftovers, res.leftovers...)
	}

	rows = append(rows, e.reclassRows(cls, suppliers)...)
	rows = append(rows, e.creditOnlyRows(cls, suppliers)...)
	rows = append(rows, settleUnmatched(cls, leftovers, suppliers)...)
	rows = append(rows, e.unmarkedRows(cls, suppliers)...)

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Account != rows[j].Account {
			return rows[i].Account < rows[j].Account
		}
		return dateKey(rows[i].InvoiceDate).Before(dateKey(rows[j].InvoiceDate))
	})

	report := &Report{Rows: rows}
	e.verify(report, entries)
	return report, nil
}

// reclassRows emits marked adjustment entries that could not be spread over
// an invoice group: either standalone, or combined with the group's
// payments when the group holds payments but no invoices.
func (e *Engine) reclassRows(cls *classification, suppliers supplier.Directory) []ResultRow {
	var rows []ResultRow
	for _, key := range cls.reclassOrder {
		name := suppliers.Name(key.Account)
		hasInvoices := len(cls.invoices[key]) > 0
		pays := cls.payments[key]

		var totalPays float64
		for _, p := range pays {
			totalPays += p.amount
		}

		for _, od := range cls.reclass[key] {
			switch {
			case hasInvoices || len(pays) == 0:
				rows = append(rows, ResultRow{
					InvoiceDate: od.Date,
					DocNumber:   od.DocNumber,
					Account:     key.Account,
					Supplier:    name,
					Label:       od.Label,
					Adjustment:  od.Invoice,
					Mark:        od.Mark,
					Balance:     od.Invoice,
				})
			default:
				// The adjustment creates the due the payments then settle:
				// prorate it over the payments so each row closes at zero.
				grouped := 0.0
				if len(pays) > 1 {
					grouped = totalPays
				}
				for _, p := range pays {
					ratio := 1.0
					if totalPays > 0 {
						ratio = p.amount / totalPays
					}
					rows = append(rows, ResultRow{
						InvoiceDate:    od.Date,
						DocNumber:      od.DocNumber,
						Account:        key.Account,
						Supplier:       name,
						Label:          od.Label,
						PaymentDate:    p.date,
						PaymentAmount:  p.amount,
						Adjustment:     od.Invoice * ratio,
						GroupedPayment: grouped,
						Mark:           od.Mark,
						Balance:        0,
					})
				}
			}
		}
	}
	return rows
}

// creditOnlyRows emits marked credit notes living in groups without any
// invoice, paired proportionally with the group's refunds when present.
func (e *Engine) creditOnlyRows(cls *classification, suppliers supplier.Directory) []ResultRow {
	var rows []ResultRow
	for _, key := range cls.creditOrder {
		if len(cls.invoices[key]) > 0 {
			continue // consumed by the group allocator
		}
		name := suppliers.Name(key.Account)
		credits := cls.credits[key]
		refunds := cls.refunds[key]

		var totalCredits, totalRefunds float64
		for _, c := range credits {
			totalCredits += c.amount
		}
		for _, r := range refunds {
			totalRefunds += r.amount
		}

		for _, c := range credits {
			row := ResultRow{
				InvoiceDate: c.entry.Date,
				DocNumber:   c.entry.DocNumber,
				Account:     key.Account,
				Supplier:    name,
				Label:       c.entry.Label,
				CreditNote:  c.amount,
				NetInvoice:  -c.amount,
				Mark:        key.Mark,
			}
			if len(refunds) > 0 {
				ratio := 1.0
				if totalCredits > 0 {
					ratio = c.amount / totalCredits
				}
				refund := totalRefunds * ratio
				row.PaymentDate = refunds[0].date
				row.PaymentAmount = -refund
				if math.Abs(c.amount-refund) >= balanceTol {
					row.Balance = -c.amount + refund
				}
			} else {
				row.Balance = -c.amount
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// unmarkedRows surfaces the unmarked entries the settler does not touch:
// adjustment entries, credit notes and supplier refunds without a mark.
func (e *Engine) unmarkedRows(cls *classification, suppliers supplier.Directory) []ResultRow {
	var rows []ResultRow
	for _, od := range cls.unmarkedOther {
		adj := od.Invoice - od.Movement
		rows = append(rows, ResultRow{
			InvoiceDate: od.Date,
			DocNumber:   od.DocNumber,
			Account:     od.Account,
			Supplier:    suppliers.Name(od.Account),
			Label:       od.Label,
			Adjustment:  adj,
			Balance:     adj,
		})
	}
	for _, c := range cls.unmarkedCredits {
		rows = append(rows, ResultRow{
			DocNumber:   c.DocNumber,
			Account:     c.Account,
			Supplier:    suppliers.Name(c.Account),
			Label:       c.Label,
			CreditNote:  c.Movement,
			NetInvoice:  -c.Movement,
			PaymentDate: c.Date,
			Balance:     -c.Movement,
		})
	}
	for _, r := range cls.unmarkedRefunds {
		rows = append(rows, ResultRow{
			DocNumber:     r.DocNumber,
			Account:       r.Account,
			Supplier:      suppliers.Name(r.Account),
			Label:         r.Label,
			PaymentDate:   r.Date,
			PaymentAmount: -r.Invoice,
			Balance:       r.Invoice,
		})
	}
	return rows
}

// verify checks the statement's balance column against the ledger control
// total, invoice column minus movement column over the payable accounts.
// The expected side accumulates in decimals so the check is not polluted by
// float drift on large ledgers.
func (e *Engine) verify(report *Report, entries []ledger.Entry) {
	expected := decimal.Zero
	for _, entry := range entries {
		if !entry.OnAccount(e.cfg.PayablePrefix) {
			continue
		}
		expected = expected.Add(decimal.NewFromFloat(entry.Invoice)).
			Sub(decimal.NewFromFloat(entry.Movement))
	}
	report.ExpectedBalance, _ = expected.Float64()

	for _, row := range report.Rows {
		report.TotalBalance += row.Balance
	}
	report.Discrepancy = math.Abs(report.TotalBalance - report.ExpectedBalance)
	report.Balanced = report.Discrepancy <= balanceTol

	if !report.Balanced {
		e.log.Warn("statement does not balance against control total",
			"expected", report.ExpectedBalance,
			"total", report.TotalBalance,
			"discrepancy", report.Discrepancy,
		)
	} else {
		e.log.Info("statement balanced",
			"rows", len(report.Rows),
			"total", report.TotalBalance,
		)
	}
}
