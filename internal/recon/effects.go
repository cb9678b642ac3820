package recon

import (
	"math"
	"time"

	"github.com/payrec/payrec/internal/ledger"
)

// effectPayment is the real cash settlement behind a bill of exchange,
// accumulated per payable reconciliation group. Several effects for one
// group sum their amounts; the first effect fixes the dates.
type effectPayment struct {
	paymentDate time.Time
	amount      float64
	effectDate  time.Time
}

// effectSet keeps the resolved effects with a deterministic group order
// (first appearance in the ledger).
type effectSet struct {
	byKey map[GroupKey]effectPayment
	order []GroupKey
}

func (s effectSet) has(key GroupKey) bool {
	_, ok := s.byKey[key]
	return ok
}

// resolveEffects rewrites bill-of-exchange settlements into synthetic
// payments on the ordinary payable side.
//
// The flow being detected: an invoice on the payable account is cleared by
// crediting an effects-payable sub-account (the effect's creation, an
// invoice-column entry there), and the sub-account is debited later when the
// bank actually pays (a movement-column entry under the same mark). The
// payable group is identified by the movement that matches the effect's
// amount and creation date.
func resolveEffects(entries []ledger.Entry, cfg Config) effectSet {
	out := effectSet{byKey: make(map[GroupKey]effectPayment)}

	for _, effect := range entries {
		if !effect.OnAccount(cfg.EffectsPrefix) || effect.Invoice <= 0 {
			continue
		}
		if effect.CorrectedMark == "" {
			continue
		}

		// Real cash settlement on the same sub-account and mark.
		settled, ok := findSettlement(entries, effect)
		if !ok {
			continue
		}

		// The payable-side movement created together with the effect tells
		// us which (account, mark) the effect belongs to.
		key, ok := findPayableGroup(entries, cfg, effect)
		if !ok {
			continue
		}

		if prev, exists := out.byKey[key]; exists {
			prev.amount += effect.Invoice
			out.byKey[key] = prev
			continue
		}
		out.byKey[key] = effectPayment{
			paymentDate: settled.Date,
			amount:      effect.Invoice,
			effectDate:  effect.Date,
		}
		out.order = append(out.order, key)
	}
	return out
}

func findSettlement(entries []ledger.Entry, effect ledger.Entry) (ledger.Entry, bool) {
	for _, e := range entries {
		if e.Account == effect.Account && e.CorrectedMark == effect.CorrectedMark && e.Movement > 0 {
			return e, true
		}
	}
	return ledger.Entry{}, false
}

func findPayableGroup(entries []ledger.Entry, cfg Config, effect ledger.Entry) (GroupKey, bool) {
	for _, e := range entries {
		if !e.OnAccount(cfg.PayablePrefix) {
			continue
		}
		if math.Abs(e.Movement-effect.Invoice) > amountTol {
			continue
		}
		if !sameDate(e.Date, effect.Date) {
			continue
		}
		if e.CorrectedMark == "" {
			return GroupKey{}, false
		}
		return GroupKey{Account: e.Account, Mark: e.CorrectedMark}, true
	}
	return GroupKey{}, false
}

func sameDate(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && b.IsZero()
	}
	return a.Equal(b)
}
