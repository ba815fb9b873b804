package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/model"
)

// Selection is a validated many-to-one settlement.
type Selection struct {
	Records   []model.Record
	Sum       decimal.Decimal
	Deviation decimal.Decimal // Sum - target
	Override  bool
}

// SelectAggregate validates an operator's choice of records from pool to
// settle a transaction of amount target. The sum must be within tolerance
// of target unless override is set. It never searches for a subset itself.
func SelectAggregate(target decimal.Decimal, pool []model.Record, selectedIDs []string, tolerance decimal.Decimal, override bool) (Selection, error) {
	if len(selectedIDs) == 0 {
		return Selection{}, fmt.Errorf("no records selected")
	}

	byID := make(map[string]model.Record, len(pool))
	for _, r := range pool {
		byID[r.ID] = r
	}

	sel := Selection{Sum: decimal.Zero, Override: override}
	seen := make(map[string]bool, len(selectedIDs))
	for _, rid := range selectedIDs {
		if seen[rid] {
			return Selection{}, fmt.Errorf("record %s selected twice", rid)
		}
		seen[rid] = true

		r, ok := byID[rid]
		if !ok {
			return Selection{}, fmt.Errorf("record %s is not in the candidate pool", rid)
		}
		if !r.Status.Open() {
			return Selection{}, fmt.Errorf("%s %s is %s: %w", r.Kind, r.ID, r.Status, ErrAlreadySettled)
		}
		sel.Records = append(sel.Records, r)
		sel.Sum = sel.Sum.Add(r.Amount)
	}

	sel.Deviation = sel.Sum.Sub(target)
	if sel.Deviation.Abs().GreaterThan(tolerance) && !override {
		return Selection{}, fmt.Errorf("selected %s, transaction %s, deviation %s exceeds %s: %w",
			sel.Sum.StringFixed(2), target.StringFixed(2), sel.Deviation.StringFixed(2), tolerance.StringFixed(2),
			ErrAggregateMismatch)
	}
	return sel, nil
}
