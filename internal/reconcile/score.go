package reconcile

import (
	"github.com/shopspring/decimal"
)

var (
	weightAmount = decimal.RequireFromString("0.6")
	weightName   = decimal.RequireFromString("0.4")
	half         = decimal.RequireFromString("0.5")
	one          = decimal.NewFromInt(1)

	nameScores = map[nameMatch]decimal.Decimal{
		nameFull:    one,
		namePartial: decimal.RequireFromString("0.9"),
		nameAbsent:  half,
	}
)

// amountScore is 1 for an exact match and decays linearly to 0.5 at the
// tolerance edge. ok is false outside the tolerance.
func amountScore(txnAmount, recordAmount, tolerance decimal.Decimal) (score decimal.Decimal, ok bool) {
	diff := txnAmount.Sub(recordAmount).Abs()
	if diff.IsZero() {
		return one, true
	}
	if diff.GreaterThan(tolerance) || tolerance.IsZero() {
		return decimal.Zero, false
	}
	return one.Sub(half.Mul(diff).Div(tolerance)), true
}

// confidence combines amount and name scores, rounded to four places.
func confidence(amount, name decimal.Decimal) decimal.Decimal {
	return weightAmount.Mul(amount).Add(weightName.Mul(name)).Round(4)
}
