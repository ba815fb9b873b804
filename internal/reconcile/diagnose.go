package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/model"
)

// Severity grades how urgently an unmatched movement needs attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Diagnostic is advisory output for the manual review queue.
type Diagnostic struct {
	Category       string   `json:"category"`
	PossibleCauses []string `json:"possibleCauses"`
	Suggestions    []string `json:"suggestions"`
	Severity       Severity `json:"severity"`
}

var (
	smallAmount     = decimal.NewFromInt(100)
	largeCredit     = decimal.NewFromInt(50000)
	largeDebit      = decimal.NewFromInt(10000)
	staleAfterDays  = 30
	shortDescLength = 10
)

func (d *Diagnostic) add(cause string, suggestions ...string) {
	d.PossibleCauses = append(d.PossibleCauses, cause)
	d.Suggestions = append(d.Suggestions, suggestions...)
}

func (d *Diagnostic) atLeastMedium() {
	if d.Severity != SeverityHigh {
		d.Severity = SeverityMedium
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Diagnose explains why a movement could not be matched, keyed on
// direction, description keywords, amount bucket and age.
func Diagnose(txn model.BankTransaction, dir model.Direction, now time.Time) Diagnostic {
	d := Diagnostic{Category: "General", Severity: SeverityLow}
	desc := Normalize(txn.Description)
	amount := txn.Amount.Abs()
	age := int(now.Sub(txn.Date).Hours() / 24)

	switch dir {
	case model.DirectionCredit:
		d.Category = "Unidentified receipt"
		if containsAny(desc, "pix") {
			d.add("PIX receipt without a clear payer identification",
				"Check the payer name in the PIX description",
				"Look up the tax ID in the description against the client base")
			d.add("Tax ID or company name not found in the description",
				"Contact the client to confirm the payment")
		}
		if containsAny(desc, "transf", "ted", "doc") {
			d.add("Bank transfer without enough information",
				"Check pending invoices with similar amounts",
				"Review the originating account statement if available")
		}
		if amount.LessThan(smallAmount) {
			d.add("Very low amount; may be a partial payment or a fee",
				"Check whether it is part of a larger payment",
				"Check whether it is a refund or chargeback")
			d.Severity = SeverityLow
		} else if amount.GreaterThan(largeCredit) {
			d.add("High amount; requires special attention",
				"Prioritize identifying this transaction",
				"Check whether it settles several invoices at once")
			d.Severity = SeverityHigh
		}
		if age > staleAfterDays {
			d.add(fmt.Sprintf("Transaction unreconciled for %d days", age),
				"Prioritize resolution; it may distort the cash flow")
			d.atLeastMedium()
		}

	case model.DirectionDebit:
		d.Category = "Unidentified payment"
		d.add("Payment without a matching expense",
			"Create the corresponding expense with a suitable category",
			"Check whether it is a recurring expense")
		if containsAny(desc, "debito", "automatico", "convenio") {
			d.add("Automatic debit not registered as an expense",
				"Register it as a recurring expense for future automatic matching",
				"Create a matching rule for this kind of debit")
		}
		if containsAny(desc, "boleto", "fatura", "titulo") {
			d.add("Bill paid but not registered",
				"Register the corresponding expense",
				"Attach the payment receipt")
		}
		if containsAny(desc, "taxa", "tarifa", "iof", "fee") {
			d.Category = "Bank fee"
			d.add("Bank fee not recorded",
				"Record it as an expense under bank fees")
			d.Severity = SeverityLow
		}
		if amount.GreaterThan(largeDebit) {
			d.add("Unidentified high-value payment",
				"Verify urgently; it may be an important payment")
			d.Severity = SeverityHigh
		}

	default:
		d.Category = "Unknown direction"
		d.add("Direction could not be inferred from the description",
			"Confirm whether money came in or went out before matching")
		d.atLeastMedium()
	}

	if len([]rune(strings.TrimSpace(txn.Description))) < shortDescLength {
		d.add("Description is very short or empty",
			"Ask the bank for the movement details")
		d.atLeastMedium()
	}

	if len(d.PossibleCauses) == 0 {
		d.add("Transaction did not match any known pattern",
			"Review all pending invoices and expenses manually",
			"Check for typos in registered amounts")
	}
	d.Suggestions = append(d.Suggestions, "Use manual reconciliation to settle it")
	return d
}
