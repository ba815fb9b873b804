package reconcile

import (
	"regexp"

	"github.com/cleared-dev/ledgercore/internal/model"
)

// Rule maps a description pattern to a direction. Patterns run against the
// normalized description (lower-case, no diacritics).
type Rule struct {
	Name      string
	Pattern   *regexp.Regexp
	Direction model.Direction
}

// DefaultRules is the ordered direction table. Incoming-fund rules come
// first; the first match wins.
var DefaultRules = []Rule{
	{"collection_settlement", regexp.MustCompile(`liq\.? ?cobranca|liquidacao de cobranca|bulk settlement|consolidated settlement`), model.DirectionCredit},
	{"pix_received", regexp.MustCompile(`recebimento pix|pix_cred|pix recebido|received pix`), model.DirectionCredit},
	{"transfer_received", regexp.MustCompile(`received transfer|transf(erencia)? recebida|ted recebida|doc recebido|credito (ted|doc)`), model.DirectionCredit},
	{"deposit", regexp.MustCompile(`\bdeposito\b|\bdeposit\b`), model.DirectionCredit},
	{"refund_received", regexp.MustCompile(`\bestorno\b|\brefund\b|\bdevolucao\b`), model.DirectionCredit},

	{"bank_fee", regexp.MustCompile(`tarifa|cesta de relacionamento|manutencao de titulos|\bfees?\b|maintenance`), model.DirectionDebit},
	{"iof", regexp.MustCompile(`\biof\b`), model.DirectionDebit},
	{"pix_sent", regexp.MustCompile(`pagamento pix|pix_deb|pix enviado|sent pix`), model.DirectionDebit},
	{"boleto_payment", regexp.MustCompile(`liquidacao boleto|pagamento (de )?boleto|boleto payment`), model.DirectionDebit},
	{"debited_agreement", regexp.MustCompile(`debito convenios?`), model.DirectionDebit},
	{"transfer_sent", regexp.MustCompile(`sent transfer|transf(erencia)? enviada|ted enviada|doc enviado`), model.DirectionDebit},
	{"withdrawal", regexp.MustCompile(`\bsaque\b|\bwithdrawal\b`), model.DirectionDebit},
}

// Classification explains how a direction was decided. Rule and Match
// report the first rule matching the description, even when the direction
// was explicit.
type Classification struct {
	Direction model.Direction
	// Source is "explicit", "rule" or "fallback".
	Source string
	Rule   string
	Match  string
}

// Classifier infers the direction of bank movements.
type Classifier struct {
	rules    []Rule
	fallback model.Direction
}

// NewClassifier builds a Classifier. fallback applies when no rule
// matches; it must be debit or unknown.
func NewClassifier(rules []Rule, fallback model.Direction) *Classifier {
	if fallback != model.DirectionDebit {
		fallback = model.DirectionUnknown
	}
	return &Classifier{rules: rules, fallback: fallback}
}

// Classify trusts an explicit direction and otherwise evaluates the rule
// table over the description.
func (c *Classifier) Classify(txn model.BankTransaction) Classification {
	cls := Classification{Direction: c.fallback, Source: "fallback"}

	desc := Normalize(txn.Description)
	for _, r := range c.rules {
		if m := r.Pattern.FindString(desc); m != "" {
			cls = Classification{Direction: r.Direction, Source: "rule", Rule: r.Name, Match: m}
			break
		}
	}

	if txn.Direction == model.DirectionCredit || txn.Direction == model.DirectionDebit {
		cls.Direction = txn.Direction
		cls.Source = "explicit"
	}
	return cls
}
