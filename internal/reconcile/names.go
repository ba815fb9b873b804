package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, strips diacritics and collapses whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// lettersOnly replaces every run of non-letters with a single space.
func lettersOnly(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	}), " ")
}

func prefix(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// nameMatch is the strength of a counterparty-name check.
type nameMatch int

const (
	nameNone nameMatch = iota
	nameAbsent
	namePartial
	nameFull
)

// matchName compares a counterparty name with a bank description. ruleText
// is the part of the description consumed by the direction rule; what
// remains is taken as the payer fragment.
func matchName(counterparty, description, ruleText string, prefixLen int) nameMatch {
	name := Normalize(counterparty)
	if name == "" {
		return nameAbsent
	}
	desc := Normalize(description)
	if desc == "" {
		return nameNone
	}
	if strings.Contains(desc, name) {
		return nameFull
	}
	if p := prefix(name, prefixLen); len([]rune(p)) >= 3 && strings.Contains(desc, p) {
		return namePartial
	}

	fragment := desc
	if ruleText != "" {
		fragment = strings.Replace(fragment, ruleText, " ", 1)
	}
	fragment = lettersOnly(fragment)
	if len([]rune(fragment)) >= 3 {
		if strings.Contains(name, fragment) || strings.Contains(name, prefix(fragment, prefixLen)) {
			return namePartial
		}
	}
	return nameNone
}
