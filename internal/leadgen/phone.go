package leadgen

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// phoneTailDigits is the length of the national significant number used to
// match phones stored with and without a country code.
const phoneTailDigits = 10

// minTailDigits is the shortest digit string that still gets a tail key.
const minTailDigits = 7

// NormalizePhone strips everything except digits and a single leading '+'.
// The result is idempotent: NormalizePhone(NormalizePhone(x)) == NormalizePhone(x).
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for i, r := range raw {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "+" {
		return ""
	}
	return out
}

// PhoneTail returns the trailing national digits of a phone number so that
// "+919876543210" and "98765 43210" compare equal. Numbers shorter than
// minTailDigits return "".
func PhoneTail(raw string) string {
	digits := strings.TrimPrefix(NormalizePhone(raw), "+")
	if len(digits) < minTailDigits {
		return ""
	}
	if len(digits) > phoneTailDigits {
		return digits[len(digits)-phoneTailDigits:]
	}
	return digits
}

// NameKey folds a company name for case-insensitive comparison. Internal
// whitespace runs collapse to a single space.
func NameKey(name string) string {
	fields := strings.FieldsFunc(name, unicode.IsSpace)
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(strings.Join(fields, " "))
}
