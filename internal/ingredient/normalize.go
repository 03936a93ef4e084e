// Package ingredient defines the canonical comparison key for active
// ingredients. The same pipeline must run wherever an ingredient is persisted
// or compared; two ingredient strings are equal iff their normalized forms
// are equal.
package ingredient

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize turns a free-text active-ingredient string into its canonical
// comparison key. It is pure and total: garbage input yields "".
//
// Pipeline: trim, lowercase, strip combining diacritical marks, drop
// characters outside [a-z0-9 ], collapse repeated whitespace, trim.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	if decomposed, _, err := transform.String(stripMarks, s); err == nil {
		s = decomposed
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// Equal reports whether two raw ingredient strings denote the same
// active ingredient.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
