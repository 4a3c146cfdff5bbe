// Package slug derives filesystem- and key-safe slugs from display names.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Make returns the slug for name: Unicode case-folded, diacritics stripped,
// and every run of non-alphanumeric characters collapsed into a single dash.
// The result is deterministic for a given name and empty when the name
// contains nothing usable.
func Make(name string) string {
	folded := cases.Fold().String(name)

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(stripMarks, folded)
	if err != nil {
		ascii = folded
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range ascii {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Valid reports whether s is already a well-formed slug.
func Valid(s string) bool {
	return s != "" && s == Make(s)
}
