// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text for menu matching: lower-case, canonical decomposition,
// then every nonspacing mark (category Mn) is dropped. Other runes, spaces and
// punctuation included, are kept as they are.
//
// Example:
//
//	Normalize("Próxima SEMANA") returns "proxima semana"
//	Normalize("MAÑANA") returns "manana"
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		// The chain only fails on invalid state, never on input; keep lower-case text.
		return strings.ToLower(text)
	}
	return out
}
