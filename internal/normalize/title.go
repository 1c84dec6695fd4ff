// Package normalize canonicalizes free-text product titles and classifies
// queries as code-like or noisy ahead of routing and aggregation.
package normalize

import (
	"regexp"
	"strings"
)

// dosageFormTokens are package-label words stripped from OCR'd titles before
// they are used as a search query. Mirrors the allow-list the scan pipeline's
// OCR normalization step is built around.
var dosageFormTokens = regexp.MustCompile(`\b(TAB(LET)?|KAPLET|KAPSUL(ES)?|SIRUP|SYRUP|SUSP(ENSI)?|INJEKSI|SAL(AP)?|KRIM|CREAM|OINTMENT|GEL|DROP|SPRAY)\b`)

// unitTokens are measurement units stripped from OCR'd titles.
var unitTokens = regexp.MustCompile(`\b(MG|ML|MCG|GRAM|G|KG)\b`)

var nonAlphanumeric = regexp.MustCompile(`[^A-Z0-9\s]+`)
var multiSpace = regexp.MustCompile(`\s+`)

// Title strips dosage forms, units, and punctuation from a raw OCR or
// user-supplied title and collapses whitespace, returning the query text the
// Retrieval Router should be asked to match against.
func Title(s string) string {
	s = strings.ToUpper(s)
	s = nonAlphanumeric.ReplaceAllString(s, " ")
	s = dosageFormTokens.ReplaceAllString(s, " ")
	s = unitTokens.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
