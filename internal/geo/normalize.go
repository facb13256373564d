package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks so accented and plain spellings of
// the same name compare equal ("Réunion" -> "Reunion").
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold canonicalizes a location name for lookup: diacritics stripped,
// lowercased, the upstream "*" annotation removed, and whitespace collapsed.
func Fold(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "*", "")
	return strings.Join(strings.Fields(folded), " ")
}
