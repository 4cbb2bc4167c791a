package wiki

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	pendingSlugPrefix   = "pending-"
	pendingSlugFallback = "pending-term"
)

// NormalizeTerm returns the comparison key for a term or alias. Every
// case-insensitive lookup in the package compares keys produced here.
func NormalizeTerm(term string) string {
	composed := norm.NFC.String(term)
	collapsed := strings.Join(strings.Fields(composed), " ")
	return cases.Fold().String(collapsed)
}

// Slugify lowercases value, strips diacritics and joins the remaining ASCII
// letters and digits with single dashes.
func Slugify(value string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, value)
	if err != nil {
		stripped = value
	}

	var builder strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(stripped) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			pendingDash = false
			builder.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	return builder.String()
}

// PendingSlug is the display slug of a term that has no entry yet. It is never
// stored and cannot collide with entry slugs, which may not carry the prefix.
func PendingSlug(term string) string {
	slug := Slugify(term)
	if slug == "" {
		return pendingSlugFallback
	}
	return pendingSlugPrefix + slug
}

// IsPendingSlug reports whether slug uses the reserved pending prefix.
func IsPendingSlug(slug string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(slug)), pendingSlugPrefix)
}
