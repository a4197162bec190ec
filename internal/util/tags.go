// Package util provides common utility functions.
package util

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Matches any non-alphanumeric run.
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9]+`)
	// Matches runs of whitespace inside a tag.
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// TagKey converts a tag to the key that decides tag identity.
// "Spanish Verbs" -> "spanish-verbs".
// "Café" -> "cafe".
// "sci_fi" -> "sci-fi".
func TagKey(tag string) string {
	// Decompose accented characters so the base letter survives.
	s := norm.NFKD.String(tag)

	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(s)
	s = nonAlphanumericRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// CleanTag trims a tag and collapses inner whitespace, keeping the user's
// spelling and case. Text is NFC-composed so visually equal tags compare equal.
func CleanTag(tag string) string {
	s := norm.NFC.String(tag)
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

// NormalizeTags turns user input into a tag set: cleaned, without blanks and
// without duplicates by TagKey. The first spelling of a tag wins. The result
// is sorted by key so equal sets serialize identically.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]string, len(tags))
	for _, raw := range tags {
		tag := CleanTag(raw)
		key := TagKey(tag)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; !ok {
			seen[key] = tag
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

// HasTag reports whether tags contains tag by TagKey.
func HasTag(tags []string, tag string) bool {
	key := TagKey(tag)
	if key == "" {
		return false
	}
	return slices.ContainsFunc(tags, func(t string) bool { return TagKey(t) == key })
}
