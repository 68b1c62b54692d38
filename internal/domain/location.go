package domain

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Unknown replaces any place-name component a provider could not supply.
const Unknown = "Unknown"

// parentheticalRe matches a parenthesized qualifier and the whitespace before it,
// e.g. "Paris (75)" -> "Paris".
var parentheticalRe = regexp.MustCompile(`\s*\([^)]*\)`)

// RawLocation is a provider's answer before normalization.
type RawLocation struct {
	City    string
	Country string
}

// ResolvedLocation is a normalized city/country pair. Both fields are non-empty.
type ResolvedLocation struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// NormalizeName cleans a free-text place name. Empty input, or input that is
// nothing but parenthesized qualifiers, yields Unknown.
func NormalizeName(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return Unknown
	}
	s := parentheticalRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	// Compose last: stripping a group can bring a base letter and a
	// combining mark next to each other.
	return norm.NFC.String(s)
}

// Normalize applies NormalizeName to both components.
func (r RawLocation) Normalize() ResolvedLocation {
	return ResolvedLocation{
		City:    NormalizeName(r.City),
		Country: NormalizeName(r.Country),
	}
}

func (l ResolvedLocation) String() string {
	return l.City + ", " + l.Country
}
