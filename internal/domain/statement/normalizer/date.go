// Package normalizer turns raw statement cell values into canonical field
// values: calendar dates, expense-positive decimal amounts, and cleaned
// descriptions.
package normalizer

import (
	"fmt"
	"strings"
	"time"
)

// fallbackLayouts is the fixed, ordered chain tried when no preferred format
// matches. The first exact parse wins. For values like "01/02/2025" where
// both US and EU readings are valid, chain order decides; there is no
// cross-validation against the column's other values.
var fallbackLayouts = []string{
	"2006-01-02", // ISO
	"01/02/2006", // US slash
	"02/01/2006", // EU slash
	"01-02-2006", // US dash
	"02-01-2006", // EU dash
	"1/2/2006",   // US slash, single-digit
	"2/1/2006",   // EU slash, single-digit
}

// ParseDate resolves a raw date string. The preferred layout (from a
// fingerprint or inference output) is tried first, exact match only; on
// failure the fixed fallback chain applies.
func ParseDate(raw, preferredLayout string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if preferredLayout != "" {
		if t, err := time.Parse(preferredLayout, raw); err == nil {
			return t, nil
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %s", raw)
}

// patternTokens maps CLDR-style date pattern tokens (the form fingerprints
// and inference responses use, e.g. "MM/dd/yyyy") onto Go reference layouts.
// Longest tokens first so "yyyy" is consumed before "yy".
var patternTokens = []struct{ from, to string }{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
}

// LayoutFromPattern converts a stored date pattern into a Go time layout.
// Strings that already look like Go layouts (contain "2006") pass through.
func LayoutFromPattern(pattern string) string {
	if pattern == "" || strings.Contains(pattern, "2006") {
		return pattern
	}
	layout := pattern
	for _, tok := range patternTokens {
		layout = strings.ReplaceAll(layout, tok.from, tok.to)
	}
	return layout
}
