package normalizer

import (
	"regexp"
	"strings"
)

var spacePattern = regexp.MustCompile(`\s+`)

// CleanDescription trims and collapses internal whitespace.
func CleanDescription(raw string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(raw, " "))
}

// CanonicalDescription produces the lowercased, whitespace-collapsed form
// used for duplicate hashing. Two rows differing only in case or spacing
// hash identically.
func CanonicalDescription(raw string) string {
	return strings.ToLower(CleanDescription(raw))
}
