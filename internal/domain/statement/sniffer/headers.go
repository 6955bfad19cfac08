package sniffer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// DisambiguateHeaders gives repeated raw header names a numeric suffix
// ("Amount", "Amount_2") so mapping keys stay unique. Suffixing happens on
// the raw names, before normalization, so the header hash is stable for a
// given raw header set.
func DisambiguateHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))

	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		seen[key]++
		if seen[key] > 1 {
			out[i] = fmt.Sprintf("%s_%d", h, seen[key])
		} else {
			out[i] = h
		}
	}
	return out
}

// HashHeaders produces the order-independent cache key for a header set:
// lowercase, trim, collapse internal whitespace, sort, join, SHA-256 hex.
// Two files with the same columns in a different order hash identically.
func HashHeaders(headers []string) string {
	normalized := make([]string, 0, len(headers))
	for _, h := range headers {
		normalized = append(normalized, normalizeHeader(h))
	}
	sort.Strings(normalized)

	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), " ")
}
