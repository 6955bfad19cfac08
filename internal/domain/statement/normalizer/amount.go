package normalizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/mapping"
)

// currencyMarkers are stripped from raw amounts before numeric parsing.
// Multi-character markers first so "R$" is removed before "$".
var currencyMarkers = []string{"R$", "USD", "EUR", "GBP", "BRL", "$", "€", "£"}

// ParseAmount parses a raw amount string into a decimal, handling currency
// symbols, thousands separators in both US (1,234.56) and EU (1.234,56)
// styles, and parenthesized negatives.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	for _, marker := range currencyMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSpace(s)

	s = normalizeSeparators(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount: %q", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites an unsigned numeric string into dot-decimal
// form. When both separators appear, the last one is the decimal separator.
// A lone comma followed by at most two digits reads as an EU decimal.
func normalizeSeparators(s string) string {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != ',' && r != '.' && !unicode.IsSpace(r) {
			return ""
		}
	}
	s = strings.Join(strings.Fields(s), "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// EU: 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			// US: 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if len(s)-lastComma-1 <= 2 && strings.Count(s, ",") == 1 {
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return s
}

// NormalizeAmount applies the issuer's sign convention and returns the
// expense-positive amount. Under NegativeChargesAreExpenses a raw -45.99
// charge becomes 45.99 and a raw positive refund becomes negative; under
// PositiveChargesAreExpenses the literal value carries through. This runs
// before duplicate hashing and validation so both see the canonical sign.
func NormalizeAmount(raw string, sign mapping.AmountSign) (decimal.Decimal, error) {
	d, err := ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if sign == mapping.NegativeChargesAreExpenses {
		return d.Neg(), nil
	}
	return d, nil
}
