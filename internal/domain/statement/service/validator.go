package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// dateWindowYears bounds how far from today a transaction date may fall
// before the row is treated as a parse artifact rather than real activity.
const dateWindowYears = 2

// validateRow applies the row-level rules that survive parsing: the date
// must be real and plausible, the amount non-zero, the description present.
// An empty return means the row is valid.
func validateRow(date time.Time, amount decimal.Decimal, description string, now time.Time) string {
	if date.IsZero() {
		return "missing date"
	}
	if date.Before(now.AddDate(-dateWindowYears, 0, 0)) || date.After(now.AddDate(dateWindowYears, 0, 0)) {
		return "date out of range"
	}
	if amount.IsZero() {
		return "zero amount"
	}
	if description == "" {
		return "empty description"
	}
	return ""
}
