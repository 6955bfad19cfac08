// Package inference defines the AI column-mapping boundary: given a header
// row and a few sample rows, propose a column mapping with a confidence
// score. The engine treats the proposal exactly like a cache hit — it still
// goes through the same downstream validation.
package inference

import (
	"context"
	"errors"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/mapping"
)

// ErrUnavailable reports that inference could not be performed (timeout,
// quota, network). The import is blocked entirely; there is no degraded
// parse without a mapping.
var ErrUnavailable = errors.New("column mapping inference unavailable")

// Result is a proposed column mapping for an unrecognized layout.
type Result struct {
	Columns    mapping.ColumnMapping
	DateFormat string // Go time layout, may be empty
	AmountSign mapping.AmountSign
	Confidence float64 // clamped to [0,1]
}

// Client proposes column mappings for unrecognized statement layouts.
// Implementations must honor the context deadline and return ErrUnavailable
// (possibly wrapped) for transport-level failures.
type Client interface {
	Infer(ctx context.Context, headers []string, sampleRows [][]string) (*Result, error)
}
