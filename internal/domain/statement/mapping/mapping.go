// Package mapping defines the column-mapping contract shared between the
// fingerprint store and the inference client: which raw statement header
// feeds which canonical transaction field.
package mapping

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FieldTag identifies the canonical transaction field a statement column maps to.
type FieldTag string

const (
	FieldDate        FieldTag = "date"
	FieldPostDate    FieldTag = "post_date"
	FieldDescription FieldTag = "description"
	FieldAmount      FieldTag = "amount"
	FieldCategory    FieldTag = "category"
	FieldMemo        FieldTag = "memo"
	FieldReference   FieldTag = "reference"
	FieldIgnore      FieldTag = "ignore"
)

// NormalizeTag maps arbitrary tag strings onto a known FieldTag.
// Unknown or empty tags become FieldIgnore, never an error.
func NormalizeTag(raw string) FieldTag {
	switch FieldTag(strings.ToLower(strings.TrimSpace(raw))) {
	case FieldDate:
		return FieldDate
	case FieldPostDate:
		return FieldPostDate
	case FieldDescription:
		return FieldDescription
	case FieldAmount:
		return FieldAmount
	case FieldCategory:
		return FieldCategory
	case FieldMemo:
		return FieldMemo
	case FieldReference:
		return FieldReference
	default:
		return FieldIgnore
	}
}

// AmountSign is the issuer's sign convention for raw amount values.
type AmountSign string

const (
	// NegativeChargesAreExpenses: raw negatives are charges (most card issuers).
	NegativeChargesAreExpenses AmountSign = "negative_charges_are_expenses"
	// PositiveChargesAreExpenses: raw positives are charges (most bank debits).
	PositiveChargesAreExpenses AmountSign = "positive_charges_are_expenses"
)

// ParseAmountSign resolves a stored sign-convention string, defaulting to
// NegativeChargesAreExpenses when the value is unknown.
func ParseAmountSign(raw string) AmountSign {
	if AmountSign(strings.ToLower(strings.TrimSpace(raw))) == PositiveChargesAreExpenses {
		return PositiveChargesAreExpenses
	}
	return NegativeChargesAreExpenses
}

// ColumnMapping maps disambiguated raw headers to field tags.
// Headers absent from the map are treated as FieldIgnore.
type ColumnMapping map[string]FieldTag

// Tier identifies how a mapping option was resolved.
type Tier int

const (
	// TierFingerprint is a cache hit against a stored fingerprint.
	TierFingerprint Tier = 1
	// TierInference is an AI-proposed mapping.
	TierInference Tier = 3
)

// Option is one candidate mapping offered to the caller during analyze.
// The engine never auto-selects an option.
type Option struct {
	Tier          Tier
	FingerprintID *uuid.UUID
	SourceName    string
	Columns       ColumnMapping
	DateFormat    string
	AmountSign    AmountSign
	Confidence    *float64 // set only for TierInference
}

// ColumnIndexes holds the resolved positional indexes for one header row.
// Indexes are -1 when the field is not mapped.
type ColumnIndexes struct {
	Date        int
	PostDate    int
	Description int
	Amount      int
	Category    int
	Memo        int
	Reference   int
}

// ResolveIndexes locates each mapped field in the given (disambiguated)
// header row. Headers with no mapping entry are ignored. When the same tag
// is mapped to several headers the first one in file order wins.
func (m ColumnMapping) ResolveIndexes(headers []string) (ColumnIndexes, error) {
	idx := ColumnIndexes{Date: -1, PostDate: -1, Description: -1, Amount: -1, Category: -1, Memo: -1, Reference: -1}

	set := func(slot *int, i int) {
		if *slot < 0 {
			*slot = i
		}
	}

	for i, h := range headers {
		tag, ok := m[h]
		if !ok {
			continue
		}
		switch tag {
		case FieldDate:
			set(&idx.Date, i)
		case FieldPostDate:
			set(&idx.PostDate, i)
		case FieldDescription:
			set(&idx.Description, i)
		case FieldAmount:
			set(&idx.Amount, i)
		case FieldCategory:
			set(&idx.Category, i)
		case FieldMemo:
			set(&idx.Memo, i)
		case FieldReference:
			set(&idx.Reference, i)
		}
	}

	if idx.Date < 0 {
		return idx, fmt.Errorf("mapping has no date column")
	}
	if idx.Description < 0 {
		return idx, fmt.Errorf("mapping has no description column")
	}
	if idx.Amount < 0 {
		return idx, fmt.Errorf("mapping has no amount column")
	}
	return idx, nil
}

// Normalize returns a copy with every tag value run through NormalizeTag.
// Inference output and stored mappings pass through here so unknown tags
// silently degrade to ignore.
func (m ColumnMapping) Normalize() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for header, tag := range m {
		out[header] = NormalizeTag(string(tag))
	}
	return out
}
