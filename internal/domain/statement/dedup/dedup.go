// Package dedup computes content hashes for imported transactions and
// suppresses rows the user has already imported.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/normalizer"
)

// Hash digests a transaction's identity fields. The amount is formatted with
// exactly two decimal places and a dot separator regardless of locale, so
// the same row hashes identically on any machine.
func Hash(date time.Time, amount decimal.Decimal, description string) string {
	payload := date.Format("2006-01-02") + "|" +
		amount.StringFixed(2) + "|" +
		normalizer.CanonicalDescription(description)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// HashStore answers whether duplicate hashes already exist for a user.
// Duplicate scope is per-user, never cross-user.
type HashStore interface {
	FilterExistingHashes(ctx context.Context, userID uuid.UUID, hashes []string) (map[string]bool, error)
}

// Detector filters duplicates for one import run. It tracks hashes seen
// earlier in the same file so the first occurrence wins and later identical
// rows are the ones marked duplicate.
type Detector struct {
	store  HashStore
	userID uuid.UUID
	seen   map[string]bool
}

// NewDetector creates a detector scoped to one user and one file.
func NewDetector(store HashStore, userID uuid.UUID) *Detector {
	return &Detector{
		store:  store,
		userID: userID,
		seen:   make(map[string]bool),
	}
}

// FilterBatch returns, for each hash in file order, whether the row is a
// duplicate of a previously imported transaction or of an earlier row in
// this file. Non-duplicate hashes are recorded as seen.
func (d *Detector) FilterBatch(ctx context.Context, hashes []string) ([]bool, error) {
	unseen := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if !d.seen[h] {
			unseen = append(unseen, h)
		}
	}

	existing := map[string]bool{}
	if len(unseen) > 0 {
		var err error
		existing, err = d.store.FilterExistingHashes(ctx, d.userID, unseen)
		if err != nil {
			return nil, err
		}
	}

	out := make([]bool, len(hashes))
	for i, h := range hashes {
		if d.seen[h] || existing[h] {
			out[i] = true
			continue
		}
		d.seen[h] = true
	}
	return out, nil
}
