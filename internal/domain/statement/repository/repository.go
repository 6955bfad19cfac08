// Package repository provides data access for statement-import entities:
// layout fingerprints, imported transactions, and import audit records.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/mapping"
)

// Scope says who a fingerprint belongs to: one user, or the whole system
// (pre-seeded layouts for well-known issuers). The zero value is system-wide.
type Scope struct {
	userID *uuid.UUID
}

// UserScope returns a scope owned by one user.
func UserScope(userID uuid.UUID) Scope {
	return Scope{userID: &userID}
}

// SystemScope returns the system-wide scope.
func SystemScope() Scope {
	return Scope{}
}

// UserID returns the owning user and true for user scopes.
func (s Scope) UserID() (uuid.UUID, bool) {
	if s.userID == nil {
		return uuid.Nil, false
	}
	return *s.userID, true
}

// IsSystem reports whether the scope is system-wide.
func (s Scope) IsSystem() bool { return s.userID == nil }

// Fingerprint is a cached column-mapping recipe keyed by the hash of a
// statement's normalized header set. At most one fingerprint exists per
// (scope, header hash); it is created on explicit save and mutated only
// through hit-count accounting.
type Fingerprint struct {
	ID         uuid.UUID
	Scope      Scope
	HeaderHash string
	Name       string
	Columns    mapping.ColumnMapping
	DateFormat string // Go time layout, may be empty
	AmountSign mapping.AmountSign
	HitCount   int
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// ImportedTransaction is a persisted transaction produced by an import.
// Amount is expense-positive.
type ImportedTransaction struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ImportID      uuid.UUID
	Date          time.Time
	PostDate      *time.Time
	Description   string
	Amount        decimal.Decimal
	Category      string
	Memo          string
	Reference     string
	DuplicateHash string
	CreatedAt     time.Time
}

// ImportAudit records the outcome of one completed import. Immutable once
// written; never written for blocked or failed imports.
type ImportAudit struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	TierUsed       mapping.Tier
	ImportedCount  int
	SkippedCount   int
	DuplicateCount int
	FingerprintID  *uuid.UUID // nil when the mapping was AI-inferred and not saved
	CreatedAt      time.Time
}

// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("record not found")

// FingerprintStore persists layout fingerprints. Implementations must
// support concurrent reads and serialized, idempotent-on-conflict writes.
type FingerprintStore interface {
	// Lookup returns every fingerprint matching the header hash that the
	// user may use: their own plus system-wide ones. The caller decides
	// between them; there is no silent priority pick.
	Lookup(ctx context.Context, headerHash string, userID uuid.UUID) ([]*Fingerprint, error)

	// RecordUse increments the hit count and stamps last use. This is the
	// only mutation path for an existing fingerprint.
	RecordUse(ctx context.Context, id uuid.UUID) error

	// Save creates a fingerprint. When one already exists for the same
	// (scope, header hash) — including a concurrent save racing this one —
	// the existing record is returned instead of an error.
	Save(ctx context.Context, fp *Fingerprint) (*Fingerprint, error)
}

// TransactionStore persists imported transactions and audit records.
type TransactionStore interface {
	// FilterExistingHashes returns which of the given duplicate hashes are
	// already present for the user. Duplicate scope is per-user only.
	FilterExistingHashes(ctx context.Context, userID uuid.UUID, hashes []string) (map[string]bool, error)

	// PersistImport writes the audit record and every surviving transaction
	// in one database transaction: on failure nothing is written, including
	// the audit record.
	PersistImport(ctx context.Context, audit *ImportAudit, txs []*ImportedTransaction) error
}
