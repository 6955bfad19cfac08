package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory FingerprintStore and TransactionStore. It
// backs tests and dry runs, and mirrors the Postgres semantics: concurrent
// reads, serialized writes, save races resolved in favor of the first
// writer.
type MemoryStore struct {
	mu           sync.RWMutex
	fingerprints map[string]*Fingerprint // keyed by scope+hash
	byID         map[uuid.UUID]*Fingerprint
	transactions map[uuid.UUID][]*ImportedTransaction // keyed by user
	audits       []*ImportAudit
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fingerprints: make(map[string]*Fingerprint),
		byID:         make(map[uuid.UUID]*Fingerprint),
		transactions: make(map[uuid.UUID][]*ImportedTransaction),
	}
}

func scopeKey(scope Scope, headerHash string) string {
	if id, ok := scope.UserID(); ok {
		return id.String() + "/" + headerHash
	}
	return "system/" + headerHash
}

// Lookup returns the user's fingerprint and any system-wide one, user first.
func (m *MemoryStore) Lookup(_ context.Context, headerHash string, userID uuid.UUID) ([]*Fingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Fingerprint
	if fp, ok := m.fingerprints[scopeKey(UserScope(userID), headerHash)]; ok {
		out = append(out, cloneFingerprint(fp))
	}
	if fp, ok := m.fingerprints[scopeKey(SystemScope(), headerHash)]; ok {
		out = append(out, cloneFingerprint(fp))
	}
	return out, nil
}

// RecordUse increments the hit count and stamps last use.
func (m *MemoryStore) RecordUse(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fp, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	fp.HitCount++
	now := time.Now()
	fp.LastUsedAt = &now
	return nil
}

// Save stores a fingerprint, returning the existing record when one already
// holds the (scope, header hash) slot.
func (m *MemoryStore) Save(_ context.Context, fp *Fingerprint) (*Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey(fp.Scope, fp.HeaderHash)
	if existing, ok := m.fingerprints[key]; ok {
		return cloneFingerprint(existing), nil
	}

	stored := cloneFingerprint(fp)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = time.Now()
	m.fingerprints[key] = stored
	m.byID[stored.ID] = stored
	return cloneFingerprint(stored), nil
}

// FilterExistingHashes returns which hashes the user has already imported.
func (m *MemoryStore) FilterExistingHashes(_ context.Context, userID uuid.UUID, hashes []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := make(map[string]bool)
	for _, tx := range m.transactions[userID] {
		owned[tx.DuplicateHash] = true
	}

	existing := make(map[string]bool)
	for _, h := range hashes {
		if owned[h] {
			existing[h] = true
		}
	}
	return existing, nil
}

// PersistImport stores the audit and transactions atomically under the lock.
func (m *MemoryStore) PersistImport(_ context.Context, audit *ImportAudit, txs []*ImportedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	audit.CreatedAt = time.Now()
	m.audits = append(m.audits, audit)

	for _, tx := range txs {
		if tx.ID == uuid.Nil {
			tx.ID = uuid.New()
		}
		tx.ImportID = audit.ID
		tx.CreatedAt = audit.CreatedAt
		m.transactions[tx.UserID] = append(m.transactions[tx.UserID], tx)
	}
	return nil
}

// Audits returns a snapshot of written audit records, oldest first.
func (m *MemoryStore) Audits() []*ImportAudit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ImportAudit, len(m.audits))
	copy(out, m.audits)
	return out
}

// TransactionsFor returns a snapshot of the user's imported transactions.
func (m *MemoryStore) TransactionsFor(userID uuid.UUID) []*ImportedTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ImportedTransaction, len(m.transactions[userID]))
	copy(out, m.transactions[userID])
	return out
}

func cloneFingerprint(fp *Fingerprint) *Fingerprint {
	c := *fp
	c.Columns = fp.Columns.Normalize()
	if fp.LastUsedAt != nil {
		t := *fp.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}
