package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/mapping"
)

// pgxQuerier is the subset of pgxpool.Pool the repositories need. pgxmock
// satisfies it in tests.
type pgxQuerier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ pgxQuerier = (*pgxpool.Pool)(nil)

// PostgresFingerprintStore implements FingerprintStore using PostgreSQL.
type PostgresFingerprintStore struct {
	db pgxQuerier
}

// NewPostgresFingerprintStore creates a PostgreSQL fingerprint store.
func NewPostgresFingerprintStore(db pgxQuerier) *PostgresFingerprintStore {
	return &PostgresFingerprintStore{db: db}
}

const fingerprintColumns = `id, user_id, header_hash, name, columns, date_format, amount_sign, hit_count, last_used_at, created_at`

// Lookup returns the user's fingerprint and any system-wide fingerprint for
// the hash. User-scoped rows sort first for stable presentation.
func (s *PostgresFingerprintStore) Lookup(ctx context.Context, headerHash string, userID uuid.UUID) ([]*Fingerprint, error) {
	query := `
		SELECT ` + fingerprintColumns + `
		FROM statement_fingerprints
		WHERE header_hash = $1 AND (user_id = $2 OR user_id IS NULL)
		ORDER BY user_id NULLS LAST`

	rows, err := s.db.Query(ctx, query, headerHash, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []*Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// RecordUse increments the hit count and stamps last use.
func (s *PostgresFingerprintStore) RecordUse(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE statement_fingerprints
		SET hit_count = hit_count + 1, last_used_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record fingerprint use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Save inserts a fingerprint. A conflicting row for the same (scope, header
// hash) wins the race: the existing record is selected and returned.
func (s *PostgresFingerprintStore) Save(ctx context.Context, fp *Fingerprint) (*Fingerprint, error) {
	if fp.ID == uuid.Nil {
		fp.ID = uuid.New()
	}
	columnsJSON, err := json.Marshal(fp.Columns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column mapping: %w", err)
	}

	var scopeUserID *uuid.UUID
	if id, ok := fp.Scope.UserID(); ok {
		scopeUserID = &id
	}

	query := `
		INSERT INTO statement_fingerprints (id, user_id, header_hash, name, columns, date_format, amount_sign)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
		RETURNING ` + fingerprintColumns

	row := s.db.QueryRow(ctx, query,
		fp.ID,
		scopeUserID,
		fp.HeaderHash,
		fp.Name,
		columnsJSON,
		fp.DateFormat,
		string(fp.AmountSign),
	)

	saved, err := scanFingerprint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race or the layout was already saved: return the winner.
		return s.getByScopeAndHash(ctx, scopeUserID, fp.HeaderHash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save fingerprint: %w", err)
	}
	return saved, nil
}

func (s *PostgresFingerprintStore) getByScopeAndHash(ctx context.Context, userID *uuid.UUID, headerHash string) (*Fingerprint, error) {
	query := `
		SELECT ` + fingerprintColumns + `
		FROM statement_fingerprints
		WHERE header_hash = $1 AND user_id IS NOT DISTINCT FROM $2`

	fp, err := scanFingerprint(s.db.QueryRow(ctx, query, headerHash, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load existing fingerprint: %w", err)
	}
	return fp, nil
}

func scanFingerprint(row pgx.Row) (*Fingerprint, error) {
	var (
		fp          Fingerprint
		scopeUserID *uuid.UUID
		columnsJSON []byte
		amountSign  string
	)
	err := row.Scan(
		&fp.ID,
		&scopeUserID,
		&fp.HeaderHash,
		&fp.Name,
		&columnsJSON,
		&fp.DateFormat,
		&amountSign,
		&fp.HitCount,
		&fp.LastUsedAt,
		&fp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if scopeUserID != nil {
		fp.Scope = UserScope(*scopeUserID)
	} else {
		fp.Scope = SystemScope()
	}
	if err := json.Unmarshal(columnsJSON, &fp.Columns); err != nil {
		return nil, fmt.Errorf("failed to decode column mapping: %w", err)
	}
	fp.Columns = fp.Columns.Normalize()
	fp.AmountSign = mapping.ParseAmountSign(amountSign)
	return &fp, nil
}

// PostgresTransactionStore implements TransactionStore using PostgreSQL.
type PostgresTransactionStore struct {
	db pgxQuerier
}

// NewPostgresTransactionStore creates a PostgreSQL transaction store.
func NewPostgresTransactionStore(db pgxQuerier) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db}
}

// FilterExistingHashes returns which duplicate hashes already exist for the user.
func (s *PostgresTransactionStore) FilterExistingHashes(ctx context.Context, userID uuid.UUID, hashes []string) (map[string]bool, error) {
	if len(hashes) == 0 {
		return map[string]bool{}, nil
	}

	query := `
		SELECT duplicate_hash
		FROM imported_transactions
		WHERE user_id = $1 AND duplicate_hash = ANY($2)`

	rows, err := s.db.Query(ctx, query, userID, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to filter duplicate hashes: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		existing[h] = true
	}
	return existing, rows.Err()
}

// PersistImport writes the audit record and all transactions atomically.
func (s *PostgresTransactionStore) PersistImport(ctx context.Context, audit *ImportAudit, txs []*ImportedTransaction) error {
	dbTx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}

	auditQuery := `
		INSERT INTO statement_imports (id, user_id, tier_used, imported_count, skipped_count, duplicate_count, fingerprint_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err = dbTx.QueryRow(ctx, auditQuery,
		audit.ID,
		audit.UserID,
		int(audit.TierUsed),
		audit.ImportedCount,
		audit.SkippedCount,
		audit.DuplicateCount,
		audit.FingerprintID,
	).Scan(&audit.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import audit: %w", err)
	}

	if len(txs) > 0 {
		rows := make([][]any, 0, len(txs))
		for _, t := range txs {
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
			t.ImportID = audit.ID
			rows = append(rows, []any{
				t.ID, t.UserID, t.ImportID, t.Date, t.PostDate, t.Description,
				t.Amount, t.Category, t.Memo, t.Reference, t.DuplicateHash,
			})
		}

		_, err = dbTx.CopyFrom(ctx,
			pgx.Identifier{"imported_transactions"},
			[]string{"id", "user_id", "import_id", "date", "post_date", "description", "amount", "category", "memo", "reference", "duplicate_hash"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transactions: %w", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}
