package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/inference"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/mapping"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/repository"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/sniffer"
)

// stubInference counts calls and returns a canned result.
type stubInference struct {
	result *inference.Result
	err    error
	calls  int
}

func (s *stubInference) Infer(_ context.Context, _ []string, _ [][]string) (*inference.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

const chaseStyleCSV = "Transaction Date,Post Date,Description,Amount\n" +
	"01/15/2025,01/16/2025,COFFEE SHOP #42,-45.99\n" +
	"01/17/2025,01/18/2025,PAYROLL DEPOSIT,2500.00\n"

var chaseHeaders = []string{"Transaction Date", "Post Date", "Description", "Amount"}

var chaseColumns = mapping.ColumnMapping{
	"Transaction Date": mapping.FieldDate,
	"Post Date":        mapping.FieldPostDate,
	"Description":      mapping.FieldDescription,
	"Amount":           mapping.FieldAmount,
}

func newTestService(t *testing.T, store *repository.MemoryStore, client inference.Client) *ImportService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewImportService(store, store, client, time.Minute, logger)
	svc.now = func() time.Time {
		return time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	}
	return svc
}

func saveChaseFingerprint(t *testing.T, store *repository.MemoryStore, userID uuid.UUID) *repository.Fingerprint {
	t.Helper()
	fp, err := store.Save(context.Background(), &repository.Fingerprint{
		Scope:      repository.UserScope(userID),
		HeaderHash: sniffer.HashHeaders(chaseHeaders),
		Name:       "Chase Credit Card",
		Columns:    chaseColumns,
		DateFormat: "MM/dd/yyyy",
		AmountSign: mapping.NegativeChargesAreExpenses,
	})
	require.NoError(t, err)
	return fp
}

func TestImportService_Analyze(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("recognized layout offers the fingerprint without inference", func(t *testing.T) {
		store := repository.NewMemoryStore()
		fp := saveChaseFingerprint(t, store, userID)
		client := &stubInference{}
		svc := newTestService(t, store, client)

		analysis, err := svc.Analyze(ctx, userID, []byte(chaseStyleCSV))
		require.NoError(t, err)

		assert.Equal(t, 0, client.calls)
		assert.Equal(t, chaseHeaders, analysis.Headers)
		assert.Len(t, analysis.SampleRows, 2)
		require.Len(t, analysis.MappingOptions, 1)

		opt := analysis.MappingOptions[0]
		assert.Equal(t, mapping.TierFingerprint, opt.Tier)
		require.NotNil(t, opt.FingerprintID)
		assert.Equal(t, fp.ID, *opt.FingerprintID)
		assert.Equal(t, "Chase Credit Card", opt.SourceName)
		assert.Nil(t, opt.Confidence)
	})

	t.Run("unknown layout gets exactly one AI proposal", func(t *testing.T) {
		store := repository.NewMemoryStore()
		client := &stubInference{result: &inference.Result{
			Columns:    chaseColumns,
			DateFormat: "01/02/2006",
			AmountSign: mapping.NegativeChargesAreExpenses,
			Confidence: 0.92,
		}}
		svc := newTestService(t, store, client)

		analysis, err := svc.Analyze(ctx, userID, []byte(chaseStyleCSV))
		require.NoError(t, err)

		assert.Equal(t, 1, client.calls)
		require.Len(t, analysis.MappingOptions, 1)

		opt := analysis.MappingOptions[0]
		assert.Equal(t, mapping.TierInference, opt.Tier)
		assert.Nil(t, opt.FingerprintID)
		require.NotNil(t, opt.Confidence)
		assert.InDelta(t, 0.92, *opt.Confidence, 1e-9)
	})

	t.Run("user and system fingerprints both surface, user first", func(t *testing.T) {
		store := repository.NewMemoryStore()
		saveChaseFingerprint(t, store, userID)
		_, err := store.Save(ctx, &repository.Fingerprint{
			Scope:      repository.SystemScope(),
			HeaderHash: sniffer.HashHeaders(chaseHeaders),
			Columns:    chaseColumns,
			DateFormat: "MM/dd/yyyy",
			AmountSign: mapping.NegativeChargesAreExpenses,
		})
		require.NoError(t, err)

		client := &stubInference{}
		svc := newTestService(t, store, client)

		analysis, err := svc.Analyze(ctx, userID, []byte(chaseStyleCSV))
		require.NoError(t, err)

		assert.Equal(t, 0, client.calls)
		require.Len(t, analysis.MappingOptions, 2)
		assert.Equal(t, "Chase Credit Card", analysis.MappingOptions[0].SourceName)
		assert.Equal(t, "Shared layout", analysis.MappingOptions[1].SourceName)
	})

	t.Run("inference failure blocks the flow", func(t *testing.T) {
		store := repository.NewMemoryStore()
		client := &stubInference{err: fmt.Errorf("%w: context deadline exceeded", inference.ErrUnavailable)}
		svc := newTestService(t, store, client)

		_, err := svc.Analyze(ctx, userID, []byte(chaseStyleCSV))
		assert.ErrorIs(t, err, inference.ErrUnavailable)
	})

	t.Run("unreadable file", func(t *testing.T) {
		store := repository.NewMemoryStore()
		svc := newTestService(t, store, &stubInference{})

		_, err := svc.Analyze(ctx, userID, []byte{'D', 0x00, 'a', 0x00})
		assert.ErrorIs(t, err, sniffer.ErrUnsupportedEncoding)
	})
}

func TestImportService_Run(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("fingerprint hit imports end to end", func(t *testing.T) {
		store := repository.NewMemoryStore()
		fp := saveChaseFingerprint(t, store, userID)
		client := &stubInference{}
		svc := newTestService(t, store, client)

		result, err := svc.Run(ctx, userID, []byte(chaseStyleCSV), RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, StateCompleted, result.State)
		assert.Equal(t, mapping.TierFingerprint, result.TierUsed)
		assert.Equal(t, 2, result.ImportedCount)
		assert.Equal(t, 0, result.SkippedCount)
		assert.Equal(t, 0, result.DuplicateCount)
		assert.Equal(t, 0, client.calls)

		txs := store.TransactionsFor(userID)
		require.Len(t, txs, 2)

		coffee := txs[0]
		assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), coffee.Date)
		require.NotNil(t, coffee.PostDate)
		assert.Equal(t, time.Date(2025, time.January, 16, 0, 0, 0, 0, time.UTC), *coffee.PostDate)
		assert.Equal(t, "COFFEE SHOP #42", coffee.Description)
		// -45.99 under the negative-charges convention is a 45.99 expense.
		assert.Equal(t, "45.99", coffee.Amount.String())

		// The deposit flips the other way.
		assert.Equal(t, "-2500", txs[1].Amount.String())

		audits := store.Audits()
		require.Len(t, audits, 1)
		assert.Equal(t, mapping.TierFingerprint, audits[0].TierUsed)
		assert.Equal(t, 2, audits[0].ImportedCount)
		require.NotNil(t, audits[0].FingerprintID)
		assert.Equal(t, fp.ID, *audits[0].FingerprintID)

		// Confirmed reuse bumps the hit count exactly once.
		fps, err := store.Lookup(ctx, fp.HeaderHash, userID)
		require.NoError(t, err)
		require.Len(t, fps, 1)
		assert.Equal(t, 1, fps[0].HitCount)
	})

	t.Run("unknown layout imports via the AI proposal", func(t *testing.T) {
		store := repository.NewMemoryStore()
		client := &stubInference{result: &inference.Result{
			Columns:    chaseColumns,
			DateFormat: "01/02/2006",
			AmountSign: mapping.NegativeChargesAreExpenses,
			Confidence: 0.9,
		}}
		svc := newTestService(t, store, client)

		result, err := svc.Run(ctx, userID, []byte(chaseStyleCSV), RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 1, client.calls)
		assert.Equal(t, StateCompleted, result.State)
		assert.Equal(t, mapping.TierInference, result.TierUsed)
		assert.Equal(t, 2, result.ImportedCount)
		assert.False(t, result.FingerprintSaved)

		audits := store.Audits()
		require.Len(t, audits, 1)
		assert.Equal(t, mapping.TierInference, audits[0].TierUsed)
		assert.Nil(t, audits[0].FingerprintID)
	})

	t.Run("saving the AI mapping promotes it to a fingerprint", func(t *testing.T) {
		store := repository.NewMemoryStore()
		client := &stubInference{result: &inference.Result{
			Columns:    chaseColumns,
			DateFormat: "01/02/2006",
			AmountSign: mapping.NegativeChargesAreExpenses,
			Confidence: 0.9,
		}}
		svc := newTestService(t, store, client)

		result, err := svc.Run(ctx, userID, []byte(chaseStyleCSV), RunOptions{
			SaveAsFingerprint: true,
			FingerprintName:   "My New Bank",
		})
		require.NoError(t, err)

		assert.True(t, result.FingerprintSaved)
		require.NotNil(t, result.FingerprintID)

		audits := store.Audits()
		require.Len(t, audits, 1)
		assert.Equal(t, result.FingerprintID, audits[0].FingerprintID)

		// The next analyze of the same layout is a cache hit: no second
		// inference call, ever, for a layout the user confirmed.
		analysis, err := svc.Analyze(ctx, userID, []byte(chaseStyleCSV))
		require.NoError(t, err)
		assert.Equal(t, 1, client.calls)
		require.Len(t, analysis.MappingOptions, 1)
		assert.Equal(t, mapping.TierFingerprint, analysis.MappingOptions[0].Tier)
		assert.Equal(t, "My New Bank", analysis.MappingOptions[0].SourceName)
	})

	t.Run("inference outage blocks the run without an audit", func(t *testing.T) {
		store := repository.NewMemoryStore()
		client := &stubInference{err: fmt.Errorf("%w: 429", inference.ErrUnavailable)}
		svc := newTestService(t, store, client)

		result, err := svc.Run(ctx, userID, []byte(chaseStyleCSV), RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, StateBlocked, result.State)
		assert.Equal(t, 0, result.ImportedCount)
		assert.Empty(t, store.Audits())
		assert.Empty(t, store.TransactionsFor(userID))
	})
}

func TestImportService_Import(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	analyze := func(t *testing.T, svc *ImportService, file string) *AnalyzeResult {
		t.Helper()
		analysis, err := svc.Analyze(ctx, userID, []byte(file))
		require.NoError(t, err)
		require.NotEmpty(t, analysis.MappingOptions)
		return analysis
	}

	t.Run("invalid rows are skipped and reported, not fatal", func(t *testing.T) {
		file := "Transaction Date,Post Date,Description,Amount\n" +
			"01/15/2025,01/16/2025,COFFEE SHOP,-45.99\n" +
			"pending,,GAS STATION,-20.00\n" + // unparseable date
			"01/17/2025,,FEE REVERSAL,0.00\n" + // zero amount
			"01/18/2025,,,-5.00\n" + // empty description
			"01/15/2010,,ANCIENT ROW,-9.99\n" // outside the date window

		store := repository.NewMemoryStore()
		saveChaseFingerprint(t, store, userID)
		svc := newTestService(t, store, &stubInference{})

		analysis := analyze(t, svc, file)
		result, err := svc.Import(ctx, userID, ImportInput{
			FileToken: analysis.FileToken,
			Option:    analysis.MappingOptions[0],
		})
		require.NoError(t, err)

		assert.Equal(t, StateCompleted, result.State)
		assert.Equal(t, 1, result.ImportedCount)
		assert.Equal(t, 4, result.SkippedCount)
		assert.Len(t, result.RowErrors, 4)
		assert.Contains(t, result.RowErrors[0], "line 3")

		audits := store.Audits()
		require.Len(t, audits, 1)
		assert.Equal(t, 4, audits[0].SkippedCount)
	})

	t.Run("duplicates within the file and across imports", func(t *testing.T) {
		file := "Transaction Date,Post Date,Description,Amount\n" +
			"01/15/2025,,COFFEE SHOP,-4.50\n" +
			"01/15/2025,,COFFEE SHOP,-4.50\n" + // same day, same merchant, same amount
			"01/15/2025,,COFFEE SHOP,-5.50\n"

		store := repository.NewMemoryStore()
		saveChaseFingerprint(t, store, userID)
		svc := newTestService(t, store, &stubInference{})

		analysis := analyze(t, svc, file)
		first, err := svc.Import(ctx, userID, ImportInput{
			FileToken: analysis.FileToken,
			Option:    analysis.MappingOptions[0],
		})
		require.NoError(t, err)
		assert.Equal(t, 2, first.ImportedCount)
		assert.Equal(t, 1, first.DuplicateCount)

		// Re-importing the same file drops every row as a duplicate but
		// still records the attempt.
		analysis = analyze(t, svc, file)
		second, err := svc.Import(ctx, userID, ImportInput{
			FileToken: analysis.FileToken,
			Option:    analysis.MappingOptions[0],
		})
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, second.State)
		assert.Equal(t, 0, second.ImportedCount)
		assert.Equal(t, 3, second.DuplicateCount)

		assert.Len(t, store.Audits(), 2)
		assert.Len(t, store.TransactionsFor(userID), 2)
	})

	t.Run("file order survives small batches", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("Transaction Date,Post Date,Description,Amount\n")
		for i := 0; i < 5; i++ {
			fmt.Fprintf(&sb, "01/15/2025,,MERCHANT %d,-%d.00\n", i, i+1)
		}

		store := repository.NewMemoryStore()
		saveChaseFingerprint(t, store, userID)
		svc := newTestService(t, store, &stubInference{}).WithBatchSize(2)

		analysis := analyze(t, svc, sb.String())
		result, err := svc.Import(ctx, userID, ImportInput{
			FileToken: analysis.FileToken,
			Option:    analysis.MappingOptions[0],
		})
		require.NoError(t, err)
		assert.Equal(t, 5, result.ImportedCount)

		txs := store.TransactionsFor(userID)
		require.Len(t, txs, 5)
		for i, tx := range txs {
			assert.Equal(t, fmt.Sprintf("MERCHANT %d", i), tx.Description)
		}
	})

	t.Run("cancellation stops at a batch boundary with no partial write", func(t *testing.T) {
		store := repository.NewMemoryStore()
		saveChaseFingerprint(t, store, userID)
		svc := newTestService(t, store, &stubInference{})

		analysis := analyze(t, svc, chaseStyleCSV)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := svc.Import(cancelled, userID, ImportInput{
			FileToken: analysis.FileToken,
			Option:    analysis.MappingOptions[0],
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StateFailed, result.State)
		assert.Empty(t, store.Audits())
		assert.Empty(t, store.TransactionsFor(userID))
	})

	t.Run("expired or unknown token", func(t *testing.T) {
		store := repository.NewMemoryStore()
		svc := newTestService(t, store, &stubInference{})

		_, err := svc.Import(ctx, userID, ImportInput{FileToken: uuid.NewString()})
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("token is bound to the analyzing user", func(t *testing.T) {
		store := repository.NewMemoryStore()
		saveChaseFingerprint(t, store, userID)
		svc := newTestService(t, store, &stubInference{})

		analysis := analyze(t, svc, chaseStyleCSV)
		_, err := svc.Import(ctx, uuid.New(), ImportInput{
			FileToken: analysis.FileToken,
			Option:    analysis.MappingOptions[0],
		})
		assert.ErrorIs(t, err, ErrWrongUser)
	})

	t.Run("token is consumed by a completed import", func(t *testing.T) {
		store := repository.NewMemoryStore()
		saveChaseFingerprint(t, store, userID)
		svc := newTestService(t, store, &stubInference{})

		analysis := analyze(t, svc, chaseStyleCSV)
		input := ImportInput{FileToken: analysis.FileToken, Option: analysis.MappingOptions[0]}

		_, err := svc.Import(ctx, userID, input)
		require.NoError(t, err)

		_, err = svc.Import(ctx, userID, input)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("mapping without required fields fails before parsing", func(t *testing.T) {
		store := repository.NewMemoryStore()
		saveChaseFingerprint(t, store, userID)
		svc := newTestService(t, store, &stubInference{})

		analysis := analyze(t, svc, chaseStyleCSV)
		opt := analysis.MappingOptions[0]
		opt.Columns = mapping.ColumnMapping{"Transaction Date": mapping.FieldDate}

		result, err := svc.Import(ctx, userID, ImportInput{
			FileToken: analysis.FileToken,
			Option:    opt,
		})
		require.Error(t, err)
		assert.Equal(t, StateFailed, result.State)
		assert.Empty(t, store.Audits())
	})

	t.Run("european layout parses day first", func(t *testing.T) {
		file := "Date,Description,Amount\n03/01/2025,SUPERMARKET,\"-30,00\"\n"
		store := repository.NewMemoryStore()
		_, err := store.Save(ctx, &repository.Fingerprint{
			Scope:      repository.UserScope(userID),
			HeaderHash: sniffer.HashHeaders([]string{"Date", "Description", "Amount"}),
			Name:       "EU Bank",
			Columns: mapping.ColumnMapping{
				"Date":        mapping.FieldDate,
				"Description": mapping.FieldDescription,
				"Amount":      mapping.FieldAmount,
			},
			DateFormat: "dd/MM/yyyy",
			AmountSign: mapping.NegativeChargesAreExpenses,
		})
		require.NoError(t, err)
		svc := newTestService(t, store, &stubInference{})

		analysis := analyze(t, svc, file)
		result, err := svc.Import(ctx, userID, ImportInput{
			FileToken: analysis.FileToken,
			Option:    analysis.MappingOptions[0],
		})
		require.NoError(t, err)
		require.Equal(t, 1, result.ImportedCount)

		txs := store.TransactionsFor(userID)
		require.Len(t, txs, 1)
		assert.Equal(t, time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC), txs[0].Date)
		assert.Equal(t, "30", txs[0].Amount.String())
	})
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}

func TestValidateRow(t *testing.T) {
	now := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		date        time.Time
		amountValue string
		description string
		wantReason  string
	}{
		{"valid", now, "45.99", "COFFEE", ""},
		{"zero date", time.Time{}, "45.99", "COFFEE", "missing date"},
		{"too old", now.AddDate(-3, 0, 0), "45.99", "COFFEE", "date out of range"},
		{"too far ahead", now.AddDate(3, 0, 0), "45.99", "COFFEE", "date out of range"},
		{"zero amount", now, "0.00", "COFFEE", "zero amount"},
		{"empty description", now, "45.99", "", "empty description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := validateRow(tt.date, mustDecimal(t, tt.amountValue), tt.description, now)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}
