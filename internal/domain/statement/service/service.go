// Package service provides the import orchestration logic: tiered mapping
// resolution, batched row processing, and atomic persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/dedup"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/inference"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/mapping"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/normalizer"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/parser"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/repository"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/sniffer"
	"github.com/iius-rcox/ExpenseTrack-sub014/pkg/metrics"
	"github.com/iius-rcox/ExpenseTrack-sub014/pkg/sessioncache"
)

// State is the explicit orchestrator state. It is carried on results rather
// than derived from field presence.
type State string

const (
	StateResolving  State = "resolving"
	StateParsing    State = "parsing"
	StateValidating State = "validating"
	StatePersisting State = "persisting"
	StateCompleted  State = "completed"
	StateBlocked    State = "blocked"
	StateFailed     State = "failed"
)

const defaultBatchSize = 500

var (
	// ErrSessionExpired reports that the analyze session for a file token is
	// gone; the caller must re-run analyze.
	ErrSessionExpired = errors.New("analyze session expired or unknown")
	// ErrWrongUser reports a file token presented by a different user than
	// the one who analyzed the file.
	ErrWrongUser = errors.New("file token belongs to another user")
)

// analyzeSession parks a decoded file between analyze and import.
type analyzeSession struct {
	userID uuid.UUID
	data   []byte
	format parser.Format
	config *sniffer.FileConfig
}

// AnalyzeResult is the analyze-boundary output: detected layout plus every
// candidate mapping. The engine never auto-selects an option.
type AnalyzeResult struct {
	FileToken      string
	Headers        []string
	SampleRows     [][]string
	MappingOptions []mapping.Option
}

// ImportInput is the import-boundary input. Option is the mapping the
// caller confirmed, exactly as returned from analyze (possibly edited).
type ImportInput struct {
	FileToken         string
	Option            mapping.Option
	SaveAsFingerprint bool
	FingerprintName   string
}

// ImportResult is the structured outcome of one import run. A blocked run
// still returns a result so callers can distinguish "nothing happened,
// retry" from partial skips.
type ImportResult struct {
	State            State
	TierUsed         mapping.Tier
	ImportedCount    int
	SkippedCount     int
	DuplicateCount   int
	FingerprintSaved bool
	FingerprintID    *uuid.UUID
	RowErrors        []string
}

// ImportService orchestrates statement analysis and import.
type ImportService struct {
	fingerprints repository.FingerprintStore
	transactions repository.TransactionStore
	inferClient  inference.Client
	sessions     *sessioncache.Cache[*analyzeSession]
	metrics      *metrics.Metrics
	batchSize    int
	logger       *slog.Logger
	now          func() time.Time
}

// NewImportService creates an import service. sessionTTL bounds the
// analyze-to-import handoff window.
func NewImportService(
	fingerprints repository.FingerprintStore,
	transactions repository.TransactionStore,
	inferClient inference.Client,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *ImportService {
	return &ImportService{
		fingerprints: fingerprints,
		transactions: transactions,
		inferClient:  inferClient,
		sessions:     sessioncache.New[*analyzeSession](sessionTTL),
		batchSize:    defaultBatchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// WithMetrics adds Prometheus counters to the service.
func (s *ImportService) WithMetrics(m *metrics.Metrics) *ImportService {
	s.metrics = m
	return s
}

// WithBatchSize overrides the row batch size.
func (s *ImportService) WithBatchSize(n int) *ImportService {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Sessions exposes the analyze-session cache for scheduled sweeping.
func (s *ImportService) Sessions() *sessioncache.Cache[*analyzeSession] {
	return s.sessions
}

// Analyze decodes an uploaded statement, fingerprints its header set, and
// assembles the candidate mappings: every stored fingerprint match (tier 1),
// or — only when there are zero matches — a single AI proposal (tier 3).
// Inference failure blocks the flow; there is no degraded parse.
func (s *ImportService) Analyze(ctx context.Context, userID uuid.UUID, fileData []byte) (*AnalyzeResult, error) {
	format := parser.DetectFormat(fileData)

	var (
		config *sniffer.FileConfig
		err    error
	)
	switch format {
	case parser.FormatXLSX:
		config, err = parser.DetectXLSXConfig(fileData)
	default:
		fileData, err = sniffer.NormalizeEncoding(fileData)
		if err == nil {
			config, err = sniffer.DetectConfig(fileData)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}

	matches, err := s.fingerprints.Lookup(ctx, config.HeaderHash, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup fingerprints: %w", err)
	}

	var options []mapping.Option
	for _, fp := range matches {
		options = append(options, fingerprintOption(fp))
	}

	if len(options) == 0 {
		sampleForModel := config.SampleRows
		if len(sampleForModel) > 3 {
			sampleForModel = sampleForModel[:3]
		}
		inferred, err := s.inferClient.Infer(ctx, config.Headers, sampleForModel)
		if err != nil {
			if errors.Is(err, inference.ErrUnavailable) {
				s.metrics.ObserveInferenceFailure()
				s.logger.Warn("column inference unavailable", slog.Any("error", err))
			}
			return nil, err
		}
		confidence := inferred.Confidence
		options = append(options, mapping.Option{
			Tier:       mapping.TierInference,
			SourceName: "AI suggestion",
			Columns:    inferred.Columns.Normalize(),
			DateFormat: inferred.DateFormat,
			AmountSign: inferred.AmountSign,
			Confidence: &confidence,
		})
	}

	token := uuid.NewString()
	s.sessions.Put(token, &analyzeSession{
		userID: userID,
		data:   fileData,
		format: format,
		config: config,
	})

	return &AnalyzeResult{
		FileToken:      token,
		Headers:        config.Headers,
		SampleRows:     config.SampleRows,
		MappingOptions: options,
	}, nil
}

func fingerprintOption(fp *repository.Fingerprint) mapping.Option {
	id := fp.ID
	name := fp.Name
	if name == "" {
		if fp.Scope.IsSystem() {
			name = "Shared layout"
		} else {
			name = "Your saved layout"
		}
	}
	return mapping.Option{
		Tier:          mapping.TierFingerprint,
		FingerprintID: &id,
		SourceName:    name,
		Columns:       fp.Columns.Normalize(),
		DateFormat:    fp.DateFormat,
		AmountSign:    fp.AmountSign,
	}
}

// Import processes the analyzed file with the confirmed mapping. Rows are
// read in fixed-size batches, in file order; per-row failures are counted
// and skipped, never fatal. All surviving rows and the audit record commit
// in one transaction, or not at all.
func (s *ImportService) Import(ctx context.Context, userID uuid.UUID, input ImportInput) (*ImportResult, error) {
	session, ok := s.sessions.Get(input.FileToken)
	if !ok {
		return nil, ErrSessionExpired
	}
	if session.userID != userID {
		return nil, ErrWrongUser
	}

	result := &ImportResult{State: StateResolving, TierUsed: input.Option.Tier}

	columns := input.Option.Columns.Normalize()
	indexes, err := columns.ResolveIndexes(session.config.Headers)
	if err != nil {
		result.State = StateFailed
		s.observeRun(result)
		return result, fmt.Errorf("failed to resolve column mapping: %w", err)
	}
	layout := normalizer.LayoutFromPattern(input.Option.DateFormat)

	// Tier-3 mappings saved by the caller become fingerprints up front so
	// the audit record can reference them.
	if input.SaveAsFingerprint && input.Option.FingerprintID == nil {
		saved, err := s.fingerprints.Save(ctx, &repository.Fingerprint{
			Scope:      repository.UserScope(userID),
			HeaderHash: session.config.HeaderHash,
			Name:       input.FingerprintName,
			Columns:    columns,
			DateFormat: layout,
			AmountSign: input.Option.AmountSign,
		})
		if err != nil {
			s.logger.Warn("failed to save fingerprint", slog.Any("error", err))
		} else {
			result.FingerprintSaved = true
			id := saved.ID
			result.FingerprintID = &id
		}
	} else if input.Option.FingerprintID != nil {
		result.FingerprintID = input.Option.FingerprintID
	}

	stream, err := s.openStream(session)
	if err != nil {
		result.State = StateFailed
		s.observeRun(result)
		return result, fmt.Errorf("failed to open row stream: %w", err)
	}
	defer stream.Close()

	detector := dedup.NewDetector(s.transactions, userID)
	var survivors []*repository.ImportedTransaction

	result.State = StateParsing
	for {
		// Cancellation is honored between batches, never mid-row.
		if err := ctx.Err(); err != nil {
			result.State = StateFailed
			s.observeRun(result)
			return result, err
		}

		batch, done, err := s.readBatch(stream)
		if err != nil {
			result.State = StateFailed
			s.observeRun(result)
			return result, fmt.Errorf("failed to read rows: %w", err)
		}
		if len(batch) > 0 {
			result.State = StateValidating
			kept, err := s.processBatch(ctx, userID, batch, indexes, layout, input.Option.AmountSign, detector, result)
			if err != nil {
				result.State = StateFailed
				s.observeRun(result)
				return result, err
			}
			survivors = append(survivors, kept...)
		}
		if done {
			break
		}
	}

	result.State = StatePersisting
	audit := &repository.ImportAudit{
		UserID:         userID,
		TierUsed:       input.Option.Tier,
		ImportedCount:  len(survivors),
		SkippedCount:   result.SkippedCount,
		DuplicateCount: result.DuplicateCount,
		FingerprintID:  result.FingerprintID,
	}
	if err := s.transactions.PersistImport(ctx, audit, survivors); err != nil {
		result.State = StateFailed
		s.observeRun(result)
		return result, fmt.Errorf("failed to persist import: %w", err)
	}
	result.ImportedCount = len(survivors)

	// The only mutation of an existing fingerprint: usage accounting after
	// a confirmed, successful reuse.
	if input.Option.Tier == mapping.TierFingerprint && input.Option.FingerprintID != nil {
		if err := s.fingerprints.RecordUse(ctx, *input.Option.FingerprintID); err != nil {
			s.logger.Warn("failed to record fingerprint use",
				slog.String("fingerprint_id", input.Option.FingerprintID.String()),
				slog.Any("error", err),
			)
		}
	}

	s.sessions.Delete(input.FileToken)
	result.State = StateCompleted
	s.observeRun(result)

	s.logger.Info("statement import completed",
		slog.String("user_id", userID.String()),
		slog.Int("tier", int(result.TierUsed)),
		slog.Int("imported", result.ImportedCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Int("duplicates", result.DuplicateCount),
	)
	return result, nil
}

type rawRow struct {
	lineNum int
	record  []string
}

// readBatch reads up to batchSize records. done is true once the stream is
// exhausted.
func (s *ImportService) readBatch(stream parser.RowStream) ([]rawRow, bool, error) {
	batch := make([]rawRow, 0, s.batchSize)
	for len(batch) < s.batchSize {
		record, lineNum, err := stream.Next()
		if err == io.EOF {
			return batch, true, nil
		}
		if err != nil {
			return batch, false, err
		}
		batch = append(batch, rawRow{lineNum: lineNum, record: record})
	}
	return batch, false, nil
}

// processBatch parses, validates, and dedupes one batch, in file order.
func (s *ImportService) processBatch(
	ctx context.Context,
	userID uuid.UUID,
	batch []rawRow,
	indexes mapping.ColumnIndexes,
	layout string,
	sign mapping.AmountSign,
	detector *dedup.Detector,
	result *ImportResult,
) ([]*repository.ImportedTransaction, error) {
	candidates := make([]*repository.ImportedTransaction, 0, len(batch))
	hashes := make([]string, 0, len(batch))

	for _, row := range batch {
		tx, reason := s.parseRow(userID, row, indexes, layout, sign)
		if reason != "" {
			result.SkippedCount++
			s.metrics.ObserveRows("skipped_invalid", 1)
			if len(result.RowErrors) < maxRowErrors {
				result.RowErrors = append(result.RowErrors, fmt.Sprintf("line %d: %s", row.lineNum, reason))
			}
			continue
		}
		candidates = append(candidates, tx)
		hashes = append(hashes, tx.DuplicateHash)
	}

	duplicate, err := detector.FilterBatch(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicates: %w", err)
	}

	kept := candidates[:0]
	for i, tx := range candidates {
		if duplicate[i] {
			result.DuplicateCount++
			s.metrics.ObserveRows("skipped_duplicate", 1)
			continue
		}
		s.metrics.ObserveRows("imported", 1)
		kept = append(kept, tx)
	}
	return kept, nil
}

const maxRowErrors = 50

// parseRow maps one record onto a transaction candidate. A non-empty reason
// marks the row invalid.
func (s *ImportService) parseRow(
	userID uuid.UUID,
	row rawRow,
	indexes mapping.ColumnIndexes,
	layout string,
	sign mapping.AmountSign,
) (*repository.ImportedTransaction, string) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row.record) {
			return ""
		}
		return row.record[idx]
	}

	date, err := normalizer.ParseDate(cell(indexes.Date), layout)
	if err != nil {
		return nil, fmt.Sprintf("invalid date %q", cell(indexes.Date))
	}

	description := normalizer.CleanDescription(cell(indexes.Description))

	amount, err := normalizer.NormalizeAmount(cell(indexes.Amount), sign)
	if err != nil {
		return nil, fmt.Sprintf("invalid amount %q", cell(indexes.Amount))
	}

	if reason := validateRow(date, amount, description, s.now()); reason != "" {
		return nil, reason
	}

	var postDate *time.Time
	if indexes.PostDate >= 0 {
		if pd, err := normalizer.ParseDate(cell(indexes.PostDate), layout); err == nil {
			postDate = &pd
		}
	}

	return &repository.ImportedTransaction{
		UserID:        userID,
		Date:          date,
		PostDate:      postDate,
		Description:   description,
		Amount:        amount,
		Category:      normalizer.CleanDescription(cell(indexes.Category)),
		Memo:          normalizer.CleanDescription(cell(indexes.Memo)),
		Reference:     normalizer.CleanDescription(cell(indexes.Reference)),
		DuplicateHash: dedup.Hash(date, amount, description),
	}, ""
}

func (s *ImportService) openStream(session *analyzeSession) (parser.RowStream, error) {
	if session.format == parser.FormatXLSX {
		return parser.NewXLSXStream(session.data, session.config.SkipLines)
	}
	return parser.NewCSVStream(session.data, session.config.Delimiter, session.config.SkipLines)
}

func (s *ImportService) observeRun(result *ImportResult) {
	s.metrics.ObserveImport(fmt.Sprintf("%d", int(result.TierUsed)), string(result.State))
}
