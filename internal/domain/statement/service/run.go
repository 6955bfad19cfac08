package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/inference"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/mapping"
)

// RunOptions configures the single-shot analyze-then-import flow used by
// non-interactive callers.
type RunOptions struct {
	SaveAsFingerprint bool
	FingerprintName   string
}

// Run analyzes a file and imports it with the first candidate mapping.
// Fingerprint matches are ordered user-scoped before system-wide, so a
// saved layout always wins over an AI proposal. When inference is required
// but unavailable, Run reports a blocked result instead of an error: the
// caller can retry the same file later.
func (s *ImportService) Run(ctx context.Context, userID uuid.UUID, fileData []byte, opts RunOptions) (*ImportResult, error) {
	analysis, err := s.Analyze(ctx, userID, fileData)
	if err != nil {
		if errors.Is(err, inference.ErrUnavailable) {
			result := &ImportResult{State: StateBlocked, TierUsed: mapping.TierInference}
			s.observeRun(result)
			return result, nil
		}
		return nil, err
	}

	return s.Import(ctx, userID, ImportInput{
		FileToken:         analysis.FileToken,
		Option:            analysis.MappingOptions[0],
		SaveAsFingerprint: opts.SaveAsFingerprint,
		FingerprintName:   opts.FingerprintName,
	})
}
