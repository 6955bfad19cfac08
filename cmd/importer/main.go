package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/inference"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/repository"
	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/service"
	"github.com/iius-rcox/ExpenseTrack-sub014/pkg/config"
	"github.com/iius-rcox/ExpenseTrack-sub014/pkg/cron"
	"github.com/iius-rcox/ExpenseTrack-sub014/pkg/metrics"
)

func main() {
	var (
		filePath        = flag.String("file", "", "path to the statement file (CSV or XLSX)")
		userFlag        = flag.String("user", "", "user UUID the transactions belong to")
		saveFingerprint = flag.Bool("save-fingerprint", false, "save the resolved mapping for future imports")
		fingerprintName = flag.String("fingerprint-name", "", "display name for the saved mapping")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger, *filePath, *userFlag, *saveFingerprint, *fingerprintName); err != nil {
		logger.Error("import failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, filePath, userFlag string, saveFingerprint bool, fingerprintName string) error {
	if filePath == "" {
		return fmt.Errorf("-file is required")
	}
	userID, err := uuid.Parse(userFlag)
	if err != nil {
		return fmt.Errorf("-user must be a valid UUID: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	inferClient, err := inference.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create inference client: %w", err)
	}

	svc := service.NewImportService(
		repository.NewPostgresFingerprintStore(pool),
		repository.NewPostgresTransactionStore(pool),
		inferClient,
		cfg.Import.SessionTTL,
		logger,
	).WithBatchSize(cfg.Import.BatchSize)

	if cfg.Metrics.Enabled {
		svc.WithMetrics(metrics.New(prometheus.DefaultRegisterer))
		go serveMetrics(cfg.Metrics.Port, logger)
	}

	scheduler := cron.NewScheduler(svc.Sessions(), logger)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	result, err := svc.Run(ctx, userID, fileData, service.RunOptions{
		SaveAsFingerprint: saveFingerprint,
		FingerprintName:   fingerprintName,
	})
	if err != nil {
		return err
	}

	if result.State == service.StateBlocked {
		fmt.Println("import blocked: column inference is unavailable, try again later")
		return nil
	}

	fmt.Printf("state: %s (tier %d)\n", result.State, result.TierUsed)
	fmt.Printf("imported: %d, skipped: %d, duplicates: %d\n",
		result.ImportedCount, result.SkippedCount, result.DuplicateCount)
	if result.FingerprintSaved {
		fmt.Printf("saved mapping %q as %s\n", fingerprintName, result.FingerprintID)
	}
	for _, rowErr := range result.RowErrors {
		fmt.Printf("  %s\n", rowErr)
	}
	return nil
}

func serveMetrics(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics listener started", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", slog.Any("error", err))
	}
}
