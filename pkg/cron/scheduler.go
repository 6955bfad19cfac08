// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper removes expired entries and reports how many were dropped.
// The analyze-session cache satisfies this.
type Sweeper interface {
	Sweep() int
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	sessions Sweeper
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(sessions Sweeper, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		sessions: sessions,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Analyze-session sweep: every 10 minutes
	_, err := s.cron.AddFunc("*/10 * * * *", s.sweepSessions)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the session sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepSessions()
}

// sweepSessions drops expired analyze sessions.
func (s *Scheduler) sweepSessions() {
	dropped := s.sessions.Sweep()
	if dropped > 0 {
		s.logger.Info("swept expired analyze sessions", slog.Int("dropped", dropped))
	}
}
