/**
 * @description
 * Cron scheduler setup for the periodic reminder dispatch cycle.
 */
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the dispatch cycle on a fixed cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	reminders *ReminderService
	logger    *slog.Logger
	schedule  string
}

// NewScheduler creates a new scheduler instance. A cycle that overruns its
// interval causes the next tick to be skipped, never run concurrently.
func NewScheduler(reminders *ReminderService, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	return &Scheduler{
		cron:      c,
		reminders: reminders,
		logger:    logger,
		schedule:  schedule,
	}
}

// Start registers the dispatch job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runDispatchCycle); err != nil {
		s.logger.Error("failed to schedule dispatch cycle", "error", err)
	} else {
		s.logger.Info("scheduled reminder dispatch cycle", "schedule", s.schedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runDispatchCycle() {
	count, err := s.reminders.RunCycle(context.Background())
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			s.logger.Warn("previous dispatch cycle still running, skipped")
			return
		}
		s.logger.Error("dispatch cycle failed", "error", err)
		return
	}
	s.logger.Info("dispatch cycle complete", "dispatched", count)
}
