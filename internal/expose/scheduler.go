package expose

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/logging"
)

// Scheduler runs retention sweeps on a cron schedule
type Scheduler struct {
	logger    zerolog.Logger
	cron      *cron.Cron
	sweeper   Sweeper
	retention time.Duration
}

// NewScheduler registers a sweep of sweeper on schedule. Overlapping runs are
// skipped rather than queued.
func NewScheduler(logger zerolog.Logger, sweeper Sweeper, schedule string, retention time.Duration) (*Scheduler, error) {
	logger = logger.With().Str("component", "sweeper").Logger()
	cronLogger := logging.CronLogger{Logger: logger}

	s := &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeper:   sweeper,
		retention: retention,
	}

	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs a single sweep immediately
func (s *Scheduler) RunOnce() {
	removed, err := s.sweeper.Sweep(context.Background(), s.retention)
	if err != nil {
		s.logger.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("expired key frames removed")
	}
}

// Start begins running the schedule in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Dur("retention", s.retention).Msg("retention sweeps scheduled")
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// expire
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
