// Package scheduler runs periodic background jobs such as leaderboard cache warming.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/lms-gamification/internal/config"
	prommetrics "github.com/aimd54/lms-gamification/internal/metrics"
	"github.com/aimd54/lms-gamification/pkg/logger"
)

// Warmer recomputes and caches leaderboard snapshots.
type Warmer interface {
	Refresh(ctx context.Context) error
}

// Service handles cron scheduling of the cache warming job.
type Service struct {
	config  *config.Config
	warmer  Warmer
	log     *logger.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// NewService creates a new scheduler service.
func NewService(cfg *config.Config, warmer Warmer, log *logger.Logger) *Service {
	return &Service{
		config:  cfg,
		warmer:  warmer,
		log:     log,
		timeout: time.Minute,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Gamification.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Gamification.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	schedule := s.config.Scheduler.WarmSchedule
	if schedule == "" {
		schedule = fmt.Sprintf("@every %s", s.config.Leaderboard.UpdateInterval)
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.runCacheWarm(ctx)
	}); err != nil {
		return fmt.Errorf("failed to register cache warm job %q: %w", schedule, err)
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("timezone", location.String()).
		Str("next_run", nextRun).
		Msg("Scheduler started")

	return nil
}

// Stop stops the cron scheduler and waits for a running job to finish or ctx to expire.
func (s *Service) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	s.log.Info().Msg("Stopping scheduler")
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("Scheduler stop timed out with a job still running")
	}
}

// runCacheWarm executes the cache warming job.
func (s *Service) runCacheWarm(ctx context.Context) {
	start := time.Now()

	if err := s.warmer.Refresh(ctx); err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Leaderboard cache warm failed")
		prommetrics.RecordCacheWarmRun("error")
		return
	}

	prommetrics.RecordCacheWarmRun("success")
	s.log.Debug().
		Dur("duration", time.Since(start)).
		Msg("Leaderboard cache warmed")
}
