package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
)

// Service removes terminal jobs past retention, along with their blobs.
// Runs on a cron schedule and on demand via the admin API.
type Service struct {
	jobs          interfaces.JobStorage
	blobs         interfaces.BlobStorage
	schedule      string
	retentionDays int
	cron          *cron.Cron
	logger        arbor.ILogger
}

var _ interfaces.CleanupService = (*Service)(nil)

// NewService creates the retention cleanup service
func NewService(jobs interfaces.JobStorage, blobs interfaces.BlobStorage, schedule string, retentionDays int, logger arbor.ILogger) *Service {
	return &Service{
		jobs:          jobs,
		blobs:         blobs,
		schedule:      schedule,
		retentionDays: retentionDays,
		cron:          cron.New(),
		logger:        logger,
	}
}

// Start registers the schedule and starts the cron runner
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.Run(ctx, s.retentionDays); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.schedule).
		Int("retention_days", s.retentionDays).
		Msg("Cleanup scheduler started")
	return nil
}

// Stop halts the cron runner, waiting for a running sweep
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Cleanup scheduler stopped")
}

// Run deletes terminal jobs older than retentionDays and their blobs,
// returning the number removed.
func (s *Service) Run(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = s.retentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	deleted, err := s.jobs.Cleanup(ctx, cutoff, nil)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}

	for _, job := range deleted {
		if job.BlobHandle == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, job.BlobHandle); err != nil {
			s.logger.Warn().Err(err).
				Str("job_id", job.ID).
				Str("handle", job.BlobHandle).
				Msg("Failed to delete blob during cleanup")
		}
	}

	s.logger.Info().
		Int("deleted", len(deleted)).
		Int("retention_days", retentionDays).
		Msg("Retention cleanup finished")
	return len(deleted), nil
}
