package access

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// StartPeriodicReconcile refreshes the access file from the database on the
// given cron schedule (e.g. "@every 10m"). The job catches up any cycle the
// concurrency guard skipped and picks up users created without a SyncNewUser
// call. An empty schedule disables the job.
func (s *Syncer) StartPeriodicReconcile(ctx context.Context, schedule string) error {
	if schedule == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := s.SyncDatabaseToFile(ctx); err != nil {
			s.logger.Errorf("Periodic access refresh failed: %v", err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "parsing schedule %q", schedule)
	}
	c.Start()
	s.cron = c

	s.logger.Infof("Scheduled periodic access refresh: %s", schedule)
	return nil
}
