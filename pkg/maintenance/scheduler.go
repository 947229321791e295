// Package maintenance runs periodic housekeeping jobs on cron schedules.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/turnstile/pkg/observability"
)

// Job is one unit of housekeeping. It receives a context bounded by the job timeout.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules
type Scheduler struct {
	cron    *cron.Cron
	logger  *observability.Logger
	timeout time.Duration
}

// NewScheduler creates a scheduler. Each run is cancelled after timeout; zero means one minute.
func NewScheduler(logger *observability.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		// Overlapping runs of the same job are skipped
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.WithField("component", "maintenance"),
		timeout: timeout,
	}
}

// Add registers job under name. spec accepts standard five-field expressions
// and descriptors such as "@daily" or "@every 1m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": spec,
	}).Info("Scheduled maintenance job")
	return nil
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		logger := s.logger.WithField("job", name)
		if err := job(ctx); err != nil {
			logger.WithError(err).Error("Maintenance job failed")
			return
		}
		logger.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Maintenance job completed")
	}
}

// Start runs the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionPruner deletes audit sessions older than a cutoff
type SessionPruner interface {
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneSessionsJob removes audit sessions older than retention
func PruneSessionsJob(store SessionPruner, retention time.Duration, logger *observability.Logger) Job {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(ctx context.Context) error {
		removed, err := store.PruneSessions(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("Pruned expired audit sessions")
		}
		return nil
	}
}

// Cleaner is anything with an idle-state sweep, such as the in-memory rate limiter
type Cleaner interface {
	Cleanup()
}

// CleanupJob adapts a Cleaner to a Job
func CleanupJob(c Cleaner) Job {
	return func(context.Context) error {
		c.Cleanup()
		return nil
	}
}
