package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler prunes old journal entries on a cron schedule.
type Scheduler struct {
	store     Store
	schedule  string
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron
	mu        sync.Mutex
	logger    *slog.Logger
	running   bool
}

// NewScheduler creates a scheduler that deletes entries older than retention
// according to schedule (standard 5-field cron syntax).
func NewScheduler(store Store, schedule string, retention time.Duration) *Scheduler {
	return &Scheduler{
		store:     store,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
		cron:      cron.New(),
		logger:    slog.Default().With("component", "journal.scheduler"),
	}
}

// Start validates the schedule and begins pruning in the background.
// If the schedule is empty the scheduler does nothing.
//
// Common cron expressions:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "@every 10m"   - Every 10 minutes
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", s.retention)
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("journal retention scheduler started",
		"schedule", s.schedule,
		"retention", s.retention.String(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce prunes entries older than the retention period immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)

	deleted, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("journal pruning failed", "error", err)
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info("journal pruning completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("journal pruning completed, no entries deleted")
	}
	return deleted, nil
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("journal retention scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil if not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
