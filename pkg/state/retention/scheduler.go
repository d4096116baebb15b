package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/securecheckio/rules-engine/pkg/state/storage"
)

// DefaultSchedule prunes hourly, on the hour.
const DefaultSchedule = "0 * * * *"

// Scheduler runs expired-state pruning against the SQLite store on a cron
// schedule.
type Scheduler struct {
	store    *storage.SQLiteStore
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for the store. An empty schedule means
// DefaultSchedule.
func NewScheduler(store *storage.SQLiteStore, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "state.retention"),
	}
}

// Start begins scheduled pruning. It validates the cron expression and runs
// one immediate prune so restarts do not defer cleanup by a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.prune(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("state retention scheduler started", "schedule", s.schedule)

	go s.prune(ctx)
	return nil
}

func (s *Scheduler) prune(ctx context.Context) {
	pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.store.PruneExpired(pruneCtx, time.Now()); err != nil {
		s.logger.Error("state pruning failed", "error", err)
	}
}

// Stop halts scheduled pruning and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("state retention scheduler stopped")
}
