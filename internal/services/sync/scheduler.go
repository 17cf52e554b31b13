package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/snackstand/catalog-services/internal/shared/domain/clock"
)

// CheckpointStore persists when each recurring job last fired so a restart
// neither duplicates a fresh run nor waits a full period after a long outage.
type CheckpointStore interface {
	// Load returns the last firing time, or the zero time if never fired.
	Load(ctx context.Context, name string) (time.Time, error)

	// Save records the firing time.
	Save(ctx context.Context, name string, firedAt time.Time) error
}

// MemoryCheckpoints is an in-memory CheckpointStore for tests and
// single-process setups that can tolerate losing the schedule on restart.
type MemoryCheckpoints struct {
	mu    gosync.Mutex
	fired map[string]time.Time
}

var _ CheckpointStore = (*MemoryCheckpoints)(nil)

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{fired: make(map[string]time.Time)}
}

func (m *MemoryCheckpoints) Load(_ context.Context, name string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired[name], nil
}

func (m *MemoryCheckpoints) Save(_ context.Context, name string, firedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fired[name] = firedAt
	return nil
}

// Scheduler runs named recurring jobs. Each job runs on its own goroutine;
// one job's ticks never overlap, because the next tick is armed only after
// the current run returns. A run that overlaps a scheduled firing causes that
// firing to be skipped, not queued.
type Scheduler struct {
	checkpoints CheckpointStore
	logger      *slog.Logger

	mu   gosync.Mutex
	jobs map[string]context.CancelFunc
	wg   gosync.WaitGroup
}

func NewScheduler(checkpoints CheckpointStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		checkpoints: checkpoints,
		logger:      logger.With("component", "scheduler"),
		jobs:        make(map[string]context.CancelFunc),
	}
}

// RegisterRecurring starts a job firing every period. The first firing is due
// period after the persisted checkpoint; a job that is already overdue fires
// immediately.
func (s *Scheduler) RegisterRecurring(ctx context.Context, name string, period time.Duration, fn func(context.Context) error) error {
	if period <= 0 {
		return fmt.Errorf("period for job %q must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.jobs[name] = cancel

	lastFired, err := s.checkpoints.Load(ctx, name)
	if err != nil {
		s.logger.Warn("failed to load checkpoint, treating job as overdue",
			"job", name, "error", err)
		lastFired = time.Time{}
	}

	delay := period - clock.Now().Sub(lastFired)
	if delay < 0 {
		delay = 0
	}

	s.wg.Add(1)
	go s.run(jobCtx, name, delay, period, fn)

	s.logger.Info("registered recurring job",
		"job", name, "period", period, "first_fire_in", delay)
	return nil
}

// Cancel stops one job. A run in progress finishes.
func (s *Scheduler) Cancel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	cancel()
	delete(s.jobs, name)
	return nil
}

// Close stops every job and waits for in-progress runs to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	for name, cancel := range s.jobs {
		cancel()
		delete(s.jobs, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, name string, delay, period time.Duration, fn func(context.Context) error) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := fn(ctx); err != nil {
			s.logger.Error("recurring job failed", "job", name, "error", err)
		}

		firedAt := clock.Now()
		if err := s.checkpoints.Save(ctx, name, firedAt); err != nil {
			s.logger.Error("failed to save checkpoint", "job", name, "error", err)
		}

		timer.Reset(period)
	}
}
