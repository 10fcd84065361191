// Package scheduler triggers periodic sync runs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// CheckInterval is how often the scheduler re-reads its settings.
const CheckInterval = time.Minute

// Runner executes one scheduled run.
type Runner interface {
	RunScheduled(ctx context.Context) error
}

// Source returns the current sync interval and whether auto-sync is enabled.
// It is called on every check so configuration edits apply to a running daemon.
type Source func() (interval time.Duration, enabled bool, err error)

// Status is a snapshot of scheduler activity.
type Status struct {
	Running        bool
	LastRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// IntervalScheduler wakes every CheckInterval and fires the runner once the
// configured sync interval has elapsed since the previous firing.
type IntervalScheduler struct {
	runner Runner
	source Source
	clock  syncbot.Clock
	logger syncbot.Logger
	check  time.Duration

	mu        sync.Mutex
	running   bool
	lastFired time.Time
	stats     Status
}

// NewIntervalScheduler creates a scheduler. It does nothing until Run is called.
func NewIntervalScheduler(runner Runner, source Source, clock syncbot.Clock, logger syncbot.Logger) (*IntervalScheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("settings source cannot be nil")
	}
	return &IntervalScheduler{
		runner: runner,
		source: source,
		clock:  clock,
		logger: logger,
		check:  CheckInterval,
	}, nil
}

// Run blocks until ctx is cancelled. The first run fires one full interval
// after Run starts.
func (s *IntervalScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	if s.lastFired.IsZero() {
		s.lastFired = s.clock.Now()
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("scheduler started", "check_every", s.check)

	ticker := time.NewTicker(s.check)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick performs one check and reports whether the runner fired.
func (s *IntervalScheduler) tick(ctx context.Context) bool {
	interval, enabled, err := s.source()
	if err != nil {
		s.logger.Warn("scheduler could not load settings", "error", err)
		return false
	}
	if !enabled || interval <= 0 {
		return false
	}

	now := s.clock.Now()
	s.mu.Lock()
	due := now.Sub(s.lastFired) >= interval
	if due {
		s.lastFired = now
		s.stats.LastRunTime = now
		s.stats.TotalRuns++
	}
	s.mu.Unlock()
	if !due {
		return false
	}

	s.logger.Debug("scheduled sync due", "interval", interval)
	err = s.runner.RunScheduled(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.stats.FailedRuns++
		s.stats.LastError = err.Error()
		s.logger.Error("scheduled sync failed", "error", err)
	} else {
		s.stats.SuccessfulRuns++
		s.stats.LastError = ""
	}
	return true
}

// Status returns a copy of the current statistics.
func (s *IntervalScheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Running = s.running
	return st
}
