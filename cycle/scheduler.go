// Package cycle signals cycle boundaries to an Enforcer on a cron schedule.
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Resetter is reset at every cycle boundary. *cyclequota.Enforcer implements it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Scheduler resets a Resetter at scheduled cycle boundaries.
type Scheduler struct {
	resetter Resetter
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
	entry    cron.EntryID
	// done is closed by Stop and ends the current run's context watcher.
	done chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithLocation evaluates the schedule in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.cron = cron.New(cron.WithLocation(loc)) }
}

// NewScheduler creates a scheduler for the given cron expression.
//
// Common expressions:
//   - "@every 6s"   - fixed-length cycles
//   - "0 * * * *"   - hourly, on the hour
//   - "0 0 * * *"   - daily at midnight
func NewScheduler(r Resetter, schedule string, opts ...Option) *Scheduler {
	s := &Scheduler{
		resetter: r,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "cycle.scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins resetting at each scheduled boundary. The scheduler stops
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("cycle: invalid schedule %q: %w", s.schedule, err)
	}

	id, err := s.cron.AddFunc(s.schedule, func() {
		s.runReset(ctx)
	})
	if err != nil {
		return fmt.Errorf("cycle: schedule reset: %w", err)
	}
	s.entry = id

	s.cron.Start()
	s.running = true
	done := make(chan struct{})
	s.done = done

	s.logger.Info("cycle scheduler started", "schedule", s.schedule)

	go func() {
		select {
		case <-ctx.Done():
			s.stopRun(done)
		case <-done:
		}
	}()

	return nil
}

// Trigger ends the current cycle immediately.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if err := s.resetter.Reset(ctx); err != nil {
		return fmt.Errorf("cycle: reset: %w", err)
	}
	return nil
}

func (s *Scheduler) runReset(ctx context.Context) {
	if err := s.Trigger(ctx); err != nil {
		s.logger.Error("scheduled cycle reset failed", "error", err)
		return
	}
	s.logger.Debug("cycle boundary reached")
}

// Stop stops the scheduler and waits for a running reset to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

// stopRun stops the scheduler only if run is still the current run.
func (s *Scheduler) stopRun(run chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != run {
		return
	}
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.cron.Remove(s.entry)
	close(s.done)
	s.done = nil
	s.running = false
	s.logger.Info("cycle scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextBoundary returns the next scheduled cycle boundary.
func (s *Scheduler) NextBoundary() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}, false
	}
	entry := s.cron.Entry(s.entry)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}
