// Package scheduler runs the coordinator's background maintenance loops.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opcoord/opcoord/internal/idempotency"
	"github.com/opcoord/opcoord/internal/wait"
)

// Scheduler drives the idempotency record sweep and the wait-session reaper.
// The sweep runs on a cron schedule so operators can tune it without a
// redeploy; the reaper is a plain ticker loop.
type Scheduler struct {
	manager      *idempotency.Manager
	coordinator  *wait.Coordinator
	sweepSpec    string
	reapInterval time.Duration
	logger       *slog.Logger

	cron     *cron.Cron
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler.
func New(manager *idempotency.Manager, coordinator *wait.Coordinator, sweepSpec string, reapInterval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		manager:      manager,
		coordinator:  coordinator,
		sweepSpec:    sweepSpec,
		reapInterval: reapInterval,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Start begins the background loops.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.sweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if sweepErr := s.manager.Sweep(ctx); sweepErr != nil {
			s.logger.Error("record sweep failed", "error", sweepErr)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.sweepSpec, err)
	}
	s.cron.Start()

	go s.runLoop("session-reaper", s.reapInterval, s.coordinator.Reap)
	return nil
}

// Stop signals all background loops to stop.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
	})
}

func (s *Scheduler) runLoop(name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := fn(ctx); err != nil {
				s.logger.Error("scheduler loop error", "loop", name, "error", err)
			}
			cancel()
		}
	}
}
