package scheduler

import (
	"testing"
	"time"

	"github.com/opcoord/opcoord/internal/core"
	"github.com/opcoord/opcoord/internal/idempotency"
	"github.com/opcoord/opcoord/internal/state"
	"github.com/opcoord/opcoord/internal/wait"
)

func newTestScheduler(sweepSpec string) *Scheduler {
	executor := core.NewExecutor(nil, nil)
	manager := idempotency.NewManager(state.NewMemoryStore(nil), executor, nil, nil)
	coordinator := wait.NewCoordinator(wait.Config{Secret: []byte("s")}, executor, nil, nil, nil)
	return New(manager, coordinator, sweepSpec, 10*time.Millisecond, nil)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler("@every 1h")
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	s.Stop()
}

func TestScheduler_StopIdempotent(t *testing.T) {
	s := newTestScheduler("@every 1h")
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	s.Stop()
	s.Stop() // must not panic on double close
}

func TestScheduler_InvalidSweepSchedule(t *testing.T) {
	s := newTestScheduler("not a cron spec")
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Start accepted an invalid sweep schedule")
	}
}
