package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opcoord/opcoord/internal/core"
)

// MemoryStore is an in-process Store for single-node deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	clock   core.Clock
}

// NewMemoryStore creates a MemoryStore. A nil clock means the wall clock.
func NewMemoryStore(clock core.Clock) *MemoryStore {
	if clock == nil {
		clock = core.RealClock()
	}
	return &MemoryStore{
		records: make(map[string]*Record),
		clock:   clock,
	}
}

func (s *MemoryStore) CreateInProgress(_ context.Context, key string, expiresAt time.Time) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[key]; ok && !existing.Expired(now) {
		return core.ErrKeyExists
	}
	s.records[key] = &Record{
		Key:       key,
		State:     RecordInProgress,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, result json.RawMessage, expiresAt time.Time) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	created := now
	if existing, ok := s.records[key]; ok {
		created = existing.CreatedAt
	}
	s.records[key] = &Record{
		Key:       key,
		State:     RecordCompleted,
		Result:    result,
		CreatedAt: created,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok || record.Expired(now) {
		return nil, core.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.records {
		if record.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
