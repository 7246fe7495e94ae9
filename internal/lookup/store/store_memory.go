package store

import (
	"context"
	"sync"
	"time"

	"ipwatch/internal/lookup/models"
)

// InMemoryStore keeps records in a map. It backs unit tests and local runs;
// production uses PostgresStore.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.LookupResult
	logs    []models.LogEntry

	// failUpserts injects transient conflicts: the next N Upsert attempts
	// return ErrConflict before touching state. Test hook only.
	failUpserts int

	retries int
	delay   time.Duration
}

// NewInMemory constructs an empty in-memory store with the production
// retry bounds.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*models.LookupResult),
		retries: maxConflictRetries,
		delay:   conflictRetryDelay,
	}
}

// WithRetryPolicy overrides the retry bound and delay. Test hook.
func (s *InMemoryStore) WithRetryPolicy(retries int, delay time.Duration) *InMemoryStore {
	s.retries = retries
	s.delay = delay
	return s
}

// FailNextUpserts makes the next n upsert attempts conflict. Test hook.
func (s *InMemoryStore) FailNextUpserts(n int) {
	s.mu.Lock()
	s.failUpserts = n
	s.mu.Unlock()
}

func (s *InMemoryStore) FindByAddress(_ context.Context, address string) (*models.LookupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[address]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) IncrementAndTouch(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[address]
	if !ok {
		return ErrNotFound
	}
	record.QueryCount++
	record.LastQueriedAt = time.Now()
	return nil
}

func (s *InMemoryStore) Upsert(ctx context.Context, result *models.LookupResult) error {
	return runWithConflictRetry(ctx, s.retries, s.delay, func(context.Context) error {
		return s.upsertOnce(result)
	})
}

func (s *InMemoryStore) upsertOnce(result *models.LookupResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpserts > 0 {
		s.failUpserts--
		return ErrConflict
	}

	now := time.Now()
	if existing, ok := s.records[result.Address]; ok {
		existing.QueryCount++
		existing.LastQueriedAt = now
		return nil
	}

	copied := *result
	copied.QueryCount = 1
	copied.LastQueriedAt = now
	s.records[result.Address] = &copied
	return nil
}

func (s *InMemoryStore) CountRecords(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records)), nil
}

func (s *InMemoryStore) AppendLog(_ context.Context, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *InMemoryStore) CountLogs(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.logs)), nil
}

func (s *InMemoryStore) ClearRecords(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*models.LookupResult)
	return nil
}
