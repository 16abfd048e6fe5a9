package ledger

import (
	"context"
	"slices"
	"sync"
	"time"
)

// implements Store in memory for development and tests
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	quotas  map[string]Quota
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quotas: make(map[string]Quota)}
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.entries = append(s.entries, entry)

	return nil
}

func (s *MemoryStore) Increment(_ context.Context, callerID string, today time.Time) (Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.current(callerID, today)
	q.DailyOperations++
	q.MonthlyOperations++
	s.quotas[callerID] = q

	return q, nil
}

func (s *MemoryStore) GetOrCreate(_ context.Context, callerID string, today time.Time) (Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.current(callerID, today)
	s.quotas[callerID] = q

	return q, nil
}

// caller holds mu
func (s *MemoryStore) current(callerID string, today time.Time) Quota {
	q, ok := s.quotas[callerID]
	if !ok {
		q = Quota{CallerID: callerID}
	}

	return Rollover(q, today)
}

func (s *MemoryStore) CountSuccessful(_ context.Context, callerID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, e := range s.entries {
		if e.CallerID == callerID && e.Success && !e.CreatedAt.Before(since) {
			n++
		}
	}

	return n, nil
}

func (s *MemoryStore) History(_ context.Context, callerID string, since time.Time) ([]DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64)
	for _, e := range s.entries {
		if e.CallerID == callerID && !e.CreatedAt.Before(since) {
			counts[e.CreatedAt.UTC().Format(time.DateOnly)]++
		}
	}

	history := make([]DailyUsage, 0, len(counts))
	for date, count := range counts {
		history = append(history, DailyUsage{Date: date, Count: count})
	}

	slices.SortFunc(history, func(a, b DailyUsage) int {
		switch {
		case a.Date > b.Date:
			return -1
		case a.Date < b.Date:
			return 1
		default:
			return 0
		}
	})

	return history, nil
}
