package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/types"
	"github.com/okian/laptimer/pkg/metrics"
)

// MemoryStore keeps results in memory with a treap index over every lap.
// The JSON store uses it as its read side.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]model.RaceResult
	laps *lapIndex
	kind string // metrics label
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(KindMemory)
}

func newMemoryStore(kind string) *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]model.RaceResult),
		laps: newLapIndex(),
		kind: kind,
	}
}

// Save implements Store.Save in O(k log n) for a result with k laps.
func (s *MemoryStore) Save(_ context.Context, r model.RaceResult) error {
	defer track(s.kind, "save", time.Now())

	if err := validate(r); err != nil {
		metrics.RecordStoreError(s.kind, "save")
		return err
	}
	r = normalize(r)
	r.LapTimes = slices.Clone(r.LapTimes)

	s.mu.Lock()
	if old, ok := s.byID[r.ID]; ok {
		s.laps.remove(old)
	}
	s.byID[r.ID] = r
	s.laps.add(r)
	n := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateStoredRaces(n)
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (model.RaceResult, error) {
	defer track(s.kind, "get", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return model.RaceResult{}, ErrNotFound
	}
	r.LapTimes = slices.Clone(r.LapTimes)
	return r, nil
}

// List implements Store.List.
func (s *MemoryStore) List(_ context.Context, limit int) ([]model.RaceResult, error) {
	defer track(s.kind, "list", time.Now())

	if limit < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	out := make([]model.RaceResult, 0, len(s.byID))
	for _, r := range s.byID {
		r.LapTimes = slices.Clone(r.LapTimes)
		out = append(out, r)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, newestFirst)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BestLaps implements Store.BestLaps by walking the lap treap in order.
func (s *MemoryStore) BestLaps(_ context.Context, n int) ([]types.LapEntry, error) {
	defer track(s.kind, "best_laps", time.Now())

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.laps.top(n), nil
}

// Count returns the number of stored results.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// LapCount returns the number of indexed laps.
func (s *MemoryStore) LapCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.laps.len()
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
