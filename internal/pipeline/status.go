package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

// MemoryStatusStore is a StatusStore for single-process runs without Redis.
// Once full, the oldest job is forgotten.
type MemoryStatusStore struct {
	mu         sync.RWMutex
	maxEntries int
	results    map[string]domain.JobResult
	order      []string
}

// NewMemoryStatusStore creates a store holding up to maxEntries jobs.
func NewMemoryStatusStore(maxEntries int) *MemoryStatusStore {
	return &MemoryStatusStore{
		maxEntries: max(maxEntries, 1),
		results:    make(map[string]domain.JobResult),
	}
}

func (s *MemoryStatusStore) Put(_ context.Context, res domain.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[res.ID]; !ok {
		s.order = append(s.order, res.ID)
		if len(s.order) > s.maxEntries {
			delete(s.results, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.results[res.ID] = res
	return nil
}

func (s *MemoryStatusStore) Get(_ context.Context, id string) (domain.JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[id]
	if !ok {
		return domain.JobResult{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return res, nil
}
