package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps job records in process memory. Records are lost on exit.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*memoryRecord
	seq  int64
}

type memoryRecord struct {
	job Job
	seq int64
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*memoryRecord)}
}

func (s *MemoryStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	if job.Status != StatusProcessing {
		return &TransitionError{ID: job.ID, From: "", To: job.Status}
	}
	s.seq++
	s.data[job.ID] = &memoryRecord{job: job.Clone(), seq: s.seq}
	return nil
}

func (s *MemoryStore) Finish(_ context.Context, id string, outcome Outcome) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	next, err := rec.job.apply(outcome)
	if err != nil {
		return Job{}, err
	}
	rec.job = next
	return next.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return rec.job.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Job, error) {
	s.mu.RLock()
	records := make([]memoryRecord, 0, len(s.data))
	for _, rec := range s.data {
		records = append(records, *rec)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]Job, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.job.Clone())
	}
	return out, nil
}
