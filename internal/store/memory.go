package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type optionRow struct {
	key       string
	value     string
	updatedAt time.Time
}

func (p *ProjectOptions) add(row optionRow) {
	p.Values[row.key] = row.value
	if row.updatedAt.After(p.UpdatedAt) {
		p.UpdatedAt = row.updatedAt
	}
}

// MemoryStore is a process-local ProjectOptionsRepository used when no
// database is configured and by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[int64]*ProjectOptions
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[int64]*ProjectOptions), now: time.Now}
}

func (s *MemoryStore) GetProjectOptions(_ context.Context, projectID int64) (*ProjectOptions, error) {
	if projectID <= 0 {
		return nil, ErrInvalidProjectID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.projects[projectID]; ok {
		return p.Clone(), nil
	}
	return &ProjectOptions{ProjectID: projectID, Values: map[string]string{}}, nil
}

func (s *MemoryStore) SetProjectOption(_ context.Context, projectID int64, key, value string) error {
	if projectID <= 0 {
		return ErrInvalidProjectID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		p = &ProjectOptions{ProjectID: projectID, Values: make(map[string]string)}
		s.projects[projectID] = p
	}
	p.add(optionRow{key: key, value: value, updatedAt: s.now()})
	return nil
}

func (s *MemoryStore) DeleteProjectOption(_ context.Context, projectID int64, key string) (bool, error) {
	if projectID <= 0 {
		return false, ErrInvalidProjectID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return false, nil
	}
	if _, ok := p.Values[key]; !ok {
		return false, nil
	}
	delete(p.Values, key)
	if len(p.Values) == 0 {
		delete(s.projects, projectID)
	}
	return true, nil
}

func (s *MemoryStore) ListProjectOptions(_ context.Context, afterID int64, limit int) ([]*ProjectOptions, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.projects))
	for id := range s.projects {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*ProjectOptions, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.projects[id].Clone())
	}
	return out, nil
}
