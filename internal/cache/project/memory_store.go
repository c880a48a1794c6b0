package project

import (
	"context"
	"sort"
	"sync"
	"time"

	projectrepo "sketchbook/internal/gateway/repository/project"
)

// MemoryStore is an in-memory origin for the project repository contract.
type MemoryStore struct {
	mu     sync.RWMutex
	byName map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byName: make(map[string]State),
	}
}

func (s *MemoryStore) EnsureLoaded(_ context.Context) error { return nil }

func (s *MemoryStore) Get(_ context.Context, name string) (State, bool, error) {
	if s == nil {
		return State{}, false, projectrepo.ErrStoreNil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byName[name]
	return st.Clone(), ok, nil
}

func (s *MemoryStore) Put(_ context.Context, state State) error {
	if s == nil {
		return projectrepo.ErrStoreNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state = state.Clone()
	state.UpdatedAt = time.Now().UTC()
	s.byName[state.ProjectName] = state
	return nil
}

func (s *MemoryStore) Update(_ context.Context, name string, update func(*State) error) (State, bool, error) {
	if s == nil {
		return State{}, false, projectrepo.ErrStoreNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byName[name]
	if !ok {
		return State{}, false, nil
	}
	st = st.Clone()
	if err := update(&st); err != nil {
		return State{}, true, err
	}
	st.UpdatedAt = time.Now().UTC()
	s.byName[name] = st
	return st.Clone(), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	if s == nil {
		return false, projectrepo.ErrStoreNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byName[name]
	delete(s.byName, name)
	return ok, nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	if s == nil {
		return nil, projectrepo.ErrStoreNil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byName))
	for name := range s.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
