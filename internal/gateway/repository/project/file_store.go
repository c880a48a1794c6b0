package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
)

// FileStore keeps every project in one JSON file and rewrites it on change.
type FileStore struct {
	path string

	loadOnce sync.Once
	loadErr  error
	mu       sync.RWMutex
	byName   map[string]State
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		byName: make(map[string]State),
	}
}

func (s *FileStore) EnsureLoaded(_ context.Context) error {
	if s == nil {
		return ErrStoreNil
	}
	return s.ensureLoaded()
}

func (s *FileStore) Get(_ context.Context, name string) (State, bool, error) {
	if s == nil {
		return State{}, false, ErrStoreNil
	}
	if err := s.ensureLoaded(); err != nil {
		return State{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.byName[name]
	return state.Clone(), ok, nil
}

func (s *FileStore) Put(_ context.Context, state State) error {
	if s == nil {
		return ErrStoreNil
	}
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state = state.Clone()
	state.UpdatedAt = time.Now().UTC()
	s.byName[state.ProjectName] = state
	return s.saveLocked()
}

func (s *FileStore) Update(_ context.Context, name string, update func(*State) error) (State, bool, error) {
	if s == nil {
		return State{}, false, ErrStoreNil
	}
	if err := s.ensureLoaded(); err != nil {
		return State{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.byName[name]
	if !ok {
		return State{}, false, nil
	}
	state = state.Clone()
	if err := update(&state); err != nil {
		return State{}, true, err
	}
	state.UpdatedAt = time.Now().UTC()
	s.byName[name] = state
	if err := s.saveLocked(); err != nil {
		return State{}, true, err
	}
	return state.Clone(), true, nil
}

func (s *FileStore) Delete(_ context.Context, name string) (bool, error) {
	if s == nil {
		return false, ErrStoreNil
	}
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return false, nil
	}
	delete(s.byName, name)
	return true, s.saveLocked()
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	if s == nil {
		return nil, ErrStoreNil
	}
	if err := s.ensureLoaded(); err != nil {
		return nil, err
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

func (s *FileStore) ensureLoaded() error {
	s.loadOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		data, err := os.ReadFile(s.path)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			s.loadErr = fmt.Errorf("read project store: %w", err)
			return
		}

		var states []State
		if err := json.Unmarshal(data, &states); err != nil {
			s.loadErr = fmt.Errorf("unmarshal project store: %w", err)
			return
		}
		for _, state := range states {
			s.byName[state.ProjectName] = state
		}
		glog.Infof("project store: loaded %d projects from %s", len(states), s.path)
	})
	return s.loadErr
}

func (s *FileStore) saveLocked() error {
	states := make([]State, 0, len(s.byName))
	for _, state := range s.byName {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ProjectName < states[j].ProjectName })

	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create project store dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
