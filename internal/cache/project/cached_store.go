package project

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/golang-lru/v2/expirable"

	projectrepo "sketchbook/internal/gateway/repository/project"
)

type State = projectrepo.State
type Repository = projectrepo.Repository
type ClassState = projectrepo.ClassState

const listKey = "*"

type CacheConfig struct {
	StateTTL        time.Duration
	StateMaxEntries int
	ListTTL         time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		StateTTL:        5 * time.Minute,
		StateMaxEntries: 2048,
		ListTTL:         30 * time.Second,
	}
}

// CachedStore is a read-through cache in front of a Repository. Writes go to
// the origin first and only then refresh or invalidate cached entries.
type CachedStore struct {
	origin Repository

	byName *expirable.LRU[string, State]
	names  *expirable.LRU[string, []string]
}

func NewCachedStore(origin Repository, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = def.StateTTL
	}
	if cfg.StateMaxEntries <= 0 {
		cfg.StateMaxEntries = def.StateMaxEntries
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	return &CachedStore{
		origin: origin,
		byName: expirable.NewLRU[string, State](cfg.StateMaxEntries, nil, cfg.StateTTL),
		names:  expirable.NewLRU[string, []string](1, nil, cfg.ListTTL),
	}
}

func (s *CachedStore) EnsureLoaded(ctx context.Context) error {
	return s.origin.EnsureLoaded(ctx)
}

func (s *CachedStore) Get(ctx context.Context, name string) (State, bool, error) {
	if st, ok := s.byName.Get(name); ok {
		glog.V(2).Infof("[cache] project hit %q", name)
		return st.Clone(), true, nil
	}
	st, ok, err := s.origin.Get(ctx, name)
	if err != nil || !ok {
		return st, ok, err
	}
	s.byName.Add(name, st.Clone())
	return st, true, nil
}

func (s *CachedStore) Put(ctx context.Context, state State) error {
	if err := s.origin.Put(ctx, state); err != nil {
		return err
	}
	// The origin stamps UpdatedAt, so the next Get reloads it.
	s.byName.Remove(state.ProjectName)
	s.names.Purge()
	return nil
}

func (s *CachedStore) Update(ctx context.Context, name string, update func(*State) error) (State, bool, error) {
	st, ok, err := s.origin.Update(ctx, name, update)
	if err != nil || !ok {
		s.byName.Remove(name)
		return st, ok, err
	}
	s.byName.Add(name, st.Clone())
	return st, true, nil
}

func (s *CachedStore) Delete(ctx context.Context, name string) (bool, error) {
	ok, err := s.origin.Delete(ctx, name)
	s.byName.Remove(name)
	s.names.Purge()
	return ok, err
}

func (s *CachedStore) List(ctx context.Context) ([]string, error) {
	if names, ok := s.names.Get(listKey); ok {
		return cloneNames(names), nil
	}
	names, err := s.origin.List(ctx)
	if err != nil {
		return nil, err
	}
	s.names.Add(listKey, cloneNames(names))
	return names, nil
}

func cloneNames(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
