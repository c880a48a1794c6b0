package artifact

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	artifactrepo "sketchbook/internal/gateway/repository/artifact"
)

type Store = artifactrepo.Store

type CacheConfig struct {
	BlobTTL        time.Duration
	BlobMaxEntries int
	// BlobMaxBytes bounds a single cached blob; larger ones always hit the origin.
	BlobMaxBytes int

	ListTTL        time.Duration
	ListMaxEntries int

	URLTTL        time.Duration
	URLMaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BlobTTL:        5 * time.Minute,
		BlobMaxEntries: 256,
		BlobMaxBytes:   1 << 20,
		ListTTL:        30 * time.Second,
		ListMaxEntries: 256,
		URLTTL:         5 * time.Minute,
		URLMaxEntries:  256,
	}
}

type MetricsSnapshot struct {
	BlobHits     uint64
	BlobMisses   uint64
	ListHits     uint64
	ListMisses   uint64
	URLHits      uint64
	URLMisses    uint64
	OriginReads  uint64
	OriginWrites uint64
	OriginErrors uint64
}

type metrics struct {
	blobHits     atomic.Uint64
	blobMisses   atomic.Uint64
	listHits     atomic.Uint64
	listMisses   atomic.Uint64
	urlHits      atomic.Uint64
	urlMisses    atomic.Uint64
	originReads  atomic.Uint64
	originWrites atomic.Uint64
	originErrors atomic.Uint64
}

// CachedStore caches run artifacts in front of an origin Store. Run logs are
// written once and then read repeatedly, so writes go through and refresh.
type CachedStore struct {
	origin Store
	cfg    CacheConfig

	blobs *expirable.LRU[string, []byte]
	lists *expirable.LRU[string, []string]
	urls  *expirable.LRU[string, string]
	stats metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.BlobTTL <= 0 {
		cfg.BlobTTL = def.BlobTTL
	}
	if cfg.BlobMaxEntries <= 0 {
		cfg.BlobMaxEntries = def.BlobMaxEntries
	}
	if cfg.BlobMaxBytes <= 0 {
		cfg.BlobMaxBytes = def.BlobMaxBytes
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	if cfg.ListMaxEntries <= 0 {
		cfg.ListMaxEntries = def.ListMaxEntries
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = def.URLTTL
	}
	if cfg.URLMaxEntries <= 0 {
		cfg.URLMaxEntries = def.URLMaxEntries
	}
	return &CachedStore{
		origin: origin,
		cfg:    cfg,
		blobs:  expirable.NewLRU[string, []byte](cfg.BlobMaxEntries, nil, cfg.BlobTTL),
		lists:  expirable.NewLRU[string, []string](cfg.ListMaxEntries, nil, cfg.ListTTL),
		urls:   expirable.NewLRU[string, string](cfg.URLMaxEntries, nil, cfg.URLTTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, runID, path string, content []byte) error {
	s.stats.originWrites.Add(1)
	if err := s.origin.Put(ctx, runID, path, content); err != nil {
		s.stats.originErrors.Add(1)
		return err
	}
	key := cacheKey(runID, path)
	s.remember(key, content)
	s.lists.Remove(strings.TrimSpace(runID))
	s.urls.Remove(key)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, runID, path string) ([]byte, error) {
	key := cacheKey(runID, path)
	if raw, ok := s.blobs.Get(key); ok {
		s.stats.blobHits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.stats.blobMisses.Add(1)
	s.stats.originReads.Add(1)
	raw, err := s.origin.Get(ctx, runID, path)
	if err != nil {
		s.stats.originErrors.Add(1)
		return nil, err
	}
	s.remember(key, raw)
	return raw, nil
}

func (s *CachedStore) GetURL(ctx context.Context, runID, path string) (string, error) {
	key := cacheKey(runID, path)
	if u, ok := s.urls.Get(key); ok {
		s.stats.urlHits.Add(1)
		return u, nil
	}
	s.stats.urlMisses.Add(1)
	s.stats.originReads.Add(1)
	u, err := s.origin.GetURL(ctx, runID, path)
	if err != nil {
		s.stats.originErrors.Add(1)
		return "", err
	}
	if u != "" {
		s.urls.Add(key, u)
	}
	return u, nil
}

func (s *CachedStore) List(ctx context.Context, runID string) ([]string, error) {
	runID = strings.TrimSpace(runID)
	if list, ok := s.lists.Get(runID); ok {
		s.stats.listHits.Add(1)
		return append([]string(nil), list...), nil
	}
	s.stats.listMisses.Add(1)
	s.stats.originReads.Add(1)
	list, err := s.origin.List(ctx, runID)
	if err != nil {
		s.stats.originErrors.Add(1)
		return nil, err
	}
	s.lists.Add(runID, append([]string(nil), list...))
	return list, nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		BlobHits:     s.stats.blobHits.Load(),
		BlobMisses:   s.stats.blobMisses.Load(),
		ListHits:     s.stats.listHits.Load(),
		ListMisses:   s.stats.listMisses.Load(),
		URLHits:      s.stats.urlHits.Load(),
		URLMisses:    s.stats.urlMisses.Load(),
		OriginReads:  s.stats.originReads.Load(),
		OriginWrites: s.stats.originWrites.Load(),
		OriginErrors: s.stats.originErrors.Load(),
	}
}

func (s *CachedStore) remember(key string, content []byte) {
	if len(content) > s.cfg.BlobMaxBytes {
		s.blobs.Remove(key)
		return
	}
	s.blobs.Add(key, append([]byte(nil), content...))
}

func cacheKey(runID, path string) string {
	return strings.TrimSpace(runID) + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}
