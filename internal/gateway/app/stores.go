package app

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"

	artifactcache "sketchbook/internal/cache/artifact"
	projectcache "sketchbook/internal/cache/project"
	"sketchbook/internal/gateway/config"
	artifactrepo "sketchbook/internal/gateway/repository/artifact"
	projectrepo "sketchbook/internal/gateway/repository/project"
)

type gatewayStores struct {
	project  projectrepo.Repository
	artifact artifactrepo.Store
	closers  []func() error
}

func (s *gatewayStores) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			glog.Warningf("[app] close store: %v", err)
		}
	}
}

func initStores(ctx context.Context, cfg *config.Config) (*gatewayStores, error) {
	stores := &gatewayStores{}
	var origin projectrepo.Repository
	var artifactFallback artifactrepo.Store = artifactrepo.NewMemoryStore()
	fallbackLabel := "in-memory"

	switch cfg.Store.Kind {
	case config.StorePostgres:
		db, err := projectrepo.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		stores.closers = append(stores.closers, db.Close)
		origin = projectrepo.NewPostgresStore(db)
		artifactFallback, fallbackLabel = artifactrepo.NewPostgresStore(db), "postgres"
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		stores.closers = append(stores.closers, client.Close)
		origin = projectrepo.NewRedisStore(client)
	case config.StoreFile:
		origin = projectrepo.NewFileStore(cfg.Store.DataPath)
	default:
		origin = projectcache.NewMemoryStore()
	}
	if err := origin.EnsureLoaded(ctx); err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to load %s project store: %w", cfg.Store.Kind, err)
	}
	glog.Infof("[app] project store: %s", cfg.Store.Kind)

	stores.project = origin
	if cfg.Cache.Enabled {
		stores.project = projectcache.NewCachedStore(origin, projectcache.CacheConfig{
			StateTTL:        cfg.Cache.TTL,
			StateMaxEntries: cfg.Cache.MaxEntries,
		})
	}

	artifactStore, err := chooseArtifactStore(cfg, artifactFallback, fallbackLabel, newArtifactS3StoreFactory(cfg))
	if err != nil {
		stores.Close()
		return nil, err
	}
	stores.artifact = artifactStore
	return stores, nil
}

func newArtifactS3StoreFactory(cfg *config.Config) func() (artifactrepo.Store, error) {
	return func() (artifactrepo.Store, error) {
		s3Cfg := artifactrepo.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		}
		s3Store, err := artifactrepo.NewS3Store(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize artifact s3 store: %w", err)
		}
		glog.Infof("[app] artifact store: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
		return s3Store, nil
	}
}

func chooseArtifactStore(
	cfg *config.Config,
	fallback artifactrepo.Store,
	fallbackLabel string,
	s3Factory func() (artifactrepo.Store, error),
) (artifactrepo.Store, error) {
	origin := fallback
	if cfg.Artifact.Enabled {
		s3Store, err := s3Factory()
		if err != nil {
			return nil, err
		}
		origin = s3Store
	} else {
		glog.Infof("[app] artifact store: %s", fallbackLabel)
	}
	if origin == nil {
		return nil, fmt.Errorf("artifact origin store is nil")
	}
	return artifactcache.NewCachedStore(origin, artifactcache.DefaultCacheConfig()), nil
}
