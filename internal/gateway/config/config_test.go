package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args []string, env map[string]string) (*Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	return loadFrom(fs, args, func(k string) string { return env[k] })
}

func TestLoadLocalDefaults(t *testing.T) {
	cfg, err := load(t, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, StoreFile, cfg.Store.Kind)
	assert.Equal(t, "data/projects.json", cfg.Store.DataPath)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Run.KeepWorkspace)
	assert.False(t, cfg.Artifact.Enabled)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "data/addons", cfg.Addons.Dir)
	assert.Empty(t, cfg.Addons.CoreDir)
}

func TestLoadEnvironmentOverridesFlags(t *testing.T) {
	cfg, err := load(t, []string{"-port", ":9000", "-store", "memory"}, map[string]string{
		"APP_ENV":                "production",
		"PORT":                   "7000",
		"SKETCH_RUN_COMMAND":     "make -C {{dir}} run",
		"SKETCH_RUN_TIMEOUT":     "90s",
		"SKETCH_JWT_SECRET":      "s3cret",
		"CORS_ALLOWED_ORIGINS":   "https://a.example, https://b.example",
		"SKETCH_ADDONS_DIR":      "/srv/addons",
		"SKETCH_CORE_ADDONS_DIR": "/opt/sketch/addons",
	})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Kind)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, []string{"make", "-C", "{{dir}}", "run"}, cfg.Run.Command)
	assert.Equal(t, 90*time.Second, cfg.Run.Timeout)
	assert.False(t, cfg.Run.KeepWorkspace)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, AddonConfig{Dir: "/srv/addons", CoreDir: "/opt/sketch/addons"}, cfg.Addons)
}

func TestLoadPicksStoreFromURLs(t *testing.T) {
	cfg, err := load(t, nil, map[string]string{"DATABASE_URL": "postgres://u:p@db/sketch"})
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store.Kind)

	cfg, err = load(t, nil, map[string]string{"REDIS_URL": "redis://cache:6379/0"})
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.Store.Kind)
}

func TestLoadRejectsIncompleteStores(t *testing.T) {
	_, err := load(t, []string{"-store", "postgres"}, nil)
	assert.Error(t, err)
	_, err = load(t, nil, map[string]string{"SKETCH_STORE": "redis"})
	assert.Error(t, err)
	_, err = load(t, nil, map[string]string{"SKETCH_STORE": "mongo"})
	assert.Error(t, err)
}

func TestLoadLocalMinio(t *testing.T) {
	cfg, err := load(t, nil, map[string]string{"MINIO_ENDPOINT": "minio:9000"})
	require.NoError(t, err)
	assert.True(t, cfg.Artifact.Enabled)
	assert.Equal(t, "minio:9000", cfg.Artifact.Endpoint)
	assert.False(t, cfg.Artifact.UseSSL)
	assert.Equal(t, "sketchbook-runs", cfg.Artifact.Bucket)
}
