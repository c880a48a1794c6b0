package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "sketch.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Equal(t, DefaultCallTimeout, cfg.CallTimeout)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: https://sketch.example/api\ntoken: abc\ncall_timeout: 5s\n"), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "https://sketch.example/api", cfg.Server)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)

	ws, err := cfg.SocketURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://sketch.example/api/ws", ws)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o600))
	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestEnsureClientIDPersists(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nested", "sketch.yaml"))
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.NoError(t, loader.EnsureClientID(cfg))
	assert.NotEmpty(t, cfg.ClientID)

	again, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.ClientID, again.ClientID)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{"SKETCH_SERVER": "http://gw:9000", "SKETCH_TOKEN": "tok"}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "http://gw:9000", cfg.Server)
	assert.Equal(t, "tok", cfg.Token)

	ws, err := cfg.SocketURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://gw:9000/ws", ws)

	cfg.Server = "ftp://nope"
	_, err = cfg.SocketURL()
	assert.Error(t, err)
}
