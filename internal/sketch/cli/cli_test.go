package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheproject "sketchbook/internal/cache/project"
	gatewayconfig "sketchbook/internal/gateway/config"
	"sketchbook/internal/gateway/handler/rpc"
	"sketchbook/internal/gateway/middleware"
	artifactrepo "sketchbook/internal/gateway/repository/artifact"
	addonsvc "sketchbook/internal/gateway/service/addon"
	"sketchbook/internal/gateway/run"
	"sketchbook/internal/gateway/server"
	projectsvc "sketchbook/internal/gateway/service/project"
	runsvc "sketchbook/internal/gateway/service/run"
	"sketchbook/internal/sketch/api"
	"sketchbook/internal/sketch/config"
)

const testSecret = "cli-secret"

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	broker := run.NewEventBroker()
	projects := projectsvc.New(cacheproject.NewMemoryStore(), broker, projectsvc.Options{})
	runs := runsvc.New(projects, broker, artifactrepo.NewMemoryStore(), runsvc.Options{
		Command:      []string{"sh", "-c", "cat src/{{project}}.sketch; echo; exit 3"},
		WorkspaceDir: t.TempDir(),
	})
	cfg := &gatewayconfig.Config{Auth: gatewayconfig.AuthConfig{JWTSecret: testSecret, Issuer: "sketchbook"}}
	addonDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(addonDir, "ofxGui"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(addonDir, "ofxGui", addonsvc.ConfigFile),
		[]byte("meta:\n\tADDON_DESCRIPTION = Simple GUI\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(addonDir, "ofxTween"), 0o755))
	addons := addonsvc.New(addonsvc.Options{Dir: addonDir})
	srv := httptest.NewServer(server.NewMux(rpc.New(projects, runs, broker, rpc.WithAddons(addons)), cfg))
	t.Cleanup(func() {
		srv.Close()
		runs.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, noSocket bool) (*Client, *syncBuffer) {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, "sketchbook", "cli-test", time.Minute)
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	cfg.Server = srv.URL
	cfg.Token = token
	cfg.ClientID = "cli-" + t.Name()
	cfg.CallTimeout = 5 * time.Second
	cfg.NoSocket = noSocket

	out := &syncBuffer{}
	c, err := Dial(context.Background(), cfg, srv.Client(), out, &syncBuffer{})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, out
}

func TestNewSaveShowAndList(t *testing.T) {
	srv := newServer(t)
	c, out := dial(t, srv, true)
	ctx := context.Background()

	require.NoError(t, c.New(ctx, "Orbit"))
	require.NoError(t, c.CreateClass(ctx, "Orbit", "Planet"))
	require.NoError(t, c.Save(ctx, "Orbit", "Planet", "class Planet {};"))
	require.NoError(t, c.RenameClass(ctx, "Orbit", "Planet", "Moon"))

	require.NoError(t, c.List(ctx))
	assert.Contains(t, out.String(), "Orbit\n")

	require.NoError(t, c.Show(ctx, "Orbit"))
	assert.Contains(t, out.String(), "project Orbit")
	assert.Contains(t, out.String(), "== Moon ==\nclass Planet {};")

	require.NoError(t, c.DeleteClass(ctx, "Orbit", "Moon"))
	require.NoError(t, c.Delete(ctx, "Orbit"))

	err := c.Show(ctx, "Orbit")
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
}

func TestAddons(t *testing.T) {
	srv := newServer(t)
	c, out := dial(t, srv, true)

	require.NoError(t, c.Addons(context.Background()))
	assert.Equal(t, "ofxGui\tSimple GUI\nofxTween\n", out.String())
}

func TestShowTemplate(t *testing.T) {
	srv := newServer(t)
	c, out := dial(t, srv, true)

	require.NoError(t, c.Show(context.Background(), ""))
	assert.Contains(t, out.String(), "(template)")
}

func TestRunStreamsOutput(t *testing.T) {
	srv := newServer(t)
	c, out := dial(t, srv, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, c.New(ctx, "Echo"))
	require.NoError(t, c.Save(ctx, "Echo", "Echo", "hello from echo"))

	code, err := c.Run(ctx, "Echo")
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, out.String(), "hello from echo\n")
}

func TestRunTemplateIsPrecondition(t *testing.T) {
	srv := newServer(t)
	c, _ := dial(t, srv, true)

	_, err := c.Run(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 2, ExitCode(api.Errorf(api.KindNameConflict, "taken")))
	assert.Equal(t, 4, ExitCode(api.Errorf(api.KindTransport, "down")))
}
