package run

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheproject "sketchbook/internal/cache/project"
	artifactrepo "sketchbook/internal/gateway/repository/artifact"
	projectrepo "sketchbook/internal/gateway/repository/project"
	"sketchbook/internal/gateway/run"
	projectsvc "sketchbook/internal/gateway/service/project"
	"sketchbook/internal/sketch/api"
)

type runFixture struct {
	svc       *Service
	broker    *run.EventBroker
	artifacts *artifactrepo.MemoryStore
	sub       *run.Subscription
}

func newRunFixture(t *testing.T, command ...string) *runFixture {
	t.Helper()
	broker := run.NewEventBroker()
	projects := projectsvc.New(cacheproject.NewMemoryStore(), nil, projectsvc.Options{})
	require.NoError(t, projects.Save(context.Background(), "seed", api.Project{
		ProjectName: "Bounce",
		Main:        api.ClassFile{Name: "Bounce", Source: "line one\nline two"},
		Classes:     []api.ClassFile{{Name: "Ball", Source: "ball"}},
	}))
	artifacts := artifactrepo.NewMemoryStore()
	svc := New(projects, broker, artifacts, Options{
		Command:      command,
		WorkspaceDir: t.TempDir(),
	})
	t.Cleanup(svc.Close)
	sub := broker.Subscribe("Bounce", 64)
	t.Cleanup(func() { broker.Unsubscribe(sub) })
	return &runFixture{svc: svc, broker: broker, artifacts: artifacts, sub: sub}
}

// collect reads events until the runFinished of runID arrives.
func (f *runFixture) collect(t *testing.T, runID string) ([]string, api.RunFinished) {
	t.Helper()
	var lines []string
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-f.sub.C():
			switch p := ev.Params.(type) {
			case api.RunOutput:
				if p.RunID == runID {
					lines = append(lines, p.Line)
				}
			case api.RunFinished:
				if p.RunID == runID {
					return lines, p
				}
			}
		case <-timeout:
			t.Fatalf("run %s did not finish", runID)
		}
	}
}

func TestRunStreamsOutputAndStoresLog(t *testing.T) {
	f := newRunFixture(t, "sh", "-c", "cat src/{{project}}.sketch; echo; cat src/Ball.sketch; echo; echo done >&2; exit 3")
	ticket, err := f.svc.Start(context.Background(), "c1", "Bounce")
	require.NoError(t, err)
	assert.Equal(t, "Bounce", ticket.ProjectName)
	assert.NotEmpty(t, ticket.RunID)

	lines, finished := f.collect(t, ticket.RunID)
	assert.Equal(t, []string{"line one", "line two", "ball", "done"}, lines)
	assert.Equal(t, 3, finished.ExitCode)
	assert.Empty(t, finished.Error)

	log, err := f.svc.Log(context.Background(), ticket.RunID)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\nball\ndone\n", string(log))
}

func TestRunMissingProjectIsNotFound(t *testing.T) {
	f := newRunFixture(t, "true")
	_, err := f.svc.Start(context.Background(), "c1", "Missing")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestRunUnknownCommandFailsToStart(t *testing.T) {
	f := newRunFixture(t, "/nonexistent/sketch-build")
	_, err := f.svc.Start(context.Background(), "c1", "Bounce")
	require.Error(t, err)
	assert.NotErrorIs(t, err, api.ErrNotFound)
}

func TestRunCancelsPreviousRunOfSameProject(t *testing.T) {
	f := newRunFixture(t, "sleep", "5")
	first, err := f.svc.Start(context.Background(), "c1", "Bounce")
	require.NoError(t, err)
	second, err := f.svc.Start(context.Background(), "c1", "Bounce")
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	_, finished := f.collect(t, first.RunID)
	assert.Equal(t, -1, finished.ExitCode)
	assert.Equal(t, "run canceled", finished.Error)
}

type staticSource projectrepo.State

func (s staticSource) Get(context.Context, string) (projectrepo.State, error) {
	return projectrepo.State(s), nil
}

func TestRunRejectsClassNamesOutsideWorkspace(t *testing.T) {
	ws := t.TempDir()
	svc := New(staticSource{
		ProjectName: "Bounce",
		Classes:     []projectrepo.ClassState{{Name: "../../../../escape", Source: "x"}},
	}, nil, nil, Options{Command: []string{"true"}, WorkspaceDir: ws})
	t.Cleanup(svc.Close)

	_, err := svc.Start(context.Background(), "c1", "Bounce")
	require.Error(t, err)
	entries, err := os.ReadDir(ws)
	require.NoError(t, err)
	assert.Empty(t, entries, "the partial workspace is removed")
	_, err = os.Stat(filepath.Join(filepath.Dir(ws), "escape.sketch"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunLogOfUnknownRun(t *testing.T) {
	f := newRunFixture(t, "true")
	_, err := f.svc.Log(context.Background(), "nope")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestLogBufferTruncates(t *testing.T) {
	b := newLogBuffer(10)
	b.WriteLine("12345")
	b.WriteLine("67890")
	b.WriteLine("more")
	assert.Equal(t, "12345\n[output truncated]\n", string(b.Bytes()))
}
