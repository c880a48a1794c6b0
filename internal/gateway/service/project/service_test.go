package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheproject "sketchbook/internal/cache/project"
	"sketchbook/internal/gateway/run"
	"sketchbook/internal/sketch/api"
)

func newTestService(t *testing.T) (*Service, *run.EventBroker) {
	t.Helper()
	broker := run.NewEventBroker()
	svc := New(cacheproject.NewMemoryStore(), broker, Options{})
	require.NoError(t, svc.Save(context.Background(), "seed", api.Project{
		ProjectName: "Bounce",
		Main:        api.ClassFile{Name: "Bounce", Source: "void setup() {}"},
		Classes:     []api.ClassFile{{Name: "Ball", Source: "class Ball {};"}},
	}))
	return svc, broker
}

func TestLoadMissingProjectIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, api.ErrNotFound)

	p, err := svc.Load(context.Background(), "Bounce")
	require.NoError(t, err)
	assert.Equal(t, "Bounce", p.Main.Name)
	assert.Equal(t, []api.ClassFile{{Name: "Ball", Source: "class Ball {};"}}, p.Classes)
	assert.False(t, p.IsTemplate)
}

func TestTemplateIsNotStored(t *testing.T) {
	svc, _ := newTestService(t)
	tpl := svc.Template()
	assert.True(t, tpl.IsTemplate)
	assert.Equal(t, DefaultTemplateName, tpl.ProjectName)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []api.ProjectSummary{{ProjectName: "Bounce"}}, list)
}

func TestCheckAvailable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	assert.ErrorIs(t, svc.CheckAvailable(ctx, "Bounce"), api.ErrNameConflict)
	assert.NoError(t, svc.CheckAvailable(ctx, "Fresh"))
	assert.ErrorIs(t, svc.CheckAvailable(ctx, "a/b"), api.ErrInvalid)

	// Availability does not reserve the name.
	assert.NoError(t, svc.CheckAvailable(ctx, "Fresh"))
}

func TestSaveIsIdempotentUpsert(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Load(ctx, "Bounce")
	require.NoError(t, err)
	p.Main.Source = "void draw() {}"

	require.NoError(t, svc.Save(ctx, "c1", p))
	require.NoError(t, svc.Save(ctx, "c1", p))
	got, err := svc.Load(ctx, "Bounce")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSaveRejectsBadClassNames(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	dup := api.Project{
		ProjectName: "Dup",
		Classes:     []api.ClassFile{{Name: "A"}, {Name: "A"}},
	}
	assert.ErrorIs(t, svc.Save(ctx, "c1", dup), api.ErrNameConflict)

	reserved := api.Project{ProjectName: "Dup", Classes: []api.ClassFile{{Name: "Dup"}}}
	assert.ErrorIs(t, svc.Save(ctx, "c1", reserved), api.ErrPrecondition)

	mismatched := api.Project{ProjectName: "Dup", Main: api.ClassFile{Name: "Other"}}
	assert.ErrorIs(t, svc.Save(ctx, "c1", mismatched), api.ErrInvalid)
}

func TestClassOperations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateClass(ctx, "c1", "Bounce", "Wall")
	require.NoError(t, err)
	assert.Equal(t, "Wall", created.Name)
	assert.Contains(t, created.Source, "class Wall {")

	_, err = svc.CreateClass(ctx, "c1", "Bounce", "Wall")
	assert.ErrorIs(t, err, api.ErrNameConflict)
	_, err = svc.CreateClass(ctx, "c1", "Bounce", "Bounce")
	assert.ErrorIs(t, err, api.ErrPrecondition)
	_, err = svc.CreateClass(ctx, "c1", "Missing", "Wall")
	assert.ErrorIs(t, err, api.ErrNotFound)

	require.NoError(t, svc.RenameClass(ctx, "c1", "Bounce", "Wall", "Paddle"))
	assert.ErrorIs(t, svc.RenameClass(ctx, "c1", "Bounce", "Wall", "X"), api.ErrNotFound)
	assert.ErrorIs(t, svc.RenameClass(ctx, "c1", "Bounce", "Paddle", "Ball"), api.ErrNameConflict)

	assert.ErrorIs(t, svc.DeleteClass(ctx, "c1", "Bounce", "Bounce"), api.ErrPrecondition)
	assert.ErrorIs(t, svc.DeleteClass(ctx, "c1", "Bounce", "Nope"), api.ErrNotFound)
	require.NoError(t, svc.DeleteClass(ctx, "c1", "Bounce", "Ball"))

	p, err := svc.Load(ctx, "Bounce")
	require.NoError(t, err)
	require.Len(t, p.Classes, 1)
	assert.Equal(t, "Paddle", p.Classes[0].Name)
	assert.Contains(t, p.Classes[0].Source, "class Wall {", "rename keeps the source")
}

func TestDeleteProject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Delete(ctx, "c1", "Bounce"))
	assert.ErrorIs(t, svc.Delete(ctx, "c1", "Bounce"), api.ErrNotFound)
}

func TestChangesArePublished(t *testing.T) {
	svc, broker := newTestService(t)
	ctx := context.Background()
	sub := broker.Subscribe("Bounce", 8)
	defer broker.Unsubscribe(sub)

	_, err := svc.CreateClass(ctx, "c1", "Bounce", "Wall")
	require.NoError(t, err)
	ev := <-sub.C()
	assert.Equal(t, api.NotifyProjectUpdated, ev.Method)
	updated, ok := ev.Params.(api.ProjectUpdated)
	require.True(t, ok)
	assert.Equal(t, "c1", updated.Origin)
	assert.Len(t, updated.Project.Classes, 2)

	// Rejected changes publish nothing.
	_, err = svc.CreateClass(ctx, "c1", "Bounce", "Wall")
	require.Error(t, err)
	assert.Len(t, sub.C(), 0)

	require.NoError(t, svc.Delete(ctx, "c2", "Bounce"))
	ev = <-sub.C()
	assert.Equal(t, api.NotifyProjectDeleted, ev.Method)
	assert.Equal(t, api.ProjectDeleted{Origin: "c2", ProjectName: "Bounce"}, ev.Params)
}
