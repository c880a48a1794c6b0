package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.EnsureLoaded(ctx))

	_, ok, err := repo.Get(ctx, "Bounce")
	require.NoError(t, err)
	assert.False(t, ok)

	state := State{
		ProjectName: "Bounce",
		MainSource:  "void setup() {}",
		Classes:     []ClassState{{Name: "Ball", Source: "class Ball {};"}},
	}
	require.NoError(t, repo.Put(ctx, state))
	require.NoError(t, repo.Put(ctx, State{ProjectName: "Alpha"}))

	got, ok, err := repo.Get(ctx, "Bounce")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.MainSource, got.MainSource)
	assert.Equal(t, state.Classes, got.Classes)
	assert.False(t, got.UpdatedAt.IsZero())

	names, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Bounce"}, names)

	updated, ok, err := repo.Update(ctx, "Bounce", func(s *State) error {
		s.Classes = append(s.Classes, ClassState{Name: "Wall"})
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, updated.Classes, 2)

	errRejected := errors.New("rejected")
	_, ok, err = repo.Update(ctx, "Bounce", func(s *State) error {
		s.Classes = nil
		return errRejected
	})
	assert.True(t, ok)
	assert.ErrorIs(t, err, errRejected)
	got, _, _ = repo.Get(ctx, "Bounce")
	assert.Len(t, got.Classes, 2, "a rejected update must not be written")

	_, ok, err = repo.Update(ctx, "missing", func(*State) error { return nil })
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := repo.Delete(ctx, "Bounce")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, "Bounce")
	require.NoError(t, err)
	assert.False(t, deleted)

	names, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, names)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "projects.json")
	exerciseRepository(t, NewFileStore(path))

	// A second store reads what the first one wrote.
	reopened := NewFileStore(path)
	names, err := reopened.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, names)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	err := NewFileStore(path).EnsureLoaded(context.Background())
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseRepository(t, NewRedisStore(client))
	assert.True(t, mr.Exists(projectSetKey))
	assert.False(t, mr.Exists(projectKeyPrefix+"Bounce"))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SKETCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SKETCH_TEST_DATABASE_URL not set")
	}
	db, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM sketch_projects WHERE name IN ('Alpha', 'Bounce')`)
		_ = db.Close()
	})
	exerciseRepository(t, NewPostgresStore(db))
}
