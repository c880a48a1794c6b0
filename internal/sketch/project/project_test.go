package project

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketchbook/internal/sketch/api"
)

func sample() *Project {
	return New(api.Project{
		ProjectName: "Bounce",
		Main:        api.ClassFile{Name: "Bounce", Source: "void setup() {}"},
		Classes: []api.ClassFile{
			{Name: "Ball", Source: "class Ball {};"},
			{Name: "Wall", Source: "class Wall {};"},
		},
	})
}

func TestIsClassNameIncludesReservedProjectName(t *testing.T) {
	p := sample()
	assert.True(t, p.IsClassName("Ball"))
	assert.True(t, p.IsClassName("Bounce"))
	assert.False(t, p.IsClassName("ball"), "match is case-sensitive")
	assert.False(t, p.IsClassName("Paddle"))
}

func TestAddClassRejectsDuplicatesAndReservedName(t *testing.T) {
	p := sample()

	require.NoError(t, p.AddClass(ClassFile{Name: "Paddle"}))
	assert.Equal(t, []string{"Ball", "Wall", "Paddle"}, p.ClassNames())

	err := p.AddClass(ClassFile{Name: "Paddle"})
	assert.True(t, errors.Is(err, api.ErrNameConflict))

	err = p.AddClass(ClassFile{Name: "Bounce"})
	assert.True(t, errors.Is(err, api.ErrPrecondition))

	err = p.AddClass(ClassFile{Name: "a/b"})
	assert.True(t, errors.Is(err, api.ErrInvalid))

	require.NoError(t, p.AddClass(ClassFile{Name: "Pa\u00efddle"}))
	err = p.CheckNewClassName("Pa\xffddle")
	assert.True(t, errors.Is(err, api.ErrInvalid), "invalid UTF-8 never reaches the server")
	assert.Len(t, p.Classes(), 4)
}

func TestRenameKeepsTabPosition(t *testing.T) {
	p := sample()
	require.NoError(t, p.RenameClass("Ball", "Puck"))
	assert.Equal(t, []string{"Puck", "Wall"}, p.ClassNames())

	assert.True(t, errors.Is(p.RenameClass("Ball", "Other"), api.ErrNotFound))
	assert.True(t, errors.Is(p.RenameClass("Puck", "Wall"), api.ErrNameConflict))
	assert.True(t, errors.Is(p.RenameClass("Bounce", "Main"), api.ErrPrecondition))
}

func TestRemoveReservedNameIsPrecondition(t *testing.T) {
	p := sample()
	err := p.RemoveClass("Bounce")
	assert.True(t, errors.Is(err, api.ErrPrecondition))
	assert.Equal(t, []string{"Ball", "Wall"}, p.ClassNames())
}

func TestPromoteTemplate(t *testing.T) {
	p := NewTemplate(api.Project{ProjectName: "Template", Classes: []api.ClassFile{{Name: "Helper"}}})
	require.True(t, p.IsTemplate())
	require.False(t, p.Saved())

	assert.True(t, errors.Is(p.Promote("Helper"), api.ErrNameConflict))

	require.NoError(t, p.Promote("MySketch"))
	assert.False(t, p.IsTemplate())
	assert.Equal(t, "MySketch", p.Name())
	assert.Equal(t, "MySketch", p.Main().Name)
	assert.True(t, p.Dirty(), "promoted project is unsaved")

	assert.True(t, errors.Is(p.Promote("Again"), api.ErrPrecondition))
}

func TestMarkSavedKeepsConcurrentEdits(t *testing.T) {
	p := sample()
	require.False(t, p.Dirty())

	require.NoError(t, p.SetSource("Ball", "v2"))
	require.NoError(t, p.SetSource("Wall", "v2"))
	snap := p.Snapshot()

	// An edit lands while the save is in flight.
	require.NoError(t, p.SetSource("Wall", "v3"))

	p.MarkSaved(snap)
	ball, _ := p.Class("Ball")
	wall, _ := p.Class("Wall")
	assert.False(t, ball.Dirty)
	assert.True(t, wall.Dirty)
	assert.True(t, p.Dirty())
}

func TestSnapshotCarriesTabOrder(t *testing.T) {
	p := sample()
	snap := p.Snapshot()
	assert.Equal(t, "Bounce", snap.Project.ProjectName)
	assert.Equal(t, "Bounce", snap.Project.Main.Name)
	require.Len(t, snap.Project.Classes, 2)
	assert.Equal(t, "Ball", snap.Project.Classes[0].Name)
	assert.Equal(t, "Wall", snap.Project.Classes[1].Name)
}

func TestCloneIsIndependent(t *testing.T) {
	p := sample()
	c := p.Clone()
	require.NoError(t, c.AddClass(ClassFile{Name: "Extra"}))
	assert.Len(t, p.Classes(), 2)
	assert.Len(t, c.Classes(), 3)
}

// Any sequence of class operations that individually succeed keeps class
// names pairwise unique and never lets a class take the project name.
func TestRandomClassOperationsKeepNamesUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"A", "B", "C", "D", "Bounce", "a"}
	p := sample()

	for i := 0; i < 2000; i++ {
		n1 := names[rng.Intn(len(names))]
		n2 := names[rng.Intn(len(names))]
		switch rng.Intn(3) {
		case 0:
			_ = p.AddClass(ClassFile{Name: n1})
		case 1:
			_ = p.RemoveClass(n1)
		case 2:
			_ = p.RenameClass(n1, n2)
		}

		seen := map[string]bool{}
		for _, name := range p.ClassNames() {
			require.False(t, seen[name], fmt.Sprintf("duplicate %q after step %d", name, i))
			require.NotEqual(t, p.Name(), name)
			seen[name] = true
		}
	}
}
