package project

import (
	"context"
	"errors"
	"time"
)

// Repository persists sketch projects by name. Update and Delete report
// whether the project existed.
type Repository interface {
	EnsureLoaded(ctx context.Context) error
	Get(ctx context.Context, name string) (State, bool, error)
	Put(ctx context.Context, state State) error
	Update(ctx context.Context, name string, update func(*State) error) (State, bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

type State struct {
	ProjectName string       `json:"project_name"`
	MainSource  string       `json:"main_source"`
	Classes     []ClassState `json:"classes"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type ClassState struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

var ErrStoreNil = errors.New("project store is nil")

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	out := s
	if s.Classes != nil {
		out.Classes = make([]ClassState, len(s.Classes))
		copy(out.Classes, s.Classes)
	}
	return out
}
