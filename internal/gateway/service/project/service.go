// Package project holds the server-side rules for sketch projects and their
// classes. Every change is published to the project's subscribers.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"

	projectrepo "sketchbook/internal/gateway/repository/project"
	"sketchbook/internal/gateway/run"
	"sketchbook/internal/sketch/api"
)

const (
	DefaultTemplateName   = "Template"
	DefaultTemplateSource = "void setup() {\n}\n\nvoid update() {\n}\n\nvoid draw() {\n}\n"
	// DefaultClassSource is expanded with the class name in place of {{name}}.
	DefaultClassSource = "class {{name}} {\npublic:\n    {{name}}() {\n    }\n};\n"
)

// Publisher receives change notifications for a project.
type Publisher interface {
	Publish(project string, ev run.Event)
}

type Options struct {
	TemplateName   string
	TemplateSource string
	ClassSource    string
}

type Service struct {
	store  projectrepo.Repository
	events Publisher
	opts   Options
}

func New(store projectrepo.Repository, events Publisher, opts Options) *Service {
	if opts.TemplateName == "" {
		opts.TemplateName = DefaultTemplateName
	}
	if opts.TemplateSource == "" {
		opts.TemplateSource = DefaultTemplateSource
	}
	if opts.ClassSource == "" {
		opts.ClassSource = DefaultClassSource
	}
	return &Service{store: store, events: events, opts: opts}
}

func (s *Service) Load(ctx context.Context, name string) (api.Project, error) {
	st, err := s.get(ctx, name)
	if err != nil {
		return api.Project{}, err
	}
	return ToAPI(st), nil
}

// Get returns the stored state of name or a NotFound error.
func (s *Service) Get(ctx context.Context, name string) (projectrepo.State, error) {
	return s.get(ctx, name)
}

func (s *Service) get(ctx context.Context, name string) (projectrepo.State, error) {
	if err := api.ValidateName(name); err != nil {
		return projectrepo.State{}, err
	}
	st, ok, err := s.store.Get(ctx, name)
	if err != nil {
		return projectrepo.State{}, fmt.Errorf("load project %q: %w", name, err)
	}
	if !ok {
		return projectrepo.State{}, api.Errorf(api.KindNotFound, "project %q not found", name)
	}
	return st, nil
}

// Template returns the starter project. It is never stored.
func (s *Service) Template() api.Project {
	return api.Project{
		ProjectName: s.opts.TemplateName,
		Main:        api.ClassFile{Name: s.opts.TemplateName, Source: s.opts.TemplateSource},
		Classes:     []api.ClassFile{},
		IsTemplate:  true,
	}
}

// CheckAvailable reports a NameConflict if name is taken. Nothing is reserved:
// the name is claimed by the first save.
func (s *Service) CheckAvailable(ctx context.Context, name string) error {
	if err := api.ValidateName(name); err != nil {
		return err
	}
	_, ok, err := s.store.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("check project %q: %w", name, err)
	}
	if ok {
		return api.Errorf(api.KindNameConflict, "project %q already exists", name)
	}
	return nil
}

// Save upserts the whole project.
func (s *Service) Save(ctx context.Context, origin string, p api.Project) error {
	st, err := FromAPI(p)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, st); err != nil {
		return fmt.Errorf("save project %q: %w", st.ProjectName, err)
	}
	glog.V(1).Infof("[project] saved %q (%d classes) origin=%s", st.ProjectName, len(st.Classes), origin)
	s.publishUpdated(origin, st)
	return nil
}

func (s *Service) Delete(ctx context.Context, origin, name string) error {
	if err := api.ValidateName(name); err != nil {
		return err
	}
	ok, err := s.store.Delete(ctx, name)
	if err != nil {
		return fmt.Errorf("delete project %q: %w", name, err)
	}
	if !ok {
		return api.Errorf(api.KindNotFound, "project %q not found", name)
	}
	glog.Infof("[project] deleted %q origin=%s", name, origin)
	s.publish(name, api.NotifyProjectDeleted, api.ProjectDeleted{Origin: origin, ProjectName: name})
	return nil
}

func (s *Service) List(ctx context.Context) ([]api.ProjectSummary, error) {
	names, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]api.ProjectSummary, 0, len(names))
	for _, name := range names {
		out = append(out, api.ProjectSummary{ProjectName: name})
	}
	return out, nil
}

// CreateClass adds a class with starter source and returns it.
func (s *Service) CreateClass(ctx context.Context, origin, projectName, className string) (api.ClassFile, error) {
	if err := api.ValidateName(projectName); err != nil {
		return api.ClassFile{}, err
	}
	created := api.ClassFile{Name: className, Source: s.classSource(className)}
	st, err := s.update(ctx, projectName, func(st *projectrepo.State) error {
		if err := checkNewClassName(*st, className); err != nil {
			return err
		}
		st.Classes = append(st.Classes, projectrepo.ClassState{Name: created.Name, Source: created.Source})
		return nil
	})
	if err != nil {
		return api.ClassFile{}, err
	}
	s.publishUpdated(origin, st)
	return created, nil
}

func (s *Service) RenameClass(ctx context.Context, origin, projectName, oldName, newName string) error {
	if err := api.ValidateName(projectName); err != nil {
		return err
	}
	st, err := s.update(ctx, projectName, func(st *projectrepo.State) error {
		i := classIndex(*st, oldName)
		if i < 0 {
			return api.Errorf(api.KindNotFound, "class %q not found in %q", oldName, st.ProjectName)
		}
		if oldName == newName {
			return nil
		}
		if err := checkNewClassName(*st, newName); err != nil {
			return err
		}
		st.Classes[i].Name = newName
		return nil
	})
	if err != nil {
		return err
	}
	s.publishUpdated(origin, st)
	return nil
}

func (s *Service) DeleteClass(ctx context.Context, origin, projectName, className string) error {
	if err := api.ValidateName(projectName); err != nil {
		return err
	}
	st, err := s.update(ctx, projectName, func(st *projectrepo.State) error {
		if className == st.ProjectName {
			return api.Errorf(api.KindPrecondition, "the main class %q cannot be deleted", className)
		}
		i := classIndex(*st, className)
		if i < 0 {
			return api.Errorf(api.KindNotFound, "class %q not found in %q", className, st.ProjectName)
		}
		st.Classes = append(st.Classes[:i], st.Classes[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	s.publishUpdated(origin, st)
	return nil
}

func (s *Service) update(ctx context.Context, name string, fn func(*projectrepo.State) error) (projectrepo.State, error) {
	st, ok, err := s.store.Update(ctx, name, fn)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return projectrepo.State{}, err
		}
		return projectrepo.State{}, fmt.Errorf("update project %q: %w", name, err)
	}
	if !ok {
		return projectrepo.State{}, api.Errorf(api.KindNotFound, "project %q not found", name)
	}
	return st, nil
}

func (s *Service) classSource(name string) string {
	return strings.ReplaceAll(s.opts.ClassSource, "{{name}}", name)
}

func (s *Service) publishUpdated(origin string, st projectrepo.State) {
	s.publish(st.ProjectName, api.NotifyProjectUpdated, api.ProjectUpdated{Origin: origin, Project: ToAPI(st)})
}

func (s *Service) publish(name, method string, params any) {
	if s.events == nil {
		return
	}
	s.events.Publish(name, run.Event{Method: method, Params: params})
}

func checkNewClassName(st projectrepo.State, name string) error {
	if err := api.ValidateName(name); err != nil {
		return err
	}
	if name == st.ProjectName {
		return api.Errorf(api.KindPrecondition, "%q is the main class of the project", name)
	}
	if classIndex(st, name) >= 0 {
		return api.Errorf(api.KindNameConflict, "class %q already exists in %q", name, st.ProjectName)
	}
	return nil
}

func classIndex(st projectrepo.State, name string) int {
	for i, c := range st.Classes {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func ToAPI(st projectrepo.State) api.Project {
	classes := make([]api.ClassFile, 0, len(st.Classes))
	for _, c := range st.Classes {
		classes = append(classes, api.ClassFile{Name: c.Name, Source: c.Source})
	}
	return api.Project{
		ProjectName: st.ProjectName,
		Main:        api.ClassFile{Name: st.ProjectName, Source: st.MainSource},
		Classes:     classes,
	}
}

// FromAPI validates p and converts it to its stored form.
func FromAPI(p api.Project) (projectrepo.State, error) {
	if err := api.ValidateName(p.ProjectName); err != nil {
		return projectrepo.State{}, err
	}
	if p.Main.Name != "" && p.Main.Name != p.ProjectName {
		return projectrepo.State{}, api.Errorf(api.KindInvalid, "main class %q must be named %q", p.Main.Name, p.ProjectName)
	}
	st := projectrepo.State{
		ProjectName: p.ProjectName,
		MainSource:  p.Main.Source,
		Classes:     make([]projectrepo.ClassState, 0, len(p.Classes)),
	}
	for _, c := range p.Classes {
		if err := checkNewClassName(st, c.Name); err != nil {
			return projectrepo.State{}, err
		}
		st.Classes = append(st.Classes, projectrepo.ClassState{Name: c.Name, Source: c.Source})
	}
	return st, nil
}
