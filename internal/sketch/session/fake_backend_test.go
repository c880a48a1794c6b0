package session

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"sketchbook/internal/sketch/api"
)

// fakeBackend is an in-process sketch server. Payloads go through JSON so
// that nothing is shared with the controller by reference.
type fakeBackend struct {
	mu          sync.Mutex
	projects    map[string]api.Project
	template    api.Project
	calls       []string
	inflight    int
	maxInflight int
	gates       map[string]chan struct{}
	failures    map[string]error
	jitter      bool
	rng         *rand.Rand
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		projects: map[string]api.Project{
			"Bounce": {
				ProjectName: "Bounce",
				Main:        api.ClassFile{Name: "Bounce", Source: "void setup() {}"},
				Classes:     []api.ClassFile{{Name: "Ball", Source: "class Ball {};"}},
			},
		},
		template: api.Project{
			ProjectName: "Template",
			Main:        api.ClassFile{Name: "Template", Source: "void setup() {}\nvoid draw() {}"},
		},
		gates:    map[string]chan struct{}{},
		failures: map[string]error{},
		rng:      rand.New(rand.NewSource(1)),
	}
}

// gate blocks calls to method until the returned function is called.
func (f *fakeBackend) gate(method string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[method] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// failOnce makes the next call to method fail with err without touching
// the stored projects.
func (f *fakeBackend) failOnce(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

func (f *fakeBackend) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m == method {
			n++
		}
	}
	return n
}

func (f *fakeBackend) stored(name string) (api.Project, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[name]
	return p, ok
}

func (f *fakeBackend) Call(ctx context.Context, method string, params, result any) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	gate := f.gates[method]
	injected := f.failures[method]
	delete(f.failures, method)
	var delay time.Duration
	if f.jitter {
		delay = time.Duration(f.rng.Intn(3)) * time.Millisecond
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	time.Sleep(delay)
	if injected != nil {
		return injected
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	f.mu.Lock()
	res, err := f.handle(method, raw)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	out, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(out, result)
}

func (f *fakeBackend) handle(method string, raw json.RawMessage) (any, error) {
	switch method {
	case api.MethodLoadProject:
		var ref api.ProjectRef
		_ = json.Unmarshal(raw, &ref)
		p, ok := f.projects[ref.ProjectName]
		if !ok {
			return nil, api.Errorf(api.KindNotFound, "project %q not found", ref.ProjectName)
		}
		return p, nil

	case api.MethodLoadTemplateProject:
		return f.template, nil

	case api.MethodCreateProject:
		var ref api.ProjectRef
		_ = json.Unmarshal(raw, &ref)
		if _, ok := f.projects[ref.ProjectName]; ok {
			return nil, api.Errorf(api.KindNameConflict, "project %q exists", ref.ProjectName)
		}
		return api.Ack{OK: true}, nil

	case api.MethodSaveProject:
		var in api.SaveProjectParams
		_ = json.Unmarshal(raw, &in)
		f.projects[in.Project.ProjectName] = in.Project
		return api.Ack{OK: true}, nil

	case api.MethodDeleteProject:
		var ref api.ProjectRef
		_ = json.Unmarshal(raw, &ref)
		if _, ok := f.projects[ref.ProjectName]; !ok {
			return nil, api.Errorf(api.KindNotFound, "project %q not found", ref.ProjectName)
		}
		delete(f.projects, ref.ProjectName)
		return api.Ack{OK: true}, nil

	case api.MethodListProjects:
		out := api.ListProjectsResult{}
		for name := range f.projects {
			out.Projects = append(out.Projects, api.ProjectSummary{ProjectName: name})
		}
		sort.Slice(out.Projects, func(i, j int) bool { return out.Projects[i].ProjectName < out.Projects[j].ProjectName })
		return out, nil

	case api.MethodListAddons:
		return api.ListAddonsResult{Addons: []api.Addon{
			{Name: "ofxGui", Core: true},
			{Name: "ofxTween", Author: "arturo", Tags: []string{"animation"}},
		}}, nil

	case api.MethodCreateClass:
		var ref api.ClassRef
		_ = json.Unmarshal(raw, &ref)
		p, ok := f.projects[ref.ProjectName]
		if !ok {
			return nil, api.Errorf(api.KindNotFound, "project %q not found", ref.ProjectName)
		}
		for _, c := range p.Classes {
			if c.Name == ref.ClassName {
				return nil, api.Errorf(api.KindNameConflict, "class %q exists", ref.ClassName)
			}
		}
		c := api.ClassFile{Name: ref.ClassName, Source: "class " + ref.ClassName + " {};"}
		p.Classes = append(append([]api.ClassFile(nil), p.Classes...), c)
		f.projects[ref.ProjectName] = p
		return c, nil

	case api.MethodDeleteClass:
		var ref api.ClassRef
		_ = json.Unmarshal(raw, &ref)
		p, ok := f.projects[ref.ProjectName]
		if !ok {
			return nil, api.Errorf(api.KindNotFound, "project %q not found", ref.ProjectName)
		}
		kept := make([]api.ClassFile, 0, len(p.Classes))
		for _, c := range p.Classes {
			if c.Name != ref.ClassName {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(p.Classes) {
			return nil, api.Errorf(api.KindNotFound, "class %q not found", ref.ClassName)
		}
		p.Classes = kept
		f.projects[ref.ProjectName] = p
		return api.Ack{OK: true}, nil

	case api.MethodRenameClass:
		var in api.RenameClassParams
		_ = json.Unmarshal(raw, &in)
		p, ok := f.projects[in.ProjectName]
		if !ok {
			return nil, api.Errorf(api.KindNotFound, "project %q not found", in.ProjectName)
		}
		classes := append([]api.ClassFile(nil), p.Classes...)
		for i := range classes {
			if classes[i].Name == in.ClassName {
				classes[i].Name = in.NewClassName
				p.Classes = classes
				f.projects[in.ProjectName] = p
				return api.Ack{OK: true}, nil
			}
		}
		return nil, api.Errorf(api.KindNotFound, "class %q not found", in.ClassName)

	case api.MethodRun:
		var ref api.ProjectRef
		_ = json.Unmarshal(raw, &ref)
		return api.RunTicket{RunID: "run-1", ProjectName: ref.ProjectName}, nil
	}
	return nil, api.Errorf(api.KindInvalid, "unknown method %q", method)
}
