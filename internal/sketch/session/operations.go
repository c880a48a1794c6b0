package session

import (
	"github.com/golang/glog"

	"sketchbook/internal/sketch/api"
	"sketchbook/internal/sketch/project"
)

// LoadProject fetches name from the server and makes it the loaded project.
// On failure the previously loaded project stays as it was.
func (c *Controller) LoadProject(name string) *Future[*project.Project] {
	return submit(c, opLoadProject, func() (*project.Project, error) {
		if err := api.ValidateName(name); err != nil {
			return nil, err
		}
		return c.load(api.MethodLoadProject, api.ProjectRef{ProjectName: name}, false)
	})
}

// LoadTemplateProject loads the starter project. It stays local until named
// with CreateProject and saved.
func (c *Controller) LoadTemplateProject() *Future[*project.Project] {
	return submit(c, opLoadTemplateProject, func() (*project.Project, error) {
		return c.load(api.MethodLoadTemplateProject, nil, true)
	})
}

func (c *Controller) load(method string, params any, template bool) (*project.Project, error) {
	prev := c.setState(Loading)

	var remote api.Project
	err := c.call(method, params, &remote)
	if err == nil && remote.ProjectName == "" {
		err = api.Errorf(api.KindTransport, "server returned a project without a name")
	}
	if err != nil {
		c.setState(prev)
		return nil, err
	}

	var p *project.Project
	if template {
		p = project.NewTemplate(remote)
	} else {
		p = project.New(remote)
	}

	c.mu.Lock()
	c.project = p
	c.selected = p.Name()
	c.state = Loaded
	out := p.Clone()
	c.mu.Unlock()

	if !template {
		c.resubscribe()
	}
	return out, nil
}

// CreateProject names the loaded template. The server only checks that the
// name is free; nothing is persisted until SaveProject.
func (c *Controller) CreateProject(name string) *Future[struct{}] {
	return submit(c, opCreateProject, func() (struct{}, error) {
		err := c.begin(Mutating, func(p *project.Project) error {
			if !p.IsTemplate() {
				return api.Errorf(api.KindPrecondition, "project %q is not a template", p.Name())
			}
			return p.Clone().Promote(name)
		})
		if err != nil {
			return struct{}{}, err
		}

		err = c.call(api.MethodCreateProject, api.ProjectRef{ProjectName: name}, nil)
		err = c.end(err, func(p *project.Project) error {
			wasSelected := c.selected == p.Name()
			if err := p.Promote(name); err != nil {
				return err
			}
			if wasSelected {
				c.selected = name
			}
			return nil
		})
		if err == nil {
			c.resubscribe()
		}
		return struct{}{}, err
	})
}

// SaveProject upserts the whole project. Edits made while the save is in
// flight stay dirty.
func (c *Controller) SaveProject() *Future[struct{}] {
	return submit(c, opSaveProject, func() (struct{}, error) {
		var snap project.Snapshot
		err := c.begin(Saving, func(p *project.Project) error {
			if p.IsTemplate() {
				return api.Errorf(api.KindPrecondition, "name the project before saving it")
			}
			snap = p.Snapshot()
			return nil
		})
		if err != nil {
			return struct{}{}, err
		}

		err = c.call(api.MethodSaveProject, api.SaveProjectParams{Project: snap.Project}, nil)
		err = c.end(err, func(p *project.Project) error {
			p.MarkSaved(snap)
			return nil
		})
		return struct{}{}, err
	})
}

// Run starts a build of the saved project. It never saves implicitly.
func (c *Controller) Run() *Future[api.RunTicket] {
	return submit(c, opRun, func() (api.RunTicket, error) {
		var name string
		err := c.begin(Running, func(p *project.Project) error {
			switch {
			case p.IsTemplate():
				return api.Errorf(api.KindPrecondition, "template projects cannot run")
			case !p.Saved():
				return api.Errorf(api.KindPrecondition, "project %q has never been saved", p.Name())
			case p.Dirty():
				return api.Errorf(api.KindPrecondition, "project %q has unsaved changes", p.Name())
			}
			name = p.Name()
			return nil
		})
		if err != nil {
			return api.RunTicket{}, err
		}

		var ticket api.RunTicket
		err = c.call(api.MethodRun, api.ProjectRef{ProjectName: name}, &ticket)
		err = c.end(err, nil)
		return ticket, err
	})
}

func (c *Controller) CreateClass(name string) *Future[struct{}] {
	return submit(c, opCreateClass, func() (struct{}, error) {
		var projectName string
		err := c.begin(Mutating, func(p *project.Project) error {
			if p.IsTemplate() {
				return api.Errorf(api.KindPrecondition, "name the project before adding classes")
			}
			projectName = p.Name()
			return p.CheckNewClassName(name)
		})
		if err != nil {
			return struct{}{}, err
		}

		var created api.ClassFile
		err = c.call(api.MethodCreateClass, api.ClassRef{ProjectName: projectName, ClassName: name}, &created)
		err = c.end(err, func(p *project.Project) error {
			return p.AddClass(project.ClassFile{Name: name, Source: created.Source})
		})
		return struct{}{}, err
	})
}

func (c *Controller) DeleteClass(name string) *Future[struct{}] {
	return submit(c, opDeleteClass, func() (struct{}, error) {
		var projectName string
		err := c.begin(Mutating, func(p *project.Project) error {
			if p.IsTemplate() {
				return api.Errorf(api.KindPrecondition, "name the project before removing classes")
			}
			projectName = p.Name()
			return p.CheckExistingClass(name)
		})
		if err != nil {
			return struct{}{}, err
		}

		err = c.call(api.MethodDeleteClass, api.ClassRef{ProjectName: projectName, ClassName: name}, nil)
		err = c.end(err, func(p *project.Project) error {
			if err := p.RemoveClass(name); err != nil {
				return err
			}
			if c.selected == name {
				c.selected = p.Name()
			}
			return nil
		})
		return struct{}{}, err
	})
}

func (c *Controller) RenameClass(oldName, newName string) *Future[struct{}] {
	return submit(c, opRenameClass, func() (struct{}, error) {
		var projectName string
		err := c.begin(Mutating, func(p *project.Project) error {
			if p.IsTemplate() {
				return api.Errorf(api.KindPrecondition, "name the project before renaming classes")
			}
			if err := p.CheckExistingClass(oldName); err != nil {
				return err
			}
			projectName = p.Name()
			return p.CheckNewClassName(newName)
		})
		if err != nil {
			return struct{}{}, err
		}

		err = c.call(api.MethodRenameClass, api.RenameClassParams{
			ProjectName:  projectName,
			ClassName:    oldName,
			NewClassName: newName,
		}, nil)
		err = c.end(err, func(p *project.Project) error {
			if err := p.RenameClass(oldName, newName); err != nil {
				return err
			}
			if c.selected == oldName {
				c.selected = newName
			}
			return nil
		})
		return struct{}{}, err
	})
}

// GetProjectList is read-only and runs beside the queue.
func (c *Controller) GetProjectList() *Future[[]api.ProjectSummary] {
	f := newFuture[[]api.ProjectSummary]()
	go func() {
		var res api.ListProjectsResult
		err := c.call(api.MethodListProjects, nil, &res)
		finish(c, opGetProjectList, f, res.Projects, err, "")
	}()
	return f
}

// GetAddonList lists the addons installed on the server. Like
// GetProjectList it does not wait for the queue.
func (c *Controller) GetAddonList() *Future[[]api.Addon] {
	f := newFuture[[]api.Addon]()
	go func() {
		var res api.ListAddonsResult
		err := c.call(api.MethodListAddons, nil, &res)
		finish(c, opGetAddonList, f, res.Addons, err, "")
	}()
	return f
}

// DeleteProject removes the loaded project from the server and unloads it.
func (c *Controller) DeleteProject() *Future[struct{}] {
	return submit(c, opDeleteProject, func() (struct{}, error) {
		var name string
		err := c.begin(Mutating, func(p *project.Project) error {
			if p.IsTemplate() {
				return api.Errorf(api.KindPrecondition, "template projects are never persisted")
			}
			name = p.Name()
			return nil
		})
		if err != nil {
			return struct{}{}, err
		}

		err = c.call(api.MethodDeleteProject, api.ProjectRef{ProjectName: name}, nil)
		c.mu.Lock()
		c.state = Loaded
		if err == nil {
			c.project = nil
			c.selected = ""
			c.state = Unloaded
		}
		c.mu.Unlock()
		return struct{}{}, err
	})
}

// resubscribe asks the server for notifications about the loaded project.
// It is best effort and needs the persistent channel.
func (c *Controller) resubscribe() {
	c.enqueue(task{
		run: func() {
			c.mu.RLock()
			p := c.project
			var name string
			if p != nil && !p.IsTemplate() {
				name = p.Name()
			}
			c.mu.RUnlock()
			if name == "" {
				return
			}
			if err := c.callPersistent(api.MethodSubscribe, api.ProjectRef{ProjectName: name}, nil); err != nil {
				glog.V(1).Infof("[session]subscribe %s = %s", name, err)
			}
		},
		abort: func(error) {},
	})
}
