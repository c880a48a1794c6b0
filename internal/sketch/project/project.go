// Package project is the in-memory model of a sketch project: a main file
// named after the project and an ordered set of uniquely named classes.
//
// The model does no I/O. The session controller mutates it only after the
// backend has confirmed the matching remote call.
package project

import (
	"sketchbook/internal/sketch/api"
)

// ClassFile is one editor tab's buffer.
type ClassFile struct {
	Name     string
	Source   string
	Dirty    bool
	Revision uint64
}

// Project is not safe for concurrent use; the session controller serializes access.
type Project struct {
	name       string
	isTemplate bool
	main       ClassFile
	classes    []ClassFile
	// saved is false until the project has been persisted at least once.
	saved bool
}

// New builds a persisted project from its wire form.
func New(p api.Project) *Project {
	out := &Project{
		name:       p.ProjectName,
		isTemplate: p.IsTemplate,
		main:       ClassFile{Name: p.ProjectName, Source: p.Main.Source},
		classes:    make([]ClassFile, 0, len(p.Classes)),
		saved:      !p.IsTemplate,
	}
	for _, c := range p.Classes {
		out.classes = append(out.classes, ClassFile{Name: c.Name, Source: c.Source})
	}
	return out
}

// NewTemplate builds a local, never persisted starter project.
func NewTemplate(p api.Project) *Project {
	p.IsTemplate = true
	return New(p)
}

func (p *Project) Name() string { return p.name }

func (p *Project) IsTemplate() bool { return p.isTemplate }

// Saved reports whether the project exists on the backend in some version.
func (p *Project) Saved() bool { return p.saved }

func (p *Project) Main() ClassFile { return p.main }

// Classes returns a copy of the class files in tab order.
func (p *Project) Classes() []ClassFile {
	out := make([]ClassFile, len(p.classes))
	copy(out, p.classes)
	return out
}

func (p *Project) ClassNames() []string {
	out := make([]string, 0, len(p.classes))
	for _, c := range p.classes {
		out = append(out, c.Name)
	}
	return out
}

// IsClassName reports whether name is taken, either by a class or by the
// project's own main tab. The match is exact and case-sensitive.
func (p *Project) IsClassName(name string) bool {
	if name == p.name {
		return true
	}
	return p.indexOf(name) >= 0
}

// IsReserved reports whether name denotes the main tab.
func (p *Project) IsReserved(name string) bool { return name == p.name }

// Class returns the named buffer; the project name resolves to the main file.
func (p *Project) Class(name string) (ClassFile, bool) {
	if name == p.name {
		return p.main, true
	}
	i := p.indexOf(name)
	if i < 0 {
		return ClassFile{}, false
	}
	return p.classes[i], true
}

// CheckNewClassName validates name for a create or rename target.
func (p *Project) CheckNewClassName(name string) error {
	if err := api.ValidateName(name); err != nil {
		return err
	}
	if p.IsReserved(name) {
		return api.Errorf(api.KindPrecondition, "%q is the project's main tab", name)
	}
	if p.IsClassName(name) {
		return api.Errorf(api.KindNameConflict, "class %q already exists", name)
	}
	return nil
}

// CheckExistingClass validates name for a delete or rename source.
func (p *Project) CheckExistingClass(name string) error {
	if p.IsReserved(name) {
		return api.Errorf(api.KindPrecondition, "%q is the project's main tab", name)
	}
	if p.indexOf(name) < 0 {
		return api.Errorf(api.KindNotFound, "class %q does not exist", name)
	}
	return nil
}

func (p *Project) AddClass(c ClassFile) error {
	if err := p.CheckNewClassName(c.Name); err != nil {
		return err
	}
	c.Dirty = false
	p.classes = append(p.classes, c)
	return nil
}

func (p *Project) RemoveClass(name string) error {
	if err := p.CheckExistingClass(name); err != nil {
		return err
	}
	i := p.indexOf(name)
	p.classes = append(p.classes[:i], p.classes[i+1:]...)
	return nil
}

// RenameClass renames in place so the tab keeps its position.
func (p *Project) RenameClass(oldName, newName string) error {
	if err := p.CheckExistingClass(oldName); err != nil {
		return err
	}
	if err := p.CheckNewClassName(newName); err != nil {
		return err
	}
	p.classes[p.indexOf(oldName)].Name = newName
	return nil
}

// SetSource records a local edit and marks the buffer dirty.
func (p *Project) SetSource(name, source string) error {
	if name == p.name {
		p.main.Source = source
		p.main.Dirty = true
		p.main.Revision++
		return nil
	}
	i := p.indexOf(name)
	if i < 0 {
		return api.Errorf(api.KindNotFound, "class %q does not exist", name)
	}
	c := &p.classes[i]
	c.Source = source
	c.Dirty = true
	c.Revision++
	return nil
}

// Promote turns a template into a named, not yet persisted project.
func (p *Project) Promote(name string) error {
	if !p.isTemplate {
		return api.Errorf(api.KindPrecondition, "project %q is not a template", p.name)
	}
	if err := api.ValidateName(name); err != nil {
		return err
	}
	if p.indexOf(name) >= 0 {
		return api.Errorf(api.KindNameConflict, "project name %q collides with a class", name)
	}
	p.name = name
	p.main.Name = name
	p.main.Dirty = true
	p.isTemplate = false
	p.saved = false
	return nil
}

// Dirty reports unsaved local state: never persisted, or edited since the last save.
func (p *Project) Dirty() bool {
	if !p.saved || p.main.Dirty {
		return true
	}
	for _, c := range p.classes {
		if c.Dirty {
			return true
		}
	}
	return false
}

// Snapshot is the state a save carries: the wire payload plus the buffer
// revisions it was taken at.
type Snapshot struct {
	Project   api.Project
	revisions map[string]uint64
}

func (p *Project) Snapshot() Snapshot {
	s := Snapshot{
		Project: api.Project{
			ProjectName: p.name,
			Main:        api.ClassFile{Name: p.name, Source: p.main.Source},
			Classes:     make([]api.ClassFile, 0, len(p.classes)),
			IsTemplate:  p.isTemplate,
		},
		revisions: make(map[string]uint64, len(p.classes)+1),
	}
	s.revisions[p.name] = p.main.Revision
	for _, c := range p.classes {
		s.Project.Classes = append(s.Project.Classes, api.ClassFile{Name: c.Name, Source: c.Source})
		s.revisions[c.Name] = c.Revision
	}
	return s
}

// MarkSaved clears the dirty flag of every buffer still at the revision the
// snapshot carried. Edits made while the save was in flight stay dirty.
func (p *Project) MarkSaved(s Snapshot) {
	if s.Project.ProjectName != p.name {
		return
	}
	p.saved = true
	if rev, ok := s.revisions[p.name]; ok && rev == p.main.Revision {
		p.main.Dirty = false
	}
	for i := range p.classes {
		c := &p.classes[i]
		if rev, ok := s.revisions[c.Name]; ok && rev == c.Revision {
			c.Dirty = false
		}
	}
}

// Replace adopts a remote version of a persisted project.
func (p *Project) Replace(remote api.Project) {
	remote.IsTemplate = false
	*p = *New(remote)
}

func (p *Project) Clone() *Project {
	out := *p
	out.classes = p.Classes()
	return &out
}

func (p *Project) indexOf(name string) int {
	for i, c := range p.classes {
		if c.Name == name {
			return i
		}
	}
	return -1
}
