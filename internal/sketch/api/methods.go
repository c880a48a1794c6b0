// Package api holds the wire contract shared by the sketch client and the
// sketch server: method names, payloads, notifications, frames and error kinds.
package api

import (
	"strings"
	"unicode"
)

const ServiceName = "sketch.v1.SketchService"

const (
	MethodLoadProject         = "loadProject"
	MethodLoadTemplateProject = "loadTemplateProject"
	MethodCreateProject       = "createProject"
	MethodSaveProject         = "saveProject"
	MethodDeleteProject       = "deleteProject"
	MethodListProjects        = "listProjects"
	MethodCreateClass         = "createClass"
	MethodRenameClass         = "renameClass"
	MethodDeleteClass         = "deleteClass"
	MethodRun                 = "run"
	MethodSubscribe           = "subscribe"
	MethodListAddons          = "listAddons"
)

// Methods lists every callable method in registration order.
var Methods = []string{
	MethodLoadProject,
	MethodLoadTemplateProject,
	MethodCreateProject,
	MethodSaveProject,
	MethodDeleteProject,
	MethodListProjects,
	MethodCreateClass,
	MethodRenameClass,
	MethodDeleteClass,
	MethodRun,
	MethodSubscribe,
	MethodListAddons,
}

// Procedure returns the connect procedure path for method, e.g.
// "/sketch.v1.SketchService/LoadProject".
func Procedure(method string) string {
	if method == "" {
		return "/" + ServiceName + "/"
	}
	r := []rune(method)
	r[0] = unicode.ToUpper(r[0])
	return "/" + ServiceName + "/" + string(r)
}

// MethodFromProcedure is the inverse of Procedure.
func MethodFromProcedure(procedure string) string {
	name := strings.TrimPrefix(procedure, "/"+ServiceName+"/")
	if name == "" || name == procedure {
		return ""
	}
	r := []rune(name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

const (
	HeaderClientID = "X-Sketch-Client"
	QueryClientID  = "client"
)

type ClassFile struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

type Project struct {
	ProjectName string      `json:"projectName"`
	Main        ClassFile   `json:"main"`
	Classes     []ClassFile `json:"classes"`
	IsTemplate  bool        `json:"isTemplate,omitempty"`
}

type ProjectSummary struct {
	ProjectName string `json:"projectName"`
}

type ProjectRef struct {
	ProjectName string `json:"projectName"`
}

type ListProjectsResult struct {
	Projects []ProjectSummary `json:"projects"`
}

type SaveProjectParams struct {
	Project Project `json:"project"`
}

type ClassRef struct {
	ProjectName string `json:"projectName"`
	ClassName   string `json:"className"`
}

type RenameClassParams struct {
	ProjectName  string `json:"projectName"`
	ClassName    string `json:"className"`
	NewClassName string `json:"newClassName"`
}

type RunTicket struct {
	RunID       string `json:"runId"`
	ProjectName string `json:"projectName"`
}

// Addon is a library installed in the server's addons directory that
// sketches can build against.
type Addon struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	URL         string   `json:"url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Core        bool     `json:"core,omitempty"`
}

type ListAddonsResult struct {
	Addons []Addon `json:"addons"`
}

type Ack struct {
	OK bool `json:"ok"`
}

// Server push notifications. They travel only over the persistent channel.
const (
	NotifyRunOutput      = "runOutput"
	NotifyRunFinished    = "runFinished"
	NotifyProjectUpdated = "projectUpdated"
	NotifyProjectDeleted = "projectDeleted"
)

type RunOutput struct {
	RunID       string `json:"runId"`
	ProjectName string `json:"projectName"`
	Line        string `json:"line"`
}

type RunFinished struct {
	RunID       string `json:"runId"`
	ProjectName string `json:"projectName"`
	ExitCode    int    `json:"exitCode"`
	Error       string `json:"error,omitempty"`
}

type ProjectUpdated struct {
	Origin  string  `json:"origin,omitempty"`
	Project Project `json:"project"`
}

type ProjectDeleted struct {
	Origin      string `json:"origin,omitempty"`
	ProjectName string `json:"projectName"`
}
