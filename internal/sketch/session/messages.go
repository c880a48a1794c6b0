package session

import "sketchbook/internal/sketch/notify"

type outcome struct {
	ok     string
	okKind notify.Kind
	fail   string
}

var outcomes = map[string]outcome{
	opLoadProject:         {ok: "Project loaded!", okKind: notify.Info, fail: "Load Error!"},
	opLoadTemplateProject: {ok: "Template project loaded!", okKind: notify.Info, fail: "Load Error!"},
	opCreateProject:       {ok: "Project created!", okKind: notify.Success, fail: "Error Creating Project!"},
	opSaveProject:         {ok: "Project saved!", okKind: notify.Success, fail: "Save Error!"},
	opRun:                 {ok: "Running Project...", okKind: notify.Info, fail: "Run Error!"},
	opCreateClass:         {ok: "Class created!", okKind: notify.Success, fail: "Error Creating Class!"},
	opDeleteClass:         {ok: "Class deleted!", okKind: notify.Success, fail: "Error Deleting Class!"},
	opRenameClass:         {ok: "Class renamed!", okKind: notify.Success, fail: "Error Renaming Class!"},
	opGetProjectList:      {ok: "Project list loaded.", okKind: notify.Info, fail: "Error Listing Projects!"},
	opDeleteProject:       {ok: "Project deleted!", okKind: notify.Success, fail: "Error Deleting Project!"},
	opGetAddonList:        {ok: "Addon list loaded.", okKind: notify.Info, fail: "Error Listing Addons!"},
}

const (
	msgRunFinished      = "Run finished!"
	msgRunFailed        = "Run failed!"
	msgRemoteUpdate     = "Project updated remotely."
	msgRemoteConflict   = "Project changed remotely!"
	msgRemoteDeleted    = "Project deleted remotely!"
	msgConnectionClosed = "Connection closed."
	msgConnectionError  = "Connection error."
	detailLocalEdits    = "local edits were kept"
	detailSaveRecreate  = "saving will recreate it"
)
