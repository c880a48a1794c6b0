// Package rpc serves the sketch API. One dispatch table backs both the
// websocket JSON-RPC endpoint and the connect unary handlers.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang/glog"

	"sketchbook/internal/gateway/middleware"
	"sketchbook/internal/gateway/run"
	"sketchbook/internal/sketch/api"
)

// Caller identifies the client session a request came from.
type Caller struct {
	ClientID string
}

type ProjectService interface {
	Load(ctx context.Context, name string) (api.Project, error)
	Template() api.Project
	CheckAvailable(ctx context.Context, name string) error
	Save(ctx context.Context, origin string, p api.Project) error
	Delete(ctx context.Context, origin, name string) error
	List(ctx context.Context) ([]api.ProjectSummary, error)
	CreateClass(ctx context.Context, origin, projectName, className string) (api.ClassFile, error)
	RenameClass(ctx context.Context, origin, projectName, oldName, newName string) error
	DeleteClass(ctx context.Context, origin, projectName, className string) error
}

type RunService interface {
	Start(ctx context.Context, origin, projectName string) (api.RunTicket, error)
	Log(ctx context.Context, runID string) ([]byte, error)
	LogURL(ctx context.Context, runID string) (string, error)
}

type AddonService interface {
	List(ctx context.Context) ([]api.Addon, error)
}

type methodFunc func(ctx context.Context, caller Caller, params json.RawMessage) (any, error)

type Handler struct {
	projects ProjectService
	runs     RunService
	addons   AddonService
	broker   *run.EventBroker
	methods  map[string]methodFunc
	// checkOrigin guards the websocket upgrade; nil means same origin only.
	checkOrigin func(r *http.Request) bool
}

type Option func(*Handler)

// WithAddons serves listAddons from svc. Without it the list is empty.
func WithAddons(svc AddonService) Option {
	return func(h *Handler) { h.addons = svc }
}

// WithAllowedOrigins admits websocket upgrades from the same origin, from
// clients that send no Origin header, and from origins in allowed ("*" for
// any). It matches the CORS policy applied to the HTTP routes.
func WithAllowedOrigins(allowed []string) Option {
	isAllowed := middleware.OriginAllowed(allowed)
	return func(h *Handler) {
		h.checkOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || isAllowed(origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
	}
}

func New(projects ProjectService, runs RunService, broker *run.EventBroker, opts ...Option) *Handler {
	h := &Handler{projects: projects, runs: runs, broker: broker}
	for _, opt := range opts {
		opt(h)
	}
	h.methods = map[string]methodFunc{
		api.MethodLoadProject: func(ctx context.Context, _ Caller, raw json.RawMessage) (any, error) {
			var in api.ProjectRef
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			return h.projects.Load(ctx, in.ProjectName)
		},
		api.MethodLoadTemplateProject: func(context.Context, Caller, json.RawMessage) (any, error) {
			return h.projects.Template(), nil
		},
		api.MethodCreateProject: func(ctx context.Context, _ Caller, raw json.RawMessage) (any, error) {
			var in api.ProjectRef
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			if err := h.projects.CheckAvailable(ctx, in.ProjectName); err != nil {
				return nil, err
			}
			return api.Ack{OK: true}, nil
		},
		api.MethodSaveProject: func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var in api.SaveProjectParams
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			if err := h.projects.Save(ctx, c.ClientID, in.Project); err != nil {
				return nil, err
			}
			return api.Ack{OK: true}, nil
		},
		api.MethodDeleteProject: func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var in api.ProjectRef
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			if err := h.projects.Delete(ctx, c.ClientID, in.ProjectName); err != nil {
				return nil, err
			}
			return api.Ack{OK: true}, nil
		},
		api.MethodListProjects: func(ctx context.Context, _ Caller, _ json.RawMessage) (any, error) {
			list, err := h.projects.List(ctx)
			if err != nil {
				return nil, err
			}
			return api.ListProjectsResult{Projects: list}, nil
		},
		api.MethodCreateClass: func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var in api.ClassRef
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			return h.projects.CreateClass(ctx, c.ClientID, in.ProjectName, in.ClassName)
		},
		api.MethodRenameClass: func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var in api.RenameClassParams
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			if err := h.projects.RenameClass(ctx, c.ClientID, in.ProjectName, in.ClassName, in.NewClassName); err != nil {
				return nil, err
			}
			return api.Ack{OK: true}, nil
		},
		api.MethodDeleteClass: func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var in api.ClassRef
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			if err := h.projects.DeleteClass(ctx, c.ClientID, in.ProjectName, in.ClassName); err != nil {
				return nil, err
			}
			return api.Ack{OK: true}, nil
		},
		api.MethodRun: func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var in api.ProjectRef
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			return h.runs.Start(ctx, c.ClientID, in.ProjectName)
		},
		api.MethodSubscribe: func(context.Context, Caller, json.RawMessage) (any, error) {
			return nil, api.Errorf(api.KindPrecondition, "subscribe needs the websocket channel")
		},
		api.MethodListAddons: func(ctx context.Context, _ Caller, _ json.RawMessage) (any, error) {
			if h.addons == nil {
				return api.ListAddonsResult{Addons: []api.Addon{}}, nil
			}
			list, err := h.addons.List(ctx)
			if err != nil {
				return nil, err
			}
			return api.ListAddonsResult{Addons: list}, nil
		},
	}
	return h
}

// Dispatch runs method and returns its encoded result. Returned errors are
// always *api.Error; failures without a kind are reported as internal.
func (h *Handler) Dispatch(ctx context.Context, caller Caller, method string, params json.RawMessage) (json.RawMessage, error) {
	fn, ok := h.methods[method]
	if !ok {
		return nil, api.Errorf(api.KindInvalid, "unknown method %q", method)
	}
	glog.V(2).Infof("[rpc] %s client=%s", method, caller.ClientID)
	res, err := fn(ctx, caller, params)
	if err != nil {
		return nil, wireError(method, err)
	}
	raw, err := api.Marshal(res)
	if err != nil {
		return nil, wireError(method, fmt.Errorf("marshal result: %w", err))
	}
	return raw, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return api.Errorf(api.KindInvalid, "malformed params: %v", err)
	}
	return nil
}

func wireError(method string, err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		glog.V(1).Infof("[rpc] %s: %v", method, err)
		return apiErr
	}
	glog.Errorf("[rpc] %s: %v", method, err)
	return &api.Error{Kind: api.KindInternal, Message: err.Error()}
}
