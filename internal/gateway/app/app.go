package app

import (
	"context"
	"fmt"

	"sketchbook/internal/gateway/config"
	"sketchbook/internal/gateway/handler/rpc"
	"sketchbook/internal/gateway/run"
	"sketchbook/internal/gateway/server"
	addonsvc "sketchbook/internal/gateway/service/addon"
	projectsvc "sketchbook/internal/gateway/service/project"
	runsvc "sketchbook/internal/gateway/service/run"
)

type App struct {
	server *server.Server
	runs   *runsvc.Service
	stores *gatewayStores
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(context.Background(), cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	stores, err := initStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	addons := addonsvc.New(addonsvc.Options{Dir: cfg.Addons.Dir, CoreDir: cfg.Addons.CoreDir})
	if err := addons.Setup(); err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to set up addons: %w", err)
	}

	broker := run.NewEventBroker()
	projects := projectsvc.New(stores.project, broker, projectsvc.Options{})
	runs := runsvc.New(projects, broker, stores.artifact, runsvc.Options{
		Command:       cfg.Run.Command,
		WorkspaceDir:  cfg.Run.WorkspaceDir,
		Timeout:       cfg.Run.Timeout,
		KeepWorkspace: cfg.Run.KeepWorkspace,
	})
	handler := rpc.New(projects, runs, broker,
		rpc.WithAddons(addons),
		rpc.WithAllowedOrigins(cfg.AllowedOrigins),
	)

	mux := server.NewMux(handler, cfg)
	return &App{
		server: server.New(cfg.Port, mux),
		runs:   runs,
		stores: stores,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.runs.Close()
	a.stores.Close()
	return err
}
