package server

import (
	"net/http"

	"sketchbook/internal/gateway/config"
	"sketchbook/internal/gateway/handler/rpc"
	"sketchbook/internal/gateway/middleware"
)

const healthPath = "/healthz"

func NewMux(h *rpc.Handler, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// RPC Handlers
	for _, r := range h.ConnectRoutes() {
		mux.Handle(r.Path, r.Handler)
	}
	mux.HandleFunc("/ws", h.ServeWS)

	mux.HandleFunc("GET /runs/{runID}/log", h.ServeRunLog)
	mux.HandleFunc(healthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	// Middleware
	var handler http.Handler = mux
	handler = middleware.Auth(cfg.Auth.JWTSecret, cfg.Auth.Issuer, healthPath)(handler)
	handler = middleware.CORS(cfg.AllowedOrigins)(handler)
	return handler
}
