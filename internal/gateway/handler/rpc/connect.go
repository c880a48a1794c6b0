package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"

	"sketchbook/internal/sketch/api"
)

// Route is one HTTP handler of the sketch API.
type Route struct {
	Path    string
	Handler http.Handler
}

// ConnectRoutes returns one connect unary handler per method. Subscribe is
// answered with a precondition error since HTTP cannot carry notifications.
func (h *Handler) ConnectRoutes(opts ...connect.HandlerOption) []Route {
	opts = append([]connect.HandlerOption{connect.WithCodec(api.Codec{})}, opts...)
	routes := make([]Route, 0, len(api.Methods))
	for _, method := range api.Methods {
		method := method
		procedure := api.Procedure(method)
		routes = append(routes, Route{
			Path: procedure,
			Handler: connect.NewUnaryHandler(
				procedure,
				func(ctx context.Context, req *connect.Request[json.RawMessage]) (*connect.Response[json.RawMessage], error) {
					caller := Caller{ClientID: req.Header().Get(api.HeaderClientID)}
					var params json.RawMessage
					if req.Msg != nil {
						params = *req.Msg
					}
					res, err := h.Dispatch(ctx, caller, method, params)
					if err != nil {
						return nil, api.ToConnect(err)
					}
					return connect.NewResponse(&res), nil
				},
				opts...,
			),
		})
	}
	return routes
}
