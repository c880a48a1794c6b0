package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"github.com/golang/glog"

	"sketchbook/internal/sketch/api"
)

// HTTP sends each call as a connect unary request. It is always available.
type HTTP struct {
	baseURL    string
	httpClient connect.HTTPClient
	clientID   string
	token      string

	mu      sync.Mutex
	clients map[string]*connect.Client[json.RawMessage, json.RawMessage]
}

func NewHTTP(baseURL string, httpClient connect.HTTPClient, clientID, token string) *HTTP {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTP{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		clientID:   clientID,
		token:      token,
		clients:    make(map[string]*connect.Client[json.RawMessage, json.RawMessage]),
	}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Available() bool { return h != nil }

func (h *HTTP) client(method string) *connect.Client[json.RawMessage, json.RawMessage] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[method]; ok {
		return c
	}
	c := connect.NewClient[json.RawMessage, json.RawMessage](
		h.httpClient,
		h.baseURL+api.Procedure(method),
		connect.WithCodec(api.Codec{}),
	)
	h.clients[method] = c
	return c
}

func (h *HTTP) Call(ctx context.Context, method string, params, result any) error {
	raw, err := api.Marshal(params)
	if err != nil {
		return api.Errorf(api.KindInvalid, "marshal %s params: %v", method, err)
	}
	req := connect.NewRequest(&raw)
	if h.clientID != "" {
		req.Header().Set(api.HeaderClientID, h.clientID)
	}
	if h.token != "" {
		req.Header().Set("Authorization", "Bearer "+h.token)
	}

	glog.V(2).Infof("[http]-> %s", method)
	res, err := h.client(method).CallUnary(ctx, req)
	if err != nil {
		return api.FromConnect(err)
	}
	if res.Msg == nil {
		return nil
	}
	return api.Unmarshal(*res.Msg, result)
}
