// Package transport carries remote calls from the session controller to the
// sketch server over a persistent websocket with an HTTP fallback.
package transport

import (
	"context"
	"encoding/json"
	"errors"

	"sketchbook/internal/sketch/api"
)

// ErrUnavailable means the call was not sent. Only this error lets the router
// try the next channel; any other failure may have reached the server.
var ErrUnavailable = errors.New("transport: channel unavailable")

type Channel interface {
	Name() string
	Available() bool
	Call(ctx context.Context, method string, params, result any) error
}

// Pusher is a channel that can also deliver server notifications.
type Pusher interface {
	Channel
	SetHooks(h Hooks)
	Open()
	Close()
}

type Notification struct {
	Method string
	Params json.RawMessage
}

func (n Notification) Decode(v any) error {
	return api.Unmarshal(n.Params, v)
}

// Hooks observe the persistent channel. Call never depends on them.
type Hooks struct {
	OnOpen    func()
	OnMessage func(Notification)
	OnClose   func(err error)
	OnError   func(err error)
}

func (h Hooks) open() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Hooks) message(n Notification) {
	if h.OnMessage != nil {
		h.OnMessage(n)
	}
}

func (h Hooks) close(err error) {
	if h.OnClose != nil {
		h.OnClose(err)
	}
}

func (h Hooks) error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func transportError(op string, err error) error {
	return &api.Error{Kind: api.KindTransport, Op: op, Err: err}
}
