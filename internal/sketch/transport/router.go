package transport

import (
	"context"
	"errors"

	"github.com/golang/glog"
)

// Router tries its channels in order and moves on only when a channel reports
// ErrUnavailable. Failures after a request was sent are returned as is.
type Router struct {
	channels []Channel
}

func NewRouter(channels ...Channel) *Router {
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return &Router{channels: out}
}

// SetHooks installs observers on every persistent channel. The router adds
// logging around them.
func (r *Router) SetHooks(h Hooks) {
	for _, ch := range r.channels {
		p, ok := ch.(Pusher)
		if !ok {
			continue
		}
		name := p.Name()
		p.SetHooks(Hooks{
			OnOpen: func() {
				glog.Infof("[router]%s open", name)
				h.open()
			},
			OnMessage: h.OnMessage,
			OnClose: func(err error) {
				if err != nil {
					glog.Infof("[router]%s closed = %s", name, err)
				}
				h.close(err)
			},
			OnError: func(err error) {
				glog.V(1).Infof("[router]%s error = %s", name, err)
				h.error(err)
			},
		})
	}
}

// Open starts every persistent channel. It does not wait for them.
func (r *Router) Open() {
	for _, ch := range r.channels {
		if p, ok := ch.(Pusher); ok {
			p.Open()
		}
	}
}

func (r *Router) Close() {
	for _, ch := range r.channels {
		if p, ok := ch.(Pusher); ok {
			p.Close()
		}
	}
}

func (r *Router) Call(ctx context.Context, method string, params, result any) error {
	return r.call(ctx, method, params, result, false)
}

// CallPersistent only uses channels that can push notifications back, for
// calls such as subscriptions that are meaningless over plain HTTP.
func (r *Router) CallPersistent(ctx context.Context, method string, params, result any) error {
	return r.call(ctx, method, params, result, true)
}

func (r *Router) call(ctx context.Context, method string, params, result any, persistentOnly bool) error {
	for _, ch := range r.channels {
		if persistentOnly {
			if _, ok := ch.(Pusher); !ok {
				continue
			}
		}
		if !ch.Available() {
			continue
		}
		err := ch.Call(ctx, method, params, result)
		if errors.Is(err, ErrUnavailable) {
			glog.V(2).Infof("[router]%s unavailable for %s", ch.Name(), method)
			continue
		}
		return err
	}
	return transportError(method, ErrUnavailable)
}
