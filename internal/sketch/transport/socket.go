package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sketchbook/internal/sketch/api"
)

type SocketSettings struct {
	HandshakeTimeout    time.Duration
	ReconnectTimeout    time.Duration
	MaxReconnectTimeout time.Duration
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
}

func DefaultSocketSettings() *SocketSettings {
	return &SocketSettings{
		HandshakeTimeout:    5 * time.Second,
		ReconnectTimeout:    1 * time.Second,
		MaxReconnectTimeout: 30 * time.Second,
		PingInterval:        20 * time.Second,
		WriteTimeout:        10 * time.Second,
		ReadTimeout:         60 * time.Second,
	}
}

type pendingCall struct {
	conn  *websocket.Conn
	reply chan *api.Frame
}

// Socket is the persistent channel. It keeps reconnecting until closed and
// reports itself unavailable while no connection is up.
type Socket struct {
	url      string
	header   http.Header
	settings *SocketSettings

	ctx    context.Context
	cancel context.CancelFunc

	openOnce sync.Once

	mu      sync.Mutex
	conn    *websocket.Conn
	hooks   Hooks
	pending map[string]*pendingCall

	writeMu sync.Mutex
}

// NewSocket targets a ws:// or wss:// endpoint. clientID travels as a query
// parameter so that the server can tag notifications with their origin.
func NewSocket(ctx context.Context, endpoint, clientID, token string, settings *SocketSettings) (*Socket, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	if clientID != "" {
		q := u.Query()
		q.Set(api.QueryClientID, clientID)
		u.RawQuery = q.Encode()
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if settings == nil {
		settings = DefaultSocketSettings()
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Socket{
		url:      u.String(),
		header:   header,
		settings: settings,
		ctx:      cancelCtx,
		cancel:   cancel,
		pending:  make(map[string]*pendingCall),
	}, nil
}

func (s *Socket) Name() string { return "websocket" }

func (s *Socket) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Socket) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

func (s *Socket) getHooks() Hooks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks
}

// Open starts connecting in the background and returns immediately.
func (s *Socket) Open() {
	s.openOnce.Do(func() {
		go s.run()
	})
}

func (s *Socket) Close() {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *Socket) Call(ctx context.Context, method string, params, result any) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrUnavailable
	}
	id := uuid.NewString()
	call := &pendingCall{conn: conn, reply: make(chan *api.Frame, 1)}
	s.pending[id] = call
	s.mu.Unlock()

	frame, err := api.NewRequest(id, method, params)
	if err != nil {
		s.drop(id)
		return api.Errorf(api.KindInvalid, "%v", err)
	}
	if err := s.write(conn, frame); err != nil {
		s.drop(id)
		if notSent(err) {
			return ErrUnavailable
		}
		// Any other failed write may still have put bytes on the wire.
		return transportError(method, err)
	}
	glog.V(2).Infof("[ws]-> %s %s", method, id)

	select {
	case reply, ok := <-call.reply:
		if !ok {
			return transportError(method, errors.New("connection lost before reply"))
		}
		if reply.Error != nil {
			return reply.Error.Err()
		}
		return api.Unmarshal(reply.Result, result)
	case <-ctx.Done():
		s.drop(id)
		return transportError(method, ctx.Err())
	case <-s.ctx.Done():
		s.drop(id)
		return transportError(method, errors.New("socket closed"))
	}
}

// notSent reports write errors raised before any byte reached the wire: the
// connection was already closed locally or a close frame went out first.
func notSent(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}

func (s *Socket) drop(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Socket) write(conn *websocket.Conn, frame *api.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}

func (s *Socket) run() {
	backoff := s.settings.ReconnectTimeout
	for {
		conn, err := s.dial()
		if err != nil {
			glog.Infof("[ws]connect %s error = %s", s.url, err)
			s.getHooks().error(err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.settings.MaxReconnectTimeout {
				backoff = s.settings.MaxReconnectTimeout
			}
			continue
		}
		backoff = s.settings.ReconnectTimeout

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		glog.Infof("[ws]connected %s", s.url)
		s.getHooks().open()

		err = s.serve(conn)
		s.detach(conn)
		if s.ctx.Err() != nil {
			s.getHooks().close(nil)
			return
		}
		glog.Infof("[ws]disconnected %s = %s", s.url, err)
		s.getHooks().close(err)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (s *Socket) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.settings.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(s.ctx, s.url, s.header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// detach fails every call still waiting on conn.
func (s *Socket) detach(conn *websocket.Conn) {
	conn.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	for id, call := range s.pending {
		if call.conn == conn {
			close(call.reply)
			delete(s.pending, id)
		}
	}
}

func (s *Socket) serve(conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
	}
	if err := extend(); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error { return extend() })

	go func() {
		ticker := time.NewTicker(s.settings.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-s.ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(s.settings.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					glog.V(2).Infof("[ws]ping error = %s", err)
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = extend()

		var frame api.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			glog.Infof("[ws]<- malformed frame = %s", err)
			continue
		}
		switch {
		case frame.IsResponse():
			s.deliver(&frame)
		case frame.IsNotification():
			glog.V(2).Infof("[ws]<- notify %s", frame.Method)
			s.getHooks().message(Notification{Method: frame.Method, Params: frame.Params})
		default:
			glog.V(2).Infof("[ws]<- ignored frame id=%q method=%q", frame.ID, frame.Method)
		}
	}
}

func (s *Socket) deliver(frame *api.Frame) {
	s.mu.Lock()
	call, ok := s.pending[frame.ID]
	if ok {
		delete(s.pending, frame.ID)
	}
	s.mu.Unlock()
	if !ok {
		glog.V(2).Infof("[ws]<- late reply %s", frame.ID)
		return
	}
	call.reply <- frame
}
