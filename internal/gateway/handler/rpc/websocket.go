package rpc

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"sketchbook/internal/gateway/run"
	"sketchbook/internal/sketch/api"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingEvery    = (wsPongWait * 9) / 10
	wsMaxFrameSize = 8 << 20
	wsNoteBuffer   = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsSession is one websocket client. Replies are never dropped; queued
// notifications lose their oldest entry when the client falls behind.
type wsSession struct {
	h      *Handler
	conn   *websocket.Conn
	caller Caller

	ctx     context.Context
	replies chan *api.Frame
	notes   chan *api.Frame

	subMu sync.Mutex
	sub   *run.Subscription
}

// ServeWS upgrades the request and serves JSON-RPC frames until the client
// disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	caller := Caller{ClientID: clientID(r)}
	upgrader := wsUpgrader
	upgrader.CheckOrigin = h.checkOrigin
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.V(1).Infof("[ws] upgrade: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrameSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &wsSession{
		h:       h,
		conn:    conn,
		caller:  caller,
		ctx:     ctx,
		replies: make(chan *api.Frame, 16),
		notes:   make(chan *api.Frame, wsNoteBuffer),
	}
	defer s.unsubscribe()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		defer conn.Close()
		s.writeLoop()
	}()

	glog.V(1).Infof("[ws] client %s connected", caller.ClientID)
	var inflight sync.WaitGroup
	for {
		var in api.Frame
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.V(1).Infof("[ws] client %s read: %v", caller.ClientID, err)
			}
			break
		}
		if in.ID == "" {
			// Clients have nothing to notify the server about.
			continue
		}
		inflight.Add(1)
		go func(in api.Frame) {
			defer inflight.Done()
			s.reply(s.handle(&in))
		}(in)
	}
	cancel()
	inflight.Wait()
	<-writerDone
	glog.V(1).Infof("[ws] client %s disconnected", caller.ClientID)
}

func (s *wsSession) handle(in *api.Frame) *api.Frame {
	if in.Method == api.MethodSubscribe {
		var ref api.ProjectRef
		if err := decode(in.Params, &ref); err != nil {
			return api.NewErrorFrame(in.ID, err)
		}
		if err := api.ValidateName(ref.ProjectName); err != nil {
			return api.NewErrorFrame(in.ID, err)
		}
		s.subscribe(ref.ProjectName)
		return api.NewResult(in.ID, mustMarshal(api.Ack{OK: true}))
	}
	res, err := s.h.Dispatch(s.ctx, s.caller, in.Method, in.Params)
	if err != nil {
		return api.NewErrorFrame(in.ID, err)
	}
	return api.NewResult(in.ID, res)
}

// subscribe replaces the session's project subscription.
func (s *wsSession) subscribe(project string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.sub != nil {
		if s.sub.Project() == project {
			return
		}
		s.h.broker.Unsubscribe(s.sub)
	}
	sub := s.h.broker.Subscribe(project, wsNoteBuffer)
	s.sub = sub
	glog.V(1).Infof("[ws] client %s watching %q", s.caller.ClientID, project)
	go s.forward(sub)
}

func (s *wsSession) unsubscribe() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.sub != nil {
		s.h.broker.Unsubscribe(s.sub)
		s.sub = nil
	}
}

func (s *wsSession) forward(sub *run.Subscription) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			frame, err := api.NewNotification(ev.Method, ev.Params)
			if err != nil {
				glog.Errorf("[ws] encode %s: %v", ev.Method, err)
				continue
			}
			s.notify(frame)
		}
	}
}

func (s *wsSession) reply(f *api.Frame) {
	select {
	case s.replies <- f:
	case <-s.ctx.Done():
	}
}

func (s *wsSession) notify(f *api.Frame) {
	select {
	case s.notes <- f:
		return
	default:
	}
	select {
	case <-s.notes:
	default:
	}
	select {
	case s.notes <- f:
	default:
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		var out *api.Frame
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case out = <-s.replies:
		case out = <-s.notes:
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			continue
		}
		if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return
		}
		if err := s.conn.WriteJSON(out); err != nil {
			glog.V(1).Infof("[ws] client %s write: %v", s.caller.ClientID, err)
			return
		}
	}
}

func clientID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(api.HeaderClientID)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(api.QueryClientID))
}

func mustMarshal(v any) []byte {
	raw, err := api.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
