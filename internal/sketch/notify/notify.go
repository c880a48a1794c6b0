// Package notify is where the session controller reports operation outcomes.
//
// A Surface only receives messages. Presentation concerns such as how long a
// banner stays up belong to the concrete surface, never to shared state.
package notify

import (
	"sync"

	"github.com/golang/glog"
)

type Kind int

const (
	Info Kind = iota
	Success
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "info"
	}
}

type Surface interface {
	Show(message, detail string, kind Kind)
}

// Func adapts a function to a Surface.
type Func func(message, detail string, kind Kind)

func (f Func) Show(message, detail string, kind Kind) { f(message, detail, kind) }

func OnSuccess(s Surface, message, detail string) {
	if s != nil {
		s.Show(message, detail, Success)
	}
}

func OnFailure(s Surface, message, detail string) {
	if s != nil {
		s.Show(message, detail, Failure)
	}
}

func OnInfo(s Surface, message, detail string) {
	if s != nil {
		s.Show(message, detail, Info)
	}
}

// Log writes every message to glog.
type Log struct{}

func (Log) Show(message, detail string, kind Kind) {
	if kind == Failure {
		glog.Errorf("%s %s", message, detail)
		return
	}
	glog.Infof("[%s] %s %s", kind, message, detail)
}

// Multi fans a message out to several surfaces in order.
type Multi []Surface

func (m Multi) Show(message, detail string, kind Kind) {
	for _, s := range m {
		if s != nil {
			s.Show(message, detail, kind)
		}
	}
}

type Message struct {
	Text   string
	Detail string
	Kind   Kind
}

// Recorder keeps every message it is shown.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Show(message, detail string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: message, Detail: detail, Kind: kind})
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Kind == kind {
			n++
		}
	}
	return n
}
