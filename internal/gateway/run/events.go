package run

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

const defaultSubscriptionBuffer = 64

// Event is one push notification bound for clients watching a project.
type Event struct {
	Method string
	Params any
}

// Subscription receives the events published for one project.
type Subscription struct {
	project string
	ch      chan Event
	dropped atomic.Uint64
}

func (s *Subscription) Project() string { return s.project }

// C is closed by Unsubscribe.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped counts events discarded because the subscriber fell behind.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// EventBroker fans events out to per-project subscribers. Publish never
// blocks: a full subscriber loses its oldest buffered event.
type EventBroker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewEventBroker() *EventBroker {
	return &EventBroker{subs: make(map[string]map[*Subscription]struct{})}
}

func (b *EventBroker) Subscribe(project string, size int) *Subscription {
	if size <= 0 {
		size = defaultSubscriptionBuffer
	}
	project = strings.TrimSpace(project)
	sub := &Subscription{project: project, ch: make(chan Event, size)}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[project]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[project] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe detaches sub and closes its channel. Calling it twice is safe.
func (b *EventBroker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.project]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.project)
	}
	close(sub.ch)
}

func (b *EventBroker) Publish(project string, ev Event) {
	project = strings.TrimSpace(project)
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[project] {
		for {
			select {
			case sub.ch <- ev:
			default:
				select {
				case <-sub.ch:
					if sub.dropped.Add(1) == 1 {
						glog.Warningf("[broker] subscriber of %q is falling behind", project)
					}
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribers returns how many subscriptions are attached to project.
func (b *EventBroker) Subscribers(project string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[strings.TrimSpace(project)])
}
