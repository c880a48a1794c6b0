// Package session keeps one local project in step with the sketch server.
//
// Every mutating operation is queued on a single executor and runs to
// completion before the next one starts, so remote results are applied in
// the order the operations were issued. Preconditions are evaluated when an
// operation reaches the head of the queue, against the state left by the
// operations before it. GetProjectList and GetAddonList are read-only and
// bypass the queue.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"sketchbook/internal/sketch/api"
	"sketchbook/internal/sketch/notify"
	"sketchbook/internal/sketch/project"
)

type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Saving
	Running
	Mutating
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Saving:
		return "saving"
	case Running:
		return "running"
	case Mutating:
		return "mutating"
	default:
		return "unloaded"
	}
}

const (
	opLoadProject         = "loadProject"
	opLoadTemplateProject = "loadTemplateProject"
	opCreateProject       = "createProject"
	opSaveProject         = "saveProject"
	opRun                 = "run"
	opCreateClass         = "createClass"
	opDeleteClass         = "deleteClass"
	opRenameClass         = "renameClass"
	opGetProjectList      = "getProjectList"
	opDeleteProject       = "deleteProject"
	opGetAddonList        = "getAddonList"
)

const DefaultCallTimeout = 30 * time.Second

// Transport is the request/response contract the controller depends on.
type Transport interface {
	Call(ctx context.Context, method string, params, result any) error
}

// PersistentTransport is implemented by transports that can route a call
// over a channel able to push notifications back.
type PersistentTransport interface {
	CallPersistent(ctx context.Context, method string, params, result any) error
}

// RunListener receives the output of runs on the loaded project.
type RunListener interface {
	RunOutput(out api.RunOutput)
	RunFinished(fin api.RunFinished)
}

type Options struct {
	Surface     notify.Surface
	RunListener RunListener
	// ClientID identifies this client's own changes in server notifications.
	ClientID    string
	CallTimeout time.Duration
}

var errClosed = api.Errorf(api.KindTransport, "controller closed")

type task struct {
	run   func()
	abort func(err error)
}

type Controller struct {
	transport Transport
	opts      Options

	mu       sync.RWMutex
	project  *project.Project
	selected string
	state    State

	qmu    sync.Mutex
	queue  []task
	closed bool
	wake   chan struct{}
}

func New(t Transport, opts Options) *Controller {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Surface == nil {
		opts.Surface = notify.Log{}
	}
	c := &Controller{
		transport: t,
		opts:      opts,
		wake:      make(chan struct{}, 1),
	}
	go c.loop()
	return c
}

func (c *Controller) loop() {
	for {
		c.qmu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.qmu.Unlock()
			<-c.wake
			c.qmu.Lock()
		}
		if c.closed {
			c.qmu.Unlock()
			return
		}
		next := c.queue[0]
		c.queue[0] = task{}
		c.queue = c.queue[1:]
		c.qmu.Unlock()

		next.run()
	}
}

func (c *Controller) enqueue(t task) {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		t.abort(errClosed)
		return
	}
	c.queue = append(c.queue, t)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close settles every queued operation with a transport error. An operation
// already running finishes normally.
func (c *Controller) Close() {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		return
	}
	c.closed = true
	pending := c.queue
	c.queue = nil
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	for _, t := range pending {
		t.abort(errClosed)
	}
}

// submit queues fn and reports its outcome to the surface before settling.
func submit[T any](c *Controller, op string, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	c.enqueue(task{
		run: func() {
			before := c.projectName()
			v, err := fn()
			finish(c, op, f, v, err, before)
		},
		abort: func(err error) {
			var zero T
			finish(c, op, f, zero, err, "")
		},
	})
	return f
}

// finish reports and settles f. before names the project an operation
// started on and is used as the detail when the operation unloaded it.
func finish[T any](c *Controller, op string, f *Future[T], v T, err error, before string) {
	if err != nil {
		err = api.Wrap(op, err)
		glog.V(1).Infof("[session]%s failed = %s", op, err)
	}
	c.report(op, err, before)
	f.settle(v, err)
}

func (c *Controller) report(op string, err error, before string) {
	o, ok := outcomes[op]
	if !ok {
		return
	}
	if err != nil {
		notify.OnFailure(c.opts.Surface, o.fail, err.Error())
		return
	}
	detail := c.projectName()
	if detail == "" {
		detail = before
	}
	c.opts.Surface.Show(o.ok, detail, o.okKind)
}

func (c *Controller) call(method string, params, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
	defer cancel()
	return c.transport.Call(ctx, method, params, result)
}

func (c *Controller) callPersistent(method string, params, result any) error {
	pt, ok := c.transport.(PersistentTransport)
	if !ok {
		return api.Errorf(api.KindTransport, "no persistent channel")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
	defer cancel()
	return pt.CallPersistent(ctx, method, params, result)
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Project returns a copy of the loaded project, or nil.
func (c *Controller) Project() *project.Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.project == nil {
		return nil
	}
	return c.project.Clone()
}

func (c *Controller) ProjectLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.project != nil
}

func (c *Controller) projectName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.project == nil {
		return ""
	}
	return c.project.Name()
}

func (c *Controller) SelectedTabName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// SelectTab makes name the target of later class-scoped operations.
func (c *Controller) SelectTab(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project == nil {
		return api.Errorf(api.KindPrecondition, "no project loaded")
	}
	if !c.project.IsClassName(name) {
		return api.Errorf(api.KindNotFound, "tab %q does not exist", name)
	}
	c.selected = name
	return nil
}

// UpdateSource records a local edit without queueing. A save in flight only
// clears the dirty flags of the revisions it carried.
func (c *Controller) UpdateSource(name, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project == nil {
		return api.Errorf(api.KindPrecondition, "no project loaded")
	}
	return c.project.SetSource(name, source)
}

func (c *Controller) setState(s State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = s
	return prev
}

// begin moves a loaded session into a transient state. It fails when no
// project is loaded or check rejects the current project.
func (c *Controller) begin(s State, check func(p *project.Project) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project == nil || c.state != Loaded {
		return api.Errorf(api.KindPrecondition, "no project loaded")
	}
	if check != nil {
		if err := check(c.project); err != nil {
			return err
		}
	}
	c.state = s
	return nil
}

// end returns to Loaded, applying commit first when the remote call succeeded.
func (c *Controller) end(err error, commit func(p *project.Project) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Unloaded {
		c.state = Loaded
	}
	if err != nil {
		return err
	}
	if commit != nil && c.project != nil {
		return commit(c.project)
	}
	return nil
}
