// Package cli drives a session controller from the sketch command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"sketchbook/internal/sketch/api"
	"sketchbook/internal/sketch/config"
	"sketchbook/internal/sketch/notify"
	"sketchbook/internal/sketch/session"
	"sketchbook/internal/sketch/transport"
)

// DefaultSocketWait bounds how long Dial waits for the websocket before
// falling back to HTTP only.
const DefaultSocketWait = 3 * time.Second

type Client struct {
	ctrl   *session.Controller
	router *transport.Router
	socket *transport.Socket
	banner *notify.Banner
	runs   *runPrinter
	out    io.Writer

	socketOpen chan struct{}
	openOnce   sync.Once
}

// Dial builds the transports for cfg and starts the controller. out receives
// command output and errOut the status banner.
func Dial(ctx context.Context, cfg *config.Config, httpClient *http.Client, out, errOut io.Writer) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.CallTimeout + 5*time.Second}
	}
	c := &Client{
		out:        out,
		runs:       newRunPrinter(out),
		socketOpen: make(chan struct{}),
		banner: notify.NewBanner(notify.DefaultBannerHold, func(msg notify.Message, visible bool) {
			if !visible {
				return
			}
			line := msg.Text
			if msg.Detail != "" {
				line += " (" + msg.Detail + ")"
			}
			fmt.Fprintf(errOut, "%s %s\n", bannerMark(msg.Kind), line)
		}),
	}

	channels := []transport.Channel{}
	if !cfg.NoSocket {
		wsURL, err := cfg.SocketURL()
		if err != nil {
			return nil, err
		}
		c.socket, err = transport.NewSocket(ctx, wsURL, cfg.ClientID, cfg.Token, nil)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c.socket)
	}
	channels = append(channels, transport.NewHTTP(strings.TrimRight(cfg.Server, "/"), httpClient, cfg.ClientID, cfg.Token))
	c.router = transport.NewRouter(channels...)

	c.ctrl = session.New(c.router, session.Options{
		Surface:     notify.Multi{notify.Log{}, c.banner},
		RunListener: c.runs,
		ClientID:    cfg.ClientID,
		CallTimeout: cfg.CallTimeout,
	})
	hooks := c.ctrl.Hooks()
	resubscribe := hooks.OnOpen
	hooks.OnOpen = func() {
		resubscribe()
		c.openOnce.Do(func() { close(c.socketOpen) })
	}
	c.router.SetHooks(hooks)
	c.router.Open()
	return c, nil
}

// WaitSocket reports whether the websocket opened within d.
func (c *Client) WaitSocket(ctx context.Context, d time.Duration) bool {
	if c.socket == nil {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.socketOpen:
		return true
	case <-timer.C:
		glog.Warningf("[cli]websocket not open after %s, using http only", d)
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Client) Close() {
	c.ctrl.Close()
	c.router.Close()
	c.banner.Close()
}

func bannerMark(k notify.Kind) string {
	switch k {
	case notify.Success:
		return "ok:"
	case notify.Failure:
		return "error:"
	default:
		return "info:"
	}
}

// List prints one project name per line.
func (c *Client) List(ctx context.Context) error {
	list, err := c.ctrl.GetProjectList().Wait(ctx)
	if err != nil {
		return err
	}
	for _, p := range list {
		fmt.Fprintln(c.out, p.ProjectName)
	}
	return nil
}

// Addons prints one installed addon per line, core addons marked.
func (c *Client) Addons(ctx context.Context) error {
	list, err := c.ctrl.GetAddonList().Wait(ctx)
	if err != nil {
		return err
	}
	for _, a := range list {
		line := a.Name
		if a.Core {
			line += " (core)"
		}
		if a.Description != "" {
			line += "\t" + a.Description
		}
		fmt.Fprintln(c.out, line)
	}
	return nil
}

// Open loads name, or the template when name is empty.
func (c *Client) Open(ctx context.Context, name string) error {
	var err error
	if name == "" {
		_, err = c.ctrl.LoadTemplateProject().Wait(ctx)
	} else {
		_, err = c.ctrl.LoadProject(name).Wait(ctx)
	}
	return err
}

// Show prints the loaded project's files in tab order.
func (c *Client) Show(ctx context.Context, name string) error {
	if err := c.Open(ctx, name); err != nil {
		return err
	}
	p := c.ctrl.Project()
	if p == nil {
		return api.Errorf(api.KindPrecondition, "no project loaded")
	}
	title := p.Name()
	if p.IsTemplate() {
		title += " (template)"
	}
	fmt.Fprintf(c.out, "project %s\n", title)
	main := p.Main()
	fmt.Fprintf(c.out, "\n== %s ==\n%s\n", main.Name, main.Source)
	for _, cls := range p.Classes() {
		fmt.Fprintf(c.out, "\n== %s ==\n%s\n", cls.Name, cls.Source)
	}
	return nil
}

// New creates name from the template and saves it so it shows up in List.
func (c *Client) New(ctx context.Context, name string) error {
	if err := c.Open(ctx, ""); err != nil {
		return err
	}
	if _, err := c.ctrl.CreateProject(name).Wait(ctx); err != nil {
		return err
	}
	_, err := c.ctrl.SaveProject().Wait(ctx)
	return err
}

// Save replaces the source of one file of project and saves the project.
func (c *Client) Save(ctx context.Context, name, file, source string) error {
	if err := c.Open(ctx, name); err != nil {
		return err
	}
	if err := c.ctrl.UpdateSource(file, source); err != nil {
		return err
	}
	_, err := c.ctrl.SaveProject().Wait(ctx)
	return err
}

// Run starts project and streams its output until the run finishes. The
// returned code is the run's exit code.
func (c *Client) Run(ctx context.Context, name string) (int, error) {
	streaming := c.WaitSocket(ctx, DefaultSocketWait)
	if err := c.Open(ctx, name); err != nil {
		return 0, err
	}
	ticket, err := c.ctrl.Run().Wait(ctx)
	if err != nil {
		return 0, err
	}
	if !streaming {
		fmt.Fprintf(c.out, "run %s started; fetch its log from /runs/%s/log\n", ticket.RunID, ticket.RunID)
		return 0, nil
	}
	fin, err := c.runs.wait(ctx, ticket.RunID)
	if err != nil {
		return 0, err
	}
	if fin.Error != "" {
		fmt.Fprintf(c.out, "run %s: %s\n", fin.RunID, fin.Error)
	}
	return fin.ExitCode, nil
}

func (c *Client) CreateClass(ctx context.Context, name, class string) error {
	if err := c.Open(ctx, name); err != nil {
		return err
	}
	_, err := c.ctrl.CreateClass(class).Wait(ctx)
	return err
}

func (c *Client) RenameClass(ctx context.Context, name, oldName, newName string) error {
	if err := c.Open(ctx, name); err != nil {
		return err
	}
	_, err := c.ctrl.RenameClass(oldName, newName).Wait(ctx)
	return err
}

func (c *Client) DeleteClass(ctx context.Context, name, class string) error {
	if err := c.Open(ctx, name); err != nil {
		return err
	}
	_, err := c.ctrl.DeleteClass(class).Wait(ctx)
	return err
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.Open(ctx, name); err != nil {
		return err
	}
	_, err := c.ctrl.DeleteProject().Wait(ctx)
	return err
}

// ExitCode maps an error to a process exit status by its kind.
func ExitCode(err error) int {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return 1
	}
	switch apiErr.Kind {
	case api.KindInvalid, api.KindPrecondition, api.KindNameConflict:
		return 2
	case api.KindNotFound:
		return 3
	case api.KindTransport:
		return 4
	default:
		return 1
	}
}
