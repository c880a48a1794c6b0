package session

import (
	"fmt"

	"github.com/golang/glog"

	"sketchbook/internal/sketch/api"
	"sketchbook/internal/sketch/notify"
	"sketchbook/internal/sketch/transport"
)

// Hooks wires the controller to a transport's persistent channel: every
// (re)connect renews the subscription and notifications are handled here.
// Losing the channel is shown as info since calls fall back to HTTP.
func (c *Controller) Hooks() transport.Hooks {
	return transport.Hooks{
		OnOpen:    c.resubscribe,
		OnMessage: c.HandleNotification,
		OnClose: func(err error) {
			if err != nil {
				notify.OnInfo(c.opts.Surface, msgConnectionClosed, err.Error())
			}
		},
		OnError: func(err error) {
			notify.OnInfo(c.opts.Surface, msgConnectionError, err.Error())
		},
	}
}

func (c *Controller) HandleNotification(n transport.Notification) {
	switch n.Method {
	case api.NotifyRunOutput:
		var out api.RunOutput
		if err := n.Decode(&out); err != nil {
			glog.Infof("[session]bad %s = %s", n.Method, err)
			return
		}
		if l := c.opts.RunListener; l != nil {
			l.RunOutput(out)
		}

	case api.NotifyRunFinished:
		var fin api.RunFinished
		if err := n.Decode(&fin); err != nil {
			glog.Infof("[session]bad %s = %s", n.Method, err)
			return
		}
		if l := c.opts.RunListener; l != nil {
			l.RunFinished(fin)
		}
		if fin.ExitCode == 0 && fin.Error == "" {
			notify.OnSuccess(c.opts.Surface, msgRunFinished, fin.ProjectName)
		} else {
			detail := fmt.Sprintf("exit code %d", fin.ExitCode)
			if fin.Error != "" {
				detail = fin.Error
			}
			notify.OnFailure(c.opts.Surface, msgRunFailed, detail)
		}

	case api.NotifyProjectUpdated:
		var upd api.ProjectUpdated
		if err := n.Decode(&upd); err != nil {
			glog.Infof("[session]bad %s = %s", n.Method, err)
			return
		}
		if c.ownOrigin(upd.Origin) {
			return
		}
		// Queued so that the update lands after any mutation already issued.
		c.enqueue(task{
			run:   func() { c.applyRemote(upd.Project) },
			abort: func(error) {},
		})

	case api.NotifyProjectDeleted:
		var del api.ProjectDeleted
		if err := n.Decode(&del); err != nil {
			glog.Infof("[session]bad %s = %s", n.Method, err)
			return
		}
		if c.ownOrigin(del.Origin) || del.ProjectName != c.projectName() {
			return
		}
		notify.OnFailure(c.opts.Surface, msgRemoteDeleted, detailSaveRecreate)

	default:
		glog.V(2).Infof("[session]ignored notification %s", n.Method)
	}
}

func (c *Controller) ownOrigin(origin string) bool {
	return origin != "" && origin == c.opts.ClientID
}

// applyRemote adopts another client's version of the loaded project unless
// local edits would be lost.
func (c *Controller) applyRemote(remote api.Project) {
	c.mu.Lock()
	p := c.project
	if p == nil || p.IsTemplate() || p.Name() != remote.ProjectName || c.state != Loaded {
		c.mu.Unlock()
		return
	}
	if p.Dirty() {
		c.mu.Unlock()
		notify.OnInfo(c.opts.Surface, msgRemoteConflict, detailLocalEdits)
		return
	}
	p.Replace(remote)
	if !p.IsClassName(c.selected) {
		c.selected = p.Name()
	}
	c.mu.Unlock()
	notify.OnInfo(c.opts.Surface, msgRemoteUpdate, remote.ProjectName)
}
