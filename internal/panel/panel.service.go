// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package panel

import (
	"context"
	"errors"
	"net/http"
	"time"

	"hearth/internal/config"
	"hearth/internal/events"
	"hearth/internal/machine"
	"hearth/internal/policy"
	"hearth/pkg/eventbus"
	"hearth/pkg/logger"
)

// Submitter is the machine boundary panel commands are fed through.
type Submitter interface {
	Submit(machine.Event) error
}

// Panel is the operator's web frontend: it pushes live status to
// connected browsers and turns their commands into machine events.
// It holds no climate state of its own; the machine's published
// status is the only truth it relays.
type Panel struct {
	evBus       *eventbus.Bus
	machine     Submitter
	clientQueue chan PanelRequest
	rootDir     string
	log         *logger.Logger

	httpHandler http.Handler
}

func New(conf *config.Config, m Submitter) *Panel {
	p := &Panel{
		evBus:       conf.EventBus,
		machine:     m,
		clientQueue: make(chan PanelRequest, 8),
		rootDir:     conf.RootDir,
		log:         logger.New("Panel   "),
	}
	p.httpHandler = p.buildHTTPHandler()
	return p
}

func (p *Panel) Run(ctx context.Context) {
	p.log.Info("Running...")
	defer p.log.Info("Stopped")

	statusCh, unsub := p.evBus.Subscribe(ctx, events.TopicStatus, true)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			clients.closeAll()
			return

		case ev, ok := <-statusCh:
			if !ok {
				clients.closeAll()
				return
			}
			status, ok := ev.(events.StatusUpdate)
			if !ok {
				p.log.Error("unexpected status payload: %T", ev)
				continue
			}
			go panelBroadcast(status)

		case req := <-p.clientQueue:
			p.handle(req)
		}
	}
}

func (p *Panel) handle(req PanelRequest) {
	p.log.Debug("msg from client: %+v", req)
	switch req.Command {
	case "broadcast":
		if last, ok := p.evBus.GetLast(events.TopicStatus); ok {
			if status, ok := last.(events.StatusUpdate); ok {
				go panelBroadcast(status)
			}
		}

	case "set_override":
		mode, err := policy.ParseMode(req.Mode)
		if err != nil {
			p.log.Error("set_override: %v", err)
			return
		}
		if !mode.Commandable() {
			p.log.Error("set_override: %s cannot be requested", mode)
			return
		}
		p.submit(machine.OverrideRequested{
			Mode:         mode,
			TemperatureC: req.SetpointC,
			TTL:          time.Duration(req.TTLMinutes) * time.Minute,
		})

	case "cancel_override":
		p.submit(machine.OverrideCancelled{})

	case "shutdown":
		p.submit(machine.Shutdown{})

	default:
		p.log.Error("unhandled panel command: %q", req.Command)
	}
}

func (p *Panel) submit(ev machine.Event) {
	err := p.machine.Submit(ev)
	switch {
	case err == nil:
	case errors.Is(err, machine.ErrShuttingDown):
		p.log.Info("command ignored: controller is shutting down")
	default:
		p.log.Error("submit %T: %v", ev, err)
	}
}
