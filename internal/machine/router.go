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

package machine

import (
	"errors"
	"sync"
)

var (
	ErrShuttingDown = errors.New("machine is shutting down")
	ErrQueueFull    = errors.New("machine event queue is full")
)

// Router is the sole concurrency boundary of the core. Producers
// (sensor stream, panel, advisor, ticker) submit from any goroutine;
// a single consumer drains the channel in strict arrival order.
// Everything downstream of the router runs single-threaded with
// respect to machine state, so the machine itself needs no locking.
type Router struct {
	ch chan Event

	// shuttingDown is flipped at enqueue time of the Shutdown event,
	// so everything submitted after it is rejected even while earlier
	// events are still draining.
	shuttingDown chan struct{}
	shutOnce     sync.Once
}

func NewRouter(size int) *Router {
	if size <= 0 {
		size = 64
	}
	return &Router{
		ch:           make(chan Event, size),
		shuttingDown: make(chan struct{}),
	}
}

// Submit enqueues an event for the machine. It never blocks: a full
// queue returns ErrQueueFull, and anything submitted after a Shutdown
// returns ErrShuttingDown. The Shutdown event itself flows through
// the same queue as every other event.
func (r *Router) Submit(ev Event) error {
	select {
	case <-r.shuttingDown:
		return ErrShuttingDown
	default:
	}

	if _, isShutdown := ev.(Shutdown); isShutdown {
		r.shutOnce.Do(func() { close(r.shuttingDown) })
		// shutdown must reach the machine even through a full queue;
		// the consumer is draining, so this send is bounded
		r.ch <- ev
		return nil
	}

	select {
	case r.ch <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Events is the single ordered stream consumed by the machine.
func (r *Router) Events() <-chan Event {
	return r.ch
}
