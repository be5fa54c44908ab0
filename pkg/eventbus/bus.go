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

package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
)

type Topic string
type Event = any

// Bus is an in-memory pub/sub for observer traffic. Each subscriber
// channel holds at most one event: publishing replaces any undelivered
// older value, so slow observers always see the most recent state and
// never stall a publisher. It is NOT a queue and must not carry
// anything that requires ordered, lossless delivery.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic]map[uint64]chan Event
	last   map[Topic]Event
	nextID uint64
	closed atomic.Bool
}

// New returns an initialized Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]chan Event),
		last: make(map[Topic]Event),
	}
}

// Publish delivers ev to every subscriber of topic and stores it as
// the topic's last event. Never blocks.
func (b *Bus) Publish(topic Topic, ev Event) {
	if b.closed.Load() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return // closed between the atomic check and the lock
	}
	b.last[topic] = ev

	// replace never blocks, so delivering under the lock is safe and
	// guarantees no send can race a channel close.
	for _, ch := range b.subs[topic] {
		replace(ch, ev)
	}
}

// replace delivers ev to a size-1 channel, displacing any undelivered
// older value. All operations are non-blocking.
func replace(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

// Subscribe registers a subscriber for topic and returns its channel
// plus an unsubscribe func. With withLast, the topic's last published
// event (if any) is delivered immediately. The subscription is removed
// and the channel closed when ctx is cancelled or unsubscribe is
// called, whichever comes first.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {
	if b.closed.Load() {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 1)
	id := atomic.AddUint64(&b.nextID, 1)

	b.mu.Lock()
	if b.subs == nil {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch
	if last, hasLast := b.last[topic]; withLast && hasLast {
		replace(ch, last)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	unsub := func() { once.Do(func() { close(done) }) }

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		b.mu.Lock()
		registered := false
		if m, ok := b.subs[topic]; ok {
			if _, ok := m[id]; ok {
				delete(m, id)
				registered = true
			}
			if len(m) == 0 {
				delete(b.subs, topic)
			}
		}
		b.mu.Unlock()
		// Close already closed the channel if we were deregistered there
		if registered {
			close(ch)
		}
	}()

	return ch, unsub
}

// GetLast returns the last published event for a topic, if any.
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// Close shuts the bus down. After Close, Publish is a no-op and
// Subscribe returns a closed channel.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, m := range b.subs {
		for _, ch := range m {
			close(ch)
		}
	}
	b.subs = nil
	b.last = nil
	b.mu.Unlock()
}
