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
	"context"
	"sync"
	"time"

	"hearth/internal/config"
	"hearth/internal/dispatch"
	"hearth/internal/events"
	"hearth/internal/policy"
	"hearth/pkg/eventbus"
	"hearth/pkg/logger"
)

// Commander is the dispatcher as the machine sees it.
type Commander interface {
	Apply(ctx context.Context, mode policy.Mode, targetC float64) dispatch.Result
	OffAll(ctx context.Context) dispatch.Result
}

// Machine owns the authoritative operating mode and everything that
// hangs off it: duty-cycle bookkeeping, the manual override, the
// advisory hint, and the transition history. All state mutation
// happens on the consumer side of the Router, one event at a time;
// observers get snapshots via Status/History and the event bus.
type Machine struct {
	conf   *config.Config
	pcfg   policy.Config
	log    *logger.Logger
	evBus  *eventbus.Bus
	router *Router
	cmd    Commander

	// owned by the Run loop
	ctx           context.Context
	mode          policy.Mode
	book          *bookkeeping
	override      policy.Override
	hint          policy.Hint
	reading       policy.Reading
	hasReading    bool
	lastEvaluated policy.Reading
	hasEvaluated  bool
	lastReasoning string
	lastChangeAt  time.Time
	lastTargetC   float64
	dispatched    bool // last command reached every zone
	stopped       bool // no longer accepting events
	tornDown      bool // zones already commanded off
	done          chan struct{}

	// snapshots for concurrent readers
	mu      sync.RWMutex
	status  events.StatusUpdate
	history *history
}

func New(conf *config.Config, cmd Commander) *Machine {
	m := &Machine{
		conf:    conf,
		pcfg:    conf.Policy(),
		log:     logger.New("Machine"),
		evBus:   conf.EventBus,
		router:  NewRouter(conf.Controller.QueueSize),
		cmd:     cmd,
		mode:    conf.InitialMode(),
		book:    newBookkeeping(time.Now()),
		history: newHistory(conf.Controller.HistorySize),
		done:    make(chan struct{}),
	}
	m.lastReasoning = "startup in " + m.mode.String()
	return m
}

// Submit hands an event to the router from any goroutine.
func (m *Machine) Submit(ev Event) error {
	return m.router.Submit(ev)
}

// Run is the single consumer of the event stream. It also owns the
// periodic AutoEvaluate producer.
func (m *Machine) Run(ctx context.Context) {
	m.log.Info("Running in %s", m.mode)
	defer m.log.Info("Stopped")
	defer close(m.done)

	// a fault escalated out of the loop still turns the zones off
	defer func() {
		if r := recover(); r != nil {
			m.teardown(time.Now(), "fatal error")
			panic(r)
		}
	}()

	m.ctx = ctx
	m.publishStatus(time.Now())

	// periodic re-evaluation enforces duty-cycle expiry even when no
	// sensor data arrives
	interval := time.Duration(m.conf.Controller.EvaluateIntervalSeconds) * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Submit(AutoEvaluate{}); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			m.teardown(time.Now(), "controller stopping")
			return

		case ev := <-m.router.Events():
			m.handle(ev, time.Now())
			if m.stopped {
				// shutdown processed; reject producers until restart
				// but keep serving status until the app stops
				<-ctx.Done()
				return
			}
		}
	}
}

func (m *Machine) handle(ev Event, now time.Time) {
	switch e := ev.(type) {
	case TemperaturesUpdated:
		// identical consecutive readings are a no-op: no record, no
		// command dispatch
		if m.hasEvaluated && e.Reading.Equal(m.lastEvaluated) {
			m.log.Debug("duplicate reading ignored (indoor=%.2f outdoor=%.2f)",
				e.Reading.IndoorC, e.Reading.OutdoorC)
			return
		}
		m.reading = e.Reading
		m.hasReading = true
		m.evaluate(e.trigger(), now)

	case OverrideRequested:
		if !e.Mode.Commandable() {
			m.log.Error("override rejected: %s is not a commandable mode", e.Mode)
			return
		}
		m.override = policy.Override{
			Active:       true,
			Mode:         e.Mode,
			TemperatureC: e.TemperatureC,
		}
		if e.TTL > 0 {
			m.override.ExpiresAt = now.Add(e.TTL)
		}
		m.log.Info("manual override: %s (ttl=%v)", e.Mode, e.TTL)
		m.evaluate(e.trigger(), now)

	case OverrideCancelled:
		m.override = policy.Override{}
		m.log.Info("manual override cancelled")
		m.evaluate(e.trigger(), now)

	case AdvisoryUpdated:
		m.hint = policy.Hint{Valid: true, SetpointC: e.SetpointC}
		m.log.Debug("advisory setpoint hint: %.1f°C", e.SetpointC)
		m.evaluate(e.trigger(), now)

	case AutoEvaluate:
		m.evaluate(e.trigger(), now)

	case Shutdown:
		m.stopped = true
		m.teardown(now, "shutdown requested")

	default:
		m.log.Error("unhandled event type %T", ev)
	}
}

// evaluate runs one pass through the policy evaluator and applies the
// outcome: exactly one transition record per evaluation, appended
// before any command is dispatched.
func (m *Machine) evaluate(trigger string, now time.Time) {
	if !m.hasReading {
		m.log.Debug("no readings yet, skipping evaluation (%s)", trigger)
		return
	}

	if m.override.Active && m.override.Expired(now) {
		m.log.Info("manual override expired")
		m.override = policy.Override{}
	}

	m.book.observe(m.mode, now)

	dec, err := policy.Decide(policy.Inputs{
		Now:      now,
		Current:  m.mode,
		Reading:  m.reading,
		Override: m.override,
		Hint:     m.hint,
		Book:     m.book.snapshot(),
	}, m.pcfg)
	if err != nil {
		// a bad reading never changes equipment state
		m.log.Error("holding %s: %v", m.mode, err)
		return
	}

	if !dec.Mode.Valid() || dec.Mode == policy.Evaluating {
		m.log.Fatal("state corruption: evaluator selected %v", dec.Mode)
	}

	from := m.mode
	m.appendRecord(TransitionRecord{
		Time:      now,
		From:      from,
		To:        dec.Mode,
		TargetC:   dec.TargetC,
		Reasoning: dec.Reasoning,
		Trigger:   trigger,
		IndoorC:   m.reading.IndoorC,
		OutdoorC:  m.reading.OutdoorC,
	})

	changed := dec.Mode != from
	if changed {
		m.book.transition(dec.Mode, now)
		m.mode = dec.Mode
		m.lastChangeAt = now
		m.log.Info("%s -> %s: %s", from, dec.Mode, dec.Reasoning)
	} else {
		m.log.Debug("no change (%s): %s", m.mode, dec.Reasoning)
	}
	m.lastReasoning = dec.Reasoning
	m.lastEvaluated = m.reading
	m.hasEvaluated = true

	if !m.book.consistent() || !m.mode.Valid() {
		m.log.Fatal("state corruption: bookkeeping or mode invariant violated after %s", trigger)
	}

	// dispatch only when the command would differ from what the zones
	// already hold; a failed dispatch is retried on the next evaluation
	if changed || !m.dispatched || dec.TargetC != m.lastTargetC {
		res := m.cmd.Apply(m.ctx, dec.Mode, dec.TargetC)
		m.dispatched = res.AllSucceeded
		m.lastTargetC = dec.TargetC
		if !res.AllSucceeded {
			m.log.Error("dispatch incomplete: %d zone(s) failed, retrying on next evaluation",
				len(res.Failures()))
		}
	}

	m.publishStatus(now)
}

// teardown forces Off and commands every configured zone off,
// including disabled ones. Used for both the Shutdown event and
// controller stop.
func (m *Machine) teardown(now time.Time, why string) {
	if m.tornDown {
		return
	}
	m.tornDown = true
	from := m.mode
	m.book.observe(from, now)

	m.appendRecord(TransitionRecord{
		Time:      now,
		From:      from,
		To:        policy.Off,
		Reasoning: why,
		Trigger:   "shutdown",
		IndoorC:   m.reading.IndoorC,
		OutdoorC:  m.reading.OutdoorC,
	})

	if from != policy.Off {
		m.book.transition(policy.Off, now)
		m.mode = policy.Off
		m.lastChangeAt = now
	}
	m.override = policy.Override{}
	m.lastReasoning = why
	m.log.Info("%s -> off: %s", from, why)

	// terminal safety action: all zones off, disabled ones included
	res := m.cmd.OffAll(m.ctx)
	if !res.AllSucceeded {
		m.log.Error("shutdown dispatch incomplete: %d zone(s) failed", len(res.Failures()))
	}
	m.dispatched = res.AllSucceeded
	m.lastTargetC = 0

	m.publishStatus(now)
}

func (m *Machine) appendRecord(rec TransitionRecord) {
	m.mu.Lock()
	m.history.append(rec)
	m.mu.Unlock()

	if m.evBus != nil {
		m.evBus.Publish(events.TopicTransition, events.Transition{
			Time:      rec.Time,
			From:      rec.From,
			To:        rec.To,
			TargetC:   rec.TargetC,
			Reasoning: rec.Reasoning,
			Trigger:   rec.Trigger,
		})
	}
}

func (m *Machine) publishStatus(now time.Time) {
	book := m.book.snapshot()
	status := events.StatusUpdate{
		Mode:             m.mode,
		TargetC:          m.lastTargetC,
		IndoorC:          m.reading.IndoorC,
		OutdoorC:         m.reading.OutdoorC,
		OverrideActive:   m.override.InEffect(now),
		OverrideMode:     m.override.Mode,
		LastTransitionAt: m.lastChangeAt,
		LastReasoning:    m.lastReasoning,
		CyclesThisHour:   book.Cycles[m.mode],
		RuntimeThisHour:  book.Runtime[m.mode].Truncate(time.Second).String(),
		ShuttingDown:     m.stopped,
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()

	if m.evBus != nil {
		m.evBus.Publish(events.TopicStatus, status)
	}
}

// Done is closed once the run loop has exited and the shutdown
// dispatch has completed. Transport owners wait on it before closing
// the connections the off commands travel on.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Status returns the latest snapshot. Safe from any goroutine.
func (m *Machine) Status() events.StatusUpdate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// History returns a copy of the transition history, oldest first.
// Safe from any goroutine.
func (m *Machine) History() []TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.list()
}
