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

package sensors

import (
	"context"
	"errors"
	"time"

	"hearth/internal/config"
	"hearth/internal/events"
	"hearth/internal/machine"
	"hearth/pkg/eventbus"
	"hearth/pkg/haws"
	"hearth/pkg/logger"
)

// Submitter is the machine boundary the sensor stream feeds.
type Submitter interface {
	Submit(machine.Event) error
}

const (
	kindIndoor  = "indoor"
	kindOutdoor = "outdoor"
)

type sample struct {
	tempC float64
	at    time.Time
}

// Service subscribes to the platform's state stream for the two
// configured temperature entities, validates values, and feeds the
// machine. Malformed values are logged and dropped; they never reach
// the machine and never crash the stream.
type Service struct {
	conf    config.SensorsConfig
	client  *haws.Client
	machine Submitter
	evBus   *eventbus.Bus
	log     *logger.Logger

	last map[string]sample // last accepted value per kind
}

func New(conf *config.Config, client *haws.Client, m Submitter) *Service {
	s := &Service{
		conf:    conf.Sensors,
		client:  client,
		machine: m,
		evBus:   conf.EventBus,
		log:     logger.New("Sensors"),
		last:    make(map[string]sample),
	}
	client.OnEvent(s.handlePlatformEvent)
	return s
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := s.client.Connect(ctx); err != nil {
				time.Sleep(5 * time.Second)
				continue
			}
			if err := s.client.ListenNext(); err != nil {
				s.client.Close()
			}
		}
	}
}

// handlePlatformEvent runs on the client's read goroutine. It hands
// readings to the router and returns; it never blocks on the machine.
func (s *Service) handlePlatformEvent(ev haws.Event) {
	if !ev.IsStateChange() {
		return
	}
	change, err := ev.ParseStateChange()
	if err != nil {
		s.log.Error("failed to parse state change: %v", err)
		return
	}

	var kind string
	switch change.EntityID {
	case s.conf.IndoorEntity:
		kind = kindIndoor
	case s.conf.OutdoorEntity:
		kind = kindOutdoor
	default:
		return // not one of ours
	}

	value, err := change.NewState.NumericState()
	if err != nil {
		s.log.Error("%s sensor %s: %v", kind, change.EntityID, err)
		return
	}

	at := change.NewState.LastChanged
	if at.IsZero() {
		at = time.Now()
	}

	if err := s.accept(kind, value, at); err != nil {
		s.log.Error("%s sensor %s: rejected %.2f°C: %v", kind, change.EntityID, value, err)
		return
	}
}

// accept validates a value against the per-kind checks, stores it,
// and submits a combined reading once both kinds have reported.
func (s *Service) accept(kind string, tempC float64, at time.Time) error {
	if err := checkAirTemp(kind, tempC, at, s.last[kind]); err != nil {
		return err
	}
	s.last[kind] = sample{tempC: tempC, at: at}

	if s.evBus != nil {
		s.evBus.Publish(events.TopicSensors, events.SensorUpdate{
			Kind:  kind,
			TempC: tempC,
			Time:  at,
		})
	}

	indoor, haveIndoor := s.last[kindIndoor]
	outdoor, haveOutdoor := s.last[kindOutdoor]
	if !haveIndoor || !haveOutdoor {
		s.log.Debug("waiting for full data: indoor=%v outdoor=%v", haveIndoor, haveOutdoor)
		return nil
	}

	observedAt := indoor.at
	if outdoor.at.After(observedAt) {
		observedAt = outdoor.at
	}

	err := s.machine.Submit(machine.TemperaturesUpdated{
		Reading: machineReading(indoor.tempC, outdoor.tempC, observedAt),
	})
	switch {
	case err == nil:
	case errors.Is(err, machine.ErrShuttingDown):
		// expected during shutdown
	default:
		s.log.Error("submit reading: %v", err)
	}
	return nil
}
