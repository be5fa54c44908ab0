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

package events

import (
	"time"

	"hearth/internal/policy"
	"hearth/pkg/eventbus"
)

// Observer topics. These carry the machine's outputs: anything that
// wants to watch the controller (panel, metrics, dashboards) subscribes
// here. The decision path itself does not run over the bus.
var (
	TopicStatus     eventbus.Topic = "status"
	TopicTransition eventbus.Topic = "transition"
	TopicSensors    eventbus.Topic = "sensors"
)

// SensorUpdate is published whenever a configured temperature source
// delivers a fresh, validated value.
type SensorUpdate struct {
	Kind  string // "indoor" or "outdoor"
	TempC float64
	Time  time.Time
}

// StatusUpdate is the machine's health snapshot, published after every
// processed event.
type StatusUpdate struct {
	Mode             policy.Mode `json:"mode"`
	TargetC          float64     `json:"target_c"`
	IndoorC          float64     `json:"indoor_c"`
	OutdoorC         float64     `json:"outdoor_c"`
	OverrideActive   bool        `json:"override_active"`
	OverrideMode     policy.Mode `json:"override_mode"`
	LastTransitionAt time.Time   `json:"last_transition_at"`
	LastReasoning    string      `json:"last_reasoning"`
	CyclesThisHour   int         `json:"cycles_this_hour"`
	RuntimeThisHour  string      `json:"runtime_this_hour"`
	ShuttingDown     bool        `json:"shutting_down"`
}

// Transition is published for every appended transition record.
type Transition struct {
	Time      time.Time   `json:"time"`
	From      policy.Mode `json:"from"`
	To        policy.Mode `json:"to"`
	TargetC   float64     `json:"target_c"`
	Reasoning string      `json:"reasoning"`
	Trigger   string      `json:"trigger"`
}
