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
	"time"

	"hearth/internal/policy"
)

// Event is anything a producer can submit to the machine. The router
// serializes events from all producers into a single ordered stream;
// the machine applies them one at a time, in arrival order.
type Event interface {
	trigger() string
}

// TemperaturesUpdated carries a fresh pair of temperature readings.
type TemperaturesUpdated struct {
	Reading policy.Reading
}

// OverrideRequested replaces the active manual override. The latest
// accepted request wins; it is not merged with any previous one.
type OverrideRequested struct {
	Mode         policy.Mode
	TemperatureC *float64
	TTL          time.Duration // zero means no expiry
}

// OverrideCancelled clears the active manual override.
type OverrideCancelled struct{}

// AdvisoryUpdated carries a setpoint hint from an external
// scheduling/analytics collaborator.
type AdvisoryUpdated struct {
	SetpointC float64
}

// AutoEvaluate re-runs evaluation with last-known readings. The
// periodic ticker submits these so duty-cycle expiry is enforced even
// without fresh sensor data.
type AutoEvaluate struct{}

// Shutdown forces the machine to Off, commands every zone off, and
// stops the machine accepting further events.
type Shutdown struct{}

func (TemperaturesUpdated) trigger() string { return "sensor update" }
func (OverrideRequested) trigger() string   { return "override request" }
func (OverrideCancelled) trigger() string   { return "override cancelled" }
func (AdvisoryUpdated) trigger() string     { return "advisory update" }
func (AutoEvaluate) trigger() string        { return "auto evaluate" }
func (Shutdown) trigger() string            { return "shutdown" }
