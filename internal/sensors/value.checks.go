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
	"fmt"
	"math"
	"time"

	"hearth/internal/policy"
)

// Plausibility limits for air temperature sensors. Anything outside
// this range is a sensor fault, not weather.
const (
	airTempMinC = -50.0
	airTempMaxC = 60.0
)

// maxDeltaPerMinute bounds the rate of change between two accepted
// values. Air temperature does not move 10°C in a minute; a wire
// glitch or a unit mixup (°F reported as °C) does.
const maxDeltaPerMinute = 2.0

func checkAirTemp(kind string, tempC float64, at time.Time, prev sample) error {
	if math.IsNaN(tempC) || math.IsInf(tempC, 0) {
		return fmt.Errorf("non-finite value")
	}
	if tempC < airTempMinC || tempC > airTempMaxC {
		return fmt.Errorf("out of range [%.0f, %.0f]", airTempMinC, airTempMaxC)
	}
	if prev.at.IsZero() {
		return nil // first value, nothing to compare against
	}
	minutes := at.Sub(prev.at).Minutes()
	if minutes <= 0 {
		minutes = 1.0 / 60.0
	}
	if minutes > 30 {
		return nil // stale baseline, accept and restart tracking
	}
	delta := math.Abs(tempC - prev.tempC)
	if delta > maxDeltaPerMinute*math.Max(minutes, 1) {
		return fmt.Errorf("implausible jump of %.1f°C in %.1f min (last %.1f°C)",
			delta, minutes, prev.tempC)
	}
	return nil
}

func machineReading(indoorC, outdoorC float64, at time.Time) policy.Reading {
	return policy.Reading{
		IndoorC:    indoorC,
		OutdoorC:   outdoorC,
		ObservedAt: at,
	}
}
