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

package policy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		HeatLowC:  18,
		HeatHighC: 22,
		CoolLowC:  23,
		CoolHighC: 26,

		MinSetpointC:       18,
		MaxSetpointC:       26,
		OverheatMarginC:    1.5,
		HotOutdoorCeilingC: 20,
		ColdOutdoorFloorC:  10,

		MinRunTime:       10 * time.Minute,
		MaxCyclesPerHour: 4,

		DefrostOutdoorMaxC:    2,
		DefrostMinHeatRuntime: 30 * time.Minute,
		DefrostDuration:       10 * time.Minute,
	}
}

var t0 = time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)

func reading(indoor, outdoor float64) Reading {
	return Reading{IndoorC: indoor, OutdoorC: outdoor, ObservedAt: t0}
}

// inputs returns a baseline where no duty-cycle rule can interfere:
// the current mode has been running well past the minimum.
func inputs(current Mode, r Reading) Inputs {
	return Inputs{
		Now:     t0,
		Current: current,
		Reading: r,
		Book:    Bookkeeping{EnteredAt: t0.Add(-time.Hour)},
	}
}

func TestColdMorningEntersHeating(t *testing.T) {
	cfg := testConfig()

	// below the heating band: idle must start heating
	dec, err := Decide(inputs(Idle, reading(16, -5)), cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)
	assert.Equal(t, 22.0, dec.TargetC)
	assert.Contains(t, dec.Reasoning, "hysteresis")

	// mid-band while heating: hysteresis keeps heating on
	dec, err = Decide(inputs(Heating, reading(20, -5)), cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)

	// target reached: heating stops
	dec, err = Decide(inputs(Heating, reading(22, -5)), cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
}

func TestHotAfternoonEntersCooling(t *testing.T) {
	cfg := testConfig()

	dec, err := Decide(inputs(Idle, reading(27, 18)), cfg)
	require.NoError(t, err)
	assert.Equal(t, Cooling, dec.Mode)
	assert.Equal(t, 23.0, dec.TargetC)

	// still above the cooling low: keep cooling
	dec, err = Decide(inputs(Cooling, reading(24, 18)), cfg)
	require.NoError(t, err)
	assert.Equal(t, Cooling, dec.Mode)

	dec, err = Decide(inputs(Cooling, reading(23, 18)), cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
}

func TestMidBandStaysIdle(t *testing.T) {
	dec, err := Decide(inputs(Idle, reading(21, 10)), testConfig())
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
}

func TestOverrideSupersedesBands(t *testing.T) {
	cfg := testConfig()

	// cooling conditions, but the operator wants heat
	in := inputs(Cooling, reading(25, 15))
	in.Override = Override{Active: true, Mode: Heating}

	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)
	assert.Contains(t, dec.Reasoning, "manual override")
}

func TestOverrideRejectsNonCommandableMode(t *testing.T) {
	cfg := testConfig()

	// operator input can only carry modes an operator may select;
	// anything else holds the current mode and records the rejection
	for _, mode := range []Mode{Evaluating, Defrosting} {
		in := inputs(Idle, reading(22, 15))
		in.Override = Override{Active: true, Mode: mode}

		dec, err := Decide(in, cfg)
		require.NoError(t, err)
		assert.Equal(t, Idle, dec.Mode, "override %s must not select a mode", mode)
		assert.Contains(t, dec.Reasoning, "not a commandable mode")
	}
}

func TestOverrideSetpointClamped(t *testing.T) {
	cfg := testConfig()
	want := 30.0

	in := inputs(Idle, reading(21, 15))
	in.Override = Override{Active: true, Mode: Heating, TemperatureC: &want}

	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)
	assert.Equal(t, cfg.MaxSetpointC, dec.TargetC)
	assert.Contains(t, dec.Reasoning, "clamped")
}

func TestOverrideExpiry(t *testing.T) {
	cfg := testConfig()

	in := inputs(Heating, reading(21, 15))
	in.Override = Override{Active: true, Mode: Heating, ExpiresAt: t0.Add(-time.Minute)}

	// expired: back to automatic evaluation, and 21°C mid-band while
	// heating keeps heating toward the band high
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)
	assert.NotContains(t, dec.Reasoning, "override")
}

func TestOverrideCannotBypassSafety(t *testing.T) {
	cfg := testConfig()

	// heating override during a heat wave: outdoor above the ceiling
	in := inputs(Idle, reading(24, 30))
	in.Override = Override{Active: true, Mode: Heating}

	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
	assert.Contains(t, dec.Reasoning, "safety")
}

func TestOverheatBlocksHeating(t *testing.T) {
	cfg := testConfig()
	want := 20.0

	// indoor is past target + margin; heating must not engage
	in := inputs(Idle, reading(23, 5))
	in.Override = Override{Active: true, Mode: Heating, TemperatureC: &want}

	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
	assert.Contains(t, dec.Reasoning, "heating blocked")
}

func TestColdOutdoorBlocksCoolingOverride(t *testing.T) {
	cfg := testConfig()
	want := 20.0

	// cooling override with outdoor below the floor: mode unchanged,
	// reasoning records the safety block
	in := inputs(Idle, reading(22, 5))
	in.Override = Override{Active: true, Mode: Cooling, TemperatureC: &want}

	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
	assert.Contains(t, dec.Reasoning, "cooling blocked")
}

func TestColdOutdoorBlocksCooling(t *testing.T) {
	cfg := testConfig()

	// indoor too hot but outdoor below the cooling floor
	dec, err := Decide(inputs(Idle, reading(27, 5)), cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
	assert.Contains(t, dec.Reasoning, "cooling blocked")
}

func TestUnsafeCurrentFailsToIdle(t *testing.T) {
	cfg := testConfig()

	// heating override while already heating, outdoor hot: both the
	// candidate and the held mode fail safety
	in := inputs(Heating, reading(21, 25))
	in.Override = Override{Active: true, Mode: Heating}

	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
	assert.Contains(t, dec.Reasoning, "failing to idle")
}

func TestDefrostEntryAndExit(t *testing.T) {
	cfg := testConfig()

	// freezing outdoor after sustained heating: defrost engages
	in := inputs(Heating, reading(19, -3))
	in.Book.Runtime = map[Mode]time.Duration{Heating: 45 * time.Minute}
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Defrosting, dec.Mode)
	assert.Contains(t, dec.Reasoning, "defrost")

	// mid-defrost: the cycle is time-boxed and holds
	in = inputs(Defrosting, reading(19, -3))
	in.Book.EnteredAt = t0.Add(-5 * time.Minute)
	dec, err = Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Defrosting, dec.Mode)

	// defrost elapsed with heating demand: resume heating
	in = inputs(Defrosting, reading(17, -3))
	in.Book.EnteredAt = t0.Add(-11 * time.Minute)
	dec, err = Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)

	// defrost elapsed without demand: idle
	in = inputs(Defrosting, reading(21, -3))
	in.Book.EnteredAt = t0.Add(-11 * time.Minute)
	dec, err = Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
}

func TestNoDefrostWithoutSustainedHeating(t *testing.T) {
	cfg := testConfig()

	in := inputs(Heating, reading(19, -3))
	in.Book.Runtime = map[Mode]time.Duration{Heating: 10 * time.Minute}
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)
}

func TestNoDefrostFromIdle(t *testing.T) {
	cfg := testConfig()

	// freezing outdoor and a long heating history, but not currently
	// heating: no coil to defrost
	in := inputs(Idle, reading(21, -10))
	in.Book.Runtime = map[Mode]time.Duration{Heating: 2 * time.Hour}
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
}

func TestMinRunTimeHoldsActiveMode(t *testing.T) {
	cfg := testConfig()

	// heating just started and already hit target: hold anyway
	in := inputs(Heating, reading(22, 5))
	in.Book.EnteredAt = t0.Add(-3 * time.Minute)
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)
	assert.Contains(t, dec.Reasoning, "duty cycle")
}

func TestMinRunTimeNeverHoldsUnsafeMode(t *testing.T) {
	cfg := testConfig()

	// heating just started but indoor has blown past target + margin:
	// safety wins over the minimum run time
	in := inputs(Heating, reading(24, 5))
	in.Book.EnteredAt = t0.Add(-3 * time.Minute)
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
}

func TestMaxCyclesPerHourHolds(t *testing.T) {
	cfg := testConfig()

	in := inputs(Idle, reading(16, 5))
	in.Book.Cycles = map[Mode]int{Heating: 4}
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)
	assert.Contains(t, dec.Reasoning, "cycles this hour")
}

func TestOffIsSteadyUnderAutomaticPolicy(t *testing.T) {
	cfg := testConfig()

	// freezing indoors, but the system is off: stay off
	dec, err := Decide(inputs(Off, reading(10, -10)), cfg)
	require.NoError(t, err)
	assert.Equal(t, Off, dec.Mode)
}

func TestOverrideExitsOff(t *testing.T) {
	cfg := testConfig()

	in := inputs(Off, reading(16, 5))
	in.Override = Override{Active: true, Mode: Heating}
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)
}

func TestHintAdjustsTargetOnly(t *testing.T) {
	cfg := testConfig()

	// hint shifts the heating target, but cannot start heating when
	// the band says idle
	in := inputs(Idle, reading(21, 5))
	in.Hint = Hint{Valid: true, SetpointC: 20}
	dec, err := Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Idle, dec.Mode)

	in = inputs(Heating, reading(19, 5))
	in.Hint = Hint{Valid: true, SetpointC: 20}
	dec, err = Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, Heating, dec.Mode)
	assert.Equal(t, 20.0, dec.TargetC)

	// hint beyond bounds is clamped like any setpoint
	in.Hint = Hint{Valid: true, SetpointC: 40}
	dec, err = Decide(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxSetpointC, dec.TargetC)
}

func TestInvalidReadingIsRejected(t *testing.T) {
	cfg := testConfig()

	_, err := Decide(inputs(Idle, reading(math.NaN(), 5)), cfg)
	assert.Error(t, err)

	_, err = Decide(inputs(Idle, reading(21, math.Inf(1))), cfg)
	assert.Error(t, err)
}

func TestDecideIsDeterministic(t *testing.T) {
	cfg := testConfig()
	in := inputs(Heating, reading(20.3, -1.2))
	in.Book.Runtime = map[Mode]time.Duration{Heating: 12 * time.Minute}

	first, err := Decide(in, cfg)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Decide(in, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecisionAlwaysCarriesReasoning(t *testing.T) {
	cfg := testConfig()
	cases := []Inputs{
		inputs(Idle, reading(16, 5)),
		inputs(Idle, reading(27, 15)),
		inputs(Heating, reading(20, 5)),
		inputs(Off, reading(16, 5)),
	}
	for _, in := range cases {
		dec, err := Decide(in, cfg)
		require.NoError(t, err)
		assert.NotEmpty(t, dec.Reasoning)
	}
}

func TestParseMode(t *testing.T) {
	for m := Off; m <= Evaluating; m++ {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("toasty")
	assert.Error(t, err)
}

func TestReadingIdentityIncludesTime(t *testing.T) {
	a := reading(21, 5)
	b := a
	assert.True(t, a.Equal(b))

	b.ObservedAt = a.ObservedAt.Add(time.Second)
	assert.False(t, a.Equal(b))
}
