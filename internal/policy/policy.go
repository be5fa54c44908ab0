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
	"fmt"
	"math"
	"time"
)

// Mode is the operating mode of the HVAC equipment.
// Exactly one mode is current at any instant.
type Mode int

const (
	Off Mode = iota
	Idle
	Heating
	Cooling
	Defrosting
	Evaluating
)

func (m Mode) String() string {
	switch m {
	case Off:
		return "off"
	case Idle:
		return "idle"
	case Heating:
		return "heating"
	case Cooling:
		return "cooling"
	case Defrosting:
		return "defrosting"
	case Evaluating:
		return "evaluating"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	return m >= Off && m <= Evaluating
}

// Active reports whether equipment runs in this mode.
func (m Mode) Active() bool {
	return m == Heating || m == Cooling || m == Defrosting
}

// Commandable reports whether an operator may request this mode.
// Defrosting is entered only by evaluation, and Evaluating is a
// transient marker, never a resting state.
func (m Mode) Commandable() bool {
	switch m {
	case Off, Idle, Heating, Cooling:
		return true
	}
	return false
}

// ParseMode maps the wire/config spelling of a mode to its value.
func ParseMode(s string) (Mode, error) {
	for m := Off; m <= Evaluating; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return Off, fmt.Errorf("unknown mode %q", s)
}

// Reading is the most recent pair of temperature observations.
type Reading struct {
	IndoorC    float64
	OutdoorC   float64
	ObservedAt time.Time
}

// Equal reports whether two readings carry the same observation.
// Identity includes the observation time: the same temperatures
// sampled at a different instant are a different reading.
func (r Reading) Equal(o Reading) bool {
	return r.IndoorC == o.IndoorC &&
		r.OutdoorC == o.OutdoorC &&
		r.ObservedAt.Equal(o.ObservedAt)
}

// Override is an operator-requested mode/temperature that supersedes
// automatic evaluation until it expires or is cancelled. The latest
// accepted request overwrites any previous one.
type Override struct {
	Active       bool
	Mode         Mode
	TemperatureC *float64  // nil means "use the configured setpoint"
	ExpiresAt    time.Time // zero means no expiry
}

func (o Override) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

func (o Override) InEffect(now time.Time) bool {
	return o.Active && !o.Expired(now)
}

// Hint is an advisory setpoint suggestion from an external scheduler
// or analytics collaborator. It is consulted below overrides and
// safety and never selects a mode on its own.
type Hint struct {
	Valid     bool
	SetpointC float64
}

// Bookkeeping is a read-only snapshot of the machine's duty-cycle
// accounting, reset on every hour boundary.
type Bookkeeping struct {
	EnteredAt time.Time // when the current mode was entered
	Runtime   map[Mode]time.Duration
	Cycles    map[Mode]int
}

func (b Bookkeeping) runtime(m Mode) time.Duration {
	if b.Runtime == nil {
		return 0
	}
	return b.Runtime[m]
}

func (b Bookkeeping) cycles(m Mode) int {
	if b.Cycles == nil {
		return 0
	}
	return b.Cycles[m]
}

// Config holds every threshold the evaluator consults. All values are
// configuration-driven; nothing here is hard-coded in Decide.
type Config struct {
	// hysteresis bands
	HeatLowC  float64
	HeatHighC float64
	CoolLowC  float64
	CoolHighC float64

	// safety bounds
	MinSetpointC       float64
	MaxSetpointC       float64
	OverheatMarginC    float64
	HotOutdoorCeilingC float64
	ColdOutdoorFloorC  float64 // no cooling when outdoor is below this

	// duty cycle
	MinRunTime       time.Duration
	MaxCyclesPerHour int

	// defrost entry/exit
	DefrostOutdoorMaxC    float64
	DefrostMinHeatRuntime time.Duration
	DefrostDuration       time.Duration
}

// Inputs is everything Decide needs. It is a value type: Decide never
// mutates it and never touches anything outside of it.
type Inputs struct {
	Now      time.Time
	Current  Mode
	Reading  Reading
	Override Override
	Hint     Hint
	Book     Bookkeeping
}

// Decision is the evaluator's output. Reasoning is a contract field:
// it names the rule that produced the decision and is recorded in the
// transition history.
type Decision struct {
	Mode      Mode
	TargetC   float64
	Reasoning string
}

// Decide selects the next mode and target temperature from the given
// inputs. It is deterministic and side-effect free: the same inputs
// always produce the same decision.
//
// Precedence, highest first: safety bounds, duty-cycle limits, manual
// override, hysteresis bands, advisory hint (target only).
func Decide(in Inputs, cfg Config) (Decision, error) {
	if err := validate(in.Reading); err != nil {
		return Decision{}, err
	}

	dec := candidate(in, cfg)

	// safety pass: a blocked candidate falls back to holding the
	// current mode when that is itself safe, otherwise to Idle
	if reason, ok := unsafe(dec.Mode, dec.TargetC, in.Reading, cfg); ok {
		held := in.Current
		target := clampSetpoint(dec.TargetC, cfg)
		if heldReason, bad := unsafe(held, target, in.Reading, cfg); bad {
			return Decision{
				Mode:      Idle,
				TargetC:   target,
				Reasoning: fmt.Sprintf("safety: %s; current mode also blocked (%s), failing to idle", reason, heldReason),
			}, nil
		}
		return Decision{
			Mode:      held,
			TargetC:   target,
			Reasoning: fmt.Sprintf("safety: %s; holding %s", reason, held),
		}, nil
	}

	// duty-cycle pass: only mode changes are limited, and a limited
	// change holds the current mode rather than forcing one. A hold is
	// never applied when the current mode itself fails safety.
	_, currentUnsafe := unsafe(in.Current, dec.TargetC, in.Reading, cfg)
	if dec.Mode != in.Current && !currentUnsafe {
		if in.Current.Active() {
			ran := in.Now.Sub(in.Book.EnteredAt)
			if ran < cfg.MinRunTime {
				return Decision{
					Mode:      in.Current,
					TargetC:   dec.TargetC,
					Reasoning: fmt.Sprintf("duty cycle: %s has run %s of %s minimum; holding", in.Current, ran.Truncate(time.Second), cfg.MinRunTime),
				}, nil
			}
		}
		if dec.Mode.Active() && cfg.MaxCyclesPerHour > 0 &&
			in.Book.cycles(dec.Mode) >= cfg.MaxCyclesPerHour {
			return Decision{
				Mode:      in.Current,
				TargetC:   dec.TargetC,
				Reasoning: fmt.Sprintf("duty cycle: %s reached %d cycles this hour (max %d); holding %s", dec.Mode, in.Book.cycles(dec.Mode), cfg.MaxCyclesPerHour, in.Current),
			}, nil
		}
	}

	return dec, nil
}

// candidate applies override precedence, defrost rules and the
// hysteresis bands, before any safety or duty-cycle checks.
func candidate(in Inputs, cfg Config) Decision {
	if in.Override.InEffect(in.Now) {
		// overrides arriving from outside the panel boundary may carry
		// a mode an operator is not allowed to select; drop them here
		// rather than letting one reach the machine as a transition
		if !in.Override.Mode.Commandable() {
			return Decision{
				Mode:      in.Current,
				TargetC:   clampSetpoint(cfg.HeatHighC, cfg),
				Reasoning: fmt.Sprintf("override rejected: %s is not a commandable mode; holding %s", in.Override.Mode, in.Current),
			}
		}
		target := cfg.HeatHighC
		if in.Override.Mode == Cooling {
			target = cfg.CoolLowC
		}
		if in.Override.TemperatureC != nil {
			target = *in.Override.TemperatureC
		}
		clamped := clampSetpoint(target, cfg)
		reason := fmt.Sprintf("manual override: %s at %.1f°C", in.Override.Mode, clamped)
		if clamped != target {
			reason = fmt.Sprintf("manual override: %s at %.1f°C (requested %.1f°C, clamped to safety bounds)",
				in.Override.Mode, clamped, target)
		}
		return Decision{Mode: in.Override.Mode, TargetC: clamped, Reasoning: reason}
	}

	// Off is steady: automatic evaluation never powers the system
	// back up, only an override or a restart does.
	if in.Current == Off {
		return Decision{
			Mode:      Off,
			TargetC:   clampSetpoint(cfg.HeatHighC, cfg),
			Reasoning: "system off",
		}
	}

	indoor := in.Reading.IndoorC
	outdoor := in.Reading.OutdoorC
	heatTarget := targetSetpoint(cfg.HeatHighC, in.Hint, cfg)
	coolTarget := targetSetpoint(cfg.CoolLowC, in.Hint, cfg)

	switch in.Current {
	case Heating:
		if icingRisk(outdoor, in.Book.runtime(Heating), cfg) {
			return Decision{
				Mode:      Defrosting,
				TargetC:   heatTarget,
				Reasoning: fmt.Sprintf("defrost: outdoor %.1f°C ≤ %.1f°C after %s of heating", outdoor, cfg.DefrostOutdoorMaxC, in.Book.runtime(Heating).Truncate(time.Second)),
			}
		}
		if indoor >= heatTarget {
			return Decision{
				Mode:      Idle,
				TargetC:   heatTarget,
				Reasoning: fmt.Sprintf("hysteresis: indoor %.1f°C reached heating high %.1f°C", indoor, heatTarget),
			}
		}
		return Decision{
			Mode:      Heating,
			TargetC:   heatTarget,
			Reasoning: fmt.Sprintf("hysteresis: indoor %.1f°C below heating high %.1f°C, still heating", indoor, heatTarget),
		}

	case Defrosting:
		inDefrost := in.Now.Sub(in.Book.EnteredAt)
		if inDefrost < cfg.DefrostDuration {
			return Decision{
				Mode:      Defrosting,
				TargetC:   heatTarget,
				Reasoning: fmt.Sprintf("defrost: %s of %s elapsed", inDefrost.Truncate(time.Second), cfg.DefrostDuration),
			}
		}
		if indoor <= cfg.HeatLowC {
			return Decision{
				Mode:      Heating,
				TargetC:   heatTarget,
				Reasoning: fmt.Sprintf("defrost complete: indoor %.1f°C ≤ heating low %.1f°C, resuming heating", indoor, cfg.HeatLowC),
			}
		}
		return Decision{
			Mode:      Idle,
			TargetC:   heatTarget,
			Reasoning: "defrost complete: no heating demand",
		}

	case Cooling:
		if indoor <= coolTarget {
			return Decision{
				Mode:      Idle,
				TargetC:   coolTarget,
				Reasoning: fmt.Sprintf("hysteresis: indoor %.1f°C reached cooling low %.1f°C", indoor, coolTarget),
			}
		}
		return Decision{
			Mode:      Cooling,
			TargetC:   coolTarget,
			Reasoning: fmt.Sprintf("hysteresis: indoor %.1f°C above cooling low %.1f°C, still cooling", indoor, coolTarget),
		}
	}

	// idle: look for a band entry
	if indoor <= cfg.HeatLowC {
		return Decision{
			Mode:      Heating,
			TargetC:   heatTarget,
			Reasoning: fmt.Sprintf("hysteresis: indoor %.1f°C ≤ heating low %.1f°C", indoor, cfg.HeatLowC),
		}
	}
	if indoor >= cfg.CoolHighC {
		return Decision{
			Mode:      Cooling,
			TargetC:   coolTarget,
			Reasoning: fmt.Sprintf("hysteresis: indoor %.1f°C ≥ cooling high %.1f°C", indoor, cfg.CoolHighC),
		}
	}
	return Decision{
		Mode:      Idle,
		TargetC:   heatTarget,
		Reasoning: fmt.Sprintf("hysteresis: indoor %.1f°C within comfort band", indoor),
	}
}

// unsafe reports whether selecting mode at target would violate a
// safety bound, with the reason when it would.
func unsafe(mode Mode, targetC float64, r Reading, cfg Config) (string, bool) {
	switch mode {
	case Heating, Defrosting:
		if r.IndoorC >= targetC+cfg.OverheatMarginC {
			return fmt.Sprintf("indoor %.1f°C exceeds target %.1f°C + margin %.1f°C, heating blocked",
				r.IndoorC, targetC, cfg.OverheatMarginC), true
		}
		if r.OutdoorC > cfg.HotOutdoorCeilingC {
			return fmt.Sprintf("outdoor %.1f°C above hot ceiling %.1f°C, heating blocked",
				r.OutdoorC, cfg.HotOutdoorCeilingC), true
		}
	case Cooling:
		if r.OutdoorC < cfg.ColdOutdoorFloorC {
			return fmt.Sprintf("outdoor %.1f°C below cold floor %.1f°C, cooling blocked",
				r.OutdoorC, cfg.ColdOutdoorFloorC), true
		}
	}
	return "", false
}

func icingRisk(outdoorC float64, heatRuntime time.Duration, cfg Config) bool {
	if cfg.DefrostDuration <= 0 {
		return false // defrost disabled
	}
	return outdoorC <= cfg.DefrostOutdoorMaxC && heatRuntime >= cfg.DefrostMinHeatRuntime
}

func targetSetpoint(base float64, hint Hint, cfg Config) float64 {
	if hint.Valid {
		return clampSetpoint(hint.SetpointC, cfg)
	}
	return clampSetpoint(base, cfg)
}

func clampSetpoint(c float64, cfg Config) float64 {
	if c < cfg.MinSetpointC {
		return cfg.MinSetpointC
	}
	if c > cfg.MaxSetpointC {
		return cfg.MaxSetpointC
	}
	return c
}

func validate(r Reading) error {
	if math.IsNaN(r.IndoorC) || math.IsInf(r.IndoorC, 0) {
		return fmt.Errorf("invalid reading: indoor %v", r.IndoorC)
	}
	if math.IsNaN(r.OutdoorC) || math.IsInf(r.OutdoorC, 0) {
		return fmt.Errorf("invalid reading: outdoor %v", r.OutdoorC)
	}
	return nil
}
