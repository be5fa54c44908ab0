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
	"maps"
	"time"

	"hearth/internal/policy"
)

// bookkeeping tracks per-mode runtime and cycle counts for duty-cycle
// enforcement. Counters are monotonic within an hour and reset exactly
// once on every hour-boundary crossing. Mutated only from the
// machine's consumer loop.
type bookkeeping struct {
	hourStart   time.Time
	enteredAt   time.Time
	lastAccrual time.Time
	runtime     map[policy.Mode]time.Duration
	cycles      map[policy.Mode]int
}

func newBookkeeping(now time.Time) *bookkeeping {
	return &bookkeeping{
		hourStart:   now.Truncate(time.Hour),
		enteredAt:   now,
		lastAccrual: now,
		runtime:     make(map[policy.Mode]time.Duration),
		cycles:      make(map[policy.Mode]int),
	}
}

// observe accrues runtime for the current mode up to now and performs
// the hourly reset when now has crossed into a new hour.
func (b *bookkeeping) observe(current policy.Mode, now time.Time) {
	hour := now.Truncate(time.Hour)
	if hour.After(b.hourStart) {
		clear(b.runtime)
		clear(b.cycles)
		b.hourStart = hour
		if b.lastAccrual.Before(hour) {
			b.lastAccrual = hour
		}
	}

	if current.Active() {
		if d := now.Sub(b.lastAccrual); d > 0 {
			b.runtime[current] += d
		}
	}
	b.lastAccrual = now
}

// transition records entry into a new mode.
func (b *bookkeeping) transition(to policy.Mode, now time.Time) {
	b.enteredAt = now
	if to.Active() {
		b.cycles[to]++
	}
}

// snapshot returns a read-only copy for the policy evaluator.
func (b *bookkeeping) snapshot() policy.Bookkeeping {
	return policy.Bookkeeping{
		EnteredAt: b.enteredAt,
		Runtime:   maps.Clone(b.runtime),
		Cycles:    maps.Clone(b.cycles),
	}
}

// consistent reports whether the counters are still sane.
func (b *bookkeeping) consistent() bool {
	for _, n := range b.cycles {
		if n < 0 {
			return false
		}
	}
	for _, d := range b.runtime {
		if d < 0 {
			return false
		}
	}
	return !b.enteredAt.IsZero()
}
