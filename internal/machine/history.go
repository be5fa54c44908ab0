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

// TransitionRecord is one line of the machine's diagnostic history:
// what was decided, why, and the conditions that triggered it. The
// history never drives decisions.
type TransitionRecord struct {
	Time      time.Time   `json:"time"`
	From      policy.Mode `json:"from"`
	To        policy.Mode `json:"to"`
	TargetC   float64     `json:"target_c"`
	Reasoning string      `json:"reasoning"`
	Trigger   string      `json:"trigger"`
	IndoorC   float64     `json:"indoor_c"`
	OutdoorC  float64     `json:"outdoor_c"`
}

// history is a bounded append-only record list; the oldest entry is
// dropped once the cap is reached.
type history struct {
	max     int
	records []TransitionRecord
}

func newHistory(max int) *history {
	if max <= 0 {
		max = 128
	}
	return &history{max: max}
}

func (h *history) append(rec TransitionRecord) {
	h.records = append(h.records, rec)
	if len(h.records) > h.max {
		h.records = h.records[1:]
	}
}

// list returns a copy, most recent last.
func (h *history) list() []TransitionRecord {
	out := make([]TransitionRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *history) len() int {
	return len(h.records)
}
