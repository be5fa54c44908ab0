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

package haws

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func (e Event) IsStateChange() bool {
	return e.EventType == "state_changed"
}

// ParseStateChange parses a "state_changed" event into a StateChange
func (e Event) ParseStateChange() (StateChange, error) {
	if e.EventType != "state_changed" {
		return StateChange{}, fmt.Errorf("not a state_changed event")
	}
	var change StateChange
	if err := json.Unmarshal(e.Data, &change); err != nil {
		err = fmt.Errorf("failed Unmarshal of platform StateChange: %v", err)
		return StateChange{}, err
	}
	return change, nil
}

// NumericState converts the entity's state string to a float. The
// platform reports unavailable sensors with the strings "unknown" or
// "unavailable"; both map to an error, not a value.
func (s *EntityState) NumericState() (float64, error) {
	if s == nil {
		return 0, fmt.Errorf("no state")
	}
	raw := strings.TrimSpace(s.State)
	switch raw {
	case "", "unknown", "unavailable", "none":
		return 0, fmt.Errorf("state %q is not numeric", s.State)
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("state %q is not numeric: %v", s.State, err)
	}
	return val, nil
}
