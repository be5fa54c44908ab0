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

package dispatch

import (
	"context"
	"fmt"

	"hearth/internal/config"
	"hearth/internal/policy"
	"hearth/pkg/haws"
)

// PlatformBackend commands climate entities on the home-automation
// platform over its websocket client.
type PlatformBackend struct {
	client *haws.Client
}

func NewPlatformBackend(client *haws.Client) *PlatformBackend {
	return &PlatformBackend{client: client}
}

func (b *PlatformBackend) SetZone(ctx context.Context, zone config.ZoneConfig, mode policy.Mode, targetC float64) error {
	if zone.Entity == "" {
		return fmt.Errorf("zone %q has no platform entity", zone.ID)
	}

	hvacMode := platformHVACMode(mode)
	if err := b.client.CallService("climate", "set_hvac_mode", zone.Entity, map[string]any{
		"hvac_mode": hvacMode,
	}); err != nil {
		return fmt.Errorf("set_hvac_mode %s: %w", hvacMode, err)
	}

	if mode.Active() {
		if err := b.client.CallService("climate", "set_temperature", zone.Entity, map[string]any{
			"temperature": targetC,
		}); err != nil {
			return fmt.Errorf("set_temperature %.1f: %w", targetC, err)
		}
	}
	return nil
}

// platformHVACMode maps an operating mode to the platform's hvac_mode
// vocabulary. Defrosting is a heat-pump detail the platform does not
// know about; the zone keeps heating through it.
func platformHVACMode(m policy.Mode) string {
	switch m {
	case policy.Heating, policy.Defrosting:
		return "heat"
	case policy.Cooling:
		return "cool"
	default:
		return "off"
	}
}
