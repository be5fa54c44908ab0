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
	"hearth/pkg/modbus"
)

// ModbusBackend commands hard-wired air handlers whose mode and
// setpoint registers appear in the equipment map. Registers are named
// "<zone>_mode" and "<zone>_setpoint".
type ModbusBackend struct {
	client *modbus.Client
}

func NewModbusBackend(client *modbus.Client) *ModbusBackend {
	return &ModbusBackend{client: client}
}

// Equipment wire codes for the mode register.
const (
	regModeOff  = 0
	regModeHeat = 1
	regModeCool = 2
)

func (b *ModbusBackend) SetZone(ctx context.Context, zone config.ZoneConfig, mode policy.Mode, targetC float64) error {
	modeReg := zone.ID + "_mode"
	setpointReg := zone.ID + "_setpoint"

	if !b.client.HasRegister(modeReg) {
		return fmt.Errorf("zone %q has no %q register in the equipment map", zone.ID, modeReg)
	}

	if err := b.client.WriteValue(modeReg, modbusModeCode(mode)); err != nil {
		return err
	}

	if mode.Active() && b.client.HasRegister(setpointReg) {
		if err := b.client.WriteValue(setpointReg, targetC); err != nil {
			return err
		}
	}
	return nil
}

func modbusModeCode(m policy.Mode) int {
	switch m {
	case policy.Heating, policy.Defrosting:
		return regModeHeat
	case policy.Cooling:
		return regModeCool
	default:
		return regModeOff
	}
}
