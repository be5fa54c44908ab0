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

package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ReadValue reads a register by name and returns its decoded value.
// Scaled int16/uint16 registers and float32 registers come back as
// float64; unscaled integers as their native width; bool as bool.
func (c *Client) ReadValue(name string) (any, error) {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return nil, fmt.Errorf("register %q not configured", name)
	}

	nregisters, err := registerCount(regDef.DataType)
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", name, err)
	}

	raw, err := c.ReadRegisters(c.ctx, regDef.Address, nregisters)
	if err != nil {
		return nil, fmt.Errorf("register read failed for %s: %w", name, err)
	}
	if len(raw) < int(nregisters*2) {
		return nil, fmt.Errorf("register %q returned insufficient data", name)
	}

	var valf64 float64
	switch regDef.DataType {
	case "float32":
		valf64 = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
		if regDef.Scale == 0 {
			return valf64, nil
		}

	case "int16":
		valf64 = float64(int16(binary.BigEndian.Uint16(raw)))
		if regDef.Scale == 0 {
			return int16(valf64), nil
		}

	case "uint16":
		valf64 = float64(binary.BigEndian.Uint16(raw))
		if regDef.Scale == 0 {
			return uint16(valf64), nil
		}

	case "bool":
		return binary.BigEndian.Uint16(raw) != 0, nil

	default:
		return nil, fmt.Errorf("unsupported data type %q for register %q", regDef.DataType, name)
	}

	return valf64*regDef.Scale + regDef.Offset, nil
}

// WriteValue writes a numeric or bool value into a named register,
// applying the configured scale/offset in reverse.
func (c *Client) WriteValue(name string, value any) error {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return fmt.Errorf("register %q not configured", name)
	}
	if !regDef.Writable {
		return fmt.Errorf("register %q is not writable", name)
	}

	c.log.Info("WriteRegister '%s' <- %v", name, value)

	valf64, err := toFloat64(value)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	if regDef.Scale != 0 {
		valf64 = (valf64 - regDef.Offset) / regDef.Scale
	}

	var raw []byte
	var nregisters uint16

	switch regDef.DataType {
	case "float32":
		if valf64 > math.MaxFloat32 || valf64 < -math.MaxFloat32 {
			return fmt.Errorf("value %v out of float32 range for register %q", valf64, name)
		}
		raw = make([]byte, 4)
		binary.BigEndian.PutUint32(raw, math.Float32bits(float32(valf64)))
		nregisters = 2

	case "int16":
		ival := int64(math.Round(valf64))
		if ival < math.MinInt16 || ival > math.MaxInt16 {
			return fmt.Errorf("value %v out of int16 range for register %q", valf64, name)
		}
		raw = make([]byte, 2)
		binary.BigEndian.PutUint16(raw, uint16(ival))
		nregisters = 1

	case "uint16":
		ival := int64(math.Round(valf64))
		if ival < 0 || ival > math.MaxUint16 {
			return fmt.Errorf("value %v out of uint16 range for register %q", valf64, name)
		}
		raw = make([]byte, 2)
		binary.BigEndian.PutUint16(raw, uint16(ival))
		nregisters = 1

	case "bool":
		raw = make([]byte, 2)
		if valf64 != 0 {
			binary.BigEndian.PutUint16(raw, math.MaxUint16)
		}
		nregisters = 1

	default:
		return fmt.Errorf("unsupported data type %q for register %q", regDef.DataType, name)
	}

	if err := c.WriteRegisters(c.ctx, regDef.Address, nregisters, raw); err != nil {
		return fmt.Errorf("failed to write register %q: %w", name, err)
	}
	return nil
}

// HasRegister reports whether a register name is configured.
func (c *Client) HasRegister(name string) bool {
	_, ok := c.config.Registers[name]
	return ok
}

func registerCount(dataType string) (uint16, error) {
	switch dataType {
	case "uint16", "int16", "bool":
		return 1, nil
	case "float32":
		return 2, nil
	default:
		return 0, fmt.Errorf("unhandled data type %q", dataType)
	}
}

// toFloat64 converts numeric and bool values into a float64.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0, fmt.Errorf("value is not a numeric or bool type (got %T)", v)
	}
}
