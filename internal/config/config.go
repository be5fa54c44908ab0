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

package config

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"hearth/internal/policy"
	"hearth/pkg/eventbus"
)

type ControllerConfig struct {
	InitialMode             string `json:"initial_mode"` // "idle" or "off"
	EvaluateIntervalSeconds int    `json:"evaluate_interval_seconds"`
	HistorySize             int    `json:"history_size"`
	QueueSize               int    `json:"queue_size"`
}

type ThresholdsConfig struct {
	HeatLowC  float64 `json:"heat_low_c"`
	HeatHighC float64 `json:"heat_high_c"`
	CoolLowC  float64 `json:"cool_low_c"`
	CoolHighC float64 `json:"cool_high_c"`
}

type SafetyConfig struct {
	MinSetpointC       float64 `json:"min_setpoint_c"`
	MaxSetpointC       float64 `json:"max_setpoint_c"`
	OverheatMarginC    float64 `json:"overheat_margin_c"`
	HotOutdoorCeilingC float64 `json:"hot_outdoor_ceiling_c"`
	ColdOutdoorFloorC  float64 `json:"cold_outdoor_floor_c"`
}

type DutyConfig struct {
	MinRunTimeMinutes int `json:"min_run_time_minutes"`
	MaxCyclesPerHour  int `json:"max_cycles_per_hour"`
}

type DefrostConfig struct {
	OutdoorMaxC              float64 `json:"outdoor_max_c"`
	MinHeatingRuntimeMinutes int     `json:"min_heating_runtime_minutes"`
	DurationMinutes          int     `json:"duration_minutes"`
}

type PlatformConfig struct {
	WebsocketAddr string `json:"websocket_addr"`
	AccessToken   string `json:"access_token"`
}

type SensorsConfig struct {
	IndoorEntity  string `json:"indoor_entity"`
	OutdoorEntity string `json:"outdoor_entity"`
}

// ZoneConfig describes one independently controllable piece of HVAC
// equipment. Backend selects how commands reach it: "platform" zones
// are climate entities on the home-automation platform, "modbus"
// zones are registers in the equipment map.
type ZoneConfig struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
	Backend string `json:"backend"`
	Entity  string `json:"entity,omitempty"` // platform entity id
}

type DispatchConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

type AdvisorConfig struct {
	Addr                string `json:"addr"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

type DataLoggerConfig struct {
	EmonCMSAddr     string `json:"emoncms_addr"`
	EmonCMSApiKey   string `json:"emoncms_apikey"`
	IntervalSeconds int    `json:"interval_seconds"`
}

type Config struct {
	Controller ControllerConfig `json:"controller"`
	Thresholds ThresholdsConfig `json:"thresholds"`
	Safety     SafetyConfig     `json:"safety"`
	Duty       DutyConfig       `json:"duty"`
	Defrost    DefrostConfig    `json:"defrost"`
	Platform   PlatformConfig   `json:"platform"`
	Sensors    SensorsConfig    `json:"sensors"`
	Zones      []ZoneConfig     `json:"zones"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Advisor    AdvisorConfig    `json:"advisor"`
	DataLogger DataLoggerConfig `json:"datalogger"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `json:"-"`
	DataDir  string        `json:"-"`
	RootDir  string        `json:"-"`
}

func LoadFile(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open config: %v", err)
	}
	defer f.Close()
	var c Config
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		log.Fatalf("decode config: %v", err)
	}
	c.ApplyDefaults()
	return &c
}

// ApplyDefaults fills every zero field that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Controller.InitialMode == "" {
		c.Controller.InitialMode = "idle"
	}
	if c.Controller.EvaluateIntervalSeconds == 0 {
		c.Controller.EvaluateIntervalSeconds = 60
	}
	if c.Controller.HistorySize == 0 {
		c.Controller.HistorySize = 128
	}
	if c.Controller.QueueSize == 0 {
		c.Controller.QueueSize = 64
	}
	if c.Thresholds.HeatLowC == 0 {
		c.Thresholds.HeatLowC = 18
	}
	if c.Thresholds.HeatHighC == 0 {
		c.Thresholds.HeatHighC = 22
	}
	if c.Thresholds.CoolLowC == 0 {
		c.Thresholds.CoolLowC = 23
	}
	if c.Thresholds.CoolHighC == 0 {
		c.Thresholds.CoolHighC = 26
	}
	if c.Safety.MinSetpointC == 0 {
		c.Safety.MinSetpointC = 18
	}
	if c.Safety.MaxSetpointC == 0 {
		c.Safety.MaxSetpointC = 26
	}
	if c.Safety.OverheatMarginC == 0 {
		c.Safety.OverheatMarginC = 1.5
	}
	if c.Safety.HotOutdoorCeilingC == 0 {
		c.Safety.HotOutdoorCeilingC = 20
	}
	if c.Safety.ColdOutdoorFloorC == 0 {
		c.Safety.ColdOutdoorFloorC = 10
	}
	if c.Duty.MinRunTimeMinutes == 0 {
		c.Duty.MinRunTimeMinutes = 10
	}
	if c.Duty.MaxCyclesPerHour == 0 {
		c.Duty.MaxCyclesPerHour = 4
	}
	if c.Defrost.OutdoorMaxC == 0 {
		c.Defrost.OutdoorMaxC = 2
	}
	if c.Defrost.MinHeatingRuntimeMinutes == 0 {
		c.Defrost.MinHeatingRuntimeMinutes = 30
	}
	if c.Defrost.DurationMinutes == 0 {
		c.Defrost.DurationMinutes = 10
	}
	if c.Dispatch.TimeoutSeconds == 0 {
		c.Dispatch.TimeoutSeconds = 10
	}
	if c.Advisor.PollIntervalSeconds == 0 {
		c.Advisor.PollIntervalSeconds = 300
	}
	if c.DataLogger.IntervalSeconds == 0 {
		c.DataLogger.IntervalSeconds = 60
	}
}

// Policy maps the file layout onto the evaluator's flat view.
func (c *Config) Policy() policy.Config {
	return policy.Config{
		HeatLowC:  c.Thresholds.HeatLowC,
		HeatHighC: c.Thresholds.HeatHighC,
		CoolLowC:  c.Thresholds.CoolLowC,
		CoolHighC: c.Thresholds.CoolHighC,

		MinSetpointC:       c.Safety.MinSetpointC,
		MaxSetpointC:       c.Safety.MaxSetpointC,
		OverheatMarginC:    c.Safety.OverheatMarginC,
		HotOutdoorCeilingC: c.Safety.HotOutdoorCeilingC,
		ColdOutdoorFloorC:  c.Safety.ColdOutdoorFloorC,

		MinRunTime:       time.Duration(c.Duty.MinRunTimeMinutes) * time.Minute,
		MaxCyclesPerHour: c.Duty.MaxCyclesPerHour,

		DefrostOutdoorMaxC:    c.Defrost.OutdoorMaxC,
		DefrostMinHeatRuntime: time.Duration(c.Defrost.MinHeatingRuntimeMinutes) * time.Minute,
		DefrostDuration:       time.Duration(c.Defrost.DurationMinutes) * time.Minute,
	}
}

// InitialMode resolves the configured startup mode.
func (c *Config) InitialMode() policy.Mode {
	if c.Controller.InitialMode == "off" {
		return policy.Off
	}
	return policy.Idle
}
