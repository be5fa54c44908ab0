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

package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hearth/internal/config"
	"hearth/internal/events"
	"hearth/internal/machine"
	"hearth/pkg/logger"
	"hearth/pkg/service"
)

// loggerService ships periodic controller snapshots to an emoncms
// instance for long-term graphing. Everything here is best-effort: a
// dead emoncms loses data points, nothing else.
type loggerService struct {
	addr     string
	apiKey   string
	interval time.Duration
	log      *logger.Logger
	machine  *machine.Machine
}

func New(m *machine.Machine, appConfig *config.Config) service.Runnable {
	return &loggerService{
		addr:     appConfig.DataLogger.EmonCMSAddr,
		apiKey:   appConfig.DataLogger.EmonCMSApiKey,
		interval: time.Duration(appConfig.DataLogger.IntervalSeconds) * time.Second,
		log:      logger.New("DataLogger"),
		machine:  m,
	}
}

func (c *loggerService) emoncmsInputPost(node string, data map[string]float64) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		c.log.Error("json.Marshal: %v", err)
		return err
	}

	request := fmt.Sprintf("%s/input/post?node=%s&apikey=%s&fulljson=%s",
		c.addr, node, c.apiKey, string(bytes))

	resp, err := http.Get(request)
	if err != nil {
		c.log.Error("http.Get: %v", err)
		return err
	}
	resp.Body.Close()
	return nil
}

func boolAsNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// flatten turns a status snapshot into emoncms feed values. Mode is
// logged as its numeric code so it graphs as a step function.
func flatten(status events.StatusUpdate) map[string]float64 {
	runtime, _ := time.ParseDuration(status.RuntimeThisHour)
	return map[string]float64{
		"MODE":              float64(status.Mode),
		"TARGET_C":          status.TargetC,
		"INDOOR_C":          status.IndoorC,
		"OUTDOOR_C":         status.OutdoorC,
		"OVERRIDE_ACTIVE":   boolAsNumber(status.OverrideActive),
		"CYCLES_THIS_HOUR":  float64(status.CyclesThisHour),
		"RUNTIME_THIS_HOUR": runtime.Minutes(),
	}
}

func (c *loggerService) tick() {
	status := c.machine.Status()
	if err := c.emoncmsInputPost("controller", flatten(status)); err != nil {
		c.log.Error("emoncmsInputPost: %v", err)
	}
}

func (c *loggerService) Run(ctx context.Context) {
	if c.addr == "" {
		c.log.Info("no emoncms addr configured, not running")
		return
	}
	c.log.Info("Running...")
	defer c.log.Info("Stopped.")

	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.tick()
		}
	}
}
