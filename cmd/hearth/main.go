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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"hearth/internal/advisor"
	"hearth/internal/config"
	"hearth/internal/dispatch"
	"hearth/internal/machine"
	"hearth/internal/metrics"
	"hearth/internal/panel"
	"hearth/internal/sensors"
	"hearth/pkg/appctx"
	"hearth/pkg/eventbus"
	"hearth/pkg/haws"
	"hearth/pkg/logger"
	"hearth/pkg/modbus"
	"hearth/pkg/rootserv"
	"hearth/pkg/service"
	"hearth/pkg/sysmon"
)

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logger.Init(filepath.Join(rootdir, "var/logs/hearth.log"))

	appConf := config.LoadFile(filepath.Join(rootdir, "var/config/hearth.json"))

	fmt.Println(filepath.Join(rootdir, "var/logs/hearth.log"))
	fmt.Println(filepath.Join(rootdir, "var/config/hearth.json"))

	// use conf to pass eventbus to whoever needs it
	appConf.EventBus = eventbus.New()
	appConf.DataDir = filepath.Join(rootdir, "var/cache")
	appConf.RootDir = rootdir

	ctx, ctxCancel := appctx.New()

	platformClient := haws.NewClient(appConf.Platform.WebsocketAddr, appConf.Platform.AccessToken)

	// one backend per transport; zones pick theirs by name
	backends := map[string]dispatch.Backend{
		"platform": dispatch.NewPlatformBackend(platformClient),
	}
	if hasModbusZones(appConf) {
		modbusConf := modbus.LoadConfig(filepath.Join(rootdir, "var/config/equipment.yml"))
		backends["modbus"] = dispatch.NewModbusBackend(modbus.NewClient(ctx, modbusConf))
	}

	// init services
	server := rootserv.New(":80")
	sysMonitorService := sysmon.New()
	dispatcher := dispatch.New(appConf, backends)
	machineService := machine.New(appConf, dispatcher)
	sensorService := sensors.New(appConf, platformClient, machineService)
	advisorService := advisor.New(appConf, machineService)
	panelService := panel.New(appConf, machineService)
	dataLoggerService := metrics.New(machineService, appConf)

	// the platform socket carries the shutdown off commands; close it
	// only after the machine has finished its teardown dispatch
	go func() {
		<-ctx.Done()
		<-machineService.Done()
		platformClient.Close()
	}()

	// attach web handler enabled services
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)
	server.Attach("/machine", "Controller Status", machineService)
	server.Attach("/panel", "Control Panel", panelService)

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, []service.Runnable{
		machineService,
		sensorService,
		advisorService,
		panelService,
		dataLoggerService,
		server,
	})

	// waits for all services to stop
	os.Exit(<-exitCh)
}

func hasModbusZones(conf *config.Config) bool {
	for _, z := range conf.Zones {
		if z.Backend == "modbus" {
			return true
		}
	}
	return false
}
