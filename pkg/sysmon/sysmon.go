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

package sysmon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"hearth/pkg/logger"
)

// Service reports host and process health on its web page. Useful for
// checking that the controller box itself is not the problem when a
// zone misbehaves.
type Service struct {
	log *logger.Logger
}

func New() *Service {
	return &Service{
		log: logger.New("SysMonitor"),
	}
}

// Run satisfies service.Runnable; the monitor is passive.
func (s *Service) Run(ctx context.Context) {
	<-ctx.Done()
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cpuPercentList, _ := cpu.Percent(0, false)
	cpuPercent := 0.0
	if len(cpuPercentList) > 0 {
		cpuPercent = cpuPercentList[0]
	}

	vmem, _ := mem.VirtualMemory()
	totalDisk, freeDisk, usedDisk, _ := DiskUsage("/")

	// current process stats
	var procMem uint64
	var procCPU float64
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			procMem = memInfo.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			procCPU = pct
		}
	}

	metrics := map[string]any{
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"cpu": map[string]any{
			"system_percent":  cpuPercent,
			"process_percent": procCPU,
		},
		"memory": map[string]any{
			"system_total":     vmem.Total,
			"system_used":      vmem.Used,
			"system_available": vmem.Available,
			"process_rss":      procMem,
		},
		"disk": map[string]any{
			"total": totalDisk,
			"used":  usedDisk,
			"free":  freeDisk,
		},
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(metrics); err != nil {
		s.log.Error("encode metrics: %v", err)
	}
}
