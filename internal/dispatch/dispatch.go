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
	"sync"
	"time"

	"hearth/internal/config"
	"hearth/internal/policy"
	"hearth/pkg/logger"
)

// Backend delivers one command to one zone's equipment.
type Backend interface {
	SetZone(ctx context.Context, zone config.ZoneConfig, mode policy.Mode, targetC float64) error
}

// ZoneOutcome is the per-zone result of a dispatch.
type ZoneOutcome struct {
	ZoneID string
	Err    error
}

// Result aggregates per-zone outcomes. Zones are independent: one
// zone failing never blocks or rolls back the others.
type Result struct {
	AllSucceeded bool
	PerZone      []ZoneOutcome
}

func (r Result) Failures() []ZoneOutcome {
	var failed []ZoneOutcome
	for _, z := range r.PerZone {
		if z.Err != nil {
			failed = append(failed, z)
		}
	}
	return failed
}

// Dispatcher fans a machine command out to every zone and collects
// the outcomes. Per-zone calls run concurrently, each bounded by the
// configured timeout; a hung backend becomes a failed outcome for
// that zone, never a stalled machine.
type Dispatcher struct {
	zones    []config.ZoneConfig
	backends map[string]Backend
	timeout  time.Duration
	log      *logger.Logger
}

func New(conf *config.Config, backends map[string]Backend) *Dispatcher {
	return &Dispatcher{
		zones:    conf.Zones,
		backends: backends,
		timeout:  time.Duration(conf.Dispatch.TimeoutSeconds) * time.Second,
		log:      logger.New("Dispatch"),
	}
}

// Apply commands every enabled zone to the given mode and target.
func (d *Dispatcher) Apply(ctx context.Context, mode policy.Mode, targetC float64) Result {
	var enabled []config.ZoneConfig
	for _, z := range d.zones {
		if z.Enabled {
			enabled = append(enabled, z)
		}
	}
	return d.apply(ctx, enabled, mode, targetC)
}

// OffAll commands every configured zone off, including disabled ones.
// This is the terminal safety action behind shutdown: it detaches from
// the caller's cancellation, since the caller's context is usually
// already cancelled by the time we get here. Each zone is still
// bounded by the dispatch timeout.
func (d *Dispatcher) OffAll(ctx context.Context) Result {
	return d.apply(context.WithoutCancel(ctx), d.zones, policy.Off, 0)
}

func (d *Dispatcher) apply(ctx context.Context, zones []config.ZoneConfig, mode policy.Mode, targetC float64) Result {
	outcomes := make([]ZoneOutcome, len(zones))

	var wg sync.WaitGroup
	for i, zone := range zones {
		wg.Add(1)
		go func(i int, zone config.ZoneConfig) {
			defer wg.Done()
			outcomes[i] = ZoneOutcome{
				ZoneID: zone.ID,
				Err:    d.applyZone(ctx, zone, mode, targetC),
			}
		}(i, zone)
	}
	wg.Wait()

	result := Result{AllSucceeded: true, PerZone: outcomes}
	for _, out := range outcomes {
		if out.Err != nil {
			result.AllSucceeded = false
			d.log.Error("zone %s: %v", out.ZoneID, out.Err)
		}
	}
	return result
}

// applyZone runs one backend call bounded by the dispatch timeout.
// The call executes in its own goroutine so a backend that ignores
// ctx still cannot block the dispatch.
func (d *Dispatcher) applyZone(ctx context.Context, zone config.ZoneConfig, mode policy.Mode, targetC float64) error {
	backend, ok := d.backends[zone.Backend]
	if !ok {
		return fmt.Errorf("zone %q: unknown backend %q", zone.ID, zone.Backend)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- backend.SetZone(ctx, zone, mode, targetC)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("zone %q: command timed out after %v", zone.ID, d.timeout)
	}
}
