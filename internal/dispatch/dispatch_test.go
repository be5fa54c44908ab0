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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/config"
	"hearth/internal/policy"
)

type zoneCall struct {
	ZoneID  string
	Mode    policy.Mode
	TargetC float64
}

type fakeBackend struct {
	mu    sync.Mutex
	calls []zoneCall
	fail  map[string]error // per-zone failures
	hang  bool             // ignore ctx and block forever
}

func (f *fakeBackend) SetZone(ctx context.Context, zone config.ZoneConfig, mode policy.Mode, targetC float64) error {
	if f.hang {
		select {} // never returns; the dispatcher's timeout must cover this
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, zoneCall{ZoneID: zone.ID, Mode: mode, TargetC: targetC})
	if err, ok := f.fail[zone.ID]; ok {
		return err
	}
	return nil
}

func (f *fakeBackend) zoneIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.calls))
	for i, c := range f.calls {
		ids[i] = c.ZoneID
	}
	return ids
}

func testDispatcher(zones []config.ZoneConfig, backend Backend) *Dispatcher {
	conf := &config.Config{Zones: zones}
	conf.ApplyDefaults()
	conf.Dispatch.TimeoutSeconds = 1
	return New(conf, map[string]Backend{"fake": backend})
}

func zone(id string, enabled bool) config.ZoneConfig {
	return config.ZoneConfig{ID: id, Enabled: enabled, Backend: "fake"}
}

func TestApplySkipsDisabledZones(t *testing.T) {
	backend := &fakeBackend{}
	d := testDispatcher([]config.ZoneConfig{
		zone("living", true),
		zone("attic", false),
		zone("bedroom", true),
	}, backend)

	res := d.Apply(context.Background(), policy.Heating, 21)
	assert.True(t, res.AllSucceeded)
	assert.ElementsMatch(t, []string{"living", "bedroom"}, backend.zoneIDs())
}

func TestOffAllIncludesDisabledZones(t *testing.T) {
	backend := &fakeBackend{}
	d := testDispatcher([]config.ZoneConfig{
		zone("living", true),
		zone("attic", false),
	}, backend)

	res := d.OffAll(context.Background())
	assert.True(t, res.AllSucceeded)
	assert.ElementsMatch(t, []string{"living", "attic"}, backend.zoneIDs())
	for _, c := range backend.calls {
		assert.Equal(t, policy.Off, c.Mode)
	}
}

func TestOffAllSurvivesCancelledContext(t *testing.T) {
	backend := &fakeBackend{}
	d := testDispatcher([]config.ZoneConfig{
		zone("living", true),
		zone("attic", false),
	}, backend)

	// on shutdown the run context is already cancelled by the time the
	// off command is dispatched; healthy zones must still receive it
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.OffAll(ctx)
	assert.True(t, res.AllSucceeded)
	assert.ElementsMatch(t, []string{"living", "attic"}, backend.zoneIDs())
}

func TestOneFailureDoesNotBlockOthers(t *testing.T) {
	backend := &fakeBackend{fail: map[string]error{"attic": errors.New("no response")}}
	d := testDispatcher([]config.ZoneConfig{
		zone("living", true),
		zone("attic", true),
		zone("bedroom", true),
	}, backend)

	res := d.Apply(context.Background(), policy.Cooling, 24)
	assert.False(t, res.AllSucceeded)
	require.Len(t, res.Failures(), 1)
	assert.Equal(t, "attic", res.Failures()[0].ZoneID)

	// every zone was still commanded
	assert.ElementsMatch(t, []string{"living", "attic", "bedroom"}, backend.zoneIDs())
}

func TestUnknownBackendIsAFailedOutcome(t *testing.T) {
	conf := &config.Config{Zones: []config.ZoneConfig{
		{ID: "living", Enabled: true, Backend: "missing"},
	}}
	conf.ApplyDefaults()
	d := New(conf, map[string]Backend{})

	res := d.Apply(context.Background(), policy.Heating, 21)
	assert.False(t, res.AllSucceeded)
	require.Len(t, res.Failures(), 1)
	assert.ErrorContains(t, res.Failures()[0].Err, "unknown backend")
}

func TestHungBackendTimesOut(t *testing.T) {
	backend := &fakeBackend{hang: true}
	d := testDispatcher([]config.ZoneConfig{zone("living", true)}, backend)

	start := time.Now()
	res := d.Apply(context.Background(), policy.Heating, 21)
	assert.False(t, res.AllSucceeded)
	assert.ErrorContains(t, res.Failures()[0].Err, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}
