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

package machine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/config"
	"hearth/internal/dispatch"
	"hearth/internal/policy"
)

type appliedCmd struct {
	Mode    policy.Mode
	TargetC float64
}

// fakeCommander records every command and can be told to fail.
type fakeCommander struct {
	mu          sync.Mutex
	applies     []appliedCmd
	offAlls     int
	failApplies int // number of upcoming Apply calls that fail
}

func (f *fakeCommander) Apply(_ context.Context, mode policy.Mode, targetC float64) dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies = append(f.applies, appliedCmd{Mode: mode, TargetC: targetC})
	if f.failApplies > 0 {
		f.failApplies--
		return dispatch.Result{PerZone: []dispatch.ZoneOutcome{
			{ZoneID: "main", Err: errors.New("zone unreachable")},
		}}
	}
	return dispatch.Result{AllSucceeded: true}
}

func (f *fakeCommander) OffAll(_ context.Context) dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offAlls++
	return dispatch.Result{AllSucceeded: true}
}

func (f *fakeCommander) applyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applies)
}

func (f *fakeCommander) lastApply() appliedCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applies[len(f.applies)-1]
}

func testMachine(t *testing.T) (*Machine, *fakeCommander) {
	t.Helper()
	conf := &config.Config{}
	conf.ApplyDefaults()
	fake := &fakeCommander{}
	m := New(conf, fake)
	m.ctx = context.Background()
	return m, fake
}

var start = time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)

func readingEvent(indoor, outdoor float64, at time.Time) TemperaturesUpdated {
	return TemperaturesUpdated{Reading: policy.Reading{
		IndoorC:    indoor,
		OutdoorC:   outdoor,
		ObservedAt: at,
	}}
}

func TestColdReadingStartsHeating(t *testing.T) {
	m, fake := testMachine(t)

	m.handle(readingEvent(16, -5, start), start)

	assert.Equal(t, policy.Heating, m.mode)
	require.Equal(t, 1, fake.applyCount())
	assert.Equal(t, policy.Heating, fake.lastApply().Mode)
	assert.Equal(t, 22.0, fake.lastApply().TargetC)

	recs := m.History()
	require.Len(t, recs, 1)
	assert.Equal(t, policy.Idle, recs[0].From)
	assert.Equal(t, policy.Heating, recs[0].To)
	assert.Equal(t, "sensor update", recs[0].Trigger)
}

func TestOneRecordPerEvaluation(t *testing.T) {
	m, _ := testMachine(t)

	// five distinct readings, processed in submission order
	temps := []float64{16, 17, 18, 19, 20}
	for i, indoor := range temps {
		at := start.Add(time.Duration(i) * time.Minute)
		m.handle(readingEvent(indoor, -5, at), at)
	}

	recs := m.History()
	require.Len(t, recs, len(temps))
	for i, rec := range recs {
		assert.Equal(t, temps[i], rec.IndoorC, "record %d out of order", i)
		assert.NotEmpty(t, rec.Reasoning)
	}
}

func TestDuplicateReadingIsNoOp(t *testing.T) {
	m, fake := testMachine(t)

	ev := readingEvent(16, -5, start)
	m.handle(ev, start)
	applies := fake.applyCount()
	records := len(m.History())

	// byte-identical reading: no record, no dispatch
	m.handle(ev, start.Add(time.Minute))
	assert.Equal(t, applies, fake.applyCount())
	assert.Len(t, m.History(), records)

	// same temperatures observed at a new instant are a new reading
	m.handle(readingEvent(16, -5, start.Add(2*time.Minute)), start.Add(2*time.Minute))
	assert.Len(t, m.History(), records+1)
}

func TestEvaluationWithoutReadingsIsSkipped(t *testing.T) {
	m, fake := testMachine(t)

	m.handle(AutoEvaluate{}, start)
	assert.Equal(t, 0, fake.applyCount())
	assert.Empty(t, m.History())
}

func TestNoDispatchWhenNothingChanged(t *testing.T) {
	m, fake := testMachine(t)

	m.handle(readingEvent(16, -5, start), start)
	applies := fake.applyCount()

	// heating continues with an unchanged target: record appended,
	// but the zones already hold this command
	at := start.Add(time.Minute)
	m.handle(readingEvent(17, -5, at), at)
	assert.Equal(t, applies, fake.applyCount())
	assert.Len(t, m.History(), 2)
}

func TestFailedDispatchRetriedNextEvaluation(t *testing.T) {
	m, fake := testMachine(t)
	fake.failApplies = 1

	m.handle(readingEvent(16, -5, start), start)
	require.Equal(t, 1, fake.applyCount())

	// mode is never rolled back on dispatch failure
	assert.Equal(t, policy.Heating, m.mode)

	// same decision next tick: retried because zones never confirmed
	at := start.Add(time.Minute)
	m.handle(AutoEvaluate{}, at)
	assert.Equal(t, 2, fake.applyCount())
	assert.Equal(t, policy.Heating, fake.lastApply().Mode)

	// once confirmed, no further dispatch for the same command
	m.handle(AutoEvaluate{}, at.Add(time.Minute))
	assert.Equal(t, 2, fake.applyCount())
}

func TestOverrideRoundTrip(t *testing.T) {
	m, fake := testMachine(t)

	m.handle(readingEvent(22, 15, start), start)
	require.Equal(t, policy.Idle, m.mode)

	setpoint := 24.0
	m.handle(OverrideRequested{Mode: policy.Heating, TemperatureC: &setpoint, TTL: time.Hour}, start)
	assert.Equal(t, policy.Heating, m.mode)
	assert.Equal(t, 24.0, fake.lastApply().TargetC)
	assert.True(t, m.Status().OverrideActive)

	// TTL elapsed: next evaluation reverts to automatic policy, and
	// indoor at the band high means heating stops
	later := start.Add(2 * time.Hour)
	m.handle(AutoEvaluate{}, later)
	assert.False(t, m.Status().OverrideActive)
	assert.Equal(t, policy.Idle, m.mode)
}

func TestOverrideCancelRevertsToAutomatic(t *testing.T) {
	m, _ := testMachine(t)

	m.handle(readingEvent(21, 15, start), start)
	m.handle(OverrideRequested{Mode: policy.Cooling}, start)
	require.Equal(t, policy.Cooling, m.mode)

	// min run time holds cooling right after cancel
	m.handle(OverrideCancelled{}, start.Add(time.Minute))
	assert.Equal(t, policy.Cooling, m.mode)

	// past the minimum: automatic policy releases it
	m.handle(AutoEvaluate{}, start.Add(15*time.Minute))
	assert.Equal(t, policy.Idle, m.mode)
}

func TestLatestOverrideWins(t *testing.T) {
	m, _ := testMachine(t)
	m.handle(readingEvent(21, 15, start), start)

	m.handle(OverrideRequested{Mode: policy.Heating}, start)
	require.Equal(t, policy.Heating, m.mode)

	// past the minimum run time, the newer override replaces the old
	m.handle(OverrideRequested{Mode: policy.Off}, start.Add(15*time.Minute))
	assert.Equal(t, policy.Off, m.mode)
	assert.Equal(t, policy.Off, m.Status().OverrideMode)
}

func TestBogusOverrideModeIsAbsorbed(t *testing.T) {
	m, _ := testMachine(t)

	m.handle(readingEvent(21, 15, start), start)
	require.Equal(t, policy.Idle, m.mode)
	records := len(m.History())

	// a malformed operator request is dropped and logged, never
	// escalated into the evaluator
	assert.NotPanics(t, func() {
		m.handle(OverrideRequested{Mode: policy.Evaluating}, start.Add(time.Minute))
	})
	assert.Equal(t, policy.Idle, m.mode)
	assert.Len(t, m.History(), records)
	assert.False(t, m.Status().OverrideActive)
}

func TestAdvisoryHintAdjustsTarget(t *testing.T) {
	m, fake := testMachine(t)

	m.handle(readingEvent(16, -5, start), start)
	require.Equal(t, policy.Heating, m.mode)

	m.handle(AdvisoryUpdated{SetpointC: 20}, start.Add(time.Minute))
	assert.Equal(t, policy.Heating, m.mode)
	assert.Equal(t, 20.0, fake.lastApply().TargetC)
}

func TestShutdownCommandsAllZonesOff(t *testing.T) {
	m, fake := testMachine(t)

	m.handle(readingEvent(16, -5, start), start)
	require.Equal(t, policy.Heating, m.mode)

	m.handle(Shutdown{}, start.Add(time.Minute))
	assert.Equal(t, policy.Off, m.mode)
	assert.Equal(t, 1, fake.offAlls)
	assert.True(t, m.Status().ShuttingDown)

	recs := m.History()
	last := recs[len(recs)-1]
	assert.Equal(t, policy.Off, last.To)
	assert.Equal(t, "shutdown", last.Trigger)
}

func TestTeardownRunsOnce(t *testing.T) {
	m, fake := testMachine(t)
	m.handle(readingEvent(16, -5, start), start)

	m.handle(Shutdown{}, start)
	m.teardown(start, "controller stopping")
	assert.Equal(t, 1, fake.offAlls)
}

func TestRunLoopProcessesSubmittedEvents(t *testing.T) {
	conf := &config.Config{}
	conf.ApplyDefaults()
	fake := &fakeCommander{}
	m := New(conf, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.NoError(t, m.Submit(readingEvent(16, -5, start)))

	require.Eventually(t, func() bool {
		return m.Status().Mode == policy.Heating
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Submit(Shutdown{}))
	require.Eventually(t, func() bool {
		return m.Status().ShuttingDown
	}, time.Second, 5*time.Millisecond)

	// post-shutdown submissions are rejected
	err := m.Submit(readingEvent(17, -5, start.Add(time.Minute)))
	assert.ErrorIs(t, err, ErrShuttingDown)

	cancel()
	<-done
	assert.Equal(t, 1, fake.offAlls)
}

func TestStopCommandsZonesOffAndSignalsDone(t *testing.T) {
	conf := &config.Config{}
	conf.ApplyDefaults()
	fake := &fakeCommander{}
	m := New(conf, fake)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	require.NoError(t, m.Submit(readingEvent(16, -5, start)))
	require.Eventually(t, func() bool {
		return m.Status().Mode == policy.Heating
	}, time.Second, 5*time.Millisecond)

	// stopping the controller still commands every zone off; Done
	// fires only after that dispatch has completed
	cancel()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("machine never signalled done")
	}
	assert.Equal(t, 1, fake.offAlls)
	assert.Equal(t, policy.Off, m.Status().Mode)
}

func TestRunLoopSerializesSubmissions(t *testing.T) {
	conf := &config.Config{}
	conf.ApplyDefaults()
	m := New(conf, &fakeCommander{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// five distinct readings submitted while the loop is consuming:
	// exactly one record each, in arrival order, no interleaving
	temps := []float64{16, 17, 18, 19, 20}
	for i, indoor := range temps {
		at := start.Add(time.Duration(i) * time.Minute)
		require.NoError(t, m.Submit(readingEvent(indoor, -5, at)))
	}

	require.Eventually(t, func() bool {
		return len(m.History()) == len(temps)
	}, time.Second, 5*time.Millisecond)

	recs := m.History()
	require.Len(t, recs, len(temps))
	for i, rec := range recs {
		assert.Equal(t, temps[i], rec.IndoorC, "record %d out of order", i)
		assert.NotEmpty(t, rec.Reasoning)
	}
}
