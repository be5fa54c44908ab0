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

package advisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/config"
	"hearth/internal/machine"
)

type fakeSubmitter struct {
	events []machine.Event
}

func (f *fakeSubmitter) Submit(ev machine.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func testService(addr string, fake *fakeSubmitter) *Service {
	conf := &config.Config{}
	conf.ApplyDefaults()
	conf.Advisor.Addr = addr
	return New(conf, fake)
}

func TestPollSubmitsHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"setpoint_c": 20.5}`))
	}))
	defer srv.Close()

	fake := &fakeSubmitter{}
	s := testService(srv.URL, fake)

	s.poll(context.Background())
	require.Len(t, fake.events, 1)
	hint, ok := fake.events[0].(machine.AdvisoryUpdated)
	require.True(t, ok)
	assert.Equal(t, 20.5, hint.SetpointC)
}

func TestPollToleratesBadResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fake := &fakeSubmitter{}
	s := testService(srv.URL, fake)

	s.poll(context.Background())
	assert.Empty(t, fake.events)

	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`setpoint: twenty`))
	}))
	defer garbled.Close()

	s = testService(garbled.URL, fake)
	s.poll(context.Background())
	assert.Empty(t, fake.events)
}

func TestRunWithoutAddrReturns(t *testing.T) {
	fake := &fakeSubmitter{}
	conf := &config.Config{}
	conf.ApplyDefaults()
	s := New(conf, fake)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately with no addr configured")
	}
}
