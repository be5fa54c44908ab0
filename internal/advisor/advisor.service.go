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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hearth/internal/config"
	"hearth/internal/machine"
	"hearth/pkg/logger"
)

// Submitter is the machine boundary advisory hints are fed through.
type Submitter interface {
	Submit(machine.Event) error
}

// Service polls an external advisory endpoint for a recommended
// setpoint and forwards it as a hint. Hints are advice, not commands:
// a dead or garbled advisor degrades the system to configured
// setpoints and nothing more.
type Service struct {
	conf    config.AdvisorConfig
	machine Submitter
	client  *http.Client
	log     *logger.Logger
}

type advice struct {
	SetpointC float64 `json:"setpoint_c"`
}

func New(conf *config.Config, m Submitter) *Service {
	return &Service{
		conf:    conf.Advisor,
		machine: m,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     logger.New("Advisor "),
	}
}

func (s *Service) Run(ctx context.Context) {
	if s.conf.Addr == "" {
		s.log.Info("no advisor addr configured, not running")
		return
	}
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	interval := time.Duration(s.conf.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	hint, err := s.fetch(ctx)
	if err != nil {
		s.log.Error("fetch advisory: %v", err)
		return
	}
	err = s.machine.Submit(machine.AdvisoryUpdated{SetpointC: hint.SetpointC})
	switch {
	case err == nil:
		s.log.Debug("advised setpoint %.1f°C", hint.SetpointC)
	case errors.Is(err, machine.ErrShuttingDown):
		// expected during shutdown
	default:
		s.log.Error("submit advisory: %v", err)
	}
}

func (s *Service) fetch(ctx context.Context) (advice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.conf.Addr, nil)
	if err != nil {
		return advice{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return advice{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return advice{}, fmt.Errorf("advisor returned status %d", resp.StatusCode)
	}

	var a advice
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return advice{}, fmt.Errorf("failed to decode advisory: %w", err)
	}
	return a, nil
}
