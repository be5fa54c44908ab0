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

package haws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"hearth/pkg/logger"
)

// ---------- Types ----------
// SEE: https://developers.home-assistant.io/docs/api/websocket

// Message is the envelope for everything the server sends.
type Message struct {
	ID   int    `json:"id,omitempty"`
	Type string `json:"type"`

	// result type
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *CommandError   `json:"error,omitempty"`

	// event type
	Event json.RawMessage `json:"event,omitempty"`
}

type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is a parsed platform event
type Event struct {
	EventType string          `json:"event_type"`
	TimeFired time.Time       `json:"time_fired"`
	Data      json.RawMessage `json:"data"`
}

// EntityState is the state object carried by state_changed events
type EntityState struct {
	EntityID    string          `json:"entity_id"`
	State       string          `json:"state"`
	LastChanged time.Time       `json:"last_changed"`
	Attributes  json.RawMessage `json:"attributes,omitempty"`
}

// StateChange are the Event Data for "state_changed" events
type StateChange struct {
	EntityID string       `json:"entity_id"`
	NewState *EntityState `json:"new_state"`
	OldState *EntityState `json:"old_state"`
}

// Client manages websocket communication with the platform
type Client struct {
	url       string
	token     string
	conn      *websocket.Conn
	mu        sync.Mutex
	nextID    atomic.Int64
	onEvent   func(Event)
	retryWait time.Duration
	log       *logger.Logger
}

// ---------- Public API ----------

func NewClient(url, token string) *Client {
	return &Client{
		url:       url,
		token:     token,
		retryWait: 5 * time.Second,
		log:       logger.New("Platform  "),
	}
}

// OnEvent sets the callback invoked for every subscribed event
func (c *Client) OnEvent(fn func(Event)) {
	c.onEvent = fn
}

// SendCommand sends a raw command map to the platform, filling in the
// next message id. Returns the id used.
func (c *Client) SendCommand(msg map[string]any) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("client is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return 0, fmt.Errorf("not connected")
	}
	id := int(c.nextID.Add(1))
	msg["id"] = id
	return id, c.conn.WriteJSON(msg)
}

// CallService invokes a platform service against an entity, e.g.
// climate.set_temperature on climate.living_room.
func (c *Client) CallService(domain, service, entityID string, data map[string]any) error {
	_, err := c.SendCommand(map[string]any{
		"type":         "call_service",
		"domain":       domain,
		"service":      service,
		"service_data": data,
		"target":       map[string]any{"entity_id": entityID},
	})
	return err
}

// Connect dials the platform, authenticates, and subscribes to
// state_changed events. Safe to call repeatedly; a connected client
// is left alone. The socket stays open until Close is called; the
// owner decides when in the shutdown sequence that happens.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.log.Error("connect failed: %v (%v), retrying in %s", err, c.url, c.retryWait)
		return err
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close()
		return err
	}

	id := int(c.nextID.Add(1))
	err = conn.WriteJSON(map[string]any{
		"id":         id,
		"type":       "subscribe_events",
		"event_type": "state_changed",
	})
	if err != nil {
		c.log.Error("subscribe_events failed: %v", err)
		conn.Close()
		return err
	}

	c.conn = conn
	c.log.Info("Connected")
	return nil
}

// authenticate runs the auth_required/auth/auth_ok exchange.
func (c *Client) authenticate(conn *websocket.Conn) error {
	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected first message type %q", hello.Type)
	}

	err := conn.WriteJSON(map[string]any{
		"type":         "auth",
		"access_token": c.token,
	})
	if err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var resp Message
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	if resp.Type != "auth_ok" {
		return fmt.Errorf("auth rejected: %s", resp.Type)
	}
	return nil
}

// Close stops the client
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		tmpConn := c.conn
		c.conn = nil
		tmpConn.Close()
		c.log.Info("Closed")
	}
}

// ListenNext reads and dispatches one message. Callers loop on it and
// reconnect when it errors.
func (c *Client) ListenNext() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		c.mu.Lock()
		closed := c.conn == nil
		c.mu.Unlock()
		if closed {
			return nil // shutdown, not a failure
		}
		c.log.Error("ws ReadMessage: %v", err)
		return err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Error("Unmarshal of platform message: %v", err)
		return err
	}

	switch msg.Type {
	case "result":
		c.handleResult(msg)
		return nil

	case "event":
		c.handleEvent(msg)
		return nil

	default:
		c.log.Info("unhandled platform message type: %s", msg.Type)
		return nil
	}
}

// ---------- Internal ----------

func (c *Client) handleResult(msg Message) {
	if msg.Success {
		c.log.Debug("command %d succeeded", msg.ID)
		return
	}
	if msg.Error != nil {
		c.log.Error("command %d failed: %s: %s", msg.ID, msg.Error.Code, msg.Error.Message)
	} else {
		c.log.Error("command %d failed", msg.ID)
	}
}

func (c *Client) handleEvent(msg Message) {
	if c.onEvent == nil {
		return
	}
	var event Event
	if err := json.Unmarshal(msg.Event, &event); err != nil {
		c.log.Error("Unmarshal of platform Event: %v", err)
		return
	}
	c.onEvent(event)
}
