// Package authfeed consumes the operator's live user-table feed over a
// websocket, mirroring the original auth session's Insert/Remove event
// shape (auth/session.hpp). Events are decoded here and handed to the
// engine loop as plain values — this package never touches
// internal/shared directly, preserving the single-writer discipline the
// rest of the engine relies on.
package authfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// EventKind distinguishes an insert from a remove.
type EventKind string

const (
	EventInsertUser EventKind = "insert_user"
	EventRemoveUser EventKind = "remove_user"
)

// Event is one decoded feed message.
type Event struct {
	Kind       EventKind
	Username   string
	Password   string
	Component  string
	StrategyID uint32
	Accounts   string
}

type wireEvent struct {
	Type       string `json:"type"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	Component  string `json:"component,omitempty"`
	StrategyID uint32 `json:"strategy_id,omitempty"`
	Accounts   string `json:"accounts,omitempty"`
}

// Config carries the feed endpoint and the bearer token used to
// authenticate the websocket upgrade.
type Config struct {
	URL           string
	BearerToken   string
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
}

// Client maintains the websocket connection to the auth feed and
// surfaces decoded events on a channel for the engine to consume.
type Client struct {
	cfg    Config
	events chan Event
}

// New creates a Client. Call Run in its own goroutine.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, events: make(chan Event, 64)}
}

// Events is the channel the engine reads decoded Insert/Remove events
// from.
func (c *Client) Events() <-chan Event { return c.events }

// Run dials the feed, validates the bearer token is well-formed, and
// streams decoded events until ctx is cancelled or the connection drops
// (the caller is responsible for retrying Run on error, matching the
// reconnect posture of internal/serversession).
func (c *Client) Run(ctx context.Context) error {
	if err := validateBearerShape(c.cfg.BearerToken); err != nil {
		return fmt.Errorf("authfeed: invalid bearer token: %w", err)
	}

	header := make(map[string][]string)
	header["Authorization"] = []string{"Bearer " + c.cfg.BearerToken}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("authfeed: dial: %w", err)
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if c.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("authfeed: read: %w", err)
		}
		var we wireEvent
		if err := json.Unmarshal(data, &we); err != nil {
			continue
		}
		ev, ok := decode(we)
		if !ok {
			continue
		}
		c.events <- ev
	}
}

func decode(we wireEvent) (Event, bool) {
	switch we.Type {
	case string(EventInsertUser):
		return Event{
			Kind: EventInsertUser, Username: we.Username, Password: we.Password,
			Component: we.Component, StrategyID: we.StrategyID, Accounts: we.Accounts,
		}, true
	case string(EventRemoveUser):
		return Event{Kind: EventRemoveUser, Username: we.Username}, true
	default:
		return Event{}, false
	}
}

// validateBearerShape performs a structural parse of the bearer token
// (three-part JWT) without verifying a signature — the feed's own
// server is the signature's verifier; the proxy only needs to catch a
// misconfigured, obviously-malformed token before dialing.
func validateBearerShape(token string) error {
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	return err
}
