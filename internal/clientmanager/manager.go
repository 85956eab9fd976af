// Package clientmanager owns the set of live client sessions. It runs
// the accept loop and one reader goroutine per connection, translating
// raw I/O into events the engine goroutine (internal/scheduler)
// processes serially — the manager's own bookkeeping (the sessions map)
// is only ever touched from that one goroutine, via the Admit/Remove/Tick
// methods below, matching the ownership discipline described in
// internal/clientsession and internal/shared.
package clientmanager

import (
	"time"

	"github.com/rjsadow/fixproxy/internal/clientsession"
	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/shared"
	"github.com/rjsadow/fixproxy/internal/wire"
)

// EventKind tags what happened on a client connection.
type EventKind int

const (
	EventInbound EventKind = iota
	EventDisconnect
)

// Event is a decoded occurrence on one client session, handed to the
// engine loop for business-logic processing.
type Event struct {
	Kind      EventKind
	SessionID uint64
	Msg       *fix.Message
	Err       error
}

// Manager holds every live client Session, keyed by session id.
type Manager struct {
	store    *shared.Store
	cfg      clientsession.Config
	sessions map[uint64]*clientsession.Session

	newConns chan wire.Conn
	events   chan Event
}

// New creates an empty Manager. newConnsBuf and eventsBuf size the
// channels the accept loop and reader goroutines publish to.
func New(store *shared.Store, cfg clientsession.Config, newConnsBuf, eventsBuf int) *Manager {
	return &Manager{
		store:    store,
		cfg:      cfg,
		sessions: make(map[uint64]*clientsession.Session),
		newConns: make(chan wire.Conn, newConnsBuf),
		events:   make(chan Event, eventsBuf),
	}
}

// NewConns is the channel the accept loop publishes freshly dialed
// connections on. Only the engine goroutine should read from it.
func (m *Manager) NewConns() <-chan wire.Conn { return m.newConns }

// Events is the channel reader goroutines publish decoded frames and
// disconnects on. Only the engine goroutine should read from it.
func (m *Manager) Events() <-chan Event { return m.events }

// ListenAndServe runs the TCP accept loop until the listener is closed
// or ctx-driven shutdown closes it from the caller side. It never
// touches the sessions map directly — every accepted connection is
// handed to the engine via newConns.
func (m *Manager) ListenAndServe(ln *wire.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		m.newConns <- conn
	}
}

// Admit mints a session id, creates the Session and starts its reader
// goroutine. Must run on the engine goroutine.
func (m *Manager) Admit(conn wire.Conn, now time.Time) *clientsession.Session {
	id := m.store.NextSessionID()
	seed := id << 32
	s := clientsession.New(id, conn, m.cfg, now, seed)
	m.sessions[id] = s
	go m.readLoop(id, conn)
	return s
}

func (m *Manager) readLoop(id uint64, conn wire.Conn) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			m.events <- Event{Kind: EventDisconnect, SessionID: id, Err: err}
			return
		}
		m.events <- Event{Kind: EventInbound, SessionID: id, Msg: msg}
	}
}

// Get returns the session for id, if still live.
func (m *Manager) Get(id uint64) (*clientsession.Session, bool) {
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session from the live set (its connection is expected
// to already be closed by the caller).
func (m *Manager) Remove(id uint64) {
	delete(m.sessions, id)
}

// All returns every live session, for tick fan-out and GC.
func (m *Manager) All() map[uint64]*clientsession.Session { return m.sessions }

// Tick runs the per-session heartbeat and logon-fuse checks and returns
// the ids of sessions that must be torn down as a result.
func (m *Manager) Tick(now time.Time) (logonExpired, heartbeatLost, userResponseExpired []uint64) {
	for id, s := range m.sessions {
		switch {
		case s.LogonExpired(now):
			logonExpired = append(logonExpired, id)
		case s.UserResponseExpired(now):
			userResponseExpired = append(userResponseExpired, id)
		case s.OverdueForHeartbeat(now):
			heartbeatLost = append(heartbeatLost, id)
		}
	}
	return
}

// GC drains the shared store's pending-removal set and drops any
// corresponding sessions still present in the live map (spec §4.1,
// 1-second cleanup cadence).
func (m *Manager) GC() {
	for _, id := range m.store.DrainPendingRemovals() {
		if s, ok := m.sessions[id]; ok {
			s.Close()
			delete(m.sessions, id)
		}
	}
}
