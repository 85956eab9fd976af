package serversession

import (
	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/wire"
)

// EventKind tags what happened on the upstream connection.
type EventKind int

const (
	EventInbound EventKind = iota
	EventDisconnect
)

// Event is a decoded occurrence on the upstream connection, handed to
// the engine loop the same way clientmanager.Event is.
type Event struct {
	Kind EventKind
	Msg  *fix.Message
	Err  error
}

// DialResult is the outcome of one reconnect attempt.
type DialResult struct {
	Conn wire.Conn
	Err  error
}

// Runner drives the blocking dial and read work for a Session off the
// engine goroutine, publishing results on channels the engine selects
// on — the same pattern internal/clientmanager uses for accepts.
type Runner struct {
	dial func() (wire.Conn, error)

	dialResults chan DialResult
	events      chan Event
	dialing     bool
}

// NewRunner wraps a dial function (typically wire.Dial bound to the
// configured upstream address).
func NewRunner(dial func() (wire.Conn, error)) *Runner {
	return &Runner{
		dial:        dial,
		dialResults: make(chan DialResult, 1),
		events:      make(chan Event, 256),
	}
}

// DialResults is the channel the engine reads reconnect outcomes from.
func (r *Runner) DialResults() <-chan DialResult { return r.dialResults }

// Events is the channel the engine reads decoded upstream frames and
// disconnects from.
func (r *Runner) Events() <-chan Event { return r.events }

// TriggerReconnect starts a dial attempt in the background if one is
// not already in flight. Safe to call every tick; it is a no-op while a
// dial is outstanding.
func (r *Runner) TriggerReconnect() {
	if r.dialing {
		return
	}
	r.dialing = true
	go func() {
		conn, err := r.dial()
		r.dialResults <- DialResult{Conn: conn, Err: err}
	}()
}

// DialSettled must be called by the engine after consuming a
// DialResult, clearing the in-flight flag so the next tick may retry.
func (r *Runner) DialSettled() { r.dialing = false }

// StartReading launches the reader goroutine for a freshly attached
// connection.
func (r *Runner) StartReading(conn wire.Conn) {
	go func() {
		for {
			msg, err := conn.ReadMessage()
			if err != nil {
				r.events <- Event{Kind: EventDisconnect, Err: err}
				return
			}
			r.events <- Event{Kind: EventInbound, Msg: msg}
		}
	}()
}
