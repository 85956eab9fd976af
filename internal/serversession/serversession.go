// Package serversession implements the single upstream FIX session the
// proxy maintains (spec §4.2). Unlike client sessions there is exactly
// one instance per proxy process; it auto-reconnects on disconnect and
// answers the upstream's own heartbeat supervision.
package serversession

import (
	"time"

	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/wire"
)

// State is one of the three states the upstream session moves through.
type State int

const (
	Disconnected State = iota
	LogonSent
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case LogonSent:
		return "LogonSent"
	case Ready:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Config carries the upstream connection's static parameters. SenderCompID,
// TargetCompID, Username and Password are four independent settings (spec
// §4.2): the first two stamp the FIX header on every outbound message, the
// latter two populate the Logon body.
type Config struct {
	Address        string
	SenderCompID   string
	TargetCompID   string
	Username       string
	Password       string
	HeartBtInt     time.Duration
	ReconnectDelay time.Duration
}

// Session is the proxy's single upstream connection.
type Session struct {
	cfg  Config
	conn wire.Conn

	State State

	outSeqNum uint64
	inSeqNum  uint64

	lastInbound      time.Time
	nextReconnectAt  time.Time
}

// New creates a disconnected upstream session.
func New(cfg Config) *Session {
	return &Session{cfg: cfg, State: Disconnected}
}

// NotReady is returned when a caller tries to forward a message while
// the upstream session is not in the Ready state (spec §4.2, NotReady).
type NotReady struct{ State State }

func (e *NotReady) Error() string { return "serversession: upstream not ready (" + e.State.String() + ")" }

// Attach installs a freshly dialed connection and sends the initial
// Logon, moving to LogonSent.
func (s *Session) Attach(conn wire.Conn, now time.Time) error {
	s.conn = conn
	s.State = LogonSent
	s.outSeqNum = 0
	s.inSeqNum = 0
	logon := fix.NewLogon(int(s.cfg.HeartBtInt.Seconds()), s.cfg.Username, s.cfg.Password)
	return s.send(logon)
}

// HandleLogon completes the handshake once the upstream answers Logon.
func (s *Session) HandleLogon(now time.Time) {
	if s.State == LogonSent {
		s.State = Ready
		s.lastInbound = now
	}
}

// Detach marks the session Disconnected and arms the reconnect backoff,
// used when the TCP connection drops or a fatal protocol error occurs.
func (s *Session) Detach(now time.Time) {
	s.State = Disconnected
	s.conn = nil
	s.nextReconnectAt = now.Add(s.cfg.ReconnectDelay)
}

// ShouldReconnect reports whether the backoff has elapsed.
func (s *Session) ShouldReconnect(now time.Time) bool {
	return s.State == Disconnected && !now.Before(s.nextReconnectAt)
}

// Forward sends m upstream, stamping the standard header. It refuses to
// send anything while not Ready.
func (s *Session) Forward(m *fix.Message) error {
	if s.State != Ready {
		return &NotReady{State: s.State}
	}
	return s.send(m)
}

func (s *Session) send(m *fix.Message) error {
	s.outSeqNum++
	m.Header.MsgSeqNum = s.outSeqNum
	m.Header.SenderCompID = s.cfg.SenderCompID
	m.Header.TargetCompID = s.cfg.TargetCompID
	return s.conn.WriteMessage(m)
}

// ObserveInboundSeqNum advances the expected inbound sequence number and
// reports whether seqNum was a gap or replay relative to it (spec §3
// invariant, §4.1, §7 "Sequence-number gap/replay"). The proxy does not
// attempt resend recovery: the counter always advances to the observed
// value and the message is still processed, with the anomaly left to the
// caller to log.
func (s *Session) ObserveInboundSeqNum(seqNum uint64) (gapOrReplay bool) {
	gapOrReplay = seqNum != s.inSeqNum+1
	s.inSeqNum = seqNum
	return gapOrReplay
}

// Touch records inbound traffic for heartbeat supervision.
func (s *Session) Touch(now time.Time) { s.lastInbound = now }

// Overdue reports whether the upstream has gone silent for more than 2x
// the agreed heartbeat interval.
func (s *Session) Overdue(now time.Time) bool {
	if s.State != Ready {
		return false
	}
	return now.Sub(s.lastInbound) > 2*s.cfg.HeartBtInt
}

// SendHeartbeat answers or originates a Heartbeat, echoing testReqID
// when answering a TestRequest.
func (s *Session) SendHeartbeat(testReqID string) error {
	return s.Forward(fix.NewHeartbeat(testReqID))
}
