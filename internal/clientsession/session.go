// Package clientsession implements the client-facing FIX session state
// machine (spec §4.1). A Session is owned exclusively by the engine
// goroutine that also owns internal/router and internal/clientmanager;
// its methods are plain synchronous calls, not safe to invoke
// concurrently — the same ownership discipline internal/shared relies
// on. A Session does not do its own socket I/O: internal/clientmanager
// reads frames off the wire on a dedicated goroutine per connection and
// feeds them to the engine as events; a Session's Send method writes
// directly because only the engine goroutine ever calls it.
package clientsession

import (
	"math"
	"strconv"
	"time"

	"github.com/rjsadow/fixproxy/internal/errs"
	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/reqid"
	"github.com/rjsadow/fixproxy/internal/wire"
)

// State is one of the five states a client session moves through.
type State int

const (
	WaitingLogon State = iota
	WaitingCreateRoute
	Ready
	WaitingRemoveRoute
	Zombie
)

func (s State) String() string {
	switch s {
	case WaitingLogon:
		return "WaitingLogon"
	case WaitingCreateRoute:
		return "WaitingCreateRoute"
	case Ready:
		return "Ready"
	case WaitingRemoveRoute:
		return "WaitingRemoveRoute"
	case Zombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}

// validTransitions enumerates the state graph; any edge not present here
// is a programming error, logged and refused rather than silently taken.
var validTransitions = map[State][]State{
	WaitingLogon:       {WaitingCreateRoute, Zombie},
	WaitingCreateRoute: {Ready, WaitingRemoveRoute, Zombie},
	Ready:              {WaitingRemoveRoute, Zombie},
	WaitingRemoveRoute: {Zombie},
	Zombie:             {},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one client-facing FIX connection.
type Session struct {
	ID    uint64
	conn  wire.Conn
	State State

	Username   string
	StrategyID uint32

	// CompID is the peer's sender_comp_id, captured off the first message
	// received (spec §4.1 "On first message, captures header.sender_comp_id
	// as comp_id").
	CompID string

	outSeqNum uint64
	inSeqNum  uint64

	disableRemoveClOrdID bool

	// compID is the proxy's own identity as seen by clients (spec §4.2
	// "client.comp_id"): stamped as outbound SenderCompID and, when
	// non-empty, checked against an inbound Logon's target_comp_id.
	compID            string
	logonHeartbeatMin time.Duration
	logonHeartbeatMax time.Duration

	heartBtInt     time.Duration
	lastInbound    time.Time
	logonDeadline  time.Time
	reqIDGenerator *reqid.Generator

	pendingUserRequestID string
	userResponseDeadline time.Time
}

// Config carries the per-session knobs that come from the proxy's
// configuration rather than from the wire (spec §4.1 "fuses").
type Config struct {
	LogonTimeout         time.Duration
	UserResponseTimeout  time.Duration
	DisableRemoveClOrdID bool

	CompID string

	// LogonHeartbeatMin/Max bound the heart_bt_int an inbound Logon may
	// request (spec §4.1/§8 property #10). A zero LogonHeartbeatMax is
	// treated as unbounded.
	LogonHeartbeatMin time.Duration
	LogonHeartbeatMax time.Duration
}

// New creates a session in WaitingLogon, armed with a logon-timeout fuse.
func New(id uint64, conn wire.Conn, cfg Config, now time.Time, reqIDSeed uint64) *Session {
	return &Session{
		ID:                   id,
		conn:                 conn,
		State:                WaitingLogon,
		logonDeadline:        now.Add(cfg.LogonTimeout),
		disableRemoveClOrdID: cfg.DisableRemoveClOrdID,
		compID:               cfg.CompID,
		logonHeartbeatMin:    cfg.LogonHeartbeatMin,
		logonHeartbeatMax:    cfg.LogonHeartbeatMax,
		lastInbound:          now,
		reqIDGenerator:       reqid.NewGenerator(reqIDSeed),
	}
}

// transition moves the session to 'to', refusing (and logging, via the
// returned bool) any edge not present in validTransitions.
func (s *Session) transition(to State) bool {
	if !CanTransition(s.State, to) {
		return false
	}
	s.State = to
	return true
}

// Send stamps the standard header and writes m to the client.
func (s *Session) Send(m *fix.Message) error {
	s.outSeqNum++
	m.Header.MsgSeqNum = s.outSeqNum
	m.Header.SendingTime = time.Now()
	m.Header.SenderCompID = s.compID
	m.Header.TargetCompID = s.CompID
	return s.conn.WriteMessage(m)
}

// RemoteAddr identifies the underlying connection for logging.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

// Close tears down the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

// HandleLogon validates an inbound Logon and, if well formed, begins the
// authentication handshake by moving to WaitingCreateRoute. It enforces
// the session-local shape of the handshake (spec §4.1/§8 properties #9,
// #10): target_comp_id must match the configured comp_id when one is
// set, EncryptMethod must be None, reset_seq_num_flag must be Y, and
// heart_bt_int must fall within [logon_heartbeat_min, logon_heartbeat_max].
// The peer's sender_comp_id is captured as comp_id regardless of outcome
// (spec §4.1 "On first message, captures header.sender_comp_id"). The
// actual credential check happens in the router, which owns the user
// table. Every structural failure is reported as NotLoggedOn, mirroring
// the original implementation's flat Logon-rejection error surface.
func (s *Session) HandleLogon(m *fix.Message, now time.Time, userResponseTimeout time.Duration) (username, password string, ok bool, reason errs.Kind) {
	if s.State != WaitingLogon {
		return "", "", false, errs.NotLoggedOn
	}
	s.CompID = m.Header.SenderCompID

	if s.compID != "" && m.Header.TargetCompID != s.compID {
		return "", "", false, errs.NotLoggedOn
	}
	if encryptMethod, _ := m.Get(fix.TagEncryptMethod); encryptMethod != fix.EncryptMethodNone {
		return "", "", false, errs.NotLoggedOn
	}
	if resetFlag, _ := m.Get(fix.TagResetSeqNumFlag); resetFlag != "Y" {
		return "", "", false, errs.NotLoggedOn
	}
	heartBtIntRaw, _ := m.Get(fix.TagHeartBtInt)
	heartBtIntSec, err := strconv.Atoi(heartBtIntRaw)
	if err != nil {
		return "", "", false, errs.NotLoggedOn
	}
	heartBtInt := time.Duration(heartBtIntSec) * time.Second
	max := s.logonHeartbeatMax
	if max <= 0 {
		max = time.Duration(math.MaxInt64)
	}
	if heartBtInt < s.logonHeartbeatMin || heartBtInt > max {
		return "", "", false, errs.NotLoggedOn
	}

	username, _ = m.Get(fix.TagUsername)
	password, _ = m.Get(fix.TagPassword)
	if username == "" {
		return "", "", false, errs.NotLoggedOn
	}
	s.transition(WaitingCreateRoute)
	s.userResponseDeadline = now.Add(userResponseTimeout)
	return username, password, true, errs.Success
}

// CompleteLogon finishes the handshake after the router has accepted the
// credentials and bound the session to username: it moves to Ready and
// acknowledges with a Logon echo carrying the agreed heartbeat interval.
func (s *Session) CompleteLogon(username string, heartBtInt time.Duration) error {
	if !s.transition(Ready) {
		return errTransition(s.State, Ready)
	}
	s.Username = username
	s.heartBtInt = heartBtInt
	ack := fix.NewLogon(int(heartBtInt.Seconds()), "", "")
	return s.Send(ack)
}

// RejectLogon answers a failed handshake with a Logout carrying the
// symbolic reason and begins teardown.
func (s *Session) RejectLogon(kind errs.Kind) error {
	s.transition(WaitingRemoveRoute)
	return s.Send(fix.NewLogout(errs.Text(kind)))
}

// ValidateReqID reports whether m's request-id (if it carries one) is a
// well-formed base64-url-safe token (spec §4.1, invariant #9).
func ValidateReqID(m *fix.Message) (ok bool, kind fix.ReqIDKind) {
	rk, has := fix.ReqIDKindForMsgType(m.MsgType)
	if !has {
		return true, rk
	}
	v, _ := m.ReqID(rk)
	return reqid.ValidBase64WebSafe(v), rk
}

// orderEntryTypes carries requests that may inject or must reject a
// party-id block (spec §4.1 "Party-ID injection").
var orderEntryTypes = map[string]bool{
	fix.MsgTypeNewOrderSingle:            true,
	fix.MsgTypeOrderCancelReplaceRequest: true,
}

// ApplyPartyPolicy enforces the single-party injection rule: if m
// already carries a party block the peer supplied it explicitly and the
// proxy refuses the message; otherwise the proxy injects the
// authenticated identity as the sole party.
func (s *Session) ApplyPartyPolicy(m *fix.Message) error {
	if !orderEntryTypes[m.MsgType] {
		return nil
	}
	if m.HasParties() {
		return errKind(errs.UnsupportedPartyIDs)
	}
	m.SetSingleParty(fix.Party{
		ID:     strconv.Itoa(int(s.StrategyID)),
		Source: fix.PartyIDSourceProprietary,
		Role:   fix.PartyRoleClientID,
	})
	return nil
}

// NextOutboundReqID mints a fresh server-side request id for a message
// the router needs to forward under a new identity.
func (s *Session) NextOutboundReqID() string { return s.reqIDGenerator.Next() }

// Touch records that a frame was received, resetting the heartbeat
// supervision clock.
func (s *Session) Touch(now time.Time) { s.lastInbound = now }

// ObserveInboundSeqNum advances the expected inbound sequence number and
// reports whether seqNum was a gap or replay relative to it (spec §3
// invariant, §4.1, §7 "Sequence-number gap/replay"). This proxy does not
// attempt resend recovery: the counter always advances to the observed
// value and the message is still processed, with the anomaly left to the
// caller to log.
func (s *Session) ObserveInboundSeqNum(seqNum uint64) (gapOrReplay bool) {
	gapOrReplay = seqNum != s.inSeqNum+1
	s.inSeqNum = seqNum
	return gapOrReplay
}

// OverdueForHeartbeat reports whether the peer has gone silent for more
// than 2x the agreed heartbeat interval (MissingHeartbeat, spec §4.1).
func (s *Session) OverdueForHeartbeat(now time.Time) bool {
	if s.State != Ready || s.heartBtInt == 0 {
		return false
	}
	return now.Sub(s.lastInbound) > 2*s.heartBtInt
}

// LogonExpired reports whether the logon fuse has burned out while still
// waiting for an initial Logon.
func (s *Session) LogonExpired(now time.Time) bool {
	return s.State == WaitingLogon && now.After(s.logonDeadline)
}

// UserResponseExpired reports whether the router never answered the
// UserRequest this session is waiting on.
func (s *Session) UserResponseExpired(now time.Time) bool {
	return s.State == WaitingCreateRoute && now.After(s.userResponseDeadline)
}

// BeginTeardown moves a Ready session into WaitingRemoveRoute, e.g. on
// receipt of Logout or a fatal protocol error.
func (s *Session) BeginTeardown() bool { return s.transition(WaitingRemoveRoute) }

// FinishTeardown moves WaitingRemoveRoute to Zombie once the router has
// finished releasing this session's mappings.
func (s *Session) FinishTeardown() bool { return s.transition(Zombie) }

// Kill forces Zombie directly, used when the connection dies before the
// handshake completes.
func (s *Session) Kill() { s.State = Zombie }

func errKind(k errs.Kind) error { return &kindError{k} }

type kindError struct{ kind errs.Kind }

func (e *kindError) Error() string { return errs.Text(e.kind) }
func (e *kindError) Kind() errs.Kind { return e.kind }

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return "clientsession: illegal transition " + e.from.String() + " -> " + e.to.String()
}

func errTransition(from, to State) error { return &transitionError{from, to} }
