// Package scheduler is the proxy's single engine goroutine: a 100ms
// periodic tick fanned out to the upstream session and the client
// manager, interleaved with the events those components and the auth
// feed publish on channels (spec §4.3, §5). Every piece of mutable state
// this package touches — internal/shared, internal/router,
// internal/clientmanager's session map, internal/serversession's FSM —
// is owned exclusively by the goroutine running Engine.Run, so none of
// it needs a mutex.
package scheduler

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rjsadow/fixproxy/internal/authfeed"
	"github.com/rjsadow/fixproxy/internal/capture"
	"github.com/rjsadow/fixproxy/internal/clientmanager"
	"github.com/rjsadow/fixproxy/internal/clientsession"
	"github.com/rjsadow/fixproxy/internal/errs"
	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/ratelimit"
	"github.com/rjsadow/fixproxy/internal/router"
	"github.com/rjsadow/fixproxy/internal/serversession"
	"github.com/rjsadow/fixproxy/internal/shared"
	"github.com/rjsadow/fixproxy/internal/wire"
)

const (
	tickInterval = 100 * time.Millisecond
	gcInterval   = time.Second
)

// Engine wires the proxy's core components together and drives them
// from a single select loop.
type Engine struct {
	log *slog.Logger

	store   *shared.Store
	router  *router.Router
	clients *clientmanager.Manager
	limiter *ratelimit.Limiter
	server  *serversession.Session
	runner  *serversession.Runner

	authFeed *authfeed.Client

	listener *wire.Listener

	onAuditEvent func(sessionID uint64, username, kind, detail string, at time.Time)
	frames       *capture.Store

	lastGC time.Time
}

// New builds an Engine. onAuditEvent and frames may be nil; when set,
// onAuditEvent is called for every notable session lifecycle transition
// (spec-supplemented audit logging, SPEC_FULL.md §2) and frames archives
// every inbound client frame and every upstream response routed to a
// client. Frames the proxy itself sends to a client (Logon ack, Logout,
// Heartbeat, BusinessMessageReject) are not archived.
func New(
	log *slog.Logger,
	store *shared.Store,
	rt *router.Router,
	clients *clientmanager.Manager,
	limiter *ratelimit.Limiter,
	server *serversession.Session,
	runner *serversession.Runner,
	feed *authfeed.Client,
	listener *wire.Listener,
	onAuditEvent func(sessionID uint64, username, kind, detail string, at time.Time),
	frames *capture.Store,
) *Engine {
	return &Engine{
		log: log, store: store, router: rt, clients: clients, limiter: limiter,
		server: server, runner: runner, authFeed: feed, listener: listener,
		onAuditEvent: onAuditEvent, frames: frames,
	}
}

func (e *Engine) audit(sessionID uint64, username, kind, detail string, at time.Time) {
	if e.onAuditEvent != nil {
		e.onAuditEvent(sessionID, username, kind, detail, at)
	}
}

func (e *Engine) captureFrame(sessionID uint64, dir capture.Direction, m *fix.Message, at time.Time) {
	if e.frames == nil {
		return
	}
	if err := e.frames.Save(context.Background(), sessionID, dir, at, []byte(wire.Encode(m))); err != nil {
		e.log.Warn("frame capture failed", "error", err)
	}
}

// Run drives the engine until ctx is cancelled or a SIGINT/SIGTERM
// arrives.
func (e *Engine) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go e.clients.ListenAndServe(e.listener)
	if e.authFeed != nil {
		go func() {
			if err := e.authFeed.Run(ctx); err != nil && ctx.Err() == nil {
				e.log.Warn("authfeed disconnected", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var authEvents <-chan authfeed.Event
	if e.authFeed != nil {
		authEvents = e.authFeed.Events()
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Info("scheduler stopping")
			return nil

		case now := <-ticker.C:
			e.onTick(now)

		case conn := <-e.clients.NewConns():
			e.onAccept(conn, time.Now())

		case ev := <-e.clients.Events():
			e.onClientEvent(ev, time.Now())

		case res := <-e.runner.DialResults():
			e.onServerDialResult(res, time.Now())

		case ev := <-e.runner.Events():
			e.onServerEvent(ev, time.Now())

		case ev, ok := <-authEvents:
			if ok {
				e.onAuthFeedEvent(ev)
			}
		}
	}
}

func (e *Engine) onTick(now time.Time) {
	if e.limiter != nil {
		e.limiter.Cleanup(now)
	}

	if e.server.ShouldReconnect(now) {
		e.runner.TriggerReconnect()
	}
	if e.server.State != serversession.Disconnected {
		if e.server.Overdue(now) {
			e.log.Warn("upstream heartbeat missing, disconnecting")
			e.server.Detach(now)
		}
	}

	logonExpired, heartbeatLost, userResponseExpired := e.clients.Tick(now)
	for _, id := range logonExpired {
		e.teardown(id, errs.NoLogon, now)
	}
	for _, id := range userResponseExpired {
		e.teardown(id, errs.UserResponseTimeout, now)
	}
	for _, id := range heartbeatLost {
		e.teardown(id, errs.MissingHeartbeat, now)
	}

	if now.Sub(e.lastGC) >= gcInterval {
		e.clients.GC()
		e.lastGC = now
	}
}

func (e *Engine) onAccept(conn wire.Conn, now time.Time) {
	if e.limiter != nil && !e.limiter.Allow(conn.RemoteAddr(), now) {
		conn.Close()
		return
	}
	s := e.clients.Admit(conn, now)
	e.audit(s.ID, "", "session_created", conn.RemoteAddr(), now)
}

func (e *Engine) onClientEvent(ev clientmanager.Event, now time.Time) {
	sess, ok := e.clients.Get(ev.SessionID)
	if !ok {
		return
	}
	switch ev.Kind {
	case clientmanager.EventDisconnect:
		e.teardown(ev.SessionID, errs.Goodbye, now)
	case clientmanager.EventInbound:
		sess.Touch(now)
		if sess.ObserveInboundSeqNum(ev.Msg.Header.MsgSeqNum) {
			e.log.Warn("client inbound sequence gap or replay",
				"session_id", ev.SessionID, "msg_seq_num", ev.Msg.Header.MsgSeqNum)
		}
		e.captureFrame(ev.SessionID, capture.DirectionInbound, ev.Msg, now)
		e.handleClientMessage(sess, ev.Msg, now)
	}
}

func (e *Engine) handleClientMessage(sess *clientsession.Session, m *fix.Message, now time.Time) {
	switch {
	case m.MsgType == fix.MsgTypeLogon && sess.State == clientsession.WaitingLogon:
		e.handleLogon(sess, m, now)
		return
	case sess.State != clientsession.Ready:
		return
	}

	switch m.MsgType {
	case fix.MsgTypeHeartbeat:
		// peer answering our TestRequest; Touch above already recorded it.
	case fix.MsgTypeTestRequest:
		id, _ := m.Get(fix.TagTestReqID)
		sess.Send(fix.NewHeartbeat(id))
	case fix.MsgTypeLogout:
		e.teardown(sess.ID, errs.Goodbye, now)
	case fix.MsgTypeTradingSessionStatusRequest:
		reqID, _ := m.Get(fix.TagTradSesReqID)
		sess.Send(fix.NewBusinessMessageReject(m.MsgType, reqID, errs.Text(errs.UnsupportedMessageType)))
	default:
		e.forwardToUpstream(sess, m, now)
	}
}

func (e *Engine) handleLogon(sess *clientsession.Session, m *fix.Message, now time.Time) {
	username, password, ok, reason := sess.HandleLogon(m, now, 5*time.Second)
	if !ok {
		e.teardown(sess.ID, reason, now)
		return
	}
	rawData, _ := m.Get(fix.TagRawData)
	user, err := e.router.Authenticate(username, password, rawData)
	if err != nil {
		sess.RejectLogon(errs.InvalidPassword)
		e.store.MarkForRemoval(sess.ID)
		return
	}
	if !e.router.BindSession(sess.ID, username) {
		sess.RejectLogon(errs.AlreadyLoggedOn)
		e.store.MarkForRemoval(sess.ID)
		return
	}
	sess.StrategyID = user.StrategyID
	heartBtInt := 30 * time.Second
	if v, ok := m.Get(fix.TagHeartBtInt); ok && v != "" {
		// best-effort echo of the peer's requested interval; malformed
		// values keep the default rather than failing the handshake.
		if secs, err := time.ParseDuration(v + "s"); err == nil {
			heartBtInt = secs
		}
	}
	if err := sess.CompleteLogon(username, heartBtInt); err != nil {
		e.teardown(sess.ID, errs.Unknown, now)
		return
	}
	e.audit(sess.ID, username, "session_logged_on", "", now)
}

// reqIDInvalidKind maps a request-id kind to the symbolic business-reject
// reason reported when that kind's req-id fails shape validation (spec
// §4.1; internal/errs defines one INVALID_*_ID per kind).
var reqIDInvalidKind = map[fix.ReqIDKind]errs.Kind{
	fix.ReqIDSecurity:        errs.InvalidSecurityReqID,
	fix.ReqIDSecurityStatus:  errs.InvalidSecurityStatusReqID,
	fix.ReqIDTradSes:         errs.InvalidTradSesReqID,
	fix.ReqIDMarketData:      errs.InvalidMDReqID,
	fix.ReqIDOrdStatus:       errs.InvalidOrdStatusReqID,
	fix.ReqIDMassStatus:      errs.InvalidMassStatusReqID,
	fix.ReqIDPosition:        errs.InvalidPosReqID,
	fix.ReqIDTradeRequest:    errs.InvalidTradeRequestID,
	fix.ReqIDClOrd:           errs.InvalidClOrdID,
	fix.ReqIDMassCancelClOrd: errs.InvalidMassCancelClOrdID,
}

// forwardToUpstream carries a message through the router's req-id
// translation before handing it to the upstream session.
func (e *Engine) forwardToUpstream(sess *clientsession.Session, m *fix.Message, now time.Time) {
	if ok, kind := clientsession.ValidateReqID(m); !ok {
		reason, known := reqIDInvalidKind[kind]
		if !known {
			reason = errs.InvalidClOrdID
		}
		e.rejectBusiness(sess, m, reason)
		return
	}
	if err := sess.ApplyPartyPolicy(m); err != nil {
		e.rejectBusiness(sess, m, errs.UnsupportedPartyIDs)
		return
	}

	if kind, has := fix.ReqIDKindForMsgType(m.MsgType); has {
		clientReqID, _ := m.ReqID(kind)
		serverReqID := e.router.TranslateOutbound(kind, sess.ID, clientReqID, sess.NextOutboundReqID)
		m.SetReqID(kind, serverReqID)

		if fix.IsCancelLike(m.MsgType) {
			if orig, ok := m.Get(fix.TagOrigClOrdID); ok {
				if serverOrig, found := e.router.ResolveOrigClOrdID(sess.ID, orig); found {
					m.Set(fix.TagOrigClOrdID, serverOrig)
				} else {
					e.rejectBusiness(sess, m, errs.UnknownOrder)
					return
				}
			}
		}
	}

	if err := e.server.Forward(m); err != nil {
		e.rejectBusiness(sess, m, errs.NotReady)
	}
}

func (e *Engine) rejectBusiness(sess *clientsession.Session, m *fix.Message, kind errs.Kind) {
	ref, _ := fix.ReqIDKindForMsgType(m.MsgType)
	refID, _ := m.ReqID(ref)
	sess.Send(fix.NewBusinessMessageReject(m.MsgType, refID, errs.Text(kind)))
}

func (e *Engine) onServerDialResult(res serversession.DialResult, now time.Time) {
	e.runner.DialSettled()
	if res.Err != nil {
		e.log.Warn("upstream dial failed", "error", res.Err)
		e.server.Detach(now)
		return
	}
	if err := e.server.Attach(res.Conn, now); err != nil {
		e.log.Warn("upstream attach failed", "error", err)
		e.server.Detach(now)
		return
	}
	e.runner.StartReading(res.Conn)
}

func (e *Engine) onServerEvent(ev serversession.Event, now time.Time) {
	if ev.Kind == serversession.EventDisconnect {
		e.server.Detach(now)
		return
	}
	e.server.Touch(now)
	m := ev.Msg
	if e.server.ObserveInboundSeqNum(m.Header.MsgSeqNum) {
		e.log.Warn("upstream inbound sequence gap or replay", "msg_seq_num", m.Header.MsgSeqNum)
	}
	switch m.MsgType {
	case fix.MsgTypeLogon:
		e.server.HandleLogon(now)
	case fix.MsgTypeTestRequest:
		id, _ := m.Get(fix.TagTestReqID)
		e.server.SendHeartbeat(id)
	case fix.MsgTypeExecutionReport:
		e.deliverExecutionReport(m, now)
	default:
		e.deliverByReqID(m, now)
	}
}

func (e *Engine) deliverExecutionReport(m *fix.Message, now time.Time) {
	serverClOrdID, _ := m.Get(fix.TagClOrdID)
	status, _ := m.Get(fix.TagOrdStatus)
	removed := e.router.RecordOrderStatus(serverClOrdID, status)

	route, ok := e.router.TranslateInbound(fix.ReqIDClOrd, serverClOrdID)
	if !ok {
		e.log.Warn("undeliverable execution report", "server_cl_ord_id", serverClOrdID)
		return
	}
	sess, ok := e.clients.Get(route.SessionID)
	if !ok {
		return
	}
	m.SetReqID(fix.ReqIDClOrd, route.ClientReqID)
	sess.Send(m)
	e.captureFrame(route.SessionID, capture.DirectionOutbound, m, now)
	if removed {
		e.router.ReleaseOrderRoute(serverClOrdID)
		e.audit(route.SessionID, sess.Username, "order_terminal", status, now)
	}
}

func (e *Engine) deliverByReqID(m *fix.Message, now time.Time) {
	kind, has := fix.ReqIDKindForMsgType(m.MsgType)
	if !has {
		e.log.Warn("dropping undeliverable message with no req-id kind", "msg_type", m.MsgType)
		return
	}
	serverReqID, _ := m.ReqID(kind)
	route, ok := e.router.TranslateInbound(kind, serverReqID)
	if !ok {
		e.log.Warn("undeliverable response", "kind", kind.String(), "server_req_id", serverReqID)
		return
	}
	sess, ok := e.clients.Get(route.SessionID)
	if !ok {
		return
	}
	m.SetReqID(kind, route.ClientReqID)
	sess.Send(m)
	e.captureFrame(route.SessionID, capture.DirectionOutbound, m, now)
}

func (e *Engine) onAuthFeedEvent(ev authfeed.Event) {
	switch ev.Kind {
	case authfeed.EventInsertUser:
		e.store.UpsertUser(shared.User{
			Username: ev.Username, Password: ev.Password, Component: ev.Component,
			StrategyID: ev.StrategyID, Accounts: ev.Accounts,
		})
	case authfeed.EventRemoveUser:
		e.store.DeleteUser(ev.Username)
	}
}

// teardown moves a session through WaitingRemoveRoute to Zombie,
// releasing its router state and marking it for the client manager's GC
// pass (spec §4.1, §4.4.d).
func (e *Engine) teardown(sessionID uint64, reason errs.Kind, now time.Time) {
	sess, ok := e.clients.Get(sessionID)
	if !ok {
		e.cancelPending(e.router.ReleaseSession(sessionID))
		return
	}
	if sess.State == clientsession.Ready || sess.State == clientsession.WaitingCreateRoute {
		sess.BeginTeardown()
		sess.Send(fix.NewLogout(errs.Text(reason)))
		sess.FinishTeardown()
	} else {
		sess.Kill()
	}
	e.audit(sessionID, sess.Username, "session_terminated", errs.Text(reason), now)
	e.cancelPending(e.router.ReleaseSession(sessionID))
}

// cancelPending issues a best-effort upstream cancel for every keep-alive
// subscription a torn-down session leaves open (spec §4.4 "Per-session
// teardown"). Failures are logged, not retried: the upstream may already
// be gone, and nothing downstream is waiting on the reply.
func (e *Engine) cancelPending(pending []router.PendingRequest) {
	for _, p := range pending {
		cancel := fix.NewBestEffortCancel(p.Kind, p.ServerReqID)
		if cancel == nil {
			continue
		}
		if err := e.server.Forward(cancel); err != nil {
			e.log.Warn("best-effort upstream cancel failed", "kind", p.Kind.String(), "server_req_id", p.ServerReqID, "error", err)
		}
	}
}
