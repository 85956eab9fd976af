// Package router is the translation hub sitting between the client
// manager and the single upstream server session (the original's
// "controller"). It owns the ten independent request-id translation
// tables, tracks order state by the server-side cl_ord_id, and performs
// credential validation against the shared user table. Like
// internal/clientsession, every exported method here assumes a single
// calling goroutine — the engine loop in internal/scheduler.
package router

import (
	"fmt"

	"github.com/rjsadow/fixproxy/internal/crypto"
	"github.com/rjsadow/fixproxy/internal/errs"
	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/shared"
)

// Route identifies which client session and which client-assigned id a
// server-side request id maps back to, and whether the mapping survives
// delivery of a single response (spec §3 "server_to_client: server_id →
// (session_id, client_id, keep_alive)").
type Route struct {
	SessionID   uint64
	ClientReqID string
	KeepAlive   bool
}

type routeKey struct {
	SessionID   uint64
	ClientReqID string
}

// reqIDTable is one bidirectional mapping for a single ReqIDKind.
type reqIDTable struct {
	serverToClient map[string]Route
	clientToServer map[routeKey]string
}

func newReqIDTable() *reqIDTable {
	return &reqIDTable{
		serverToClient: make(map[string]Route),
		clientToServer: make(map[routeKey]string),
	}
}

func (t *reqIDTable) insert(sessionID uint64, clientReqID, serverReqID string, keepAlive bool) {
	t.serverToClient[serverReqID] = Route{SessionID: sessionID, ClientReqID: clientReqID, KeepAlive: keepAlive}
	t.clientToServer[routeKey{sessionID, clientReqID}] = serverReqID
}

func (t *reqIDTable) lookupExistingServerID(sessionID uint64, clientReqID string) (string, bool) {
	v, ok := t.clientToServer[routeKey{sessionID, clientReqID}]
	return v, ok
}

func (t *reqIDTable) lookupRoute(serverReqID string) (Route, bool) {
	v, ok := t.serverToClient[serverReqID]
	return v, ok
}

// releaseEntry drops the single mapping serverReqID belongs to, both
// directions, used once a one-shot response has been delivered and on
// explicit terminal-status release of a cl_ord_id entry.
func (t *reqIDTable) releaseEntry(serverReqID string) {
	route, ok := t.serverToClient[serverReqID]
	if !ok {
		return
	}
	delete(t.serverToClient, serverReqID)
	delete(t.clientToServer, routeKey{route.SessionID, route.ClientReqID})
}

func (t *reqIDTable) releaseSession(sessionID uint64) {
	for k, serverID := range t.clientToServer {
		if k.SessionID == sessionID {
			delete(t.clientToServer, k)
			delete(t.serverToClient, serverID)
		}
	}
}

// Router holds all per-kind translation tables plus order state.
type Router struct {
	store     *shared.Store
	validator *crypto.Validator

	tables map[fix.ReqIDKind]*reqIDTable

	// orderState is keyed by the server-side cl_ord_id (the id the
	// upstream actually knows the order by).
	orderState           map[string]string
	disableRemoveClOrdID bool
}

// allKinds lists the ten independently tracked request-id families.
var allKinds = []fix.ReqIDKind{
	fix.ReqIDSecurity, fix.ReqIDSecurityStatus, fix.ReqIDTradSes, fix.ReqIDMarketData,
	fix.ReqIDOrdStatus, fix.ReqIDMassStatus, fix.ReqIDPosition, fix.ReqIDTradeRequest,
	fix.ReqIDClOrd, fix.ReqIDMassCancelClOrd,
}

// New builds a Router bound to store and validator. disableRemoveClOrdID
// mirrors the configuration flag that keeps terminal orders in the state
// map instead of releasing them (spec §4.4.c).
func New(store *shared.Store, validator *crypto.Validator, disableRemoveClOrdID bool) *Router {
	r := &Router{
		store:                store,
		validator:            validator,
		tables:               make(map[fix.ReqIDKind]*reqIDTable, len(allKinds)),
		orderState:           make(map[string]string),
		disableRemoveClOrdID: disableRemoveClOrdID,
	}
	for _, k := range allKinds {
		r.tables[k] = newReqIDTable()
	}
	return r
}

// Authenticate validates username/password (or rawData, for the HMAC
// methods) against the configured user table.
func (r *Router) Authenticate(username, password, rawData string) (shared.User, error) {
	user, ok := r.store.LookupUser(username)
	if !ok {
		return shared.User{}, kindErr(errs.InvalidUsername)
	}
	if !r.validator.Validate(password, user.Password, rawData) {
		return shared.User{}, kindErr(errs.InvalidPassword)
	}
	return user, nil
}

// BindSession registers sessionID as the authenticated holder of
// username, refusing a second concurrent session for the same user.
func (r *Router) BindSession(sessionID uint64, username string) bool {
	return r.store.BindSession(username, sessionID)
}

// TranslateOutbound returns the server-side request id to send upstream
// for (sessionID, clientReqID) under kind, minting a fresh one via mint
// if this is the first time this session has used that client id. The
// new mapping's keep_alive flag follows kind's fixed policy (spec §4.4.b).
func (r *Router) TranslateOutbound(kind fix.ReqIDKind, sessionID uint64, clientReqID string, mint func() string) string {
	t := r.tables[kind]
	if existing, ok := t.lookupExistingServerID(sessionID, clientReqID); ok {
		return existing
	}
	serverID := mint()
	t.insert(sessionID, clientReqID, serverID, fix.IsKeepAliveKind(kind))
	return serverID
}

// ResolveOrigClOrdID looks up the server-side id a client previously
// registered under clientOrigClOrdID, used by OrderCancelRequest and
// OrderCancelReplaceRequest to rewrite OrigClOrdID (spec §4.4.b — these
// reference a prior NewOrderSingle's cl_ord_id rather than minting one).
func (r *Router) ResolveOrigClOrdID(sessionID uint64, clientOrigClOrdID string) (string, bool) {
	return r.tables[fix.ReqIDClOrd].lookupExistingServerID(sessionID, clientOrigClOrdID)
}

// TranslateInbound reverses an upstream response's request id back to
// the originating client session and the client's own id for it. A
// one-shot mapping (keep_alive=false) is released once delivered (spec
// §4.4.b); cl_ord_id is excluded because its entry is long-lived across
// every ExecutionReport an order receives and is released only via
// ReleaseOrderRoute once the order reaches a terminal status.
func (r *Router) TranslateInbound(kind fix.ReqIDKind, serverReqID string) (Route, bool) {
	t := r.tables[kind]
	route, ok := t.lookupRoute(serverReqID)
	if !ok {
		return Route{}, false
	}
	if !route.KeepAlive && kind != fix.ReqIDClOrd {
		t.releaseEntry(serverReqID)
	}
	return route, true
}

// RecordOrderStatus updates the order-state map for a server-side
// cl_ord_id. It reports whether the entry was released because the
// status is terminal and removal is not disabled.
func (r *Router) RecordOrderStatus(serverClOrdID, status string) (removed bool) {
	r.orderState[serverClOrdID] = status
	if fix.IsTerminalOrdStatus(status) && !r.disableRemoveClOrdID {
		delete(r.orderState, serverClOrdID)
		return true
	}
	return false
}

// OrderStatus returns the last known status for a server-side cl_ord_id.
func (r *Router) OrderStatus(serverClOrdID string) (string, bool) {
	s, ok := r.orderState[serverClOrdID]
	return s, ok
}

// ReleaseOrderRoute drops the cl_ord_id req-id mapping for serverClOrdID.
// Called once RecordOrderStatus reports the order reached a terminal
// status: "cl_ord_id.server_to_client no longer contains the
// corresponding entry" (spec §4.4.c, S6) so a later OrderCancelRequest
// referencing it resolves to UNKNOWN_ORDER.
func (r *Router) ReleaseOrderRoute(serverClOrdID string) {
	r.tables[fix.ReqIDClOrd].releaseEntry(serverClOrdID)
}

// PendingRequest names a still-open keep-alive subscription a torn-down
// session leaves behind.
type PendingRequest struct {
	Kind        fix.ReqIDKind
	ServerReqID string
}

// ReleaseSession drops every request-id mapping owned by sessionID
// across all ten kinds, unbinds it from its username and marks it for
// the client manager's GC pass (spec §4.1 WaitingRemoveRoute teardown).
// It returns every keep_alive=true mapping sessionID still held, so the
// caller can best-effort cancel each one upstream before the mapping is
// gone (spec §4.4 "Per-session teardown", clause ii).
func (r *Router) ReleaseSession(sessionID uint64) []PendingRequest {
	var pending []PendingRequest
	for kind, t := range r.tables {
		for key, serverID := range t.clientToServer {
			if key.SessionID != sessionID {
				continue
			}
			if route, ok := t.serverToClient[serverID]; ok && route.KeepAlive {
				pending = append(pending, PendingRequest{Kind: kind, ServerReqID: serverID})
			}
		}
		t.releaseSession(sessionID)
	}
	r.store.UnbindSession(sessionID)
	r.store.MarkForRemoval(sessionID)
	return pending
}

func kindErr(k errs.Kind) error { return fmt.Errorf("%s", errs.Text(k)) }
