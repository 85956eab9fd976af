package router

import (
	"testing"
	"time"

	"github.com/rjsadow/fixproxy/internal/crypto"
	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/shared"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	store, err := shared.NewStore(map[string]shared.User{
		"alice": {Username: "alice", Password: "secret"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return New(store, crypto.NewValidator(crypto.Undefined, time.Second), false)
}

func TestAuthenticate(t *testing.T) {
	r := newTestRouter(t)
	if _, err := r.Authenticate("alice", "secret", ""); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if _, err := r.Authenticate("alice", "wrong", ""); err == nil {
		t.Fatal("expected failure for wrong password")
	}
	if _, err := r.Authenticate("bob", "anything", ""); err == nil {
		t.Fatal("expected failure for unknown username")
	}
}

func TestTranslateOutboundIsIdempotentPerSession(t *testing.T) {
	r := newTestRouter(t)
	n := 0
	mint := func() string { n++; return "srv-1" }

	first := r.TranslateOutbound(fix.ReqIDClOrd, 1, "client-a", mint)
	second := r.TranslateOutbound(fix.ReqIDClOrd, 1, "client-a", mint)
	if first != second {
		t.Fatalf("expected the same server id on repeat lookups, got %q then %q", first, second)
	}
	if n != 1 {
		t.Fatalf("mint should only be called once, called %d times", n)
	}
}

func TestTranslateInboundRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	mint := func() string { return "srv-42" }
	serverID := r.TranslateOutbound(fix.ReqIDMarketData, 5, "client-md-1", mint)

	route, ok := r.TranslateInbound(fix.ReqIDMarketData, serverID)
	if !ok || route.SessionID != 5 || route.ClientReqID != "client-md-1" {
		t.Fatalf("unexpected route: %+v, %v", route, ok)
	}
}

func TestReleaseSessionClearsAllKinds(t *testing.T) {
	r := newTestRouter(t)
	mint := func() string { return "srv-99" }
	serverID := r.TranslateOutbound(fix.ReqIDSecurity, 3, "client-sec", mint)

	r.ReleaseSession(3)

	if _, ok := r.TranslateInbound(fix.ReqIDSecurity, serverID); ok {
		t.Fatal("expected mapping to be released")
	}
}

func TestTranslateInboundReleasesOneShotMapping(t *testing.T) {
	r := newTestRouter(t)
	mint := func() string { return "srv-secstat-1" }
	serverID := r.TranslateOutbound(fix.ReqIDSecurityStatus, 7, "client-secstat-1", mint)

	if _, ok := r.TranslateInbound(fix.ReqIDSecurityStatus, serverID); !ok {
		t.Fatal("expected first delivery to succeed")
	}
	if _, ok := r.TranslateInbound(fix.ReqIDSecurityStatus, serverID); ok {
		t.Fatal("one-shot mapping must be released after delivery")
	}
}

func TestTranslateInboundKeepsClOrdIDMappingAcrossDeliveries(t *testing.T) {
	r := newTestRouter(t)
	mint := func() string { return "srv-ord-1" }
	serverID := r.TranslateOutbound(fix.ReqIDClOrd, 9, "client-ord-1", mint)

	if _, ok := r.TranslateInbound(fix.ReqIDClOrd, serverID); !ok {
		t.Fatal("expected New execution report to deliver")
	}
	if _, ok := r.TranslateInbound(fix.ReqIDClOrd, serverID); !ok {
		t.Fatal("cl_ord_id mapping must survive a non-terminal delivery for subsequent fills")
	}
	r.ReleaseOrderRoute(serverID)
	if _, ok := r.TranslateInbound(fix.ReqIDClOrd, serverID); ok {
		t.Fatal("expected mapping to be gone once ReleaseOrderRoute is called")
	}
}

func TestReleaseSessionReturnsPendingKeepAliveRequests(t *testing.T) {
	r := newTestRouter(t)
	mdID := r.TranslateOutbound(fix.ReqIDMarketData, 4, "client-md", func() string { return "srv-md" })
	r.TranslateOutbound(fix.ReqIDSecurity, 4, "client-sec", func() string { return "srv-sec" })
	r.TranslateOutbound(fix.ReqIDClOrd, 4, "client-ord", func() string { return "srv-ord" })

	pending := r.ReleaseSession(4)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending keep-alive requests (market data + security), got %+v", pending)
	}
	var gotMD bool
	for _, p := range pending {
		if p.Kind == fix.ReqIDMarketData {
			gotMD = true
			if p.ServerReqID != mdID {
				t.Fatalf("ServerReqID = %q, want %q", p.ServerReqID, mdID)
			}
		}
		if p.Kind == fix.ReqIDClOrd {
			t.Fatal("cl_ord_id is not a keep-alive kind and must not be reported for best-effort cancel")
		}
	}
	if !gotMD {
		t.Fatal("expected a pending market data request")
	}
}

func TestRecordOrderStatusReleasesOnTerminal(t *testing.T) {
	r := newTestRouter(t)
	if removed := r.RecordOrderStatus("srv-1", fix.OrdStatusNew); removed {
		t.Fatal("New should not be released")
	}
	if _, ok := r.OrderStatus("srv-1"); !ok {
		t.Fatal("expected order state to be tracked")
	}
	if removed := r.RecordOrderStatus("srv-1", fix.OrdStatusFilled); !removed {
		t.Fatal("Filled should release the entry")
	}
	if _, ok := r.OrderStatus("srv-1"); ok {
		t.Fatal("expected order state to be released after terminal status")
	}
}

func TestRecordOrderStatusKeepsTerminalWhenDisabled(t *testing.T) {
	store, _ := shared.NewStore(nil, nil)
	r := New(store, crypto.NewValidator(crypto.Undefined, time.Second), true)
	r.RecordOrderStatus("srv-1", fix.OrdStatusFilled)
	if _, ok := r.OrderStatus("srv-1"); !ok {
		t.Fatal("expected terminal order state to be retained when removal is disabled")
	}
}
