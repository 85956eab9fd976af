package serversession

import (
	"testing"
	"time"

	"github.com/rjsadow/fixproxy/internal/fix"
)

type fakeConn struct {
	written []*fix.Message
}

func (f *fakeConn) ReadMessage() (*fix.Message, error) { return nil, nil }
func (f *fakeConn) WriteMessage(m *fix.Message) error  { f.written = append(f.written, m); return nil }
func (f *fakeConn) Close() error                       { return nil }
func (f *fakeConn) RemoteAddr() string                 { return "upstream:1" }

func TestForwardRefusesWhenNotReady(t *testing.T) {
	s := New(Config{HeartBtInt: 30 * time.Second, ReconnectDelay: time.Second})
	if err := s.Forward(fix.New(fix.MsgTypeNewOrderSingle)); err == nil {
		t.Fatal("expected NotReady error")
	}
}

func TestAttachHandleLogonForward(t *testing.T) {
	s := New(Config{HeartBtInt: 30 * time.Second, ReconnectDelay: time.Second, Username: "proxy"})
	conn := &fakeConn{}
	now := time.Unix(0, 0)
	if err := s.Attach(conn, now); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if s.State != LogonSent {
		t.Fatalf("state = %v, want LogonSent", s.State)
	}
	s.HandleLogon(now)
	if s.State != Ready {
		t.Fatalf("state = %v, want Ready", s.State)
	}
	if err := s.Forward(fix.New(fix.MsgTypeNewOrderSingle)); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(conn.written) != 2 {
		t.Fatalf("expected logon + forwarded message, got %d frames", len(conn.written))
	}
}

func TestAttachStampsSenderAndTargetCompID(t *testing.T) {
	s := New(Config{HeartBtInt: 30 * time.Second, ReconnectDelay: time.Second, SenderCompID: "PROXY", TargetCompID: "VENUE", Username: "proxy", Password: "secret"})
	conn := &fakeConn{}
	if err := s.Attach(conn, time.Unix(0, 0)); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(conn.written) != 1 {
		t.Fatalf("expected the initial Logon, got %d frames", len(conn.written))
	}
	logon := conn.written[0]
	if logon.Header.SenderCompID != "PROXY" || logon.Header.TargetCompID != "VENUE" {
		t.Fatalf("header = %+v, want SenderCompID=PROXY TargetCompID=VENUE", logon.Header)
	}
}

func TestObserveInboundSeqNum(t *testing.T) {
	s := New(Config{HeartBtInt: 30 * time.Second, ReconnectDelay: time.Second})
	if s.ObserveInboundSeqNum(1) {
		t.Fatal("first message should not be a gap")
	}
	if !s.ObserveInboundSeqNum(3) {
		t.Fatal("skipping a sequence number should be reported as a gap")
	}
}

func TestDetachArmsReconnectBackoff(t *testing.T) {
	s := New(Config{HeartBtInt: 30 * time.Second, ReconnectDelay: 5 * time.Second})
	now := time.Unix(0, 0)
	s.Attach(&fakeConn{}, now)
	s.HandleLogon(now)
	s.Detach(now)
	if s.State != Disconnected {
		t.Fatalf("state = %v, want Disconnected", s.State)
	}
	if s.ShouldReconnect(now.Add(time.Second)) {
		t.Fatal("should not reconnect before the backoff elapses")
	}
	if !s.ShouldReconnect(now.Add(5 * time.Second)) {
		t.Fatal("should reconnect once the backoff elapses")
	}
}

func TestOverdue(t *testing.T) {
	s := New(Config{HeartBtInt: 10 * time.Second, ReconnectDelay: time.Second})
	now := time.Unix(0, 0)
	s.Attach(&fakeConn{}, now)
	s.HandleLogon(now)
	if s.Overdue(now.Add(15 * time.Second)) {
		t.Fatal("should not be overdue before 2x heartbeat interval")
	}
	if !s.Overdue(now.Add(25 * time.Second)) {
		t.Fatal("should be overdue past 2x heartbeat interval")
	}
}
