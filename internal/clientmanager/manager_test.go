package clientmanager

import (
	"testing"
	"time"

	"github.com/rjsadow/fixproxy/internal/clientsession"
	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/shared"
)

type fakeConn struct {
	msgs chan *fix.Message
}

func (f *fakeConn) ReadMessage() (*fix.Message, error) {
	m, ok := <-f.msgs
	if !ok {
		return nil, errClosed
	}
	return m, nil
}
func (f *fakeConn) WriteMessage(m *fix.Message) error { return nil }
func (f *fakeConn) Close() error                      { return nil }
func (f *fakeConn) RemoteAddr() string                { return "test:1" }

var errClosed = fmtErrorf("closed")

func fmtErrorf(s string) error { return &simpleErr{s} }

type simpleErr struct{ s string }

func (e *simpleErr) Error() string { return e.s }

func TestAdmitAndTick(t *testing.T) {
	store, _ := shared.NewStore(nil, nil)
	m := New(store, clientsession.Config{LogonTimeout: time.Millisecond, UserResponseTimeout: time.Second}, 1, 1)
	conn := &fakeConn{msgs: make(chan *fix.Message)}
	now := time.Unix(0, 0)

	s := m.Admit(conn, now)
	if _, ok := m.Get(s.ID); !ok {
		t.Fatal("expected session to be registered")
	}

	logonExpired, _, _ := m.Tick(now.Add(time.Second))
	if len(logonExpired) != 1 || logonExpired[0] != s.ID {
		t.Fatalf("expected session %d to be logon-expired, got %v", s.ID, logonExpired)
	}
	close(conn.msgs)
}

func TestGCDrainsPendingRemovals(t *testing.T) {
	store, _ := shared.NewStore(nil, nil)
	m := New(store, clientsession.Config{LogonTimeout: time.Second, UserResponseTimeout: time.Second}, 1, 1)
	conn := &fakeConn{msgs: make(chan *fix.Message)}
	s := m.Admit(conn, time.Unix(0, 0))

	store.MarkForRemoval(s.ID)
	m.GC()

	if _, ok := m.Get(s.ID); ok {
		t.Fatal("expected session to be removed after GC")
	}
	close(conn.msgs)
}
