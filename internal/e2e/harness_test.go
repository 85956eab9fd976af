package e2e

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rjsadow/fixproxy/internal/clientmanager"
	"github.com/rjsadow/fixproxy/internal/clientsession"
	"github.com/rjsadow/fixproxy/internal/crypto"
	"github.com/rjsadow/fixproxy/internal/fix"
	"github.com/rjsadow/fixproxy/internal/ratelimit"
	"github.com/rjsadow/fixproxy/internal/router"
	"github.com/rjsadow/fixproxy/internal/scheduler"
	"github.com/rjsadow/fixproxy/internal/serversession"
	"github.com/rjsadow/fixproxy/internal/shared"
	"github.com/rjsadow/fixproxy/internal/wire"
)

// harness wires a real proxy engine between a real upstream listener and
// a real client-facing listener, both on loopback ephemeral ports, so
// scenario specs can drive the system the way an actual client and
// upstream would rather than reaching into engine internals.
type harness struct {
	clientAddr   string
	upstreamLn   *wire.Listener
	cancel       context.CancelFunc
	done         chan struct{}
	upstreamConn chan wire.Conn
}

func startHarness(users map[string]shared.User) (*harness, error) {
	upstreamLn, err := wire.Listen("127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	clientLn, err := wire.Listen("127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	store, err := shared.NewStore(users, nil)
	if err != nil {
		return nil, err
	}
	rt := router.New(store, crypto.NewValidator(crypto.Undefined, time.Second), false)
	clients := clientmanager.New(store, clientsession.Config{
		LogonTimeout:        2 * time.Second,
		UserResponseTimeout: 2 * time.Second,
	}, 8, 64)
	limiter := ratelimit.New(1000, 1000, time.Minute)

	server := serversession.New(serversession.Config{
		Username:       "proxy",
		HeartBtInt:     30 * time.Second,
		ReconnectDelay: 50 * time.Millisecond,
	})
	runner := serversession.NewRunner(func() (wire.Conn, error) {
		return wire.Dial(upstreamLn.Addr().String())
	})

	upstreamConns := make(chan wire.Conn, 1)
	go func() {
		conn, err := upstreamLn.Accept()
		if err == nil {
			upstreamConns <- conn
		}
	}()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := scheduler.New(log, store, rt, clients, limiter, server, runner, nil, clientLn, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(ctx)
	}()

	return &harness{
		clientAddr:   clientLn.Addr().String(),
		upstreamLn:   upstreamLn,
		cancel:       cancel,
		done:         done,
		upstreamConn: upstreamConns,
	}, nil
}

func (h *harness) stop() {
	h.cancel()
	h.upstreamLn.Close()
	<-h.done
}

// acceptUpstream waits for the proxy to dial the fake upstream and
// answers its Logon, completing the upstream handshake the way a real
// venue would.
func (h *harness) acceptUpstream(timeout time.Duration) (wire.Conn, error) {
	select {
	case conn := <-h.upstreamConn:
		if _, err := readWithTimeout(conn, timeout); err != nil { // consume the proxy's Logon
			return nil, err
		}
		if err := conn.WriteMessage(fix.NewLogon(30, "", "")); err != nil {
			return nil, err
		}
		return conn, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out waiting for proxy to dial upstream")
	}
}

func readWithTimeout(conn wire.Conn, d time.Duration) (*fix.Message, error) {
	type result struct {
		msg *fix.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := conn.ReadMessage()
		ch <- result{m, err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-time.After(d):
		return nil, fmt.Errorf("timed out waiting for a frame")
	}
}
