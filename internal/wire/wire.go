// Package wire provides the concrete tag=value SOH-delimited transport
// the proxy's session packages read and write through. Byte-level
// framing is explicitly out of scope for the proxy's core logic
// (SPEC_FULL.md §0), so every package above this one depends only on
// the Conn interface, never on the encoding details in this file — this
// is the "external collaborator" boundary made concrete enough that
// cmd/fixproxyd has something real to dial and listen with.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rjsadow/fixproxy/internal/fix"
)

const soh = '\x01'

// Conn is the framed message stream a session reads from and writes to.
// Real connections are backed by TCPConn; tests use an in-memory pipe.
type Conn interface {
	ReadMessage() (*fix.Message, error)
	WriteMessage(*fix.Message) error
	Close() error
	RemoteAddr() string
}

// TCPConn implements Conn over a net.Conn using the tag=value codec.
type TCPConn struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewTCPConn wraps an already-established connection.
func NewTCPConn(conn net.Conn) *TCPConn {
	return &TCPConn{conn: conn, r: bufio.NewReader(conn)}
}

func (c *TCPConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
func (c *TCPConn) Close() error       { return c.conn.Close() }

// ReadMessage reads one SOH-delimited tag=value frame and decodes it.
func (c *TCPConn) ReadMessage() (*fix.Message, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return Decode(strings.TrimRight(line, "\r\n"))
}

// WriteMessage encodes m and writes it terminated by '\n' so ReadMessage
// can frame it back out on the other end.
func (c *TCPConn) WriteMessage(m *fix.Message) error {
	_, err := fmt.Fprintln(c.conn, Encode(m))
	return err
}

// SetDeadline forwards to the underlying connection.
func (c *TCPConn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// Encode renders m as an SOH-delimited tag=value string, computing
// BodyLength(9) and CheckSum(10) the way the FIX 4.4 wire format
// requires: BodyLength counts bytes from after tag 9's field to before
// tag 10's field; CheckSum is the mod-256 sum of all preceding bytes
// including trailing SOH, formatted as three zero-padded digits.
func Encode(m *fix.Message) string {
	var body strings.Builder
	writeField(&body, 35, m.MsgType)
	writeField(&body, fix.TagSenderCompID, m.Header.SenderCompID)
	writeField(&body, fix.TagTargetCompID, m.Header.TargetCompID)
	writeField(&body, fix.TagMsgSeqNum, strconv.FormatUint(m.Header.MsgSeqNum, 10))
	if !m.Header.SendingTime.IsZero() {
		writeField(&body, fix.TagSendingTime, m.Header.SendingTime.UTC().Format("20060102-15:04:05.000"))
	}
	for _, f := range m.Body {
		writeField(&body, f.Tag, f.Value)
	}

	bodyStr := body.String()
	var head strings.Builder
	writeField(&head, 8, "FIX.4.4")
	writeField(&head, 9, strconv.Itoa(len(bodyStr)))

	payload := head.String() + bodyStr
	sum := 0
	for i := 0; i < len(payload); i++ {
		sum += int(payload[i])
	}
	checksum := sum % 256

	return payload + fmt.Sprintf("10=%03d%c", checksum, soh)
}

func writeField(b *strings.Builder, tag int, value string) {
	b.WriteString(strconv.Itoa(tag))
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte(soh)
}

// Decode parses an SOH-delimited tag=value frame into a Message,
// verifying the CheckSum(10) trailer against the bytes it covers.
func Decode(frame string) (*fix.Message, error) {
	fields := strings.Split(frame, string(rune(soh)))
	m := &fix.Message{}

	var rawSum int
	var declaredChecksum = -1
	var bodyEnd = len(frame)

	for _, raw := range fields {
		if raw == "" {
			continue
		}
		eq := strings.IndexByte(raw, '=')
		if eq < 0 {
			return nil, fmt.Errorf("wire: malformed field %q", raw)
		}
		tagStr, value := raw[:eq], raw[eq+1:]
		tag, err := strconv.Atoi(tagStr)
		if err != nil {
			return nil, fmt.Errorf("wire: non-numeric tag %q", tagStr)
		}
		switch tag {
		case 8, 9:
			// BeginString / BodyLength: framing only, not surfaced on Message.
		case 10:
			declaredChecksum, err = strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("wire: non-numeric checksum %q", value)
			}
		case 35:
			m.MsgType = value
		case fix.TagSenderCompID:
			m.Header.SenderCompID = value
		case fix.TagTargetCompID:
			m.Header.TargetCompID = value
		case fix.TagMsgSeqNum:
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("wire: non-numeric MsgSeqNum %q", value)
			}
			m.Header.MsgSeqNum = n
		case fix.TagSendingTime:
			if ts, err := time.Parse("20060102-15:04:05.000", value); err == nil {
				m.Header.SendingTime = ts
			}
		default:
			m.Body = append(m.Body, fix.Field{Tag: tag, Value: value})
		}
	}

	if declaredChecksum == -1 {
		return nil, fmt.Errorf("wire: frame missing CheckSum(10)")
	}
	if idx := strings.LastIndex(frame, "10="); idx >= 0 {
		bodyEnd = idx
	}
	for i := 0; i < bodyEnd; i++ {
		rawSum += int(frame[i])
	}
	if rawSum%256 != declaredChecksum {
		return nil, fmt.Errorf("wire: checksum mismatch: got %03d want %03d", rawSum%256, declaredChecksum)
	}
	if m.MsgType == "" {
		return nil, fmt.Errorf("wire: frame missing MsgType(35)")
	}
	return m, nil
}

// Listener accepts raw TCP connections and hands back framed Conns.
type Listener struct {
	ln net.Listener
}

// Listen starts a TCP listener at addr.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next inbound connection.
func (l *Listener) Accept() (*TCPConn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewTCPConn(c), nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Dial connects to a remote FIX endpoint.
func Dial(addr string) (*TCPConn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPConn(c), nil
}

var _ io.Closer = (*TCPConn)(nil)
