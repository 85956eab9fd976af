package wire

import (
	"testing"

	"github.com/rjsadow/fixproxy/internal/fix"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := fix.New(fix.MsgTypeNewOrderSingle)
	m.Header.SenderCompID = "CLIENT1"
	m.Header.TargetCompID = "PROXY"
	m.Header.MsgSeqNum = 7
	m.Set(fix.TagClOrdID, "abc_01")
	m.Set(fix.TagSymbol, "BTC-USD")

	frame := Encode(m)
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.MsgType != m.MsgType {
		t.Errorf("MsgType = %q, want %q", got.MsgType, m.MsgType)
	}
	if got.Header.SenderCompID != "CLIENT1" || got.Header.TargetCompID != "PROXY" {
		t.Errorf("header mismatch: %+v", got.Header)
	}
	if got.Header.MsgSeqNum != 7 {
		t.Errorf("MsgSeqNum = %d, want 7", got.Header.MsgSeqNum)
	}
	clOrdID, ok := got.Get(fix.TagClOrdID)
	if !ok || clOrdID != "abc_01" {
		t.Errorf("ClOrdID = %q, %v; want abc_01, true", clOrdID, ok)
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	m := fix.New(fix.MsgTypeHeartbeat)
	frame := Encode(m)
	tampered := frame[:len(frame)-4] + "999\x01"
	if _, err := Decode(tampered); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestDecodeRejectsMissingMsgType(t *testing.T) {
	if _, err := Decode("8=FIX.4.4\x019=5\x0149=A\x0110=185\x01"); err == nil {
		t.Fatal("expected missing MsgType error")
	}
}
