package ratelimit

import (
	"testing"
	"time"
)

func TestAllowRespectsBurstThenThrottles(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(0, 0)

	if !l.Allow("1.2.3.4:5555", now) {
		t.Fatal("first connection should be allowed")
	}
	if !l.Allow("1.2.3.4:5556", now) {
		t.Fatal("second connection (within burst) should be allowed")
	}
	if l.Allow("1.2.3.4:5557", now) {
		t.Fatal("third connection within the same instant should be throttled")
	}
	if !l.Allow("1.2.3.4:5558", now.Add(2*time.Second)) {
		t.Fatal("connection after the refill interval should be allowed")
	}
}

func TestAllowIsPerAddress(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(0, 0)
	if !l.Allow("1.1.1.1:1", now) {
		t.Fatal("first address should be allowed")
	}
	if !l.Allow("2.2.2.2:1", now) {
		t.Fatal("a different address should have its own bucket")
	}
}

func TestCleanupEvictsIdleVisitors(t *testing.T) {
	l := New(1, 1, time.Second)
	now := time.Unix(0, 0)
	l.Allow("1.1.1.1:1", now)
	l.Cleanup(now.Add(2 * time.Second))
	if len(l.visitors) != 0 {
		t.Fatalf("expected idle visitor to be evicted, got %d remaining", len(l.visitors))
	}
}
