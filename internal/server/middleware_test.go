package server

import (
	"fmt"
	"testing"
	"time"
)

func TestIPLimiterSweepsIdleAddresses(t *testing.T) {
	l := newIPLimiter(60, 2)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	if !l.allow("10.0.0.1") || !l.allow("10.0.0.1") {
		t.Fatalf("burst should pass")
	}
	if l.allow("10.0.0.1") {
		t.Fatalf("request past burst should be limited")
	}
	for i := 0; i < 100; i++ {
		l.allow(fmt.Sprintf("10.1.0.%d", i))
	}
	if got := l.size(); got != 101 {
		t.Fatalf("expected 101 buckets, got %d", got)
	}

	clock = clock.Add(5 * time.Minute)
	l.allow("10.0.0.2")
	if got := l.size(); got != 102 {
		t.Fatalf("no sweep expected before idle window, got %d buckets", got)
	}

	clock = clock.Add(6 * time.Minute)
	l.allow("10.0.0.3")
	if got := l.size(); got != 2 {
		t.Fatalf("expected idle buckets swept, got %d", got)
	}
	if !l.allow("10.0.0.1") || !l.allow("10.0.0.1") {
		t.Fatalf("swept address should start with a full burst")
	}
}

func TestIPLimiterDisabled(t *testing.T) {
	if newIPLimiter(0, 5) != nil {
		t.Fatalf("zero rate should disable the limiter")
	}
}
