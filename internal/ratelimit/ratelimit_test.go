package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := NewLimiter(10, 5)

	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("Call %d within burst should be allowed", i)
		}
	}
	if l.Allow() {
		t.Error("Call beyond burst should be denied")
	}
}

func TestTokensRefill(t *testing.T) {
	l := NewLimiter(100, 1)

	if !l.Allow() {
		t.Fatal("First call should be allowed")
	}
	if l.Allow() {
		t.Fatal("Bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond)
	if !l.Allow() {
		t.Error("Tokens should refill over time")
	}
}
