package webhook

import (
	"fmt"
	"testing"
)

func TestRateLimiterEnforcesPerKeyLimit(t *testing.T) {
	rl := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected under limit", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request over limit allowed")
	}
	// A different key has its own budget.
	if !rl.Allow("10.0.0.2") {
		t.Error("unrelated key rejected")
	}
}

func TestRateLimiterDisabledWhenZero(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 1000; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestRateLimiterEvictsAtCap(t *testing.T) {
	rl := NewRateLimiter(1)
	for i := 0; i < maxTrackedKeys+10; i++ {
		rl.Allow(fmt.Sprintf("198.51.%d.%d", i/256, i%256))
	}
	rl.mu.Lock()
	n := len(rl.entries)
	rl.mu.Unlock()
	if n > maxTrackedKeys {
		t.Errorf("tracked keys = %d, want <= %d", n, maxTrackedKeys)
	}
}
