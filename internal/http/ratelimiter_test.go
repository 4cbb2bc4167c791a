package http

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, 3, time.Minute)

	current := time.Unix(0, 0)
	rl.now = func() time.Time {
		return current
	}

	key := "1.2.3.4"

	for i := 0; i < 3; i++ {
		if !rl.Allow(key) {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}

	if rl.Allow(key) {
		t.Fatalf("expected fourth request to be denied")
	}

	current = current.Add(time.Second)

	if !rl.Allow(key) {
		t.Fatalf("expected request after refill to be allowed")
	}
}

func TestRateLimiterTracksClientsSeparately(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1, time.Minute)
	rl.now = func() time.Time { return time.Unix(0, 0) }

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.2") {
		t.Fatalf("expected first request of each client to be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("expected second request of the same client to be denied")
	}
}

func TestRateLimiterPrunesIdleClients(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1, time.Minute)
	current := time.Unix(0, 0)
	rl.now = func() time.Time { return current }

	rl.Allow("10.0.0.1")
	current = current.Add(2 * time.Minute)
	rl.pruneStale()

	rl.mu.Lock()
	remaining := len(rl.clients)
	rl.mu.Unlock()

	if remaining != 0 {
		t.Fatalf("expected idle client to be pruned, got %d clients", remaining)
	}
}
