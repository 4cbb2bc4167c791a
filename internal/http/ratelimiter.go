package http

import (
	"sync"
	"time"
)

const unknownClient = "unknown"

type bucket struct {
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

// RateLimiter is a token bucket per client address. Idle buckets are pruned once
// they have been unused for longer than the client TTL.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*bucket
	maxTokens  float64
	refillRate float64
	ttl        time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter constructs a rate limiter and starts its pruning loop.
func NewRateLimiter(maxTokens int, refillPerSecond float64, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:    make(map[string]*bucket),
		maxTokens:  float64(maxTokens),
		refillRate: refillPerSecond,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	if ttl > 0 {
		go rl.pruneLoop()
	}

	return rl
}

// Allow consumes a token for key if one is available.
func (rl *RateLimiter) Allow(key string) bool {
	if key == "" {
		key = unknownClient
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[key]
	if !ok {
		client = &bucket{tokens: rl.maxTokens, last: now}
		rl.clients[key] = client
	}
	client.lastSeen = now

	if elapsed := now.Sub(client.last).Seconds(); elapsed > 0 {
		client.tokens = min(rl.maxTokens, client.tokens+elapsed*rl.refillRate)
		client.last = now
	}

	if client.tokens < 1 {
		return false
	}

	client.tokens--
	return true
}

// Close stops the pruning loop.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) pruneLoop() {
	ticker := time.NewTicker(rl.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.pruneStale()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) pruneStale() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, client := range rl.clients {
		if now.Sub(client.lastSeen) > rl.ttl {
			delete(rl.clients, key)
		}
	}
}
