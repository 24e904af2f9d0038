package ratelimiter

import "sync"

// RateLimiter reports whether one more request may proceed now.
type RateLimiter interface {
	Allow() bool
}

// Keyed keeps one limiter per key (client address, API key) created on first use.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]RateLimiter
	factory  func() RateLimiter
}

// NewKeyed returns a Keyed limiter that builds per-key limiters with factory.
func NewKeyed(factory func() RateLimiter) *Keyed {
	return &Keyed{
		limiters: make(map[string]RateLimiter),
		factory:  factory,
	}
}

// Allow consumes from the limiter for key.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = k.factory()
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}
