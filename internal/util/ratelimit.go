package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a single-token bucket refilled at a fixed rate. It spaces
// out calls to an external API; a zero or negative rate disables limiting.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	tokens   float64
	lastTime time.Time
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		rate:     float64(perMinute) / 60.0,
		tokens:   1,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.rate <= 0 {
		return ctx.Err()
	}
	for {
		wait := rl.take()
		if wait == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// take consumes a token if one is available and returns zero, otherwise it
// returns how long until the next token.
func (rl *RateLimiter) take() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > 1 {
		rl.tokens = 1
	}
	rl.lastTime = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	return time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
}
