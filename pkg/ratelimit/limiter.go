package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// SetFallback installs a limiter used for names that were never added.
// Without a fallback, Wait on an unknown name fails.
func (m *MultiLimiter) SetFallback(requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (m *MultiLimiter) get(name string) (*rate.Limiter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limiter, ok := m.limiters[name]; ok {
		return limiter, true
	}
	if m.fallback != nil {
		return m.fallback, true
	}
	return nil, false
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	limiter, ok := m.get(name)
	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	limiter, ok := m.get(name)
	if !ok {
		return false
	}

	return limiter.Allow()
}

// Default rate limiter names
const (
	LimiterAnthropic = "anthropic"
	LimiterReddit    = "reddit"
	LimiterRSS       = "rss"
)

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	return NewLimiter(10, 60)
}

// NewLimiter builds the limiter set from per-minute budgets
func NewLimiter(anthropicPerMinute, sourcePerMinute int) *MultiLimiter {
	m := NewMultiLimiter()

	if anthropicPerMinute <= 0 {
		anthropicPerMinute = 10
	}
	if sourcePerMinute <= 0 {
		sourcePerMinute = 60
	}

	// Anthropic: 10 requests per minute = ~0.17 per second, burst 2
	m.AddLimiter(LimiterAnthropic, float64(anthropicPerMinute)/60, 2)

	// Reddit app-only OAuth allows 100 QPM; stay under with burst 10
	m.AddLimiter(LimiterReddit, float64(sourcePerMinute)/60, 10)

	// RSS: No strict limit, but be polite
	m.AddLimiter(LimiterRSS, float64(sourcePerMinute)/60, 10)

	m.SetFallback(float64(sourcePerMinute)/60, 5)

	return m
}
