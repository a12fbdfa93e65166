package ratelimit

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

// Limiter gates outbound calls to inference providers with a per-provider
// token bucket. Tokens refill continuously at requests_per_minute/60 per
// second up to max_burst; refill is computed lazily on each acquire, there
// is no background timer. Provider overload responses put the provider into
// an exponentially escalating cooldown that all callers must wait out.
type Limiter struct {
	providers map[string]*providerState
}

type providerState struct {
	cfg config.ProviderLimit

	mu                sync.Mutex
	tokens            float64
	lastRefill        time.Time
	cooldownUntil     time.Time
	consecutiveErrors int
	waiters           waiterHeap
	seq               uint64
}

// New creates a Limiter for the given provider set. Buckets start full.
func New(providers []config.ProviderLimit) *Limiter {
	l := &Limiter{providers: make(map[string]*providerState, len(providers))}
	now := time.Now()
	for _, p := range providers {
		l.providers[p.Name] = &providerState{
			cfg:        p,
			tokens:     float64(p.MaxBurst),
			lastRefill: now,
		}
	}
	return l
}

// Acquire blocks until a token for the provider is available, then returns
// how long the caller waited. Higher priority callers are served first when
// several are waiting; priority never bypasses an active cooldown.
func (l *Limiter) Acquire(ctx context.Context, provider string, priority domain.CallPriority) (time.Duration, error) {
	ps, ok := l.providers[provider]
	if !ok {
		return 0, fmt.Errorf("unknown provider %q", provider)
	}

	start := time.Now()

	ps.mu.Lock()
	w := &waiter{priority: priority, seq: ps.seq}
	ps.seq++
	heap.Push(&ps.waiters, w)

	for {
		now := time.Now()
		ps.refill(now)

		if ps.waiters.head() == w && now.After(ps.cooldownUntil) && ps.tokens >= 1 {
			ps.tokens--
			ps.waiters.remove(w)
			ps.mu.Unlock()
			return time.Since(start), nil
		}

		sleep := ps.nextAttempt(now, w)
		ps.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			ps.mu.Lock()
			ps.waiters.remove(w)
			ps.mu.Unlock()
			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
		ps.mu.Lock()
	}
}

// nextAttempt computes how long a waiter should sleep before re-checking.
// Called with ps.mu held.
func (ps *providerState) nextAttempt(now time.Time, w *waiter) time.Duration {
	var sleep time.Duration

	if cd := ps.cooldownUntil.Sub(now); cd > 0 {
		sleep = cd
	} else if ps.tokens < 1 {
		perToken := time.Minute / time.Duration(math.Max(ps.cfg.RequestsPerMinute, 1e-9))
		deficit := 1 - ps.tokens
		sleep = time.Duration(deficit * float64(perToken))
	}

	// Not at the head of the queue: re-check shortly after the head has had
	// a chance to take its token.
	if ps.waiters.head() != w && sleep < 5*time.Millisecond {
		sleep = 5 * time.Millisecond
	}
	if sleep < time.Millisecond {
		sleep = time.Millisecond
	}
	return sleep
}

// refill adds lazily accrued tokens. Called with ps.mu held.
func (ps *providerState) refill(now time.Time) {
	elapsed := now.Sub(ps.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	ps.tokens += elapsed * ps.cfg.RequestsPerMinute / 60
	if max := float64(ps.cfg.MaxBurst); ps.tokens > max {
		ps.tokens = max
	}
	ps.lastRefill = now
}

// HandleError records an overload signal from the provider and escalates
// the cooldown: cooldown_base * 2^min(consecutive_errors, cap), with ±20%
// jitter to avoid synchronized retries.
func (l *Limiter) HandleError(provider string) time.Duration {
	ps, ok := l.providers[provider]
	if !ok {
		return 0
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.consecutiveErrors++
	exp := ps.consecutiveErrors
	if exp > ps.cfg.ErrorCap {
		exp = ps.cfg.ErrorCap
	}
	cooldown := time.Duration(ps.cfg.CooldownBase * math.Pow(2, float64(exp)) * float64(time.Second))
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	cooldown = time.Duration(float64(cooldown) * jitter)

	until := time.Now().Add(cooldown)
	if until.After(ps.cooldownUntil) {
		ps.cooldownUntil = until
	}
	return cooldown
}

// HandleSuccess resets the consecutive error count after a call that went
// through without an overload signal
func (l *Limiter) HandleSuccess(provider string) {
	ps, ok := l.providers[provider]
	if !ok {
		return
	}
	ps.mu.Lock()
	ps.consecutiveErrors = 0
	ps.mu.Unlock()
}

// InCooldown reports whether the provider is currently cooling down
func (l *Limiter) InCooldown(provider string) bool {
	ps, ok := l.providers[provider]
	if !ok {
		return false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Now().Before(ps.cooldownUntil)
}

// Providers returns the configured provider names
func (l *Limiter) Providers() []string {
	names := make([]string, 0, len(l.providers))
	for name := range l.providers {
		names = append(names, name)
	}
	return names
}
