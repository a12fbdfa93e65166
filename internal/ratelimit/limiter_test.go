package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

func newTestLimiter(rpm float64, burst int, cooldownBase float64) *Limiter {
	return New([]config.ProviderLimit{
		{Name: "test", RequestsPerMinute: rpm, MaxBurst: burst, CooldownBase: cooldownBase, ErrorCap: 6},
	})
}

func TestAcquire_BurstThenWait(t *testing.T) {
	l := newTestLimiter(60, 10, 1)
	ctx := context.Background()

	// The full burst should be served immediately.
	for i := 0; i < 10; i++ {
		wait, err := l.Acquire(ctx, "test", domain.CallPriorityNormal)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if wait > 100*time.Millisecond {
			t.Errorf("Acquire %d waited %s, want ~0", i, wait)
		}
	}

	// The 11th call must wait for the next token, at most one second at
	// 60 requests per minute.
	wait, err := l.Acquire(ctx, "test", domain.CallPriorityNormal)
	if err != nil {
		t.Fatal(err)
	}
	if wait <= 0 {
		t.Errorf("11th Acquire waited %s, want > 0", wait)
	}
	if wait > 1200*time.Millisecond {
		t.Errorf("11th Acquire waited %s, want <= ~1s", wait)
	}
}

func TestAcquire_UnknownProvider(t *testing.T) {
	l := newTestLimiter(60, 10, 1)
	if _, err := l.Acquire(context.Background(), "nope", domain.CallPriorityNormal); err == nil {
		t.Error("Acquire for unknown provider should fail")
	}
}

func TestAcquire_ContextCancel(t *testing.T) {
	l := newTestLimiter(1, 1, 1) // one token per minute
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "test", domain.CallPriorityNormal); err != nil {
		t.Fatal(err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err := l.Acquire(cancelCtx, "test", domain.CallPriorityNormal)
	if err == nil {
		t.Error("Acquire should fail when the context expires before a token is available")
	}
}

func TestHandleError_CooldownEscalation(t *testing.T) {
	l := newTestLimiter(60, 10, 1)

	// The first error already doubles the base: 2*1s with ±20% jitter.
	first := l.HandleError("test")
	if first < 1600*time.Millisecond || first > 2400*time.Millisecond {
		t.Errorf("first cooldown = %s, want 2*base within jitter [1.6s, 2.4s]", first)
	}

	prev := first
	for i := 1; i < 3; i++ {
		cd := l.HandleError("test")
		if cd < prev {
			t.Errorf("cooldown %d = %s, want >= previous %s", i, cd, prev)
		}
		prev = cd
	}

	if !l.InCooldown("test") {
		t.Error("provider should be in cooldown after errors")
	}

	// Escalation is bounded by the exponent cap: 2^6*base plus jitter.
	for i := 3; i < 6; i++ {
		l.HandleError("test")
	}
	for i := 0; i < 10; i++ {
		cd := l.HandleError("test")
		if cd < 51*time.Second || cd > 77*time.Second {
			t.Errorf("capped cooldown = %s, want 64*base within jitter [51.2s, 76.8s]", cd)
		}
	}
}

func TestHandleSuccess_ResetsEscalation(t *testing.T) {
	l := newTestLimiter(60, 10, 1)

	for i := 0; i < 4; i++ {
		l.HandleError("test")
	}
	l.HandleSuccess("test")

	// After a reset, the next error starts the ladder over at 2*base.
	cd := l.HandleError("test")
	if cd < 1600*time.Millisecond || cd > 2400*time.Millisecond {
		t.Errorf("cooldown after reset = %s, want 2*cooldown_base within jitter", cd)
	}
}

func TestAcquire_CooldownBlocksDespiteTokens(t *testing.T) {
	l := newTestLimiter(6000, 10, 0.2)
	ctx := context.Background()

	l.HandleError("test") // ~0.4s cooldown

	start := time.Now()
	wait, err := l.Acquire(ctx, "test", domain.CallPriorityHigh)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Acquire returned after %s, should have waited out the cooldown", elapsed)
	}
	if wait < 100*time.Millisecond {
		t.Errorf("reported wait %s, want at least the cooldown remainder", wait)
	}
}

func TestAcquire_PriorityOrdering(t *testing.T) {
	// One token per second, bucket drained: three waiters with different
	// priorities must be served high first.
	l := newTestLimiter(60, 1, 1)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "test", domain.CallPriorityNormal); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []domain.CallPriority
	var wg sync.WaitGroup

	acquire := func(p domain.CallPriority) {
		defer wg.Done()
		if _, err := l.Acquire(ctx, "test", p); err != nil {
			t.Errorf("Acquire(%v): %v", p, err)
			return
		}
		mu.Lock()
		order = append(order, p)
		mu.Unlock()
	}

	wg.Add(3)
	go acquire(domain.CallPriorityLow)
	time.Sleep(20 * time.Millisecond)
	go acquire(domain.CallPriorityNormal)
	time.Sleep(20 * time.Millisecond)
	go acquire(domain.CallPriorityHigh)

	wg.Wait()

	if len(order) != 3 {
		t.Fatalf("served %d waiters, want 3", len(order))
	}
	if order[0] != domain.CallPriorityHigh {
		t.Errorf("first served priority = %v, want high", order[0])
	}
	if order[2] != domain.CallPriorityLow {
		t.Errorf("last served priority = %v, want low", order[2])
	}
}

func TestAcquire_NoDoubleSpend(t *testing.T) {
	l := newTestLimiter(60, 5, 1)
	ctx := context.Background()

	var served int
	var mu sync.Mutex
	var wg sync.WaitGroup

	deadline, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Acquire(deadline, "test", domain.CallPriorityNormal); err == nil {
				mu.Lock()
				served++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 5 burst tokens plus at most a fraction of one refilled token.
	if served > 6 {
		t.Errorf("served %d concurrent acquirers, bucket only held 5 tokens", served)
	}
}
