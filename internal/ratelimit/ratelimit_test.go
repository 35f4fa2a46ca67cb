package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgard/assistbot/internal/errs"
	"github.com/edgard/assistbot/internal/kv"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingBackend struct{ calls atomic.Int32 }

func (f *failingBackend) Take(context.Context, string, Config) (bool, error) {
	f.calls.Add(1)
	return false, errors.New("backing store unavailable")
}

func TestLimiterTakeWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	cfg := Config{Capacity: 3, Refill: 3, Period: 10 * time.Second}
	l := New("command", cfg, NewMemoryBackend(clock.Now), nil, nil)
	key := Key("42", "chan")

	for i := 0; i < 3; i++ {
		if !l.Take(ctx, key) {
			t.Fatalf("Take() #%d = false, want true", i+1)
		}
	}
	if l.Take(ctx, key) {
		t.Fatal("Take() after capacity = true, want false")
	}

	clock.Advance(10 * time.Second)
	if !l.Take(ctx, key) {
		t.Error("Take() after window elapsed = false, want true")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := New("command", Config{Capacity: 1, Refill: 1, Period: time.Hour}, NewMemoryBackend(nil), nil, nil)

	if !l.Take(ctx, Key("a", "c1")) {
		t.Fatal("first take for a@c1 denied")
	}
	if !l.Take(ctx, Key("a", "c2")) {
		t.Error("a@c2 must not share a bucket with a@c1")
	}
	if !l.Take(ctx, Key("b", "c1")) {
		t.Error("b@c1 must not share a bucket with a@c1")
	}
	if l.Take(ctx, Key("a", "c1")) {
		t.Error("second take for a@c1 should be denied")
	}
}

func TestLimiterCooldown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	cfg := Config{Capacity: 2, Refill: 1, Period: time.Second, Cooldown: time.Minute}
	l := New("costly", cfg, NewMemoryBackend(clock.Now), nil, nil)

	l.Take(ctx, "k")
	l.Take(ctx, "k")
	if l.Take(ctx, "k") {
		t.Fatal("exhausted bucket allowed a take")
	}

	// A refill period has passed but the cooldown has not.
	clock.Advance(5 * time.Second)
	if l.Take(ctx, "k") {
		t.Error("take during cooldown allowed")
	}

	clock.Advance(time.Minute)
	for i := 0; i < 2; i++ {
		if !l.Take(ctx, "k") {
			t.Errorf("take #%d after cooldown denied, bucket should be full", i+1)
		}
	}
}

func TestLimiterFailsOpen(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{}
	l := New("command", Config{Capacity: 1, Refill: 1, Period: time.Second}, backend, nil, nil)

	for i := 0; i < 5; i++ {
		if !l.Take(context.Background(), "k") {
			t.Fatalf("Take() #%d = false, limiter must fail open", i+1)
		}
	}
	if got := backend.calls.Load(); got != 5 {
		t.Errorf("backend called %d times, want 5", got)
	}
}

func TestRedisBackendUnavailableFailsOpen(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l := New("command", Config{Capacity: 1, Refill: 1, Period: time.Second}, NewRedisBackend(client, "t:"), nil, nil)
	if !l.Take(ctx, "k") {
		t.Error("Take() with unreachable redis = false, want true")
	}
}

func TestShouldNotifyOncePerWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &testClock{now: time.Unix(0, 0)}
	notices := kv.NewMemoryStore(kv.WithClock(clock.Now))
	l := New("command", Config{Capacity: 1, Refill: 1, Period: 10 * time.Second}, NewMemoryBackend(clock.Now), notices, nil)

	if !l.ShouldNotify(ctx, "k") {
		t.Fatal("first denial should be notified")
	}
	if l.ShouldNotify(ctx, "k") {
		t.Error("second denial in the same window should be silent")
	}
	clock.Advance(11 * time.Second)
	if !l.ShouldNotify(ctx, "k") {
		t.Error("denial in a new window should be notified again")
	}
}

func TestMemoryBackendCleanupStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &testClock{now: time.Unix(0, 0)}
	b := NewMemoryBackend(clock.Now)
	cfg := Config{Capacity: 1, Refill: 1, Period: time.Second}

	_, _ = b.Take(ctx, "old", cfg)
	clock.Advance(time.Hour)
	_, _ = b.Take(ctx, "new", cfg)

	if removed := b.CleanupStale(30 * time.Minute); removed != 1 {
		t.Errorf("CleanupStale() removed %d, want 1", removed)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestMemoryBackendConcurrentTakes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewMemoryBackend(nil)
	cfg := Config{Capacity: 50, Refill: 1, Period: time.Hour}

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := b.Take(ctx, "shared", cfg); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed %d concurrent takes, want exactly 50", got)
	}
}

func TestLimiterAllowReportsRateLimited(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	l := New("command", Config{Capacity: 1, Refill: 1, Period: time.Minute}, NewMemoryBackend(clock.Now), nil, nil)
	key := Key("42", "chan")

	if err := l.Allow(ctx, key); err != nil {
		t.Fatalf("Allow() first = %v, want nil", err)
	}
	if err := l.Allow(ctx, key); !errs.Is(err, errs.CodeRateLimited) {
		t.Errorf("Allow() over capacity = %v, want code %s", err, errs.CodeRateLimited)
	}
	if err := New("command", Config{Capacity: 1, Refill: 1, Period: time.Minute}, &failingBackend{}, nil, nil).Allow(ctx, key); err != nil {
		t.Errorf("Allow() with failing backend = %v, want nil", err)
	}
}
