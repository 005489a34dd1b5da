package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crypto-dashboard/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func counting(value string, calls *atomic.Int32) Fetcher[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestGet_FreshWithinStaleWindow(t *testing.T) {
	clock := newFakeClock()
	c := New[string]("test", Policy{StaleTime: 10 * time.Second}, logging.Discard(), WithClock(clock.Now))

	var calls atomic.Int32
	fetch := counting("page-1", &calls)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := c.Get(ctx, "page=1", fetch)
		if err != nil || v != "page-1" {
			t.Fatalf("Get = %q, %v", v, err)
		}
		clock.Advance(3 * time.Second)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 network call within the staleness window, got %d", n)
	}

	clock.Advance(2 * time.Second) // 11s since fetch
	if _, err := c.Get(ctx, "page=1", fetch); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected a refetch once stale, got %d calls", n)
	}
}

func TestGet_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	c := New[string]("test", Policy{StaleTime: time.Minute}, logging.Discard(), WithClock(clock.Now))
	ctx := context.Background()

	var calls1, calls2 atomic.Int32
	if v, _ := c.Get(ctx, "page=1", counting("one", &calls1)); v != "one" {
		t.Fatalf("page 1 = %q", v)
	}
	if v, _ := c.Get(ctx, "page=2", counting("two", &calls2)); v != "two" {
		t.Fatalf("page 2 = %q", v)
	}
	if v, _ := c.Get(ctx, "page=1", counting("other", &calls1)); v != "one" {
		t.Fatalf("page 1 should be served from cache, got %q", v)
	}
	if calls1.Load() != 1 || calls2.Load() != 1 {
		t.Errorf("calls = %d, %d; want 1, 1", calls1.Load(), calls2.Load())
	}
}

func TestGet_CoalescesConcurrentRequests(t *testing.T) {
	clock := newFakeClock()
	c := New[string]("test", Policy{StaleTime: time.Minute}, logging.Discard(), WithClock(clock.Now))

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "shared", nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "k", fetch)
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single in-flight call, got %d", got)
	}
	for i := range results {
		if errs[i] != nil || results[i] != "shared" {
			t.Errorf("caller %d got %q, %v", i, results[i], errs[i])
		}
	}
}

func TestGet_ErrorIsNotCachedAndNotSubstituted(t *testing.T) {
	clock := newFakeClock()
	c := New[string]("test", Policy{StaleTime: 10 * time.Second}, logging.Discard(), WithClock(clock.Now))
	ctx := context.Background()

	if _, err := c.Get(ctx, "k", func(context.Context) (string, error) { return "v1", nil }); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)

	boom := errors.New("boom")
	v, err := c.Get(ctx, "k", func(context.Context) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if v != "" {
		t.Errorf("stale value %q substituted on failure", v)
	}

	var calls atomic.Int32
	if v, err := c.Get(ctx, "k", counting("v2", &calls)); err != nil || v != "v2" {
		t.Fatalf("retry after failure = %q, %v", v, err)
	}
	if calls.Load() != 1 {
		t.Error("failure must not be cached")
	}
}

func TestGet_CallerCancellation(t *testing.T) {
	c := New[string]("test", Policy{StaleTime: time.Minute}, logging.Discard())

	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k", fetch)
		done <- err
	}()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	// the detached fetch still completes and populates the cache
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok := c.fresh("k"); ok && v == "late" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("fetch result was not stored after caller cancelled")
}

func TestSubscribe_RevalidatesWhileSubscribed(t *testing.T) {
	c := New[int]("test", Policy{StaleTime: time.Millisecond, RefetchInterval: 10 * time.Millisecond}, logging.Discard())
	defer c.Close()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	got := make(chan Result[int], 64)
	unsubscribe := c.Subscribe("live", fetch, func(r Result[int]) {
		select {
		case got <- r:
		default:
		}
	})

	for i := 0; i < 3; i++ {
		select {
		case r := <-got:
			if r.Err != nil || r.Key != "live" {
				t.Fatalf("unexpected result %+v", r)
			}
		case <-time.After(time.Second):
			t.Fatalf("no result %d delivered", i)
		}
	}
	if c.Subscribers("live") != 1 {
		t.Fatalf("Subscribers = %d, want 1", c.Subscribers("live"))
	}

	unsubscribe()
	unsubscribe() // idempotent
	if c.Subscribers("live") != 0 {
		t.Fatalf("Subscribers = %d after unsubscribe", c.Subscribers("live"))
	}

	time.Sleep(30 * time.Millisecond)
	before := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if after := calls.Load(); after != before {
		t.Errorf("background revalidation kept running after last unsubscribe: %d -> %d", before, after)
	}
}

func TestSubscribe_SharedTimerUntilLastSubscriber(t *testing.T) {
	c := New[int]("test", Policy{StaleTime: time.Millisecond, RefetchInterval: 10 * time.Millisecond}, logging.Discard())
	defer c.Close()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) { return int(calls.Add(1)), nil }

	var a, b atomic.Int32
	unsubA := c.Subscribe("k", fetch, func(Result[int]) { a.Add(1) })
	unsubB := c.Subscribe("k", fetch, func(Result[int]) { b.Add(1) })
	if c.Subscribers("k") != 2 {
		t.Fatalf("Subscribers = %d, want 2", c.Subscribers("k"))
	}

	unsubA()
	before := calls.Load()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() == before {
		t.Error("revalidation stopped while a subscriber remained")
	}
	if b.Load() == 0 {
		t.Error("remaining subscriber received nothing")
	}

	unsubB()
	if c.Subscribers("k") != 0 {
		t.Errorf("Subscribers = %d, want 0", c.Subscribers("k"))
	}
}

func TestSubscribe_DeliversFreshValueImmediately(t *testing.T) {
	clock := newFakeClock()
	c := New[string]("test", Policy{StaleTime: time.Minute}, logging.Discard(), WithClock(clock.Now))

	var calls atomic.Int32
	fetch := counting("cached", &calls)
	if _, err := c.Get(context.Background(), "k", fetch); err != nil {
		t.Fatal(err)
	}

	var got Result[string]
	unsubscribe := c.Subscribe("k", fetch, func(r Result[string]) { got = r })
	defer unsubscribe()

	if got.Value != "cached" {
		t.Errorf("initial delivery = %+v", got)
	}
	if calls.Load() != 1 {
		t.Errorf("fresh subscribe triggered a fetch")
	}
}

func TestRetainUnused(t *testing.T) {
	clock := newFakeClock()
	c := New[string]("test", Policy{StaleTime: time.Second, RetainUnused: time.Minute}, logging.Discard(), WithClock(clock.Now))
	ctx := context.Background()
	var calls atomic.Int32

	c.Get(ctx, "old", counting("x", &calls))
	clock.Advance(2 * time.Minute)
	c.Get(ctx, "new", counting("y", &calls))

	c.mu.Lock()
	_, oldKept := c.entries["old"]
	_, newKept := c.entries["new"]
	c.mu.Unlock()
	if oldKept || !newKept {
		t.Errorf("old kept=%v new kept=%v", oldKept, newKept)
	}
}

func TestKey(t *testing.T) {
	a := Key("history", map[string]string{"id": "bitcoin", "days": "7"})
	b := Key("history", map[string]string{"days": "7", "id": "bitcoin"})
	if a != b {
		t.Errorf("%q != %q", a, b)
	}
	if a != "history?days=7&id=bitcoin" {
		t.Errorf("unexpected key %q", a)
	}
}
