// Package querycache caches the results of remote queries by key.
//
// A value is fresh for Policy.StaleTime after it was fetched; fresh values
// are served without touching the network. Concurrent loads of one key are
// coalesced into a single call. While a key has subscribers it is refetched
// every Policy.RefetchInterval and each result is pushed to all of them; the
// background timer stops when the last subscriber leaves.
package querycache

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads the current value of a key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Policy controls freshness and revalidation of a cache.
type Policy struct {
	StaleTime       time.Duration
	RefetchInterval time.Duration // zero disables background revalidation
	RetainUnused    time.Duration // entries without subscribers are dropped after this; zero keeps them
	FetchTimeout    time.Duration // zero means no timeout beyond the caller's
}

// Result is what subscribers receive after every load of their key.
// Value is the zero value whenever Err is set.
type Result[T any] struct {
	Key       string
	Value     T
	Err       error
	FetchedAt time.Time
}

type entry[T any] struct {
	value     T
	ok        bool
	fetchedAt time.Time
	updatedAt time.Time
	fetch     Fetcher[T]
	subs      map[uint64]func(Result[T])
	stop      chan struct{}
}

// Cache is a keyed query cache. The zero value is not usable; use New.
type Cache[T any] struct {
	name   string
	policy Policy
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry[T]
	nextSub uint64
	closed  bool
}

type options struct {
	now func() time.Time
}

// Option customizes a Cache.
type Option func(*options)

// WithClock replaces time.Now for freshness decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New returns an empty cache. name is only used in log records.
func New[T any](name string, policy Policy, logger *slog.Logger, opts ...Option) *Cache[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[T]{
		name:    name,
		policy:  policy,
		logger:  logger.With(slog.String("cache", name)),
		now:     o.now,
		entries: make(map[string]*entry[T]),
	}
}

// Get returns the value of key, fetching it when there is no fresh value.
// A failed fetch is returned as is; no older value is substituted.
func (c *Cache[T]) Get(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	if v, ok := c.fresh(key); ok {
		return v, nil
	}
	return c.load(ctx, key, fetch, false)
}

// Subscribe registers fn for every future result of key and returns the
// function that cancels the subscription. The first subscriber of a key
// starts its background revalidation. fn receives the current value right
// away when it is fresh, otherwise after a load triggered by Subscribe.
//
// fn may be called from several goroutines and must not block.
func (c *Cache[T]) Subscribe(key string, fetch Fetcher[T], fn func(Result[T])) (unsubscribe func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	e := c.entryLocked(key)
	e.fetch = fetch
	c.nextSub++
	id := c.nextSub
	e.subs[id] = fn
	if len(e.subs) == 1 && c.policy.RefetchInterval > 0 {
		e.stop = make(chan struct{})
		go c.revalidate(key, e.stop)
	}
	var initial *Result[T]
	if e.ok && c.isFresh(e) {
		initial = &Result[T]{Key: key, Value: e.value, FetchedAt: e.fetchedAt}
	}
	c.mu.Unlock()

	if initial != nil {
		fn(*initial)
	} else {
		go c.refresh(key, false)
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(key, id) })
	}
}

// Subscribers returns the number of active subscriptions on key.
func (c *Cache[T]) Subscribers(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return len(e.subs)
	}
	return 0
}

// Close stops every background revalidation. Get keeps working.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, e := range c.entries {
		if e.stop != nil {
			close(e.stop)
			e.stop = nil
		}
	}
}

func (c *Cache[T]) unsubscribe(key string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(e.subs, id)
	if len(e.subs) == 0 && e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

func (c *Cache[T]) revalidate(key string, stop <-chan struct{}) {
	ticker := time.NewTicker(c.policy.RefetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.refresh(key, true)
		}
	}
}

// refresh reloads key with the fetcher of its latest subscriber.
func (c *Cache[T]) refresh(key string, force bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.fetch == nil {
		c.mu.Unlock()
		return
	}
	fetch := e.fetch
	c.mu.Unlock()

	if _, err := c.load(context.Background(), key, fetch, force); err != nil {
		c.logger.Warn("revalidation failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (c *Cache[T]) fresh(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.ok && c.isFresh(e) {
		return e.value, true
	}
	var zero T
	return zero, false
}

func (c *Cache[T]) isFresh(e *entry[T]) bool {
	return c.now().Sub(e.fetchedAt) < c.policy.StaleTime
}

// load runs fetch once per key no matter how many callers are waiting. The
// fetch is detached from the first caller's cancellation so that the other
// waiters are not failed by it.
func (c *Cache[T]) load(ctx context.Context, key string, fetch Fetcher[T], force bool) (T, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		if !force {
			if v, ok := c.fresh(key); ok {
				return v, nil
			}
		}
		fctx := context.WithoutCancel(ctx)
		if c.policy.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.policy.FetchTimeout)
			defer cancel()
		}
		start := c.now()
		v, err := fetch(fctx)
		c.logger.Debug("fetched", slog.String("key", key), slog.Duration("took", c.now().Sub(start)), slog.Bool("ok", err == nil))
		c.store(key, v, err)
		return v, err
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		v, _ := r.Val.(T)
		return v, nil
	}
}

func (c *Cache[T]) store(key string, v T, err error) {
	now := c.now()

	c.mu.Lock()
	e := c.entryLocked(key)
	e.updatedAt = now
	res := Result[T]{Key: key, Err: err}
	if err != nil {
		var zero T
		e.value, e.ok = zero, false
	} else {
		e.value, e.ok, e.fetchedAt = v, true, now
		res.Value, res.FetchedAt = v, now
	}
	subs := make([]func(Result[T]), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	c.sweepLocked(now)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(res)
	}
}

func (c *Cache[T]) entryLocked(key string) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{subs: make(map[uint64]func(Result[T]))}
		c.entries[key] = e
	}
	return e
}

func (c *Cache[T]) sweepLocked(now time.Time) {
	if c.policy.RetainUnused <= 0 {
		return
	}
	for k, e := range c.entries {
		if len(e.subs) == 0 && now.Sub(e.updatedAt) > c.policy.RetainUnused {
			delete(c.entries, k)
		}
	}
}

// Key builds a canonical key from a name and a parameter set: parameters
// are sorted so that equal sets always map to the same key.
func Key(name string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + params[k]
	}
	return name + "?" + strings.Join(parts, "&")
}
