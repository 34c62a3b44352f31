package identity

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sharedledger.org/internal/obs"
)

// Cache is the single source of truth for who the current user is.
//
// At most one lookup is in flight at a time; callers arriving while it runs
// attach to it and receive its one resolved value, in the order they attached.
// Set, Invalidate and lookup completion are full replacements made under the
// same lock. A lookup completing after a Set or Invalidate still publishes its
// result: the last write to complete wins.
type Cache struct {
	fetcher   Fetcher
	logger    *zap.Logger
	observers []func(Transition)

	mu       sync.Mutex
	current  Identity
	state    State
	inflight *lookup
	seq      uint64
	pending  []Transition
	draining bool
}

// lookup is one outstanding fetch and the callers waiting on it.
type lookup struct {
	waiters []chan Identity
}

// Option customises a Cache.
type Option func(*Cache)

// WithObserver registers fn to run after every write to the cache.
// Observers run outside the lock and see transitions in write order, one at a
// time. When another goroutine is already delivering, a write returns before
// its own transition reaches the observers. Observers may read the cache.
func WithObserver(fn func(Transition)) Option {
	return func(c *Cache) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithLogger overrides the shared obs logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCache returns an empty cache in StateUnknown.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{fetcher: fetcher}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = obs.Logger()
	}
	return c
}

// Current returns the cached identity when one is authenticated. Otherwise it
// starts a lookup, or attaches to the one already in flight, and waits for it.
//
// The lookup itself ignores ctx cancellation. A caller whose ctx ends stops
// waiting and gets ctx.Err(); the lookup still completes and publishes.
func (c *Cache) Current(ctx context.Context) (Identity, error) {
	c.mu.Lock()
	if c.current.Authenticated {
		id := c.current.clone()
		c.mu.Unlock()
		return id, nil
	}

	ch := make(chan Identity, 1)
	if l := c.inflight; l != nil {
		l.waiters = append(l.waiters, ch)
		c.mu.Unlock()
		obs.IdentityAttached.Inc()
	} else {
		l := &lookup{waiters: []chan Identity{ch}}
		c.inflight = l
		c.mu.Unlock()
		go c.run(context.WithoutCancel(ctx), l)
	}

	select {
	case id := <-ch:
		return id, nil
	case <-ctx.Done():
		return Anonymous(), ctx.Err()
	}
}

// Cached returns the cached identity without triggering a lookup.
func (c *Cache) Cached() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.clone(), c.current.Authenticated
}

// State reports the session state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Set overwrites the cached identity. Used after login and profile updates.
func (c *Cache) Set(id Identity) {
	c.mu.Lock()
	c.replaceLocked(id.clone(), CauseSet)
	c.mu.Unlock()
	c.drain()
}

// Invalidate clears the cached identity to Anonymous. An in-flight lookup is
// left running.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.replaceLocked(Anonymous(), CauseInvalidate)
	c.mu.Unlock()
	c.drain()
}

func (c *Cache) run(ctx context.Context, l *lookup) {
	id := c.fetch(ctx)

	// Clear the marker and publish in one step, before any waiter wakes, so a
	// waiter calling Current again starts a fresh lookup.
	c.mu.Lock()
	if c.inflight == l {
		c.inflight = nil
	}
	c.replaceLocked(id, CauseLookup)
	waiters := l.waiters
	c.mu.Unlock()

	c.drain()
	for _, w := range waiters {
		w <- id.clone()
	}
}

func (c *Cache) fetch(ctx context.Context) Identity {
	if c.fetcher == nil {
		obs.IdentityLookups.WithLabelValues("failed").Inc()
		return Anonymous()
	}
	res, err := c.fetcher.FetchIdentity(ctx)
	if err != nil {
		obs.IdentityLookups.WithLabelValues("failed").Inc()
		c.logger.Warn("identity.lookup", zap.String("outcome", "failed"), zap.Error(err))
		return Anonymous()
	}
	if err := res.Validate(); err != nil {
		obs.IdentityLookups.WithLabelValues("invalid").Inc()
		c.logger.Warn("identity.lookup", zap.String("outcome", "invalid"), zap.Error(err))
		return Anonymous()
	}
	id := res.Resolve()
	outcome := stateOf(id).String()
	obs.IdentityLookups.WithLabelValues(outcome).Inc()
	c.logger.Debug("identity.lookup", zap.String("outcome", outcome), zap.Int64("user_id", id.ID))
	return id
}

// replaceLocked writes id and queues the transition for observers.
func (c *Cache) replaceLocked(id Identity, cause Cause) {
	c.seq++
	t := Transition{Seq: c.seq, From: c.state, Cause: cause, Identity: id}
	c.current = id
	c.state = stateOf(id)
	t.To = c.state
	if len(c.observers) > 0 {
		c.pending = append(c.pending, t)
	}
}

// drain delivers queued transitions in the order they were written. Only one
// goroutine delivers at a time; the others leave their transitions to it.
func (c *Cache) drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.pending) > 0 {
		t := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		for _, fn := range c.observers {
			fn(t)
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}
