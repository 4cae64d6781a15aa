package capability

import (
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Provider answers whether full access is granted. It may be expensive and
// is treated as failed (false) if it panics.
type Provider interface {
	HasFullAccess() bool
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() bool

// HasFullAccess calls f.
func (f ProviderFunc) HasFullAccess() bool { return f() }

// Checker is what UI code depends on: a cheap capability query plus a way
// to drop the cached answer when the grant may have changed.
type Checker interface {
	HasFullAccess() bool
	Invalidate()
}

// State is a snapshot of the cache. Known is false until the first query
// and after every Invalidate.
type State struct {
	Known      bool
	Value      bool
	ObservedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock used for ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used to report provider failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache memoizes a Provider until Invalidate. Hits are a single atomic load;
// a miss calls the provider exactly once even under concurrent queries.
// Cached state lives only in this process.
type Cache struct {
	provider Provider
	now      func() time.Time
	logger   *slog.Logger

	state atomic.Pointer[entry] // nil means unknown
	gen   atomic.Uint64         // bumped by Invalidate
	miss  singleflight.Group    // collapses concurrent misses of one generation

	queries atomic.Int64
	calls   atomic.Int64
}

var _ Checker = (*Cache)(nil)

// entry is a cached answer and the generation it was observed in. An entry
// from an older generation is never served.
type entry struct {
	State
	gen uint64
}

// NewCache returns an empty cache over provider.
func NewCache(provider Provider, opts ...Option) *Cache {
	c := &Cache{
		provider: provider,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasFullAccess returns the cached answer, querying the provider on a miss.
func (c *Cache) HasFullAccess() bool {
	c.queries.Add(1)
	gen := c.gen.Load()
	if e := c.state.Load(); e != nil && e.gen == gen {
		return e.Value
	}

	// Keyed by generation: a query issued after Invalidate never joins a
	// provider call that started before it.
	v, _, _ := c.miss.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		if e := c.state.Load(); e != nil && e.gen == gen {
			return e.Value, nil
		}
		value := c.query()
		c.install(&entry{State: State{Known: true, Value: value, ObservedAt: c.now()}, gen: gen})
		return value, nil
	})
	return v.(bool)
}

// install stores e unless a newer generation already has an answer.
func (c *Cache) install(e *entry) {
	for {
		cur := c.state.Load()
		if cur != nil && cur.gen > e.gen {
			return
		}
		if c.state.CompareAndSwap(cur, e) {
			return
		}
	}
}

// Invalidate forgets the cached answer. The next query asks the provider.
func (c *Cache) Invalidate() {
	c.gen.Add(1)
	c.state.Store(nil)
}

// State returns a snapshot of the cache.
func (c *Cache) State() State {
	if e := c.state.Load(); e != nil && e.gen == c.gen.Load() {
		return e.State
	}
	return State{}
}

// Queries returns how many times HasFullAccess was called.
func (c *Cache) Queries() int64 {
	return c.queries.Load()
}

// ProviderCalls returns how many times the provider was consulted.
func (c *Cache) ProviderCalls() int64 {
	return c.calls.Load()
}

// query calls the provider, mapping a panic to false.
func (c *Cache) query() (granted bool) {
	c.calls.Add(1)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("capability: provider failed, assuming no full access", "panic", r)
			granted = false
		}
	}()
	if c.provider == nil {
		return false
	}
	return c.provider.HasFullAccess()
}
