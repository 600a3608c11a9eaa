// Package iconcache memoizes expensive keyed loads behind a bounded LRU.
//
// Concurrent requests for the same key share a single in-flight load, hits
// promote the entry to most-recently-used, and a successful load into a full
// cache evicts exactly one least-recently-used entry. Failed or empty loads
// are never cached.
package iconcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"idforge/pkg/platform/sentinel"
)

// Resolver loads the value for key. found=false with a nil error means the key
// has no value (for example an unknown country code).
type Resolver[V any] func(ctx context.Context, key string) (value V, found bool, err error)

// Status reports which path a lookup took.
type Status string

const (
	StatusHit       Status = "hit"
	StatusLoaded    Status = "loaded"
	StatusCoalesced Status = "coalesced"
	StatusNotFound  Status = "not_found"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// Result is the outcome of GetOrLoad. Value is the zero value unless OK.
type Result[V any] struct {
	Value  V
	Status Status
	Err    error
}

// OK reports whether Value holds a loaded value.
func (r Result[V]) OK() bool {
	switch r.Status {
	case StatusHit, StatusLoaded, StatusCoalesced:
		return true
	default:
		return false
	}
}

var errNoValue = fmt.Errorf("resolver returned no value: %w", sentinel.ErrNotFound)

type entry[V any] struct {
	value    V
	loadedAt time.Time
}

// Cache is a bounded, request-coalescing LRU cache. The zero value is not
// usable; construct with New.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  *simplelru.LRU
	pending  map[string]struct{}
	gen      uint64
	clearing bool

	capacity int
	group    singleflight.Group
	resolve  Resolver[V]

	name        string
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *Metrics
	loadTimeout time.Duration
	tracer      trace.Tracer
}

// New constructs a cache holding at most capacity entries.
func New[V any](capacity int, resolve Resolver[V], opts ...Option) (*Cache[V], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("iconcache capacity must be at least 1, got %d: %w", capacity, sentinel.ErrMisconfigured)
	}
	if resolve == nil {
		return nil, fmt.Errorf("iconcache resolver is required: %w", sentinel.ErrMisconfigured)
	}

	s := settings{
		name:        "iconcache",
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	c := &Cache[V]{
		pending:     make(map[string]struct{}),
		capacity:    capacity,
		resolve:     resolve,
		name:        s.name,
		clock:       s.clock,
		logger:      s.logger,
		metrics:     s.metrics,
		loadTimeout: s.loadTimeout,
		tracer:      otel.Tracer("idforge/internal/iconcache"),
	}
	entries, err := simplelru.NewLRU(capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.entries = entries
	return c, nil
}

// GetOrLoad returns the cached value for key, joins an in-flight load for it,
// or starts a new load. The load itself is detached from ctx: a caller that
// gives up gets StatusAbandoned while the load completes for everyone else.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string) Result[V] {
	if err := ctx.Err(); err != nil {
		return c.finish(Result[V]{Status: StatusAbandoned, Err: err})
	}

	c.mu.Lock()
	if v, ok := c.entries.Get(key); ok {
		c.mu.Unlock()
		return c.finish(Result[V]{Value: v.(entry[V]).value, Status: StatusHit})
	}
	_, joining := c.pending[key]
	if !joining {
		c.pending[key] = struct{}{}
	}
	gen := c.gen
	// DoChan runs under c.mu so the pending check and the join are atomic with
	// respect to Clear.
	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(ctx, key, gen)
	})
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return c.finish(Result[V]{Status: StatusAbandoned, Err: ctx.Err()})
	case res := <-ch:
		switch {
		case errors.Is(res.Err, errNoValue):
			return c.finish(Result[V]{Status: StatusNotFound})
		case res.Err != nil:
			return c.finish(Result[V]{Status: StatusFailed, Err: res.Err})
		case joining:
			return c.finish(Result[V]{Value: res.Val.(V), Status: StatusCoalesced})
		default:
			return c.finish(Result[V]{Value: res.Val.(V), Status: StatusLoaded})
		}
	}
}

func (c *Cache[V]) load(callerCtx context.Context, key string, gen uint64) (any, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), c.loadTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, c.name+".load", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	start := c.clock.Now()
	value, found, err := c.resolve(ctx, key)
	elapsed := c.clock.Since(start)
	if c.metrics != nil {
		c.metrics.LoadDuration.Observe(elapsed.Seconds())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.gen == gen
	if current {
		// Forget under c.mu so pending and the singleflight table settle
		// together: a caller arriving after this starts a fresh load instead
		// of joining one that has already finished.
		delete(c.pending, key)
		c.group.Forget(key)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		c.logger.DebugContext(ctx, "cache load failed", "cache", c.name, "key", key, "error", err)
		return nil, err
	}
	if !found {
		span.SetAttributes(attribute.Bool("cache.found", false))
		return nil, errNoValue
	}
	if !current {
		// Cleared while loading; hand the value to waiting callers only.
		return value, nil
	}
	c.entries.Add(key, entry[V]{value: value, loadedAt: c.clock.Now()})
	c.metrics.setSize(c.entries.Len())
	return value, nil
}

// onEvict runs under c.mu from inside simplelru.
func (c *Cache[V]) onEvict(key, _ any) {
	if c.clearing {
		return
	}
	c.metrics.observeEviction()
	c.logger.Debug("cache entry evicted", "cache", c.name, "key", key)
}

func (c *Cache[V]) finish(r Result[V]) Result[V] {
	c.metrics.observeLookup(r.Status)
	return r
}

// Peek returns the cached value and its load time without promoting it.
func (c *Cache[V]) Peek(key string) (V, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries.Peek(key)
	if !ok {
		var zero V
		return zero, time.Time{}, false
	}
	e := v.(entry[V])
	return e.value, e.loadedAt, true
}

// Contains reports whether key is resident, without promoting it.
func (c *Cache[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Contains(key)
}

// Pending reports whether a load for key is in flight.
func (c *Cache[V]) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Size returns the number of resident entries.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Capacity returns the configured maximum number of entries.
func (c *Cache[V]) Capacity() int {
	return c.capacity
}

// Keys returns resident keys from least to most recently used.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw := c.entries.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	return keys
}

// Clear empties the cache and the pending table. Loads already in flight
// still answer their waiting callers but do not repopulate the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearing = true
	c.entries.Purge()
	c.clearing = false
	for key := range c.pending {
		c.group.Forget(key)
	}
	c.pending = make(map[string]struct{})
	c.gen++
	c.metrics.setSize(0)
}

// Warm preloads keys in the background. Failures are logged at debug level and
// otherwise ignored. The returned channel closes when every key has settled.
func (c *Cache[V]) Warm(ctx context.Context, keys ...string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(warmConcurrency)
		for _, key := range keys {
			g.Go(func() error {
				if res := c.GetOrLoad(ctx, key); !res.OK() {
					c.logger.DebugContext(ctx, "cache warm-up skipped key",
						"cache", c.name,
						"key", key,
						"status", res.Status,
					)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return done
}
