package iconcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"idforge/internal/platform/logger"
	"idforge/pkg/platform/sentinel"
)

// countingResolver returns "icon:<key>" and counts calls per key. Keys listed
// in missing resolve to not-found; keys in failing return an error.
type countingResolver struct {
	mu      sync.Mutex
	calls   map[string]int
	missing map[string]bool
	failing map[string]bool
}

func newCountingResolver() *countingResolver {
	return &countingResolver{
		calls:   make(map[string]int),
		missing: make(map[string]bool),
		failing: make(map[string]bool),
	}
}

func (r *countingResolver) resolve(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[key]++
	if r.failing[key] {
		return "", false, errors.New("asset backend down")
	}
	if r.missing[key] {
		return "", false, nil
	}
	return "icon:" + key, true, nil
}

func (r *countingResolver) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}

// gatedResolver blocks every call until release is closed.
type gatedResolver struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	once    sync.Once
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{started: make(chan struct{}), release: make(chan struct{})}
}

func (r *gatedResolver) resolve(_ context.Context, key string) (string, bool, error) {
	r.calls.Add(1)
	r.once.Do(func() { close(r.started) })
	<-r.release
	return "icon:" + key, true, nil
}

type CacheSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *clockwork.FakeClock
	resolver *countingResolver
	cache    *Cache[string]
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClock()
	s.resolver = newCountingResolver()
	s.cache = s.newCache(DefaultCapacity, s.resolver.resolve)
}

func (s *CacheSuite) newCache(capacity int, resolve Resolver[string], opts ...Option) *Cache[string] {
	opts = append([]Option{WithClock(s.clock), WithLogger(logger.Discard())}, opts...)
	c, err := New(capacity, resolve, opts...)
	s.Require().NoError(err)
	return c
}

func (s *CacheSuite) TestNew_RejectsMisconfiguration() {
	_, err := New[string](0, s.resolver.resolve)
	s.True(errors.Is(err, sentinel.ErrMisconfigured))

	_, err = New[string](3, nil)
	s.True(errors.Is(err, sentinel.ErrMisconfigured))
}

func (s *CacheSuite) TestGetOrLoad_HitAfterLoad() {
	first := s.cache.GetOrLoad(s.ctx, "US")
	s.Require().True(first.OK())
	s.Equal(StatusLoaded, first.Status)
	s.Equal("icon:US", first.Value)

	second := s.cache.GetOrLoad(s.ctx, "US")
	s.Equal(StatusHit, second.Status)
	s.Equal(first.Value, second.Value)
	s.Equal(1, s.resolver.count("US"), "a hit must not call the resolver")
}

func (s *CacheSuite) TestGetOrLoad_RecordsLoadTime() {
	loadedAt := s.clock.Now()
	s.cache.GetOrLoad(s.ctx, "FR")
	s.clock.Advance(time.Hour)

	v, at, ok := s.cache.Peek("FR")
	s.Require().True(ok)
	s.Equal("icon:FR", v)
	s.True(at.Equal(loadedAt))
}

func (s *CacheSuite) TestGetOrLoad_FailureIsNotCached() {
	s.resolver.failing["DE"] = true

	res := s.cache.GetOrLoad(s.ctx, "DE")
	s.Equal(StatusFailed, res.Status)
	s.Error(res.Err)
	s.Empty(res.Value)
	s.False(s.cache.Contains("DE"))
	s.False(s.cache.Pending("DE"), "pending entry is removed after failure")

	s.resolver.mu.Lock()
	s.resolver.failing["DE"] = false
	s.resolver.mu.Unlock()

	res = s.cache.GetOrLoad(s.ctx, "DE")
	s.Equal(StatusLoaded, res.Status)
	s.Equal(2, s.resolver.count("DE"))
}

func (s *CacheSuite) TestGetOrLoad_NotFoundIsNotCached() {
	s.resolver.missing["XX"] = true

	res := s.cache.GetOrLoad(s.ctx, "XX")
	s.Equal(StatusNotFound, res.Status)
	s.NoError(res.Err)
	s.False(res.OK())
	s.False(s.cache.Contains("XX"))
	s.Equal(0, s.cache.Size())
}

func (s *CacheSuite) TestEviction_CapacityScenario() {
	keys := make([]string, 0, 32)
	for i := 1; i <= 32; i++ {
		keys = append(keys, fmt.Sprintf("k%d", i))
	}

	for _, k := range keys[:31] {
		s.Require().True(s.cache.GetOrLoad(s.ctx, k).OK())
		s.LessOrEqual(s.cache.Size(), 30)
	}
	s.Equal(30, s.cache.Size())
	s.False(s.cache.Contains("k1"), "k1 is the least recently used entry")
	for _, k := range keys[1:31] {
		s.True(s.cache.Contains(k), "%s should remain", k)
	}

	s.Equal(StatusHit, s.cache.GetOrLoad(s.ctx, "k2").Status)

	s.Require().True(s.cache.GetOrLoad(s.ctx, "k32").OK())
	s.Equal(30, s.cache.Size())
	s.True(s.cache.Contains("k2"), "touched entry survives")
	s.False(s.cache.Contains("k3"), "oldest untouched entry is evicted")
}

func (s *CacheSuite) TestEviction_RecencyProtectsTouchedEntries() {
	c := s.newCache(3, s.resolver.resolve)
	for _, k := range []string{"a", "b", "c"} {
		c.GetOrLoad(s.ctx, k)
	}
	s.Equal([]string{"a", "b", "c"}, c.Keys())

	c.GetOrLoad(s.ctx, "a")
	s.Equal([]string{"b", "c", "a"}, c.Keys())

	c.GetOrLoad(s.ctx, "d")
	s.Equal([]string{"c", "a", "d"}, c.Keys())
}

func (s *CacheSuite) TestContains_DoesNotPromote() {
	c := s.newCache(2, s.resolver.resolve)
	c.GetOrLoad(s.ctx, "a")
	c.GetOrLoad(s.ctx, "b")

	s.True(c.Contains("a"))
	c.GetOrLoad(s.ctx, "c")

	s.False(c.Contains("a"))
	s.Equal([]string{"b", "c"}, c.Keys())
}

func (s *CacheSuite) TestGetOrLoad_CoalescesConcurrentLoads() {
	gate := newGatedResolver()
	c := s.newCache(DefaultCapacity, gate.resolve)

	const callers = 10
	results := make([]Result[string], callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = c.GetOrLoad(s.ctx, "JP")
	}()
	<-gate.started
	s.True(c.Pending("JP"))

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.GetOrLoad(s.ctx, "JP")
		}()
	}
	close(gate.release)
	wg.Wait()

	s.Equal(int32(1), gate.calls.Load(), "at most one load per key")
	s.Equal(StatusLoaded, results[0].Status)
	for i := 1; i < callers; i++ {
		s.Equal("icon:JP", results[i].Value)
		s.Contains([]Status{StatusCoalesced, StatusHit}, results[i].Status)
	}
	s.False(c.Pending("JP"))
	s.True(c.Contains("JP"))
}

func (s *CacheSuite) TestGetOrLoad_AbandonedCallerDoesNotCancelLoad() {
	gate := newGatedResolver()
	c := s.newCache(DefaultCapacity, gate.resolve)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan Result[string], 1)
	go func() { done <- c.GetOrLoad(ctx, "CN") }()
	<-gate.started

	cancel()
	res := <-done
	s.Equal(StatusAbandoned, res.Status)
	s.ErrorIs(res.Err, context.Canceled)

	close(gate.release)
	s.Eventually(func() bool { return c.Contains("CN") }, time.Second, 5*time.Millisecond)
	s.Equal(int32(1), gate.calls.Load())
}

func (s *CacheSuite) TestGetOrLoad_PendingSettlesWithEveryLoad() {
	s.resolver.failing["DE"] = true
	const rounds, callers = 200, 16

	for range rounds {
		var wg sync.WaitGroup
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := s.cache.GetOrLoad(s.ctx, "DE")
				s.Equal(StatusFailed, res.Status)
			}()
		}
		wg.Wait()
		s.Require().False(s.cache.Pending("DE"), "no load may outlive its callers in the pending table")
	}
}

func (s *CacheSuite) TestGetOrLoad_CallerAfterSettleStartsFreshLoad() {
	gate := newGatedResolver()
	c := s.newCache(DefaultCapacity, gate.resolve)

	done := make(chan Result[string], 1)
	go func() { done <- c.GetOrLoad(s.ctx, "MX") }()
	<-gate.started
	close(gate.release)
	s.Equal(StatusLoaded, (<-done).Status)

	c.Clear()
	res := c.GetOrLoad(s.ctx, "MX")
	s.Equal(StatusLoaded, res.Status, "a settled load is never joined")
	s.Equal(int32(2), gate.calls.Load())
	s.False(c.Pending("MX"))
}

func (s *CacheSuite) TestClear() {
	s.cache.GetOrLoad(s.ctx, "US")
	s.cache.GetOrLoad(s.ctx, "GB")
	s.Require().Equal(2, s.cache.Size())

	s.cache.Clear()
	s.Equal(0, s.cache.Size())
	s.Empty(s.cache.Keys())

	s.Equal(StatusLoaded, s.cache.GetOrLoad(s.ctx, "US").Status)
	s.Equal(2, s.resolver.count("US"))
}

func (s *CacheSuite) TestClear_InFlightLoadDoesNotRepopulate() {
	gate := newGatedResolver()
	c := s.newCache(DefaultCapacity, gate.resolve)

	done := make(chan Result[string], 1)
	go func() { done <- c.GetOrLoad(s.ctx, "BR") }()
	<-gate.started

	c.Clear()
	s.False(c.Pending("BR"))
	close(gate.release)

	res := <-done
	s.Equal(StatusLoaded, res.Status, "waiting caller still receives the value")
	s.False(c.Contains("BR"))
}

func (s *CacheSuite) TestWarm() {
	s.resolver.missing["ZZ"] = true
	s.resolver.failing["QQ"] = true

	select {
	case <-s.cache.Warm(s.ctx, "US", "GB", "ZZ", "QQ"):
	case <-time.After(time.Second):
		s.FailNow("warm-up did not finish")
	}

	s.True(s.cache.Contains("US"))
	s.True(s.cache.Contains("GB"))
	s.False(s.cache.Contains("ZZ"))
	s.False(s.cache.Contains("QQ"))
	s.Equal(2, s.cache.Size())
}

func TestCache_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "flags")
	resolver := newCountingResolver()
	c, err := New(2, resolver.resolve, WithMetrics(m), WithLogger(logger.Discard()))
	require.NoError(t, err)

	ctx := context.Background()
	c.GetOrLoad(ctx, "a")
	c.GetOrLoad(ctx, "a")
	c.GetOrLoad(ctx, "b")
	c.GetOrLoad(ctx, "c")

	assert.Equal(t, 3.0, promtest.ToFloat64(m.Lookups.WithLabelValues(string(StatusLoaded))))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Lookups.WithLabelValues(string(StatusHit))))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Evictions))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.Size))

	c.Clear()
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Evictions), "clear is not counted as eviction")
	assert.Equal(t, 0.0, promtest.ToFloat64(m.Size))
}
