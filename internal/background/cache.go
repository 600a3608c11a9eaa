package background

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"

	"idforge/internal/storage"
	"idforge/pkg/platform/sentinel"
)

// StorageKey is where the record lives in the key/value store.
const StorageKey = "background_cache"

const (
	DefaultTTL     = 24 * time.Hour
	DefaultVersion = "v1"
)

// ReadStatus reports which path Read took.
type ReadStatus string

const (
	StatusHit             ReadStatus = "hit"
	StatusMissEmpty       ReadStatus = "miss_empty"
	StatusMissCorrupt     ReadStatus = "miss_corrupt"
	StatusMissExpired     ReadStatus = "miss_expired"
	StatusMissVersion     ReadStatus = "miss_version"
	StatusMissUnavailable ReadStatus = "miss_unavailable"
)

// ReadResult carries the cached URL on a hit and the path taken otherwise.
type ReadResult struct {
	URL    string
	Status ReadStatus
}

// Hit reports whether URL is usable.
func (r ReadResult) Hit() bool {
	return r.Status == StatusHit
}

// Cache persists a single versioned, timestamped URL. Nothing it does returns
// an error: storage failures degrade to cache misses.
type Cache struct {
	store   storage.Store
	key     string
	version string
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *Metrics
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithVersion sets the schema tag; records written under another tag are
// discarded on read.
func WithVersion(version string) CacheOption {
	return func(c *Cache) {
		if version != "" {
			c.version = version
		}
	}
}

func WithKey(key string) CacheOption {
	return func(c *Cache) {
		if key != "" {
			c.key = key
		}
	}
}

func WithClock(clock clockwork.Clock) CacheOption {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache builds a Cache over store.
func NewCache(store storage.Store, opts ...CacheOption) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("background cache store is required: %w", sentinel.ErrMisconfigured)
	}
	c := &Cache{
		store:   store,
		key:     StorageKey,
		version: DefaultVersion,
		ttl:     DefaultTTL,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Valid applies the cache's version and TTL to rec.
func (c *Cache) Valid(rec *Record, now time.Time) bool {
	return Valid(rec, now, c.version, c.ttl)
}

// Read returns the cached URL when the stored record is well formed, carries
// the current version and is younger than the TTL. Any other stored record is
// deleted.
func (c *Cache) Read(ctx context.Context) ReadResult {
	res := c.read(ctx)
	c.metrics.observeRead(res.Status)
	return res
}

func (c *Cache) read(ctx context.Context) ReadResult {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return ReadResult{Status: StatusMissEmpty}
	}
	if err != nil {
		c.logger.WarnContext(ctx, "background cache read failed", "key", c.key, "error", err)
		return ReadResult{Status: StatusMissUnavailable}
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.URL == "" {
		c.logger.InfoContext(ctx, "discarding malformed background record", "key", c.key)
		c.purge(ctx)
		return ReadResult{Status: StatusMissCorrupt}
	}
	if rec.Version != c.version {
		c.logger.InfoContext(ctx, "discarding background record from another version",
			"stored_version", rec.Version,
			"current_version", c.version,
		)
		c.purge(ctx)
		return ReadResult{Status: StatusMissVersion}
	}
	now := c.clock.Now()
	if !c.Valid(&rec, now) {
		c.logger.InfoContext(ctx, "background record expired",
			"written", humanize.RelTime(time.UnixMilli(rec.Timestamp), now, "ago", "from now"),
			"ttl", c.ttl.String(),
		)
		c.purge(ctx)
		return ReadResult{Status: StatusMissExpired}
	}
	return ReadResult{URL: rec.URL, Status: StatusHit}
}

// Write stores url stamped with the current time and version, replacing any
// previous record. It reports whether the write reached the store.
func (c *Cache) Write(ctx context.Context, url string) bool {
	rec := Record{
		URL:       url,
		Timestamp: c.clock.Now().UnixMilli(),
		Version:   c.version,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		c.logger.WarnContext(ctx, "encode background record", "error", err)
		return false
	}
	if err := c.store.Set(ctx, c.key, string(b)); err != nil {
		c.logger.WarnContext(ctx, "background cache write failed", "key", c.key, "error", err)
		return false
	}
	return true
}

// Clear removes the stored record.
func (c *Cache) Clear(ctx context.Context) {
	c.purge(ctx)
}

func (c *Cache) purge(ctx context.Context) {
	if err := c.store.Delete(ctx, c.key); err != nil {
		c.logger.WarnContext(ctx, "background cache delete failed", "key", c.key, "error", err)
	}
}
