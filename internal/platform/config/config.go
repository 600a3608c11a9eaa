package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"idforge/pkg/platform/sentinel"
	strutil "idforge/pkg/platform/strings"
)

// Config captures everything main needs to wire the service.
type Config struct {
	Server     Server
	Log        Log
	Redis      RedisConfig
	Postgres   PostgresConfig
	Flags      Flags
	Geo        Geo
	Background Background
	// PersistDebounce delays snapshot writes of saved identities until
	// mutations settle.
	PersistDebounce time.Duration
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

type Log struct {
	Level  string
	Format string
}

// RedisConfig configures the optional Redis backend. An empty URL keeps all
// key/value state in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional saved-identity database.
type PostgresConfig struct {
	URL string
}

type Flags struct {
	CacheCapacity int
	CDNURL        string
	AssetDir      string
	LoadTimeout   time.Duration
	// WarmCodes are preloaded at startup. Empty means the built-in set.
	WarmCodes []string
}

type Geo struct {
	LookupURL      string
	Timeout        time.Duration
	DefaultCountry string
	// BreakerThreshold consecutive failures open the lookup circuit for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type Background struct {
	TTL          time.Duration
	Version      string
	SourceURL    string
	FallbackURL  string
	FetchTimeout time.Duration
}

// Defaults mirror the values used when an env var is unset.
const (
	DefaultAddr               = ":8080"
	DefaultFlagCacheCapacity  = 30
	DefaultFlagCDNURL         = "https://flagcdn.com/{code}.svg"
	DefaultGeoLookupURL       = "https://ipapi.co/{ip}/json/"
	DefaultGeoTimeout         = 3 * time.Second
	DefaultGeoCountry         = "US"
	DefaultGeoBreakerFailures = 5
	DefaultGeoBreakerCooldown = 30 * time.Second
	DefaultBackgroundTTL      = 24 * time.Hour
	DefaultBackgroundVersion  = "v1"
	DefaultBackgroundSource   = "https://picsum.photos/1920/1080"
	DefaultBackgroundFallback = "/static/background.jpg"
	DefaultPersistDebounce    = 500 * time.Millisecond
)

// FromEnv builds a Config from environment variables so main stays lean.
// Unset variables fall back to defaults; malformed ones are reported.
func FromEnv() (Config, error) {
	r := envReader{lookup: os.LookupEnv}

	cfg := Config{
		Server: Server{
			Addr: r.str("IDFORGE_ADDR", DefaultAddr),
		},
		Log: Log{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: r.str("DATABASE_URL", ""),
		},
		Flags: Flags{
			CacheCapacity: r.integer("FLAG_CACHE_CAPACITY", DefaultFlagCacheCapacity),
			CDNURL:        r.str("FLAG_CDN_URL", DefaultFlagCDNURL),
			AssetDir:      r.str("FLAG_ASSET_DIR", ""),
			LoadTimeout:   r.duration("FLAG_LOAD_TIMEOUT", 10*time.Second),
			WarmCodes:     r.list("FLAG_WARM_CODES"),
		},
		Geo: Geo{
			LookupURL:        r.str("GEO_LOOKUP_URL", DefaultGeoLookupURL),
			Timeout:          r.duration("GEO_TIMEOUT", DefaultGeoTimeout),
			DefaultCountry:   r.str("GEO_DEFAULT_COUNTRY", DefaultGeoCountry),
			BreakerThreshold: r.integer("GEO_BREAKER_FAILURES", DefaultGeoBreakerFailures),
			BreakerCooldown:  r.duration("GEO_BREAKER_COOLDOWN", DefaultGeoBreakerCooldown),
		},
		Background: Background{
			TTL:          r.duration("BACKGROUND_TTL", DefaultBackgroundTTL),
			Version:      r.str("BACKGROUND_VERSION", DefaultBackgroundVersion),
			SourceURL:    r.str("BACKGROUND_SOURCE_URL", DefaultBackgroundSource),
			FallbackURL:  r.str("BACKGROUND_FALLBACK_URL", DefaultBackgroundFallback),
			FetchTimeout: r.duration("BACKGROUND_FETCH_TIMEOUT", 10*time.Second),
		},
		PersistDebounce: r.duration("PERSIST_DEBOUNCE", DefaultPersistDebounce),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if cfg.Flags.CacheCapacity < 1 {
		return Config{}, fmt.Errorf("FLAG_CACHE_CAPACITY must be at least 1, got %d: %w", cfg.Flags.CacheCapacity, sentinel.ErrMisconfigured)
	}
	if cfg.Geo.BreakerThreshold < 0 {
		return Config{}, fmt.Errorf("GEO_BREAKER_FAILURES must not be negative, got %d: %w", cfg.Geo.BreakerThreshold, sentinel.ErrMisconfigured)
	}
	return cfg, nil
}

// envReader collects the first parse error so FromEnv reads top to bottom.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && v != "" {
		return v
	}
	return def
}

// list reads a comma separated value, upper-cased and deduplicated.
func (r *envReader) list(key string) []string {
	v, _ := r.lookup(key)
	return strutil.DedupeAndTrimUpper(strutil.SplitList(v, ","))
}

func (r *envReader) integer(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("parse %s: %w", key, err))
		return def
	}
	return n
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(fmt.Errorf("parse %s: %w", key, err))
		return def
	}
	return d
}

func (r *envReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
