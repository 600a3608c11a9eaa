package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"idforge/internal/background"
	backgroundhandler "idforge/internal/background/handler"
	"idforge/internal/flags"
	flagshandler "idforge/internal/flags/handler"
	"idforge/internal/geo"
	geohandler "idforge/internal/geo/handler"
	"idforge/internal/iconcache"
	"idforge/internal/identity"
	identityhandler "idforge/internal/identity/handler"
	identitystore "idforge/internal/identity/store"
	"idforge/internal/platform/config"
	"idforge/internal/platform/httpserver"
	"idforge/internal/platform/logger"
	"idforge/internal/platform/metrics"
	"idforge/internal/platform/redis"
	"idforge/internal/storage"
	httptransport "idforge/internal/transport/http"
	"idforge/pkg/platform/circuit"
)

const (
	shutdownTimeout = 10 * time.Second
	upstreamTimeout = 15 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "idforge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	clock := clockwork.NewRealClock()
	upstream := &http.Client{Timeout: upstreamTimeout}
	health := map[string]httptransport.HealthCheck{}

	kv, closeKV, err := openKeyValue(ctx, cfg.Redis, log, health)
	if err != nil {
		return err
	}
	defer closeKV()

	geoOpts := []geo.Option{
		geo.WithTimeout(cfg.Geo.Timeout),
		geo.WithDefaultCountry(cfg.Geo.DefaultCountry),
		geo.WithClock(clock),
		geo.WithLogger(log),
		geo.WithMetrics(geo.NewMetrics(reg)),
	}
	if cfg.Geo.BreakerThreshold > 0 {
		geoOpts = append(geoOpts, geo.WithBreaker(circuit.New("geo-lookup",
			circuit.WithFailureThreshold(cfg.Geo.BreakerThreshold),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(cfg.Geo.BreakerCooldown),
			circuit.WithClock(clock),
		)))
	}
	detector, err := geo.NewDetector(geo.HTTPLookup(upstream, cfg.Geo.LookupURL), geoOpts...)
	if err != nil {
		return fmt.Errorf("geo detector: %w", err)
	}

	flagService, err := newFlagService(cfg.Flags, upstream, clock, log, reg)
	if err != nil {
		return err
	}
	flagService.Warm(ctx, cfg.Flags.WarmCodes...)

	backgroundService, err := newBackgroundService(cfg.Background, kv, upstream, clock, log, reg)
	if err != nil {
		return err
	}

	identityStore, closeStore, err := openIdentityStore(ctx, cfg, kv, clock, log, health)
	if err != nil {
		return err
	}
	// Runs after srv.Shutdown on the normal path, so saved identities are
	// flushed once the last request has finished.
	defer closeStore()
	identityService, err := identity.NewService(identity.NewGenerator(0, clock), identityStore, detector, log)
	if err != nil {
		return fmt.Errorf("identity service: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger:   log,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Health:   health,
	},
		flagshandler.New(flagService, log),
		backgroundhandler.New(backgroundService, log),
		geohandler.New(detector, log),
		identityhandler.New(identityService, log),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting idforge", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openKeyValue returns Redis when configured and process memory otherwise.
func openKeyValue(ctx context.Context, cfg config.RedisConfig, log *slog.Logger, health map[string]httptransport.HealthCheck) (storage.Store, func(), error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		log.Info("REDIS_URL not set, keeping key/value state in memory")
		return storage.NewMemoryStore(), func() {}, nil
	}
	health["redis"] = client.Health
	return storage.NewRedisStore(client.Client), func() {
		if err := client.Close(); err != nil {
			log.Warn("close redis", "error", err)
		}
	}, nil
}

func newFlagService(cfg config.Flags, client *http.Client, clock clockwork.Clock, log *slog.Logger, reg prometheus.Registerer) (*flags.Service, error) {
	resolve := flags.HTTPResolver(client, cfg.CDNURL)
	if cfg.AssetDir != "" {
		resolve = flags.FSResolver(os.DirFS(cfg.AssetDir))
	}
	cache, err := iconcache.New(cfg.CacheCapacity, resolve,
		iconcache.WithName("flags"),
		iconcache.WithClock(clock),
		iconcache.WithLogger(log),
		iconcache.WithMetrics(iconcache.NewMetrics(reg, "flags")),
		iconcache.WithLoadTimeout(cfg.LoadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("flag cache: %w", err)
	}
	return flags.NewService(cache, log)
}

func newBackgroundService(cfg config.Background, kv storage.Store, client *http.Client, clock clockwork.Clock, log *slog.Logger, reg prometheus.Registerer) (*background.Service, error) {
	m := background.NewMetrics(reg)
	cache, err := background.NewCache(kv,
		background.WithTTL(cfg.TTL),
		background.WithVersion(cfg.Version),
		background.WithClock(clock),
		background.WithLogger(log),
		background.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("background cache: %w", err)
	}
	return background.NewService(cache, background.NewHTTPSource(client, cfg.SourceURL), cfg.FallbackURL, log, m,
		background.WithFetchTimeout(cfg.FetchTimeout),
	)
}

// openIdentityStore returns Postgres when DATABASE_URL is set and the
// debounced key/value snapshot otherwise. The returned func flushes and
// releases the store.
func openIdentityStore(ctx context.Context, cfg config.Config, kv storage.Store, clock clockwork.Clock, log *slog.Logger, health map[string]httptransport.HealthCheck) (identity.Store, func(), error) {
	if cfg.Postgres.URL == "" {
		snap, err := identitystore.NewSnapshotStore(ctx, kv, cfg.PersistDebounce,
			identitystore.WithSnapshotClock(clock),
			identitystore.WithSnapshotLogger(log),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("identity snapshot store: %w", err)
		}
		return snap, func() {
			if err := snap.Close(); err != nil {
				log.Error("flush saved identities", "error", err)
			}
		}, nil
	}

	db, err := sql.Open("postgres", cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	pg := identitystore.NewPostgres(db)
	if err := pg.Health(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	health["postgres"] = pg.Health
	return pg, func() {
		if err := db.Close(); err != nil {
			log.Warn("close postgres", "error", err)
		}
	}, nil
}
