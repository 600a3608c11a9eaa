package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"idforge/pkg/platform/sentinel"
)

// DefaultFetchTimeout bounds one call to the Source.
const DefaultFetchTimeout = 10 * time.Second

// Image is what clients receive.
type Image struct {
	URL         string     `json:"url"`
	Cached      bool       `json:"cached"`
	Fallback    bool       `json:"fallback"`
	CacheStatus ReadStatus `json:"cache_status"`
}

// Service serves the current background, refreshing it from Source when the
// cache misses. A failing source yields the fallback URL, which is not cached.
type Service struct {
	cache       *Cache
	source      Source
	fallbackURL string
	logger      *slog.Logger
	metrics     *Metrics
	fetches     singleflight.Group
	timeout     time.Duration
}

type ServiceOption func(*Service)

// WithFetchTimeout bounds each Source call. Non-positive values are ignored.
func WithFetchTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewService(cache *Cache, source Source, fallbackURL string, logger *slog.Logger, metrics *Metrics, opts ...ServiceOption) (*Service, error) {
	if cache == nil || source == nil {
		return nil, fmt.Errorf("background service requires cache and source: %w", sentinel.ErrMisconfigured)
	}
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		cache:       cache,
		source:      source,
		fallbackURL: fallbackURL,
		logger:      logger,
		metrics:     metrics,
		timeout:     DefaultFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Current returns the cached background or fetches a new one.
func (s *Service) Current(ctx context.Context) Image {
	res := s.cache.Read(ctx)
	if res.Hit() {
		return Image{URL: res.URL, Cached: true, CacheStatus: res.Status}
	}
	img := s.fetch(ctx)
	img.CacheStatus = res.Status
	return img
}

// Refresh discards the cached background and fetches a new one.
func (s *Service) Refresh(ctx context.Context) Image {
	s.cache.Clear(ctx)
	img := s.fetch(ctx)
	img.CacheStatus = StatusMissEmpty
	return img
}

// fetch shares one Source call among concurrent callers. The call is detached
// from the caller that started it, so a disconnecting client neither cancels
// it for the others nor prevents the result from being cached. A caller that
// gives up gets the fallback.
func (s *Service) fetch(ctx context.Context) Image {
	ch := s.fetches.DoChan("next", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		url, err := s.source.Next(fetchCtx)
		if err != nil {
			return "", err
		}
		s.cache.Write(fetchCtx, url)
		return url, nil
	})

	select {
	case <-ctx.Done():
		return Image{URL: s.fallbackURL, Fallback: true}
	case res := <-ch:
		if res.Err != nil {
			s.metrics.incSourceFailure()
			s.logger.WarnContext(ctx, "background source failed, using fallback", "error", res.Err)
			return Image{URL: s.fallbackURL, Fallback: true}
		}
		return Image{URL: res.Val.(string)}
	}
}
