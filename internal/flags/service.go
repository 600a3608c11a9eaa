package flags

import (
	"context"
	"fmt"
	"log/slog"

	"idforge/internal/iconcache"
	"idforge/pkg/platform/sentinel"
)

// CacheStats describes the icon cache contents.
type CacheStats struct {
	Size     int      `json:"size"`
	Capacity int      `json:"capacity"`
	Keys     []string `json:"keys"`
}

type Service struct {
	cache  *iconcache.Cache[Icon]
	logger *slog.Logger
}

func NewService(cache *iconcache.Cache[Icon], logger *slog.Logger) (*Service, error) {
	if cache == nil {
		return nil, fmt.Errorf("flag service requires an icon cache: %w", sentinel.ErrMisconfigured)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cache: cache, logger: logger}, nil
}

// Icon returns the flag for code along with the cache path taken. Unknown
// codes wrap ErrNotFound; resolver failures wrap ErrUnavailable.
func (s *Service) Icon(ctx context.Context, code string) (Icon, iconcache.Status, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Icon{}, "", err
	}

	res := s.cache.GetOrLoad(ctx, code)
	switch res.Status {
	case iconcache.StatusNotFound:
		return Icon{}, res.Status, fmt.Errorf("flag %s: %w", code, sentinel.ErrNotFound)
	case iconcache.StatusFailed:
		s.logger.WarnContext(ctx, "flag load failed", "code", code, "error", res.Err)
		return Icon{}, res.Status, fmt.Errorf("flag %s: %w: %w", code, sentinel.ErrUnavailable, res.Err)
	case iconcache.StatusAbandoned:
		return Icon{}, res.Status, res.Err
	}
	return res.Value, res.Status, nil
}

func (s *Service) Stats() CacheStats {
	return CacheStats{
		Size:     s.cache.Size(),
		Capacity: s.cache.Capacity(),
		Keys:     s.cache.Keys(),
	}
}

func (s *Service) Clear() {
	s.cache.Clear()
}

// Warm preloads codes, or DefaultWarmSet when none are given, in the
// background. Codes that are not valid country codes are skipped.
func (s *Service) Warm(ctx context.Context, codes ...string) <-chan struct{} {
	if len(codes) == 0 {
		codes = DefaultWarmSet
	}
	keys := make([]string, 0, len(codes))
	for _, raw := range codes {
		code, err := NormalizeCode(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping invalid warm-up flag code", "code", raw)
			continue
		}
		keys = append(keys, code)
	}
	return s.cache.Warm(ctx, keys...)
}
