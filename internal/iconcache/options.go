package iconcache

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCapacity bounds the number of resident entries.
const DefaultCapacity = 30

// DefaultLoadTimeout bounds a single resolver call.
const DefaultLoadTimeout = 10 * time.Second

const warmConcurrency = 4

type settings struct {
	name        string
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *Metrics
	loadTimeout time.Duration
}

// Option configures a Cache.
type Option func(*settings)

// WithName labels log lines and traces; defaults to "iconcache".
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithLoadTimeout bounds each resolver call. Non-positive values are ignored.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}
