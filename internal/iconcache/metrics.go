package iconcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports cache behaviour. Every series carries a "cache" label so
// several caches can share one registry.
type Metrics struct {
	Lookups      *prometheus.CounterVec
	Evictions    prometheus.Counter
	Size         prometheus.Gauge
	LoadDuration prometheus.Histogram
}

// NewMetrics registers cache metrics for the named cache on reg.
func NewMetrics(reg prometheus.Registerer, cache string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"cache": cache}
	return &Metrics{
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "idforge_cache_lookups_total",
			Help:        "Cache lookups by outcome (hit, loaded, coalesced, not_found, failed, abandoned)",
			ConstLabels: labels,
		}, []string{"status"}),
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name:        "idforge_cache_evictions_total",
			Help:        "Entries evicted to stay within capacity",
			ConstLabels: labels,
		}),
		Size: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "idforge_cache_entries",
			Help:        "Current number of resident entries",
			ConstLabels: labels,
		}),
		LoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "idforge_cache_load_duration_seconds",
			Help:        "Latency of resolver calls on cache misses",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) observeLookup(status Status) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) observeEviction() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
}

func (m *Metrics) setSize(n int) {
	if m == nil {
		return
	}
	m.Size.Set(float64(n))
}
