package geo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Detections *prometheus.CounterVec
	Latency    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Detections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idforge_geo_detections_total",
			Help: "Geo detections by outcome (observed or the fallback reason)",
		}, []string{"outcome"}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idforge_geo_detection_duration_seconds",
			Help:    "Time spent waiting for geo detection",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),
	}
}

func (m *Metrics) observe(info Info, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "observed"
	if info.Fallback {
		outcome = info.Reason
	}
	m.Detections.WithLabelValues(outcome).Inc()
	m.Latency.Observe(d.Seconds())
}
