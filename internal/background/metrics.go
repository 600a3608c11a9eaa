package background

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Reads          *prometheus.CounterVec
	SourceFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Reads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idforge_background_cache_reads_total",
			Help: "Background cache reads by status",
		}, []string{"status"}),
		SourceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "idforge_background_source_failures_total",
			Help: "Background source fetches that fell back to the default image",
		}),
	}
}

func (m *Metrics) observeRead(status ReadStatus) {
	if m == nil {
		return
	}
	m.Reads.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) incSourceFailure() {
	if m == nil {
		return
	}
	m.SourceFailures.Inc()
}
