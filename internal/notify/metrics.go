package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts delivery outcomes per sink and event kind.
type Metrics struct {
	deliveries *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the notification metrics. A nil registerer uses the
// default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Event deliveries by sink, kind and outcome.",
		}, []string{"sink", "kind", "outcome"}),
	}
	registerer.MustRegister(m.deliveries)
	return m
}

func (m *Metrics) observe(sink, kind string, err error) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.deliveries.WithLabelValues(sink, kind, outcome).Inc()
}
