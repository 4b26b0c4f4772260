// Package metrics exposes Prometheus counters for webhook verification.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification outcomes, used as the "result" label.
const (
	ResultValid     = "valid"
	ResultInvalid   = "invalid"
	ResultMalformed = "malformed"
	ResultExpired   = "expired"
)

// Metrics holds the collectors on their own registry so tests and multiple
// servers in one process don't collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	Verifications  *prometheus.CounterVec
	EventsArchived prometheus.Counter
	PublishErrors  prometheus.Counter
}

// New creates a Metrics with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webhooksig",
			Name:      "verifications_total",
			Help:      "Webhook deliveries by verification result",
		}, []string{"result"}),
		EventsArchived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "webhooksig",
			Name:      "events_archived_total",
			Help:      "Verified events written to storage",
		}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "webhooksig",
			Name:      "publish_errors_total",
			Help:      "Verified events that could not be queued",
		}),
	}

	// pre-create series so dashboards see zeros
	for _, r := range []string{ResultValid, ResultInvalid, ResultMalformed, ResultExpired} {
		m.Verifications.WithLabelValues(r)
	}

	return m
}

// Observe records one verification outcome.
func (m *Metrics) Observe(result string) {
	m.Verifications.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
