// Package metrics exports request pipeline measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwygoda/tokbot/internal/domain"
)

const namespace = "tokbot"

// Collector implements domain.Observer on a private registry.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal         *prometheus.CounterVec
	providerAttemptsTotal *prometheus.CounterVec
	deliveredBytesTotal   *prometheus.CounterVec
	requestDuration       *prometheus.HistogramVec
	requestsInFlight      prometheus.Gauge
}

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of handled download requests",
			},
			[]string{"kind", "status"}, // status: success, failure
		),
		providerAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Total number of provider invocations by result",
			},
			[]string{"provider", "result"}, // result: success, empty, fetch_failed, oversize, unrecognized, error
		),
		deliveredBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivered_bytes_total",
				Help:      "Total bytes delivered to users",
			},
			[]string{"kind"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Histogram of end-to-end request duration in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 180},
			},
			[]string{"status"},
		),
		requestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently holding a concurrency slot",
			},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.providerAttemptsTotal,
		c.deliveredBytesTotal,
		c.requestDuration,
		c.requestsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ProviderAttempt implements domain.Observer.
func (c *Collector) ProviderAttempt(provider, result string) {
	c.providerAttemptsTotal.WithLabelValues(provider, result).Inc()
}

// InFlight implements domain.Observer.
func (c *Collector) InFlight(delta int) {
	c.requestsInFlight.Add(float64(delta))
}

// RequestFinished implements domain.Observer.
func (c *Collector) RequestFinished(out domain.DeliveryOutcome, elapsed time.Duration) {
	status := "failure"
	if out.Success {
		status = "success"
		c.deliveredBytesTotal.WithLabelValues(out.Kind.String()).Add(float64(out.TotalBytes))
	}
	c.requestsTotal.WithLabelValues(out.Kind.String(), status).Inc()
	c.requestDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
