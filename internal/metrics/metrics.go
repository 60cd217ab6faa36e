// Package metrics holds the Prometheus collectors of the catalog service.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/repo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog"

// StatsSource provides the row counts exported as gauges
type StatsSource interface {
	GetStats(ctx context.Context) (*repo.CatalogStats, error)
}

// Metrics groups the collectors registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	events          *prometheus.CounterVec
	entities        *prometheus.GaugeVec
	instances       *prometheus.GaugeVec
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed, by route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Catalog events handed to the broker, by type and result.",
		}, []string{"event_type", "result"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Rows stored per catalog entity.",
		}, []string{"entity"}),
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_instances",
			Help:      "Book instances per loan status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.events,
		m.entities,
		m.instances,
	)
	return m
}

// ObserveRequest records one handled HTTP request
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveEvent records the outcome of publishing one event
func (m *Metrics) ObserveEvent(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.events.WithLabelValues(eventType, result).Inc()
}

// SetStats copies catalog counts into the gauges
func (m *Metrics) SetStats(stats *repo.CatalogStats) {
	m.entities.WithLabelValues("genre").Set(float64(stats.Genres))
	m.entities.WithLabelValues("language").Set(float64(stats.Languages))
	m.entities.WithLabelValues("author").Set(float64(stats.Authors))
	m.entities.WithLabelValues("book").Set(float64(stats.Books))
	m.entities.WithLabelValues("book_instance").Set(float64(stats.BookInstances))

	for _, status := range db.LoanStatuses() {
		m.instances.WithLabelValues(status.Name()).Set(float64(stats.InstancesByStatus[status]))
	}
}

// Refresh loads fresh counts from source
func (m *Metrics) Refresh(ctx context.Context, source StatsSource) error {
	stats, err := source.GetStats(ctx)
	if err != nil {
		return err
	}
	m.SetStats(stats)
	return nil
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
