// Package metrics exposes the sync server's Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace   = "journalsync"
	entityLabel = "entity"
)

// Metrics manages the metric information the server measures. It owns a
// private registry so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	uploadedRecordsTotal *prometheus.CounterVec
	deletedRecordsTotal  *prometheus.CounterVec
	sentChangesTotal     *prometheus.CounterVec
	sentDeletionsTotal   *prometheus.CounterVec
	mediaBytesTotal      prometheus.Counter
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		httpRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests completed, by route and status code.",
		}, []string{"method", "route", "code"}),
		httpRequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "The response time of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploadedRecordsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "uploaded_records_total",
			Help:      "The total count of records accepted by upload endpoints.",
		}, []string{entityLabel}),
		deletedRecordsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "deleted_records_total",
			Help:      "The total count of records tombstoned by delete endpoints.",
		}, []string{entityLabel}),
		sentChangesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "sent_changes_total",
			Help:      "The total count of live records returned in change-sets.",
		}, []string{entityLabel}),
		sentDeletionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "sent_deletions_total",
			Help:      "The total count of deletion markers returned in change-sets.",
		}, []string{entityLabel}),
		mediaBytesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "received_bytes_total",
			Help:      "The total number of media bytes received.",
		}),
	}, nil
}

// ObserveRequest records one completed HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) AddUploaded(entity string, n int) {
	m.uploadedRecordsTotal.WithLabelValues(entity).Add(float64(n))
}

func (m *Metrics) AddDeleted(entity string, n int) {
	m.deletedRecordsTotal.WithLabelValues(entity).Add(float64(n))
}

// AddChangeSet records the size of a served change-set.
func (m *Metrics) AddChangeSet(entity string, changes, deletions int) {
	m.sentChangesTotal.WithLabelValues(entity).Add(float64(changes))
	m.sentDeletionsTotal.WithLabelValues(entity).Add(float64(deletions))
}

func (m *Metrics) AddMediaBytes(n int64) {
	m.mediaBytesTotal.Add(float64(n))
}

// Registry returns the registry of Prometheus.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
