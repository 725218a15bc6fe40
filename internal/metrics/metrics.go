// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dropfade"

// Metrics holds application metrics. A nil *Metrics is valid and records
// nothing, which keeps call sites free of nil checks.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	uploadsTotal      *prometheus.CounterVec
	uploadBytesTotal  *prometheus.CounterVec
	uploadErrorsTotal *prometheus.CounterVec
	consumedTotal     prometheus.Counter
	deletedTotal      *prometheus.CounterVec
	expiredTotal      *prometheus.CounterVec
	backendErrors     *prometheus.CounterVec
}

// New builds the collectors on a private registry, together with the Go
// runtime and process collectors.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Successful uploads by kind",
		}, []string{"kind"}),
		uploadBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes accepted by kind",
		}, []string{"kind"}),
		uploadErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_errors_total",
			Help:      "Rejected or failed uploads by reason",
		}, []string{"reason"}),
		consumedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumed_total",
			Help:      "Records marked as consumed",
		}),
		deletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deleted_total",
			Help:      "Records deleted on request by kind",
		}, []string{"kind"}),
		expiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_total",
			Help:      "Expired records purged, by path (sweep or lazy)",
		}, []string{"path"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Blob backend failures by backend and operation",
		}, []string{"backend", "op"}),
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version},
	})
	info.Set(1)

	reg.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.uploadsTotal, m.uploadBytesTotal, m.uploadErrorsTotal,
		m.consumedTotal, m.deletedTotal, m.expiredTotal, m.backendErrors,
		info,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TrackRecords registers a gauge that reports the current record count
// on every scrape.
func (m *Metrics) TrackRecords(count func() int) {
	if m == nil || count == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "records",
		Help:      "Records currently held, including expired ones not yet purged",
	}, func() float64 { return float64(count()) }))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordUpload records a successful upload
func (m *Metrics) RecordUpload(kind string, bytes int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(kind).Inc()
	m.uploadBytesTotal.WithLabelValues(kind).Add(float64(bytes))
}

// RecordUploadError records an upload that was rejected or failed.
func (m *Metrics) RecordUploadError(reason string) {
	if m == nil {
		return
	}
	m.uploadErrorsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordConsumed() {
	if m == nil {
		return
	}
	m.consumedTotal.Inc()
}

func (m *Metrics) RecordDeleted(kind string) {
	if m == nil {
		return
	}
	m.deletedTotal.WithLabelValues(kind).Inc()
}

// RecordExpired counts purged records; path is "sweep" or "lazy".
func (m *Metrics) RecordExpired(path string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredTotal.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) RecordBackendError(backend, op string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(backend, op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
