// Package metrics exposes the Prometheus instrumentation surface: request
// counters by method and status code, the currently-live snapshot version as a
// gauge, and ACK/NACK counters per resource type for the control plane.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lhanjian/yarhs/internal/snapshot"
)

// Metrics bundles the collectors registered against one prometheus.Registry.
type Metrics struct {
	gatherer        prometheus.Gatherer
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	snapshotVersion prometheus.Gauge
	xdsACKTotal     *prometheus.CounterVec
	xdsNACKTotal    *prometheus.CounterVec
}

// New registers all collectors against reg and returns the handle used to
// record observations. reg also backs the /metrics scrape handler, so
// nothing is registered against prometheus's package-level default
// registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer:        reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yarhs_http_requests_total",
			Help: "Total data-plane HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yarhs_http_request_duration_seconds",
			Help:    "Data-plane request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		snapshotVersion: f.NewGauge(prometheus.GaugeOpts{
			Name: "yarhs_snapshot_version_info",
			Help: "The version_info of the currently live configuration snapshot.",
		}),
		xdsACKTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yarhs_xds_ack_total",
			Help: "Total accepted control-plane writes by resource type.",
		}, []string{"type"}),
		xdsNACKTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yarhs_xds_nack_total",
			Help: "Total rejected control-plane writes by resource type and error code.",
		}, []string{"type", "code"}),
	}
}

// Handler returns the /metrics scrape endpoint backed by this Metrics'
// own registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one data-plane request's method, final status
// code, and latency.
func (m *Metrics) ObserveRequest(method string, status int, seconds float64) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(seconds)
}

// SetSnapshotVersion updates the live version_info gauge, called from the
// registry's OnPublish hook.
func (m *Metrics) SetSnapshotVersion(v int64) {
	m.snapshotVersion.Set(float64(v))
}

// ObserveACK/ObserveNACK are meant to be called from the xds package after
// every Publish outcome.
func (m *Metrics) ObserveACK(t snapshot.ResourceType) {
	m.xdsACKTotal.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) ObserveNACK(t snapshot.ResourceType, code int) {
	m.xdsNACKTotal.WithLabelValues(string(t), strconv.Itoa(code)).Inc()
}
