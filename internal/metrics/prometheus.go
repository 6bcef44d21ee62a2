package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter mirrors a Metrics core into the plain (unlabeled)
// Prometheus series, registered with promauto against the default
// registry.
type PrometheusExporter struct {
	m *Metrics

	requestsTotal  prometheus.Counter
	requestsFailed prometheus.Counter
	bytesServed    prometheus.Counter
	uptimeSeconds  prometheus.Gauge
	latencyP50     prometheus.Gauge
	latencyP99     prometheus.Gauge

	lastRequests float64
	lastFailed   float64
	lastBytes    float64
}

// NewPrometheusExporter registers the qrng_* series against the default
// registry and returns an exporter that keeps them in sync with m.
func NewPrometheusExporter(m *Metrics) *PrometheusExporter {
	return &PrometheusExporter{
		m: m,
		requestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "qrng_requests_total",
			Help: "Total number of Gateway API requests served.",
		}),
		requestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "qrng_requests_failed",
			Help: "Total number of Gateway API requests that failed.",
		}),
		bytesServed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "qrng_bytes_served",
			Help: "Total number of entropy bytes served to clients.",
		}),
		uptimeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "qrng_uptime_seconds",
			Help: "Seconds since the Gateway process started.",
		}),
		latencyP50: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "qrng_latency_p50_microseconds",
			Help: "50th percentile request latency in microseconds.",
		}),
		latencyP99: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "qrng_latency_p99_microseconds",
			Help: "99th percentile request latency in microseconds.",
		}),
	}
}

// Sync pushes the counters' current totals and the latest gauges into
// the registered Prometheus series. Counters only ever move forward, so
// this adds the delta since the last Sync.
func (e *PrometheusExporter) Sync() {
	snap := e.m.Snapshot()
	e.requestsTotal.Add(float64(snap.RequestsTotal) - e.lastRequests)
	e.requestsFailed.Add(float64(snap.RequestsFailed) - e.lastFailed)
	e.bytesServed.Add(float64(snap.BytesServed) - e.lastBytes)
	e.lastRequests = float64(snap.RequestsTotal)
	e.lastFailed = float64(snap.RequestsFailed)
	e.lastBytes = float64(snap.BytesServed)

	e.uptimeSeconds.Set(snap.UptimeSeconds)
	e.latencyP50.Set(snap.LatencyP50Micros)
	e.latencyP99.Set(snap.LatencyP99Micros)
}

// RunPeriodicSync calls Sync every interval until stop is closed.
func (e *PrometheusExporter) RunPeriodicSync(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Sync()
		}
	}
}
