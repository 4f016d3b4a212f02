package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_queries_total",
			Help: "Terminal query sessions by tenant and final status",
		},
		[]string{"tenant", "status"},
	)

	SessionAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_session_attempts",
			Help:    "Execution attempts consumed per correction session",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	PoolsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_tenant_pools_active",
			Help: "Tenant connection pools currently alive",
		},
	)

	GenerationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_generation_seconds",
			Help:    "Latency of SQL generation and revision calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_audit_records_dropped_total",
			Help: "Audit records dropped because the sink was full or failing",
		},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(SessionAttempts)
	prometheus.MustRegister(PoolsActive)
	prometheus.MustRegister(GenerationSeconds)
	prometheus.MustRegister(AuditDropped)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
