// Package metrics exposes Prometheus collectors of the deposit pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fastcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcore_deposits_total",
			Help: "Total number of deposit attempts by outcome",
		},
		[]string{"provider", "status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fastcore_gateway_request_duration_seconds",
			Help:    "Payment gateway API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action", "result"},
	)

	CommissionRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcore_commission_retries_total",
			Help: "Total number of referral commission retries by result",
		},
		[]string{"result"},
	)

	CommissionQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastcore_commission_queue_length",
			Help: "Current length of commission retry queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordDeposit(provider, status string) {
	DepositsTotal.WithLabelValues(provider, status).Inc()
}

func ObserveGatewayCall(action string, duration float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GatewayRequestDuration.WithLabelValues(action, result).Observe(duration)
}

func RecordCommissionRetry(result string) {
	CommissionRetriesTotal.WithLabelValues(result).Inc()
}
