package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galynx_api_requests_total",
		Help: "API requests dispatched, by method and outcome",
	}, []string{"method", "outcome"})

	metricTokenRefresh = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galynx_token_refresh_total",
		Help: "Token refresh attempts, by outcome",
	}, []string{"outcome"})

	metricRateLimitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galynx_rate_limit_retries_total",
		Help: "Retries taken after a 429 response",
	})

	metricRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "galynx_api_request_duration_seconds",
		Help:    "End-to-end duration of API requests including retries",
		Buckets: prometheus.DefBuckets,
	})
)
