package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galynx_realtime_connects_total",
		Help: "WebSocket connect attempts, by outcome",
	}, []string{"outcome"})

	metricConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "galynx_realtime_connected",
		Help: "1 while the realtime connection is established",
	})

	metricEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galynx_realtime_events_total",
		Help: "Realtime frames dispatched onto the bus",
	})
)
