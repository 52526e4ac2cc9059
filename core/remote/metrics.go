package remote

import (
	"github.com/bmyte/jagcache/lib/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsSent = metrics.Factory().NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "remote",
		Name:      "requests_sent_total",
		Help:      "Group requests written to the connection.",
	})
	responsesReceived = metrics.Factory().NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "remote",
		Name:      "responses_received_total",
		Help:      "Group responses read off the connection.",
	})
	bytesReceived = metrics.Factory().NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "remote",
		Name:      "received_bytes_total",
		Help:      "Container bytes delivered to callers.",
	})
	inFlight = metrics.Factory().NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "remote",
		Name:      "in_flight_requests",
		Help:      "Requests written but not yet answered.",
	})
)
