// Package metrics exposes the broker's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_rooms_active",
		Help: "Number of live broadcast rooms.",
	})

	SessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_sessions_connected",
		Help: "Number of connected signaling sessions.",
	})

	SignalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_signal_requests_total",
		Help: "Signaling requests received, by request type.",
	}, []string{"type"})

	SignalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_signal_errors_total",
		Help: "Signaling requests rejected with an error payload, by request type.",
	}, []string{"type"})
)
