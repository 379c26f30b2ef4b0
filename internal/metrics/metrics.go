package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of connected charge points.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_active_connections",
		Help: "The number of charge points with an open WebSocket connection.",
	})

	// FramesReceived counts inbound OCPP frames, labeled by action.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_frames_received_total",
		Help: "Total number of OCPP frames received from charge points.",
	}, []string{"action"})

	// MalformedFrames counts inbound frames that failed to decode.
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocpp_malformed_frames_total",
		Help: "Total number of inbound frames that could not be decoded.",
	})

	// ActiveSessions tracks the number of active charging sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_active_sessions",
		Help: "The number of charging sessions currently active.",
	})

	// SessionsFinalized counts completed sessions, labeled by finalization reason.
	SessionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_sessions_finalized_total",
		Help: "Total number of charging sessions finalized.",
	}, []string{"reason"})

	// BridgeDeliveries counts outbound bridge calls, labeled by outcome.
	BridgeDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_bridge_deliveries_total",
		Help: "Total number of outbound bridge deliveries.",
	}, []string{"outcome"})
)
