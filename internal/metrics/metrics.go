// Package metrics provides Prometheus instrumentation for the meet backend.
// It exposes gauges for connection and room counts, and counters for relayed
// signaling traffic and moderation outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OnlineConnections tracks the current number of open WebSocket connections.
	OnlineConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meet_online_connections",
		Help: "Current number of open WebSocket connections",
	})

	// OpenRooms tracks rooms with a single occupant waiting for a peer.
	OpenRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meet_open_rooms",
		Help: "Current number of rooms waiting for a second occupant",
	})

	// ClosedRooms tracks fully occupied rooms (active calls).
	ClosedRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meet_closed_rooms",
		Help: "Current number of fully occupied rooms",
	})

	// PairingsTotal counts completed pairings (a room transitioning to closed).
	PairingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meet_pairings_total",
		Help: "Total number of completed pairings",
	})

	// RelayedTotal counts payloads forwarded between peers, labeled by kind:
	// "ice", "sdp", or "chat". Dropped payloads are labeled "dropped".
	RelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meet_relayed_total",
		Help: "Total number of signaling payloads relayed between peers",
	}, []string{"kind"})

	// ReportsTotal counts moderation reports by outcome: "recorded",
	// "banned", "not_found", "already_banned", or "error".
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meet_reports_total",
		Help: "Total number of abuse reports processed",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		OnlineConnections,
		OpenRooms,
		ClosedRooms,
		PairingsTotal,
		RelayedTotal,
		ReportsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
