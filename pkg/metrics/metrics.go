package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsy", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsy", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "docsy", Name: "ws_active_connections", Help: "Number of open realtime connections."},
	)
	DeltasRelayed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docsy", Name: "deltas_relayed_total", Help: "Number of document deltas relayed to room peers."},
	)
	SnapshotsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docsy", Name: "snapshots_saved_total", Help: "Number of document snapshots persisted."},
	)
	InvitationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docsy", Name: "invitations_created_total", Help: "Number of invitations issued."},
	)
	InvitationsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docsy", Name: "invitations_accepted_total", Help: "Number of invitations accepted."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ActiveConnections)
	reg.MustRegister(DeltasRelayed)
	reg.MustRegister(SnapshotsSaved)
	reg.MustRegister(InvitationsCreated)
	reg.MustRegister(InvitationsAccepted)
}
