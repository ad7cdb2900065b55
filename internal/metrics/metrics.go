// Package metrics provides Prometheus metrics for the console's
// synchronization core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveChannels tracks currently open live channels.
	ActiveChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_active_live_channels",
			Help: "Number of currently open live channels",
		},
	)

	// Reconnects tracks live-channel reconnect attempts.
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_channel_reconnects_total",
			Help: "Total number of live channel reconnect attempts",
		},
	)

	// FramesReceived tracks decoded inbound frames by kind.
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_frames_received_total",
			Help: "Total number of inbound live channel frames",
		},
		[]string{"kind"},
	)

	// FramesDropped tracks inbound frames dropped as unparseable.
	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_frames_dropped_total",
			Help: "Total number of malformed inbound frames dropped",
		},
	)

	// StateTransitions tracks channel connection-state changes.
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_channel_state_transitions_total",
			Help: "Total number of live channel state transitions",
		},
		[]string{"to_state"},
	)

	// RepliesSent tracks outbound replies by outcome.
	RepliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_replies_total",
			Help: "Total number of operator replies by outcome",
		},
		[]string{"outcome"},
	)

	// HistoryFetchDuration tracks conversation history fetch time.
	HistoryFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "console_history_fetch_duration_seconds",
			Help:    "Duration of conversation history fetches",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EscalationsAccepted tracks escalation broadcasts inserted into
	// the queue.
	EscalationsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_escalations_accepted_total",
			Help: "Total number of escalated tickets added to the queue",
		},
	)

	// EscalationsDeduplicated tracks escalation broadcasts dropped as
	// already known.
	EscalationsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_escalations_deduplicated_total",
			Help: "Total number of escalation broadcasts already present in the queue",
		},
	)
)
