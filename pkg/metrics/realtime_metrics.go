package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime metrics for monitoring the session coordinator
var (
	// Connection lifecycle metrics
	ConnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_connect_attempts_total",
		Help: "Total number of channel connect attempts",
	}, []string{"status"}) // "success", "failure"

	ReconnectsScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_reconnects_scheduled_total",
		Help: "Total number of reconnect attempts scheduled after an unexpected close",
	})

	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connection_state",
		Help: "Current connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
	})

	PendingSendsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_pending_sends_dropped_total",
		Help: "Total number of buffered sends dropped due to a full buffer",
	})

	// Event dispatch metrics
	EventsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_dispatched_total",
		Help: "Total number of inbound events dispatched by type",
	}, []string{"type"})

	EventsDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_discarded_total",
		Help: "Total number of inbound events discarded",
	}, []string{"reason"}) // "unmarshal", "no_handler"

	// Call coordinator metrics
	CallTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_call_transitions_total",
		Help: "Total number of call state transitions",
	}, []string{"from", "to"})

	CallTransitionsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_call_transitions_dropped_total",
		Help: "Total number of illegal call transitions dropped by the guards",
	}, []string{"action"})

	CallActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_call_active",
		Help: "Whether a non-terminal call session currently exists (0 or 1)",
	})

	// Typing presence metrics
	TypingEntriesSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_typing_entries_swept_total",
		Help: "Total number of typing entries purged by the TTL sweep",
	})

	// Unread aggregation metrics
	UnreadConversations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_unread_conversations",
		Help: "Current number of conversations with unseen activity",
	})

	UnreadRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_unread_refresh_total",
		Help: "Total number of unread state recomputations",
	}, []string{"trigger"}) // "poll", "mutation", "external"

	// Gateway metrics
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_gateway_requests_total",
		Help: "Total number of REST gateway requests",
	}, []string{"endpoint", "status"})
)
