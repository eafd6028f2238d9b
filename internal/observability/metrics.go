// Package observability exposes Prometheus metrics for the sync core. The
// collectors register on the default registry; hosts that want them scrape
// promhttp, everyone else pays one counter increment.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "examchat_connected",
			Help: "Whether the realtime transport is currently connected (0 or 1).",
		},
	)
	reconnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examchat_reconnect_attempts_total",
			Help: "Total number of transport reconnect attempts.",
		},
	)
	messagesMergedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examchat_messages_merged_total",
			Help: "Total number of messages merged into room views.",
		},
	)
	duplicateMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examchat_duplicate_messages_total",
			Help: "Total number of deliveries dropped by the messageId de-dup check.",
		},
	)
	staleFetchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examchat_stale_history_fetches_total",
			Help: "Total number of history responses discarded because the room was left mid-flight.",
		},
	)
	cacheReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examchat_cache_reads_total",
			Help: "Total number of local cache reads by result.",
		},
		[]string{"result"},
	)
	typingExpiriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examchat_typing_expiries_total",
			Help: "Total number of remote typing signals expired by TTL.",
		},
	)
	sendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "examchat_send_failures_total",
			Help: "Total number of failed message send calls.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		connectedGauge,
		reconnectAttemptsTotal,
		messagesMergedTotal,
		duplicateMessagesTotal,
		staleFetchesTotal,
		cacheReadsTotal,
		typingExpiriesTotal,
		sendFailuresTotal,
	)
}

// SetConnected records the coarse transport state.
func SetConnected(up bool) {
	if up {
		connectedGauge.Set(1)
	} else {
		connectedGauge.Set(0)
	}
}

// IncReconnectAttempt counts one transport reconnect attempt.
func IncReconnectAttempt() { reconnectAttemptsTotal.Inc() }

// AddMessagesMerged counts messages merged into a room view.
func AddMessagesMerged(n int) { messagesMergedTotal.Add(float64(n)) }

// IncDuplicateMessage counts one delivery dropped by de-dup.
func IncDuplicateMessage() { duplicateMessagesTotal.Inc() }

// IncStaleFetch counts one discarded stale history response.
func IncStaleFetch() { staleFetchesTotal.Inc() }

// CacheRead counts one cache read by outcome.
func CacheRead(hit bool) {
	if hit {
		cacheReadsTotal.WithLabelValues("hit").Inc()
	} else {
		cacheReadsTotal.WithLabelValues("miss").Inc()
	}
}

// IncTypingExpired counts one TTL-expired remote typing signal.
func IncTypingExpired() { typingExpiriesTotal.Inc() }

// IncSendFailure counts one failed send call.
func IncSendFailure() { sendFailuresTotal.Inc() }
