// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedEventsTotal tracks events received from the CRM event feed.
	FeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_total",
			Help: "Events received from the event feed",
		},
		[]string{"type"},
	)

	// FeedDecodeFailuresTotal tracks events that could not be decoded.
	FeedDecodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_decode_failures_total",
			Help: "Events skipped because they could not be decoded",
		},
	)

	// FeedReconnectsTotal tracks feed reconnect attempts.
	FeedReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Reconnect attempts against the event feed",
		},
	)

	// FeedConnected reports whether the feed connection is currently open.
	FeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_connected",
			Help: "1 when the event feed connection is open",
		},
	)

	// MessagesAppendedTotal tracks messages appended to transcripts.
	MessagesAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_messages_appended_total",
			Help: "Messages appended to dialog transcripts",
		},
		[]string{"sender"},
	)

	// ClosuresTotal tracks completed dialog closures by export tier.
	ClosuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialog_closures_total",
			Help: "Dialog closures processed, by export tier",
		},
		[]string{"tier"},
	)

	// ClosureDuration tracks closure pipeline duration.
	ClosureDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dialog_closure_duration_seconds",
			Help:    "Closure pipeline duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	// ExternalCallFailuresTotal tracks failed calls to external collaborators.
	ExternalCallFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_call_failures_total",
			Help: "Failed calls to external services",
		},
		[]string{"service"},
	)

	// SuspiciousLinksTotal tracks non-allow-listed payment links detected.
	SuspiciousLinksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "suspicious_links_total",
			Help: "Manager messages containing links outside the allow-list",
		},
	)

	// FollowupTasksTotal tracks first-contact follow-up tasks created.
	FollowupTasksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "followup_tasks_total",
			Help: "First-contact follow-up tasks created",
		},
	)

	// ReportRunsTotal tracks daily report runs by outcome.
	ReportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_runs_total",
			Help: "Daily report runs",
		},
		[]string{"status"},
	)

	// ActiveDialogs reports transcripts currently in the active location.
	ActiveDialogs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_dialogs",
			Help: "Transcripts currently in the active location",
		},
	)
)

// RecordClosure records metrics for one completed closure.
func RecordClosure(tier string, seconds float64) {
	ClosuresTotal.WithLabelValues(tier).Inc()
	ClosureDuration.Observe(seconds)
}

// RecordExternalFailure records a failed external call.
func RecordExternalFailure(service string) {
	ExternalCallFailuresTotal.WithLabelValues(service).Inc()
}
