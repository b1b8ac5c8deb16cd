// Package observability exposes Prometheus instrumentation for the steward
// core. Label sets are kept small and bounded (action kinds, task names) so
// cardinality stays dashboard-friendly. All collectors are safe for
// concurrent use.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileActions counts applied reconciliation actions by kind
	// (join, depart, rejoin) and outcome (ok, failed).
	ReconcileActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_reconcile_actions_total",
			Help: "Membership reconciliation actions applied.",
		},
		[]string{"action", "outcome"},
	)

	// StrikesRecorded counts ledger entries appended.
	StrikesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_strikes_recorded_total",
			Help: "Strike ledger entries appended.",
		},
	)

	// EnforcementFailures counts actuation attempts denied by the remote
	// platform. The strike entry is already committed when this fires.
	EnforcementFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_enforcement_failures_total",
			Help: "Enforcement actions denied by the actuation service.",
		},
	)

	// FeedItemsDelivered counts successful per-subscriber feed deliveries.
	FeedItemsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_feed_items_delivered_total",
			Help: "Feed items delivered to broadcast targets.",
		},
	)

	// FeedDeliveryFailures counts per-subscriber delivery failures. These
	// never abort the fan-out loop.
	FeedDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_feed_delivery_failures_total",
			Help: "Per-subscriber feed delivery failures.",
		},
	)

	// TaskFailures counts scheduled-task iterations that returned an error
	// or panicked, by task name.
	TaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_task_failures_total",
			Help: "Background task iterations that failed.",
		},
		[]string{"task"},
	)
)
