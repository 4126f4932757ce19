// README: Prometheus collectors for the HTTP surface, order dispatch and watchdogs.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions applied",
		},
		[]string{"from", "to"},
	)

	ReassignmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_reassignments_total",
			Help: "Operator-triggered driver reassignments",
		},
	)

	WatchdogRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_runs_total",
			Help: "Watchdog executions by result (ok, failed, skipped)",
		},
		[]string{"type", "result"},
	)

	WatchdogAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_alerts_total",
			Help: "Alerts fired by watchdogs",
		},
		[]string{"type"},
	)

	WatchdogMeasure = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_last_measure",
			Help: "Latest count or rate measured by each watchdog",
		},
		[]string{"type"},
	)

	WatchdogRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchdog_run_duration_seconds",
			Help:    "Duration of watchdog scans",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "Push notifications by outcome",
		},
		[]string{"outcome"},
	)

	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			OrderTransitionsTotal,
			ReassignmentsTotal,
			WatchdogRunsTotal,
			WatchdogAlertsTotal,
			WatchdogMeasure,
			WatchdogRunDuration,
			NotificationsTotal,
			AuditDroppedTotal,
		)
	})
}
