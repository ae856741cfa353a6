// Package metrics holds the small set of Prometheus collectors this
// service exposes on /metrics: audit-queue health and lockout counts by
// rate-limit axis. Metrics are operational instrumentation, not the
// business-reporting dashboards the rest of this codebase stays out of.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the package-level registry cmd/authd exposes on /metrics.
var Registry = prometheus.NewRegistry()

var (
	AuditQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authd_audit_queue_depth",
		Help: "Current number of events buffered in the audit log writer's queue.",
	})

	AuditDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_audit_drops_total",
		Help: "Audit events dropped because the persistence queue was full.",
	})

	LockoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_lockouts_total",
		Help: "Rate-limit lockouts, counted at the moment an axis transitions into a lockout.",
	}, []string{"axis"})
)

func init() {
	Registry.MustRegister(AuditQueueDepth, AuditDropsTotal, LockoutsTotal)
}
