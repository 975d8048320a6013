package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcilerRunsTotal,
		reconciledPaymentsTotal,
		cleanupDeletedTotal,
	)
}

var (
	reconcilerRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_runs_total",
			Help: "Total number of reconciliation passes.",
		},
	)

	reconciledPaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciled_payments_total",
			Help: "Pending payments resolved by the reconciler, labeled by result.",
		},
		[]string{"result"}, // 'completed', 'failed', 'deferred', 'skipped'
	)

	cleanupDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_deleted_total",
			Help: "Records purged by the cleanup job, labeled by kind.",
		},
		[]string{"kind"}, // 'payment', 'anonymous_user'
	)
)

func IncReconcilerRun() { reconcilerRunsTotal.Inc() }

func IncReconciledPayment(result string) {
	reconciledPaymentsTotal.WithLabelValues(norm(result)).Inc()
}

func AddCleanupDeleted(kind string, n int64) {
	cleanupDeletedTotal.WithLabelValues(norm(kind)).Add(float64(n))
}
