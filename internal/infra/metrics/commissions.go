package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(commissionEventsTotal) }

var commissionEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "commission_events_total",
		Help: "Commission ledger mutations, labeled by action and outcome.",
	},
	[]string{"action", "outcome"}, // action: 'credit'|'cancel'|'release'|'withdraw'
)

func IncCommissionEvent(action, outcome string) {
	commissionEventsTotal.WithLabelValues(norm(action), norm(outcome)).Inc()
}
