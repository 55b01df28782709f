package circulation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	borrowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "libraloan",
		Name:      "borrow_requests_total",
		Help:      "Borrow requests by kind and outcome (ok, denial reason, or error).",
	}, []string{"kind", "outcome"})

	finesAssessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "libraloan",
		Name:      "fines_assessed_total",
		Help:      "Sum of fine amounts charged to balances.",
	})

	sweepRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "libraloan",
		Name:      "sweep_records_total",
		Help:      "Loans and books handled by the overdue sweeper, by stage and result.",
	}, []string{"stage", "result"})
)
