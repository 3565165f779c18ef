package accounting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hours_operations_recorded_total",
		Help: "Number of operation logs applied.",
	})

	operationsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hours_operations_rejected_total",
		Help: "Number of submissions rejected by validation.",
	}, []string{"reason"})

	hoursAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hours_applied_total",
		Help: "Sum of operating hours applied to devices.",
	})

	persistenceFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hours_operations_failed_total",
		Help: "Number of valid submissions that could not be stored.",
	})
)
