package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsExecuted tracks item outcomes by test type.
	ItemsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webpdtool_items_executed_total",
		Help: "Total number of executed test items by outcome and test type",
	}, []string{"outcome", "test_type"})

	// ItemDuration tracks wall-clock execution time per item.
	ItemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webpdtool_item_duration_seconds",
		Help:    "Test item execution duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"test_type"})

	// SessionsFinished tracks terminal session states.
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webpdtool_sessions_finished_total",
		Help: "Total number of finished sessions by terminal state and aggregate outcome",
	}, []string{"state", "outcome"})

	// LeasesInUse tracks currently held instrument leases.
	LeasesInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webpdtool_instrument_leases_in_use",
		Help: "Number of instrument leases currently held",
	})

	// LeaseWait tracks how long acquirers waited for an instrument lease.
	LeaseWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webpdtool_instrument_lease_wait_seconds",
		Help:    "Time spent waiting for an instrument lease",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"instrument"})

	// ReportWrites tracks CSV report write attempts.
	ReportWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webpdtool_report_writes_total",
		Help: "Total number of CSV report write attempts by result",
	}, []string{"result"})
)

// RecordItem records one item execution.
func RecordItem(outcome, testType string, duration time.Duration) {
	ItemsExecuted.WithLabelValues(outcome, testType).Inc()
	ItemDuration.WithLabelValues(testType).Observe(duration.Seconds())
}

// RecordSessionFinished records a session reaching a terminal state.
func RecordSessionFinished(state, outcome string) {
	SessionsFinished.WithLabelValues(state, outcome).Inc()
}

// ObserveLeaseWait records the lease acquisition wait for one instrument.
func ObserveLeaseWait(instrument string, waited time.Duration) {
	LeaseWait.WithLabelValues(instrument).Observe(waited.Seconds())
}

// IncLeasesInUse increments the lease gauge.
func IncLeasesInUse() { LeasesInUse.Inc() }

// DecLeasesInUse decrements the lease gauge.
func DecLeasesInUse() { LeasesInUse.Dec() }

// RecordReportWrite records a report write attempt outcome.
func RecordReportWrite(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	ReportWrites.WithLabelValues(result).Inc()
}
