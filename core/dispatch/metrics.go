package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchCycles   prometheus.Counter
	dispatchDuration prometheus.Histogram
	assignmentsTotal *prometheus.CounterVec
	reroutesTotal    *prometheus.CounterVec
	withdrawalsTotal *prometheus.CounterVec
	rejectionsTotal  prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Histogram, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter) {
	cycles := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_cycles_total",
			Help: "Number of dispatch cycles run",
		},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_cycle_duration_seconds",
			Help:    "Duration of one pass through all dispatch phases",
			Buckets: prometheus.DefBuckets,
		},
	)
	asn := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_assignments_total",
			Help: "Number of transport orders assigned to vehicles",
		},
		[]string{"phase"},
	)
	rr := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_reroutes_total",
			Help: "Number of reroute attempts",
		},
		[]string{"type", "outcome"},
	)
	wd := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_withdrawals_total",
			Help: "Number of transport orders withdrawn",
		},
		[]string{"immediate"},
	)
	rej := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_rejections_total",
			Help: "Number of transport orders rejected by vehicles",
		},
	)
	return cycles, dur, asn, rr, wd, rej
}

func init() {
	dispatchCycles, dispatchDuration, assignmentsTotal, reroutesTotal, withdrawalsTotal, rejectionsTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchCycles, dispatchDuration, assignmentsTotal, reroutesTotal, withdrawalsTotal, rejectionsTotal)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchCycles, dispatchDuration, assignmentsTotal, reroutesTotal, withdrawalsTotal, rejectionsTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
