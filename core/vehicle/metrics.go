package vehicle

import "github.com/prometheus/client_golang/prometheus"

var (
	allocationRequests prometheus.Counter
	staleAllocations   prometheus.Counter
	allocationFailures prometheus.Counter
	commandsSent       prometheus.Counter
	commandsExecuted   prometheus.Counter
	commandMismatches  prometheus.Counter
)

func newCollectors() (prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter) {
	req := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_allocation_requests_total",
		Help: "Number of resource allocation requests sent to the scheduler",
	})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_stale_allocations_total",
		Help: "Number of allocations refused because they no longer matched the pending command",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_allocation_failures_total",
		Help: "Number of allocations the scheduler reported as failed",
	})
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_commands_sent_total",
		Help: "Number of movement commands handed to comm adapters",
	})
	executed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_commands_executed_total",
		Help: "Number of movement commands confirmed as executed",
	})
	mismatch := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_command_mismatches_total",
		Help: "Number of command reports not matching the head of the sent queue",
	})
	return req, stale, failed, sent, executed, mismatch
}

func init() {
	allocationRequests, staleAllocations, allocationFailures, commandsSent, commandsExecuted, commandMismatches = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers controller metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(allocationRequests, staleAllocations, allocationFailures, commandsSent, commandsExecuted, commandMismatches)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	allocationRequests, staleAllocations, allocationFailures, commandsSent, commandsExecuted, commandMismatches = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
