// Package metrics defines the recorders the dispatcher and the vehicle
// controllers report to. Sinks like PromSink and InfluxSink record events such
// as assignments, reroutes and withdrawals and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
package metrics
