package metrics

import (
	"time"

	"github.com/kilianp07/agvfleet/core/model"
)

// AssignmentEvent records a transport order handed to a vehicle.
type AssignmentEvent struct {
	Vehicle      string
	Order        string
	Phase        string
	InitialCost  int64
	CompleteCost int64
	Time         time.Time
}

// MetricsSink records dispatch decisions for observability purposes.
type MetricsSink interface {
	RecordAssignment(ev AssignmentEvent) error
}

// RerouteEvent records one reroute attempt.
type RerouteEvent struct {
	Vehicle string
	Order   string
	Forced  bool
	// Outcome is one of "rerouted", "unchanged", "fallback" or "failed".
	Outcome string
	Time    time.Time
}

// RerouteRecorder records reroute attempts.
type RerouteRecorder interface {
	RecordReroute(ev RerouteEvent) error
}

// WithdrawalEvent records a transport order being withdrawn.
type WithdrawalEvent struct {
	Order     string
	Vehicle   string
	Immediate bool
	Reason    string
	Time      time.Time
}

// WithdrawalRecorder records withdrawals.
type WithdrawalRecorder interface {
	RecordWithdrawal(ev WithdrawalEvent) error
}

// VehicleStateEvent is a snapshot of a vehicle.
type VehicleStateEvent struct {
	Vehicle   model.Vehicle
	Component string
	Time      time.Time
}

// VehicleStateRecorder records vehicle state snapshots.
type VehicleStateRecorder interface {
	RecordVehicleState(ev VehicleStateEvent) error
}

// FleetSizeRecorder records the number of attached vehicles.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordAssignment(AssignmentEvent) error     { return nil }
func (NopSink) RecordReroute(RerouteEvent) error           { return nil }
func (NopSink) RecordWithdrawal(WithdrawalEvent) error     { return nil }
func (NopSink) RecordVehicleState(VehicleStateEvent) error { return nil }
func (NopSink) RecordFleetSize(int) error                  { return nil }
