package events

import "github.com/kilianp07/agvfleet/core/model"

// Event is implemented by the event types of this package only.
type Event interface {
	isEvent()
}

// VehicleChanged is published when a vehicle is created or updated.
// Previous is the zero value for new vehicles.
type VehicleChanged struct {
	Previous model.Vehicle
	Current  model.Vehicle
}

// TransportOrderChanged is published when a transport order is created or updated.
type TransportOrderChanged struct {
	Previous model.TransportOrder
	Current  model.TransportOrder
}

// OrderSequenceChanged is published when an order sequence is created or updated.
type OrderSequenceChanged struct {
	Previous model.OrderSequence
	Current  model.OrderSequence
}

// PeripheralJobChanged is published when a peripheral job is created or updated.
type PeripheralJobChanged struct {
	Previous model.PeripheralJob
	Current  model.PeripheralJob
}

// PathLockChanged is published when a path's lock flag changes.
type PathLockChanged struct {
	Path   string
	Locked bool
}

func (VehicleChanged) isEvent()        {}
func (TransportOrderChanged) isEvent() {}
func (OrderSequenceChanged) isEvent()  {}
func (PeripheralJobChanged) isEvent()  {}
func (PathLockChanged) isEvent()       {}

// StateTransition reports whether the processing state changed.
func (e VehicleChanged) StateTransition() bool {
	return e.Previous.ProcState != e.Current.ProcState
}

// StateTransition reports whether the order state changed.
func (e TransportOrderChanged) StateTransition() bool {
	return e.Previous.State != e.Current.State
}

// StateTransition reports whether the job state changed.
func (e PeripheralJobChanged) StateTransition() bool {
	return e.Previous.State != e.Current.State
}
