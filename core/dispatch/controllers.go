package dispatch

import (
	"errors"

	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/vehicle"
)

var (
	ErrUnknownVehicle = errors.New("unknown vehicle")
	ErrUnknownOrder   = errors.New("unknown transport order")
	ErrNoController   = errors.New("no controller attached to vehicle")
	ErrNoRoute        = errors.New("no route found")
	ErrNoPosition     = errors.New("vehicle position unknown")
)

// VehicleController is the part of a vehicle controller the dispatcher
// drives. *vehicle.Controller implements it.
type VehicleController interface {
	SetTransportOrder(order model.TransportOrder) error
	UpdateTransportOrder(order model.TransportOrder, forced bool) error
	AbortTransportOrder(immediate bool)
	ClearTransportOrder()
	CanProcess(order model.TransportOrder) (bool, string)
	RerouteSource(forced bool) (string, int, bool)
}

// ControllerLookup returns the controller attached to a vehicle.
type ControllerLookup func(vehicle string) (VehicleController, bool)

// FromPool looks controllers up in p.
func FromPool(p *vehicle.Pool) ControllerLookup {
	return func(name string) (VehicleController, bool) {
		c, ok := p.Get(name)
		if !ok {
			return nil, false
		}
		return c, true
	}
}
