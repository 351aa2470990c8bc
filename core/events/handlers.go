package events

import "fmt"

// Handlers maps every event type to a reaction. Nil entries ignore the event.
type Handlers struct {
	Vehicle        func(VehicleChanged)
	TransportOrder func(TransportOrderChanged)
	OrderSequence  func(OrderSequenceChanged)
	PeripheralJob  func(PeripheralJobChanged)
	PathLock       func(PathLockChanged)
}

// Handle routes ev to its handler. It panics on an event type this package
// does not know, which can only happen when a new type is added to Event
// without extending Handlers.
func (h Handlers) Handle(ev Event) {
	switch e := ev.(type) {
	case VehicleChanged:
		if h.Vehicle != nil {
			h.Vehicle(e)
		}
	case TransportOrderChanged:
		if h.TransportOrder != nil {
			h.TransportOrder(e)
		}
	case OrderSequenceChanged:
		if h.OrderSequence != nil {
			h.OrderSequence(e)
		}
	case PeripheralJobChanged:
		if h.PeripheralJob != nil {
			h.PeripheralJob(e)
		}
	case PathLockChanged:
		if h.PathLock != nil {
			h.PathLock(e)
		}
	default:
		panic(fmt.Sprintf("events: unhandled event type %T", ev))
	}
}
