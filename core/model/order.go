package model

import (
	"fmt"
	"time"
)

// OrderState is the lifecycle state of a transport order.
type OrderState string

const (
	OrderRaw            OrderState = "raw"
	OrderActive         OrderState = "active"
	OrderDispatchable   OrderState = "dispatchable"
	OrderBeingProcessed OrderState = "being-processed"
	OrderWithdrawn      OrderState = "withdrawn"
	OrderFinished       OrderState = "finished"
	OrderFailed         OrderState = "failed"
	OrderUnroutable     OrderState = "unroutable"
)

// IsFinal reports whether no further transition is possible.
func (s OrderState) IsFinal() bool {
	return s == OrderFinished || s == OrderFailed || s == OrderUnroutable
}

// DriveOrderState is the lifecycle state of one leg of a transport order.
type DriveOrderState string

const (
	DriveOrderPristine   DriveOrderState = "pristine"
	DriveOrderTravelling DriveOrderState = "travelling"
	DriveOrderOperating  DriveOrderState = "operating"
	DriveOrderFinished   DriveOrderState = "finished"
	DriveOrderFailed     DriveOrderState = "failed"
)

// Destination names the target of a drive order, either a point or a
// location, and the operation to perform there.
type Destination struct {
	Target     string            `json:"target"`
	Operation  string            `json:"operation"`
	Properties map[string]string `json:"properties,omitempty"`
}

// DriveOrder is one leg of a transport order.
type DriveOrder struct {
	Destination Destination     `json:"destination"`
	Route       *Route          `json:"route,omitempty"`
	State       DriveOrderState `json:"state"`
}

// Clone returns a copy that shares no route with d.
func (d DriveOrder) Clone() DriveOrder {
	if d.Route != nil {
		r := d.Route.Clone()
		d.Route = &r
	}
	return d
}

// Rejection records a vehicle refusing to process an order.
type Rejection struct {
	Vehicle   string    `json:"vehicle"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// TransportOrder is a job: an ordered list of drive orders processed by one vehicle.
type TransportOrder struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	DriveOrders []DriveOrder `json:"drive_orders"`
	// CurrentDriveIndex is -1 until the first drive order is assigned and
	// len(DriveOrders) once all of them are done.
	CurrentDriveIndex          int               `json:"current_drive_index"`
	State                      OrderState        `json:"state"`
	IntendedVehicle            string            `json:"intended_vehicle,omitempty"`
	ProcessingVehicle          string            `json:"processing_vehicle,omitempty"`
	WrappingSequence           string            `json:"wrapping_sequence,omitempty"`
	Dependencies               []string          `json:"dependencies,omitempty"`
	Dispensable                bool              `json:"dispensable,omitempty"`
	Rejections                 []Rejection       `json:"rejections,omitempty"`
	Deadline                   time.Time         `json:"deadline"`
	CreatedAt                  time.Time         `json:"created_at"`
	Properties                 map[string]string `json:"properties,omitempty"`
	PeripheralReservationToken string            `json:"peripheral_reservation_token,omitempty"`
}

// NewTransportOrder builds a raw order visiting the given destinations.
func NewTransportOrder(name string, dests ...Destination) TransportOrder {
	dos := make([]DriveOrder, 0, len(dests))
	for _, d := range dests {
		dos = append(dos, DriveOrder{Destination: d, State: DriveOrderPristine})
	}
	return TransportOrder{
		Name:              name,
		DriveOrders:       dos,
		CurrentDriveIndex: -1,
		State:             OrderRaw,
	}
}

// Validate checks that the order is well formed.
func (o TransportOrder) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("transport order name must not be empty")
	}
	if len(o.DriveOrders) == 0 {
		return fmt.Errorf("transport order %s has no drive orders", o.Name)
	}
	for i, d := range o.DriveOrders {
		if d.Destination.Target == "" {
			return fmt.Errorf("transport order %s: drive order %d has no destination", o.Name, i)
		}
	}
	return nil
}

// CurrentDriveOrder returns the drive order being processed, if any.
func (o TransportOrder) CurrentDriveOrder() (DriveOrder, bool) {
	if o.CurrentDriveIndex < 0 || o.CurrentDriveIndex >= len(o.DriveOrders) {
		return DriveOrder{}, false
	}
	return o.DriveOrders[o.CurrentDriveIndex], true
}

// FutureDriveOrders returns the drive orders after the current one. Before
// processing starts these are all drive orders.
func (o TransportOrder) FutureDriveOrders() []DriveOrder {
	start := o.CurrentDriveIndex + 1
	if start < 0 {
		start = 0
	}
	if start >= len(o.DriveOrders) {
		return nil
	}
	return append([]DriveOrder(nil), o.DriveOrders[start:]...)
}

// PastDriveOrders returns the drive orders already finished.
func (o TransportOrder) PastDriveOrders() []DriveOrder {
	end := o.CurrentDriveIndex
	if end <= 0 {
		return nil
	}
	if end > len(o.DriveOrders) {
		end = len(o.DriveOrders)
	}
	return append([]DriveOrder(nil), o.DriveOrders[:end]...)
}

// UnfinishedDriveOrders returns the current drive order followed by the
// future ones.
func (o TransportOrder) UnfinishedDriveOrders() []DriveOrder {
	var out []DriveOrder
	if cur, ok := o.CurrentDriveOrder(); ok {
		out = append(out, cur)
	}
	return append(out, o.FutureDriveOrders()...)
}

// HasRejection reports whether vehicle already rejected the order.
func (o TransportOrder) HasRejection(vehicle string) bool {
	for _, r := range o.Rejections {
		if r.Vehicle == vehicle {
			return true
		}
	}
	return false
}

// ReservationToken returns the token used for peripheral jobs created on
// behalf of the order, falling back to the vehicle's name.
func (o TransportOrder) ReservationToken(vehicle string) string {
	if o.PeripheralReservationToken != "" {
		return o.PeripheralReservationToken
	}
	return vehicle
}

// Clone returns a deep copy of the order.
func (o TransportOrder) Clone() TransportOrder {
	dos := make([]DriveOrder, len(o.DriveOrders))
	for i, d := range o.DriveOrders {
		dos[i] = d.Clone()
	}
	o.DriveOrders = dos
	o.Dependencies = append([]string(nil), o.Dependencies...)
	o.Rejections = append([]Rejection(nil), o.Rejections...)
	if o.Properties != nil {
		props := make(map[string]string, len(o.Properties))
		for k, v := range o.Properties {
			props[k] = v
		}
		o.Properties = props
	}
	return o
}

// OrderSequence groups transport orders that must be processed in order by
// the same vehicle.
type OrderSequence struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Orders []string `json:"orders"`
	// FinishedIndex is the index of the last finished order, -1 if none.
	FinishedIndex     int    `json:"finished_index"`
	Complete          bool   `json:"complete"`
	Finished          bool   `json:"finished"`
	FailureFatal      bool   `json:"failure_fatal"`
	IntendedVehicle   string `json:"intended_vehicle,omitempty"`
	ProcessingVehicle string `json:"processing_vehicle,omitempty"`
}

// NextUnfinishedOrder returns the order following the last finished one.
func (s OrderSequence) NextUnfinishedOrder() (string, bool) {
	i := s.FinishedIndex + 1
	if i < 0 || i >= len(s.Orders) {
		return "", false
	}
	return s.Orders[i], true
}

// Clone returns a copy that shares no slices with s.
func (s OrderSequence) Clone() OrderSequence {
	s.Orders = append([]string(nil), s.Orders...)
	return s
}
