package dispatch

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAlreadyReserved is returned when an order is reserved for another vehicle.
var ErrAlreadyReserved = errors.New("order already reserved")

// ReservationPool records orders promised to vehicles that are still busy
// finishing something else. An order is reserved for at most one vehicle.
type ReservationPool struct {
	mu        sync.Mutex
	byOrder   map[string]string
	byVehicle map[string][]string
}

// NewReservationPool creates an empty pool.
func NewReservationPool() *ReservationPool {
	return &ReservationPool{
		byOrder:   map[string]string{},
		byVehicle: map[string][]string{},
	}
}

// Reserve promises order to vehicle. Reserving an order again for the same
// vehicle is a no-op.
func (p *ReservationPool) Reserve(order, vehicle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.byOrder[order]; ok {
		if v == vehicle {
			return nil
		}
		return fmt.Errorf("order %s for %s: %w by %s", order, vehicle, ErrAlreadyReserved, v)
	}
	p.byOrder[order] = vehicle
	p.byVehicle[vehicle] = append(p.byVehicle[vehicle], order)
	return nil
}

// IsReserved reports whether order is reserved for any vehicle.
func (p *ReservationPool) IsReserved(order string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byOrder[order]
	return ok
}

// ReservedFor returns the vehicle order is reserved for.
func (p *ReservationPool) ReservedFor(order string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.byOrder[order]
	return v, ok
}

// Reservations returns the orders reserved for vehicle in reservation order.
func (p *ReservationPool) Reservations(vehicle string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.byVehicle[vehicle]...)
}

// RemoveOrder drops the reservation of order.
func (p *ReservationPool) RemoveOrder(order string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.byOrder[order]
	if !ok {
		return
	}
	delete(p.byOrder, order)
	list := p.byVehicle[v]
	for i, o := range list {
		if o == order {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.byVehicle, v)
	} else {
		p.byVehicle[v] = list
	}
}

// RemoveVehicle drops all reservations of vehicle.
func (p *ReservationPool) RemoveVehicle(vehicle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.byVehicle[vehicle] {
		delete(p.byOrder, o)
	}
	delete(p.byVehicle, vehicle)
}

// Snapshot maps every reserved order to its vehicle.
func (p *ReservationPool) Snapshot() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.byOrder))
	for o, v := range p.byOrder {
		out[o] = v
	}
	return out
}
