package dispatch

import (
	"github.com/google/uuid"

	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/router"
)

// parkIdleVehicles sends idle vehicles to the cheapest free park position.
type parkIdleVehicles struct{ u *orderUtil }

func (parkIdleVehicles) Name() string { return PhaseParkIdleVehicles }

func (p parkIdleVehicles) Run() {
	if !p.u.cfg.ParkIdleVehicles {
		return
	}
	vehicles := p.u.store.Vehicles()
	blocked := targetedDestinations(p.u)
	for _, v := range vehicles {
		if v.CurrentPosition != "" {
			blocked[v.CurrentPosition] = true
		}
	}
	for _, v := range vehicles {
		if !p.u.availableForNewOrder(v) || v.State == model.StateCharging {
			continue
		}
		if pt, ok := p.u.store.Point(v.CurrentPosition); ok && pt.IsParkingPosition() {
			continue
		}
		dest, ok := p.cheapestParkPoint(v, blocked)
		if !ok {
			p.u.log.Debugf("no park position available for %s", v.Name)
			continue
		}
		order := model.NewTransportOrder("Park-"+uuid.NewString(),
			model.Destination{Target: dest, Operation: model.OpPark})
		order.Type = OrderTypePark
		if assignIdleOrder(p.u, v, order, PhaseParkIdleVehicles) {
			blocked[dest] = true
		}
	}
}

func (p parkIdleVehicles) cheapestParkPoint(v model.Vehicle, blocked map[string]bool) (string, bool) {
	best, bestCost := "", router.Infinity
	for _, pt := range p.u.store.Points() {
		if !pt.IsParkingPosition() || blocked[pt.Name] {
			continue
		}
		c := p.u.router.Costs(v, v.CurrentPosition, pt.Name)
		if c == router.Infinity {
			continue
		}
		if c < bestCost || (c == bestCost && pt.Name < best) {
			best, bestCost = pt.Name, c
		}
	}
	return best, best != ""
}
