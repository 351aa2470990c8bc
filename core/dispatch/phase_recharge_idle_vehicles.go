package dispatch

import (
	"github.com/google/uuid"

	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/router"
)

// rechargeIdleVehicles sends idle vehicles with degraded energy to the
// cheapest location offering their recharge operation.
type rechargeIdleVehicles struct{ u *orderUtil }

func (rechargeIdleVehicles) Name() string { return PhaseRechargeIdleVehicles }

func (p rechargeIdleVehicles) Run() {
	if !p.u.cfg.RechargeIdleVehicles {
		return
	}
	targeted := targetedDestinations(p.u)
	for _, v := range p.u.store.Vehicles() {
		if !p.u.availableForNewOrder(v) || !v.IsEnergyLevelDegraded() ||
			v.State == model.StateCharging || v.RechargeOperation == "" {
			continue
		}
		loc, ok := p.cheapestLocation(v, targeted)
		if !ok {
			p.u.log.Debugf("no recharge location available for %s", v.Name)
			continue
		}
		order := model.NewTransportOrder("Recharge-"+uuid.NewString(),
			model.Destination{Target: loc, Operation: v.RechargeOperation})
		order.Type = OrderTypeCharge
		if assignIdleOrder(p.u, v, order, PhaseRechargeIdleVehicles) {
			targeted[loc] = true
		}
	}
}

func (p rechargeIdleVehicles) cheapestLocation(v model.Vehicle, targeted map[string]bool) (string, bool) {
	best, bestCost := "", router.Infinity
	for _, l := range p.u.store.Locations() {
		if !l.AllowsOperation(v.RechargeOperation) || targeted[l.Name] {
			continue
		}
		rt, ok := p.u.router.RouteTo(v, v.CurrentPosition, l.Name)
		if !ok {
			continue
		}
		if rt.Costs < bestCost || (rt.Costs == bestCost && l.Name < best) {
			best, bestCost = l.Name, rt.Costs
		}
	}
	return best, best != ""
}

// targetedDestinations returns the final destinations of all orders being
// processed.
func targetedDestinations(u *orderUtil) map[string]bool {
	out := map[string]bool{}
	for _, o := range u.store.Orders() {
		if o.State != model.OrderBeingProcessed && o.State != model.OrderWithdrawn {
			continue
		}
		if n := len(o.DriveOrders); n > 0 {
			last := o.DriveOrders[n-1]
			out[last.Destination.Target] = true
			if last.Route != nil {
				out[last.Route.FinalDestinationPoint().Name] = true
			}
		}
	}
	return out
}

// assignIdleOrder stores a dispensable order intended for v and assigns it
// right away.
func assignIdleOrder(u *orderUtil, v model.Vehicle, order model.TransportOrder, phase string) bool {
	if !v.AcceptsOrderType(order.Type) {
		return false
	}
	order.IntendedVehicle = v.Name
	order.Dispensable = true
	order.State = model.OrderDispatchable
	order.CreatedAt = u.now()
	cand, ok := u.candidate(v, order)
	if !ok {
		return false
	}
	if err := u.store.AddOrder(order); err != nil {
		u.log.Errorf("creating %s: %v", order.Name, err)
		return false
	}
	if err := u.assign(v, order, cand.DriveOrders, phase); err != nil {
		u.log.Errorf("assigning %s to %s: %v", order.Name, v.Name, err)
		return false
	}
	return true
}
