package dispatch

import (
	"sort"

	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/router"
)

// AssignmentCandidate is a vehicle able to process an order together with
// the routes it would travel.
type AssignmentCandidate struct {
	Vehicle     model.Vehicle
	Order       model.TransportOrder
	DriveOrders []model.DriveOrder
}

// InitialCost is the cost of reaching the first destination.
func (c AssignmentCandidate) InitialCost() int64 {
	if len(c.DriveOrders) == 0 || c.DriveOrders[0].Route == nil {
		return router.Infinity
	}
	return c.DriveOrders[0].Route.Costs
}

// CompleteCost is the cost of all drive orders.
func (c AssignmentCandidate) CompleteCost() int64 {
	if len(c.DriveOrders) == 0 {
		return router.Infinity
	}
	return router.TotalCosts(c.DriveOrders)
}

// Cost returns the cost compared under strategy.
func (c AssignmentCandidate) Cost(strategy string) int64 {
	if strategy == StrategyNearestFirst {
		return c.InitialCost()
	}
	return c.CompleteCost()
}

// SelectCandidate returns the cheapest candidate under strategy. Ties are
// broken by vehicle name, then order name, so the choice never depends on
// the order of cands.
func SelectCandidate(strategy string, cands []AssignmentCandidate) (AssignmentCandidate, bool) {
	if len(cands) == 0 {
		return AssignmentCandidate{}, false
	}
	sorted := append([]AssignmentCandidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i].Cost(strategy), sorted[j].Cost(strategy)
		if ci != cj {
			return ci < cj
		}
		if sorted[i].Vehicle.Name != sorted[j].Vehicle.Name {
			return sorted[i].Vehicle.Name < sorted[j].Vehicle.Name
		}
		return sorted[i].Order.Name < sorted[j].Order.Name
	})
	return sorted[0], true
}

// candidate routes order for v from the vehicle's position. A vehicle whose
// adapter refuses the order gets a rejection recorded on it.
func (u *orderUtil) candidate(v model.Vehicle, order model.TransportOrder) (AssignmentCandidate, bool) {
	ctrl, ok := u.controllers(v.Name)
	if !ok {
		return AssignmentCandidate{}, false
	}
	if ok, reason := ctrl.CanProcess(order); !ok {
		u.recordRejection(order, v.Name, reason)
		return AssignmentCandidate{}, false
	}
	dos, ok := u.router.Route(v, v.CurrentPosition, order)
	if !ok {
		u.log.Debugf("no route for %s from %s at %s", order.Name, v.Name, v.CurrentPosition)
		return AssignmentCandidate{}, false
	}
	c := AssignmentCandidate{Vehicle: v, Order: order, DriveOrders: dos}
	if c.CompleteCost() == router.Infinity {
		return AssignmentCandidate{}, false
	}
	return c, true
}
