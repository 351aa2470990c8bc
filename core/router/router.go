// Package router computes routes through the plant for vehicles and keeps
// track of the routes selected for them.
package router

import (
	"math"

	"github.com/kilianp07/agvfleet/core/model"
)

// Infinity is the cost between two points that are not connected.
const Infinity = int64(math.MaxInt64)

// Router is the route query contract used by the dispatcher and the reroute engine.
type Router interface {
	// Route computes one route per drive order of the order, starting at
	// source and visiting the destinations in order. The returned drive
	// orders are copies of the order's drive orders with their routes set.
	Route(vehicle model.Vehicle, source string, order model.TransportOrder) ([]model.DriveOrder, bool)
	// RouteTo computes a route from source to a point or location.
	RouteTo(vehicle model.Vehicle, source, target string) (model.Route, bool)
	// Costs returns the cost of the cheapest route between two points, or
	// Infinity.
	Costs(vehicle model.Vehicle, source, dest string) int64
	// SelectRoute records the drive orders a vehicle is going to travel.
	SelectRoute(vehicle string, driveOrders []model.DriveOrder)
	SelectedRoute(vehicle string) []model.DriveOrder
	// Routable reports whether the order's destinations are connected.
	Routable(order model.TransportOrder) bool
	// TopologyChanged rebuilds the routing graph, e.g. after a path lock.
	TopologyChanged()
}

// Topology is the part of the object store the router reads.
type Topology interface {
	Points() []model.Point
	Paths() []model.Path
	Point(name string) (model.Point, bool)
	Location(name string) (model.Location, bool)
}

// TotalCosts sums the route costs of the drive orders.
func TotalCosts(dos []model.DriveOrder) int64 {
	var total int64
	for _, d := range dos {
		if d.Route == nil {
			continue
		}
		if d.Route.Costs == Infinity || total > Infinity-d.Route.Costs {
			return Infinity
		}
		total += d.Route.Costs
	}
	return total
}
