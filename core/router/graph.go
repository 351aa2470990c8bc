package router

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/model"
)

type edgeRef struct {
	path        model.Path
	orientation model.Orientation
}

type snapshot struct {
	g      *simple.WeightedDirectedGraph
	ids    map[string]int64
	points []model.Point
	edges  map[[2]int64]edgeRef
	trees  map[int64]path.Shortest
}

// GraphRouter routes along shortest paths by path length. Locked paths are
// left out of the graph. Shortest-path trees are cached per source point
// until the topology changes, so equal-cost alternatives resolve the same
// way on every call.
type GraphRouter struct {
	topo Topology
	log  logger.Logger

	mu       sync.Mutex
	snap     *snapshot
	selected map[string][]model.DriveOrder
}

// NewGraphRouter builds a router over the given topology.
func NewGraphRouter(topo Topology, log logger.Logger) *GraphRouter {
	log = logger.OrNop(log)
	r := &GraphRouter{topo: topo, log: log, selected: map[string][]model.DriveOrder{}}
	r.snap = r.build()
	return r
}

func (r *GraphRouter) build() *snapshot {
	points := r.topo.Points()
	s := &snapshot{
		g:      simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		ids:    make(map[string]int64, len(points)),
		points: points,
		edges:  map[[2]int64]edgeRef{},
		trees:  map[int64]path.Shortest{},
	}
	for i, p := range points {
		id := int64(i)
		s.ids[p.Name] = id
		s.g.AddNode(simple.Node(id))
	}
	add := func(from, to string, ref edgeRef) {
		u, okU := s.ids[from]
		v, okV := s.ids[to]
		if !okU || !okV || u == v {
			return
		}
		key := [2]int64{u, v}
		if old, ok := s.edges[key]; ok {
			if old.path.Length < ref.path.Length ||
				(old.path.Length == ref.path.Length && old.path.Name <= ref.path.Name) {
				return
			}
		}
		s.edges[key] = ref
		s.g.SetWeightedEdge(s.g.NewWeightedEdge(simple.Node(u), simple.Node(v), float64(edgeWeight(ref.path))))
	}
	for _, p := range r.topo.Paths() {
		if p.Locked {
			continue
		}
		if p.NavigableForward() {
			add(p.Source, p.Destination, edgeRef{path: p, orientation: model.OrientationForward})
		}
		if p.NavigableReverse() {
			add(p.Destination, p.Source, edgeRef{path: p, orientation: model.OrientationBackward})
		}
	}
	return s
}

func edgeWeight(p model.Path) int64 {
	if p.Length < 1 {
		return 1
	}
	return p.Length
}

// TopologyChanged discards the graph and all cached trees.
func (r *GraphRouter) TopologyChanged() {
	s := r.build()
	r.mu.Lock()
	r.snap = s
	r.mu.Unlock()
	r.log.Debugf("router: topology rebuilt with %d points and %d edges", len(s.points), len(s.edges))
}

// shortest returns the cheapest point sequence between two points.
func (r *GraphRouter) shortest(src, dst string) ([]graph.Node, int64, *snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap
	u, okU := s.ids[src]
	v, okV := s.ids[dst]
	if !okU || !okV {
		return nil, 0, s, false
	}
	if u == v {
		return []graph.Node{simple.Node(u)}, 0, s, true
	}
	tree, ok := s.trees[u]
	if !ok {
		tree = path.DijkstraFrom(simple.Node(u), s.g)
		s.trees[u] = tree
	}
	nodes, w := tree.To(v)
	if len(nodes) == 0 {
		return nil, 0, s, false
	}
	return nodes, int64(w), s, true
}

func (r *GraphRouter) routeBetween(src, dst string) (model.Route, bool) {
	nodes, costs, s, ok := r.shortest(src, dst)
	if !ok {
		return model.Route{}, false
	}
	if len(nodes) == 1 {
		p := s.points[nodes[0].ID()]
		return model.Route{
			Steps: []model.Step{{
				Source:           p,
				Destination:      p,
				Orientation:      model.OrientationUndefined,
				ExecutionAllowed: true,
			}},
		}, true
	}
	steps := make([]model.Step, 0, len(nodes)-1)
	for i := 0; i+1 < len(nodes); i++ {
		u, v := nodes[i].ID(), nodes[i+1].ID()
		ref := s.edges[[2]int64{u, v}]
		p := ref.path
		steps = append(steps, model.Step{
			Path:             &p,
			Source:           s.points[u],
			Destination:      s.points[v],
			Orientation:      ref.orientation,
			RouteIndex:       i,
			ExecutionAllowed: true,
		})
	}
	return model.Route{Steps: steps, Costs: costs}, true
}

// candidates returns the points a target can be reached at, in name order.
func (r *GraphRouter) candidates(target string) []string {
	if _, ok := r.topo.Point(target); ok {
		return []string{target}
	}
	loc, ok := r.topo.Location(target)
	if !ok {
		return nil
	}
	pts := append([]string(nil), loc.LinkedPoints...)
	sort.Strings(pts)
	return pts
}

// RouteTo returns the cheapest route from source to any point target can be
// reached at.
func (r *GraphRouter) RouteTo(_ model.Vehicle, source, target string) (model.Route, bool) {
	var best model.Route
	found := false
	for _, c := range r.candidates(target) {
		rt, ok := r.routeBetween(source, c)
		if !ok {
			continue
		}
		if !found || rt.Costs < best.Costs {
			best, found = rt, true
		}
	}
	return best, found
}

// Route computes a route for every drive order of order, each starting where
// the previous one ends.
func (r *GraphRouter) Route(v model.Vehicle, source string, order model.TransportOrder) ([]model.DriveOrder, bool) {
	out := make([]model.DriveOrder, 0, len(order.DriveOrders))
	cur := source
	for _, d := range order.DriveOrders {
		rt, ok := r.RouteTo(v, cur, d.Destination.Target)
		if !ok {
			return nil, false
		}
		d = d.Clone()
		d.Route = &rt
		out = append(out, d)
		cur = rt.FinalDestinationPoint().Name
	}
	return out, len(out) > 0
}

// Costs returns the cost of the cheapest route, or Infinity.
func (r *GraphRouter) Costs(_ model.Vehicle, source, dest string) int64 {
	_, costs, _, ok := r.shortest(source, dest)
	if !ok {
		return Infinity
	}
	return costs
}

// SelectRoute records the drive orders a vehicle follows. Nil clears them.
func (r *GraphRouter) SelectRoute(vehicle string, driveOrders []model.DriveOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if driveOrders == nil {
		delete(r.selected, vehicle)
		return
	}
	cp := make([]model.DriveOrder, len(driveOrders))
	for i, d := range driveOrders {
		cp[i] = d.Clone()
	}
	r.selected[vehicle] = cp
}

// SelectedRoute returns the drive orders recorded for vehicle.
func (r *GraphRouter) SelectedRoute(vehicle string) []model.DriveOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.DriveOrder(nil), r.selected[vehicle]...)
}

// Routable checks that every destination exists and that each destination
// can be reached from the previous one.
func (r *GraphRouter) Routable(order model.TransportOrder) bool {
	var prev []string
	for i, d := range order.DriveOrders {
		cur := r.candidates(d.Destination.Target)
		if len(cur) == 0 {
			return false
		}
		if i > 0 && !r.anyConnected(prev, cur) {
			return false
		}
		prev = cur
	}
	return len(order.DriveOrders) > 0
}

func (r *GraphRouter) anyConnected(from, to []string) bool {
	for _, a := range from {
		for _, b := range to {
			if _, _, _, ok := r.shortest(a, b); ok {
				return true
			}
		}
	}
	return false
}
