package dispatch

import (
	"errors"
	"fmt"

	"github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/monitoring"
	vehiclectl "github.com/kilianp07/agvfleet/core/vehicle"
)

// RerouteType selects where a new route starts.
type RerouteType string

const (
	// RegularReroute keeps every command already handed to the vehicle and
	// branches off behind the last of them.
	RegularReroute RerouteType = "regular"
	// ForcedReroute drops the commands in flight and branches off at the
	// vehicle's current position.
	ForcedReroute RerouteType = "forced"
)

// Reroute outcomes as reported to metrics.
const (
	outcomeRerouted  = "rerouted"
	outcomeUnchanged = "unchanged"
	outcomeFallback  = "fallback"
	outcomeFailed    = "failed"
)

// maxRerouteAttempts bounds how often a reroute starts over because the
// vehicle moved on while the new route was computed.
const maxRerouteAttempts = 3

type rerouter struct{ u *orderUtil }

// reroute computes new routes for the unfinished drive orders of the
// vehicle's order and splices them onto the committed progress.
func (r *rerouter) reroute(vehicle string, typ RerouteType) error {
	var err error
	for attempt := 1; attempt <= maxRerouteAttempts; attempt++ {
		err = r.rerouteOnce(vehicle, typ, attempt == maxRerouteAttempts)
		if !errors.Is(err, vehiclectl.ErrRouteDiverged) {
			return err
		}
		r.u.log.Debugf("vehicle %s moved on during reroute, attempt %d: %v", vehicle, attempt, err)
	}
	return err
}

// rerouteOnce makes one attempt. A diverged attempt is only reported when
// it is the last one.
func (r *rerouter) rerouteOnce(vehicle string, typ RerouteType, last bool) error {
	u := r.u
	outcome := outcomeFailed
	v, ok := u.store.Vehicle(vehicle)
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicle, ErrUnknownVehicle)
	}
	if v.TransportOrder == "" {
		return nil
	}
	order, ok := u.store.Order(v.TransportOrder)
	if !ok || order.State != model.OrderBeingProcessed {
		return nil
	}
	diverged := false
	defer func() {
		if !diverged || last {
			r.report(v.Name, order.Name, typ, outcome)
		}
	}()

	ctrl, ok := u.controllers(vehicle)
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicle, ErrNoController)
	}
	forced := typ == ForcedReroute
	src, branch, active := ctrl.RerouteSource(forced)
	if src == "" {
		return fmt.Errorf("vehicle %s: %w", vehicle, ErrNoPosition)
	}

	unfinished := order.UnfinishedDriveOrders()
	if len(unfinished) == 0 {
		outcome = outcomeUnchanged
		return nil
	}
	pending := order.Clone()
	pending.DriveOrders = unfinished
	dos, routed := u.router.Route(v, src, pending)
	if !routed {
		from := 0
		if active {
			from = branch
		}
		dos, routed = r.fallback(unfinished, from)
		if !routed {
			return fmt.Errorf("order %s from %s: %w", order.Name, src, ErrNoRoute)
		}
		outcome = outcomeFallback
		u.log.Warnf("no route for %s from %s, applying %s", order.Name, src, u.cfg.ReroutingImpossibleStrategy)
	}

	if active && outcome != outcomeFallback {
		cur := unfinished[0]
		switch {
		case cur.Route != nil && src == cur.Route.FinalDestinationPoint().Name:
			dos[0] = cur
		case cur.Route != nil:
			merged, err := MergeRoutes(*cur.Route, *dos[0].Route, branch, func(a, b string) int64 {
				return u.router.Costs(v, a, b)
			})
			if err != nil {
				monitoring.CaptureException(err, map[string]string{"vehicle": vehicle, "order": order.Name})
				u.log.Errorf("vehicle %s: merging route of %s: %v", vehicle, order.Name, err)
				return err
			}
			dos[0].Route = &merged
		}
	}

	if outcome == outcomeFailed {
		outcome = outcomeRerouted
	}
	updated := order.Clone()
	updated.DriveOrders = append(cloneDriveOrders(order.PastDriveOrders()), cloneDriveOrders(dos)...)
	// The controller goes first: it refuses routes the vehicle can no
	// longer follow, and the store must not carry such a route.
	if active {
		if err := ctrl.UpdateTransportOrder(updated, forced); err != nil {
			diverged = errors.Is(err, vehiclectl.ErrRouteDiverged)
			outcome = outcomeFailed
			return fmt.Errorf("vehicle %s: %w", vehicle, err)
		}
	}
	stored, err := u.store.UpdateOrder(order.Name, func(o *model.TransportOrder) {
		o.DriveOrders = updated.DriveOrders
	})
	if err != nil {
		outcome = outcomeFailed
		return err
	}
	u.router.SelectRoute(vehicle, stored.UnfinishedDriveOrders())
	u.record(logging.LogRecord{
		Kind:    logging.KindReroute,
		Vehicle: vehicle,
		Order:   order.Name,
		Reason:  string(typ) + " " + outcome,
		Costs:   r.routeCosts(dos),
		Route:   routePoints(dos),
	})
	return nil
}

// fallback keeps the current routes when no new ones exist. Lock flags are
// refreshed from the store; with pause_at_path_lock the vehicle may not
// enter the first locked path ahead of it, nor anything behind that path.
// Steps of the current drive order before from are already committed.
func (r *rerouter) fallback(dos []model.DriveOrder, from int) ([]model.DriveOrder, bool) {
	out := cloneDriveOrders(dos)
	paused := false
	for i := range out {
		if out[i].Route == nil {
			return nil, false
		}
		for j := range out[i].Route.Steps {
			s := &out[i].Route.Steps[j]
			if s.Path != nil {
				if p, ok := r.u.store.Path(s.Path.Name); ok {
					s.Path.Locked = p.Locked
				}
			}
			if i == 0 && j < from {
				s.ExecutionAllowed = true
				continue
			}
			if s.Path != nil && s.Path.Locked && r.u.cfg.ReroutingImpossibleStrategy == PauseAtPathLock {
				paused = true
			}
			s.ExecutionAllowed = !paused
		}
	}
	return out, true
}

func (r *rerouter) routeCosts(dos []model.DriveOrder) int64 {
	return AssignmentCandidate{DriveOrders: dos}.CompleteCost()
}

func (r *rerouter) report(vehicle, order string, typ RerouteType, outcome string) {
	reroutesTotal.WithLabelValues(string(typ), outcome).Inc()
	if rec, ok := r.u.sink.(metrics.RerouteRecorder); ok {
		if err := rec.RecordReroute(metrics.RerouteEvent{
			Vehicle: vehicle,
			Order:   order,
			Forced:  typ == ForcedReroute,
			Outcome: outcome,
			Time:    r.u.now(),
		}); err != nil {
			r.u.log.Errorf("reroute metrics error: %v", err)
		}
	}
}
