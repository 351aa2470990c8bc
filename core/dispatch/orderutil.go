package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/objectstore"
	"github.com/kilianp07/agvfleet/core/router"
)

// orderUtil performs the order and vehicle state changes shared by the
// dispatch phases, the reroute engine and the manager's operations. It is
// only used from the dispatch goroutine.
type orderUtil struct {
	cfg          Config
	store        objectstore.Store
	router       router.Router
	controllers  ControllerLookup
	reservations *ReservationPool
	decisions    logging.LogStore
	sink         metrics.MetricsSink
	log          logger.Logger
	now          func() time.Time
}

// assign hands order to v with the given routed drive orders.
func (u *orderUtil) assign(v model.Vehicle, order model.TransportOrder, dos []model.DriveOrder, phase string) error {
	if _, ok := u.controllers(v.Name); !ok {
		return fmt.Errorf("vehicle %s: %w", v.Name, ErrNoController)
	}
	if len(dos) == 0 {
		return fmt.Errorf("order %s: %w", order.Name, ErrNoRoute)
	}
	u.reservations.RemoveOrder(order.Name)

	updated, err := u.store.UpdateOrder(order.Name, func(o *model.TransportOrder) {
		o.DriveOrders = cloneDriveOrders(dos)
		o.CurrentDriveIndex = 0
		o.DriveOrders[0].State = model.DriveOrderTravelling
		o.State = model.OrderBeingProcessed
		o.ProcessingVehicle = v.Name
	})
	if err != nil {
		return err
	}
	if _, err := u.store.UpdateVehicle(v.Name, func(x *model.Vehicle) {
		x.TransportOrder = order.Name
		if order.WrappingSequence != "" {
			x.OrderSequence = order.WrappingSequence
		}
		x.ProcState = model.ProcProcessingOrder
	}); err != nil {
		return err
	}
	if order.WrappingSequence != "" {
		if _, err := u.store.UpdateSequence(order.WrappingSequence, func(s *model.OrderSequence) {
			s.ProcessingVehicle = v.Name
		}); err != nil {
			u.log.Warnf("order %s: %v", order.Name, err)
		}
	}
	u.router.SelectRoute(v.Name, updated.UnfinishedDriveOrders())

	cand := AssignmentCandidate{Vehicle: v, Order: updated, DriveOrders: dos}
	assignmentsTotal.WithLabelValues(phase).Inc()
	u.log.Infof("assigned %s to %s in %s (initial cost %d, complete cost %d)",
		order.Name, v.Name, phase, cand.InitialCost(), cand.CompleteCost())
	if err := u.sink.RecordAssignment(metrics.AssignmentEvent{
		Vehicle:      v.Name,
		Order:        order.Name,
		Phase:        phase,
		InitialCost:  cand.InitialCost(),
		CompleteCost: cand.CompleteCost(),
		Time:         u.now(),
	}); err != nil {
		u.log.Errorf("assignment metrics error: %v", err)
	}
	u.record(logging.LogRecord{
		Kind:    logging.KindAssignment,
		Vehicle: v.Name,
		Order:   order.Name,
		Phase:   phase,
		Costs:   cand.CompleteCost(),
		Route:   routePoints(dos),
	})
	return u.proceed(v.Name, updated)
}

// proceed hands the current drive order of order to the vehicle's
// controller. Drive orders without physical effect are skipped; if none is
// left the order is finished.
func (u *orderUtil) proceed(vehicle string, order model.TransportOrder) error {
	v, ok := u.store.Vehicle(vehicle)
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicle, ErrUnknownVehicle)
	}
	for {
		cur, ok := order.CurrentDriveOrder()
		if !ok {
			u.finishOrder(order, vehicle)
			return nil
		}
		if MustAssign(&cur, v, u.cfg.AssignRedundantOrders) {
			break
		}
		u.log.Debugf("order %s: skipping drive order %d to %s, vehicle %s is already there",
			order.Name, order.CurrentDriveIndex, cur.Destination.Target, vehicle)
		next, err := u.advanceDriveOrder(order.Name)
		if err != nil {
			return err
		}
		order = next
	}
	ctrl, ok := u.controllers(vehicle)
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicle, ErrNoController)
	}
	if err := ctrl.SetTransportOrder(order); err != nil {
		return fmt.Errorf("vehicle %s, order %s: %w", vehicle, order.Name, err)
	}
	return nil
}

// advanceDriveOrder marks the current drive order finished and moves on to
// the next one.
func (u *orderUtil) advanceDriveOrder(name string) (model.TransportOrder, error) {
	return u.store.UpdateOrder(name, func(o *model.TransportOrder) {
		if i := o.CurrentDriveIndex; i >= 0 && i < len(o.DriveOrders) {
			o.DriveOrders[i].State = model.DriveOrderFinished
		}
		o.CurrentDriveIndex++
		if i := o.CurrentDriveIndex; i < len(o.DriveOrders) {
			o.DriveOrders[i].State = model.DriveOrderTravelling
		}
	})
}

func (u *orderUtil) finishOrder(order model.TransportOrder, vehicle string) {
	updated, err := u.store.UpdateOrder(order.Name, func(o *model.TransportOrder) {
		o.State = model.OrderFinished
	})
	if err != nil {
		u.log.Errorf("finishing %s: %v", order.Name, err)
		return
	}
	u.releaseVehicle(vehicle)
	u.reservations.RemoveOrder(order.Name)
	u.sequenceOrderDone(updated, vehicle, false)
	u.log.Infof("order %s finished by %s", order.Name, vehicle)
	u.record(logging.LogRecord{Kind: logging.KindFinished, Vehicle: vehicle, Order: order.Name})
}

// withdraw takes an order away from its vehicle. An order nobody processes
// fails right away. Otherwise the order is marked withdrawn and the vehicle
// stops; after an immediate withdrawal or once a graceful one has been
// completed by the vehicle the order fails.
func (u *orderUtil) withdraw(name string, immediate bool, reason string) error {
	order, ok := u.store.Order(name)
	if !ok {
		return fmt.Errorf("order %s: %w", name, ErrUnknownOrder)
	}
	if order.State.IsFinal() {
		u.log.Debugf("order %s is already %s, nothing to withdraw", name, order.State)
		return nil
	}
	withdrawalsTotal.WithLabelValues(strconv.FormatBool(immediate)).Inc()
	vehicle := order.ProcessingVehicle
	u.log.Infof("withdrawing %s from %q (immediate=%t): %s", name, vehicle, immediate, reason)
	if rec, ok := u.sink.(metrics.WithdrawalRecorder); ok {
		if err := rec.RecordWithdrawal(metrics.WithdrawalEvent{
			Order: name, Vehicle: vehicle, Immediate: immediate, Reason: reason, Time: u.now(),
		}); err != nil {
			u.log.Errorf("withdrawal metrics error: %v", err)
		}
	}
	u.record(logging.LogRecord{Kind: logging.KindWithdrawal, Vehicle: vehicle, Order: name, Reason: reason})

	if vehicle == "" {
		updated, err := u.store.UpdateOrder(name, func(o *model.TransportOrder) {
			o.State = model.OrderFailed
		})
		if err != nil {
			return err
		}
		u.reservations.RemoveOrder(name)
		u.sequenceOrderDone(updated, "", true)
		return nil
	}

	if _, err := u.store.UpdateOrder(name, func(o *model.TransportOrder) {
		o.State = model.OrderWithdrawn
	}); err != nil {
		return err
	}
	ctrl, ok := u.controllers(vehicle)
	if ok {
		ctrl.AbortTransportOrder(immediate)
	}
	if immediate || !ok {
		order, _ = u.store.Order(name)
		u.finishWithdrawal(order, vehicle)
	}
	return nil
}

// finishWithdrawal fails a withdrawn order and frees its vehicle.
func (u *orderUtil) finishWithdrawal(order model.TransportOrder, vehicle string) {
	updated, err := u.store.UpdateOrder(order.Name, func(o *model.TransportOrder) {
		if i := o.CurrentDriveIndex; i >= 0 && i < len(o.DriveOrders) {
			o.DriveOrders[i].State = model.DriveOrderFailed
		}
		o.State = model.OrderFailed
	})
	if err != nil {
		u.log.Errorf("failing %s: %v", order.Name, err)
		return
	}
	if ctrl, ok := u.controllers(vehicle); ok {
		ctrl.ClearTransportOrder()
	}
	u.releaseVehicle(vehicle)
	u.reservations.RemoveOrder(order.Name)
	u.sequenceOrderDone(updated, vehicle, true)
	u.log.Infof("withdrawal of %s from %s completed", order.Name, vehicle)
}

// releaseVehicle makes the vehicle available for a new order.
func (u *orderUtil) releaseVehicle(vehicle string) {
	if _, err := u.store.UpdateVehicle(vehicle, func(v *model.Vehicle) {
		v.TransportOrder = ""
		v.ProcState = model.ProcIdle
	}); err != nil {
		u.log.Warnf("releasing %s: %v", vehicle, err)
	}
	u.router.SelectRoute(vehicle, nil)
}

// sequenceOrderDone moves the wrapping sequence of order forward. A failed
// order of a failure-fatal sequence fails all its successors. Once a
// complete sequence has no orders left the vehicle is released from it.
func (u *orderUtil) sequenceOrderDone(order model.TransportOrder, vehicle string, failed bool) {
	if order.WrappingSequence == "" {
		return
	}
	seq, ok := u.store.Sequence(order.WrappingSequence)
	if !ok {
		u.log.Warnf("order %s: %s: %v", order.Name, order.WrappingSequence, objectstore.ErrUnknownSequence)
		return
	}
	if failed && seq.FailureFatal {
		for _, name := range seq.Orders {
			if name == order.Name {
				continue
			}
			o, ok := u.store.Order(name)
			if !ok || o.State.IsFinal() || o.State == model.OrderBeingProcessed || o.State == model.OrderWithdrawn {
				continue
			}
			if _, err := u.store.UpdateOrder(name, func(o *model.TransportOrder) {
				o.State = model.OrderFailed
			}); err != nil {
				u.log.Warnf("failing %s: %v", name, err)
			}
			u.reservations.RemoveOrder(name)
		}
	}
	seq, err := u.store.UpdateSequence(seq.Name, func(s *model.OrderSequence) {
		for i, name := range s.Orders {
			if name == order.Name && i > s.FinishedIndex {
				s.FinishedIndex = i
			}
		}
		if failed && s.FailureFatal {
			s.FinishedIndex = len(s.Orders) - 1
			s.Complete = true
		}
		if s.Complete && s.FinishedIndex >= len(s.Orders)-1 {
			s.Finished = true
			s.ProcessingVehicle = ""
		}
	})
	if err != nil {
		u.log.Warnf("order %s: %v", order.Name, err)
		return
	}
	if seq.Finished && vehicle != "" {
		u.log.Infof("sequence %s finished, releasing %s", seq.Name, vehicle)
		if _, err := u.store.UpdateVehicle(vehicle, func(v *model.Vehicle) {
			if v.OrderSequence == seq.Name {
				v.OrderSequence = ""
			}
		}); err != nil {
			u.log.Warnf("releasing %s from %s: %v", vehicle, seq.Name, err)
		}
	}
}

// recordRejection notes that vehicle cannot process order. Repeated
// rejections by the same vehicle are recorded once.
func (u *orderUtil) recordRejection(order model.TransportOrder, vehicle, reason string) {
	if order.HasRejection(vehicle) {
		return
	}
	rejectionsTotal.Inc()
	u.log.Infof("vehicle %s rejected %s: %s", vehicle, order.Name, reason)
	if _, err := u.store.UpdateOrder(order.Name, func(o *model.TransportOrder) {
		o.Rejections = append(o.Rejections, model.Rejection{Vehicle: vehicle, Reason: reason, Timestamp: u.now()})
	}); err != nil {
		u.log.Warnf("recording rejection of %s: %v", order.Name, err)
	}
	u.record(logging.LogRecord{Kind: logging.KindRejection, Vehicle: vehicle, Order: order.Name, Reason: reason})
}

func (u *orderUtil) record(rec logging.LogRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = u.now()
	}
	if err := u.decisions.Append(context.Background(), rec); err != nil {
		u.log.Warnf("decision log: %v", err)
	}
}

// availableForNewOrder reports whether v is idle, free of orders,
// sequences and reservations and may be given work.
func (u *orderUtil) availableForNewOrder(v model.Vehicle) bool {
	return v.IsAvailableForOrders() &&
		v.ProcState == model.ProcIdle &&
		v.TransportOrder == "" &&
		v.OrderSequence == "" &&
		len(u.reservations.Reservations(v.Name)) == 0
}

func cloneDriveOrders(dos []model.DriveOrder) []model.DriveOrder {
	out := make([]model.DriveOrder, len(dos))
	for i, d := range dos {
		out[i] = d.Clone()
	}
	return out
}

// routePoints lists the points visited by the drive orders' routes.
func routePoints(dos []model.DriveOrder) []string {
	var pts []string
	for _, d := range dos {
		if d.Route == nil || len(d.Route.Steps) == 0 {
			continue
		}
		if len(pts) == 0 {
			pts = append(pts, d.Route.SourcePoint().Name)
		}
		for _, s := range d.Route.Steps {
			if s.Path == nil {
				continue
			}
			pts = append(pts, s.Destination.Name)
		}
	}
	return pts
}
