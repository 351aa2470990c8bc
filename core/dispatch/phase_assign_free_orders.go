package dispatch

import (
	"sort"

	"github.com/kilianp07/agvfleet/core/model"
)

// assignFreeOrders matches dispatchable orders nobody was promised to the
// cheapest eligible vehicle. A vehicle busy with a dispensable order may be
// chosen too: the order is then reserved for it and its current order is
// withdrawn gracefully.
type assignFreeOrders struct{ u *orderUtil }

func (assignFreeOrders) Name() string { return PhaseAssignFreeOrders }

func (p assignFreeOrders) Run() {
	vehicles := p.u.store.Vehicles()
	taken := map[string]bool{}
	for _, o := range p.freeOrders() {
		var cands []AssignmentCandidate
		for _, v := range vehicles {
			if taken[v.Name] || !p.eligible(v, o) {
				continue
			}
			if cand, ok := p.u.candidate(v, o); ok {
				cands = append(cands, cand)
			}
		}
		best, ok := SelectCandidate(p.u.cfg.AssignmentStrategy, cands)
		if !ok {
			continue
		}
		v := best.Vehicle
		taken[v.Name] = true
		if v.TransportOrder != "" {
			p.preempt(v, o)
			continue
		}
		if err := p.u.assign(v, o, best.DriveOrders, PhaseAssignFreeOrders); err != nil {
			p.u.log.Errorf("assigning %s to %s: %v", o.Name, v.Name, err)
		}
	}
}

// freeOrders returns dispatchable orders that are neither reserved nor
// waiting for a vehicle already bound to their sequence, earliest deadline
// first.
func (p assignFreeOrders) freeOrders() []model.TransportOrder {
	var out []model.TransportOrder
	for _, o := range p.u.store.Orders() {
		if o.State != model.OrderDispatchable || p.u.reservations.IsReserved(o.Name) {
			continue
		}
		if o.WrappingSequence != "" {
			seq, ok := p.u.store.Sequence(o.WrappingSequence)
			if !ok || seq.ProcessingVehicle != "" {
				continue
			}
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Deadline, out[j].Deadline
		switch {
		case di.IsZero() != dj.IsZero():
			return !di.IsZero()
		case !di.Equal(dj):
			return di.Before(dj)
		case !out[i].CreatedAt.Equal(out[j].CreatedAt):
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (p assignFreeOrders) eligible(v model.Vehicle, o model.TransportOrder) bool {
	if !v.IsAvailableForOrders() || v.OrderSequence != "" {
		return false
	}
	if len(p.u.reservations.Reservations(v.Name)) > 0 {
		return false
	}
	if !p.intendedFor(v, o) || !v.AcceptsOrderType(o.Type) {
		return false
	}
	if !p.energyAllows(v) {
		return false
	}
	switch {
	case v.ProcState == model.ProcIdle && v.TransportOrder == "":
		return true
	case v.ProcState == model.ProcProcessingOrder && v.TransportOrder != "":
		cur, ok := p.u.store.Order(v.TransportOrder)
		return ok && cur.Dispensable && cur.State == model.OrderBeingProcessed && !o.Dispensable
	}
	return false
}

func (p assignFreeOrders) intendedFor(v model.Vehicle, o model.TransportOrder) bool {
	if o.IntendedVehicle != "" && o.IntendedVehicle != v.Name {
		return false
	}
	if o.WrappingSequence != "" {
		seq, ok := p.u.store.Sequence(o.WrappingSequence)
		if ok && seq.IntendedVehicle != "" && seq.IntendedVehicle != v.Name {
			return false
		}
	}
	return true
}

// energyAllows keeps critical vehicles and vehicles that have not charged
// enough yet out of assignment.
func (p assignFreeOrders) energyAllows(v model.Vehicle) bool {
	if v.IsEnergyLevelCritical() {
		return false
	}
	if v.State != model.StateCharging {
		return true
	}
	if p.u.cfg.KeepRechargingUntilFullyCharged {
		return v.IsEnergyLevelFullyRecharged()
	}
	return v.IsEnergyLevelSufficientlyRecharged()
}

func (p assignFreeOrders) preempt(v model.Vehicle, o model.TransportOrder) {
	if err := p.u.reservations.Reserve(o.Name, v.Name); err != nil {
		p.u.log.Warnf("%v", err)
		return
	}
	p.u.log.Infof("reserved %s for %s, withdrawing dispensable %s", o.Name, v.Name, v.TransportOrder)
	if err := p.u.withdraw(v.TransportOrder, false, "preempted by "+o.Name); err != nil {
		p.u.log.Errorf("withdrawing %s: %v", v.TransportOrder, err)
	}
}
