package dispatch

import "github.com/kilianp07/agvfleet/core/model"

// assignReservedOrders gives idle vehicles the orders reserved for them.
type assignReservedOrders struct{ u *orderUtil }

func (assignReservedOrders) Name() string { return PhaseAssignReservedOrders }

func (p assignReservedOrders) Run() {
	for _, v := range p.u.store.Vehicles() {
		if !v.IsAvailableForOrders() || v.ProcState != model.ProcIdle || v.TransportOrder != "" {
			continue
		}
		for _, name := range p.u.reservations.Reservations(v.Name) {
			o, ok := p.u.store.Order(name)
			if !ok || o.State.IsFinal() {
				p.u.reservations.RemoveOrder(name)
				continue
			}
			if o.State != model.OrderDispatchable {
				continue
			}
			cand, ok := p.u.candidate(v, o)
			if !ok {
				continue
			}
			if err := p.u.assign(v, o, cand.DriveOrders, PhaseAssignReservedOrders); err != nil {
				p.u.log.Errorf("assigning reserved order %s to %s: %v", name, v.Name, err)
			}
			break
		}
	}
}
