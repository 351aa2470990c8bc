package dispatch

import "github.com/kilianp07/agvfleet/core/model"

// assignSequenceSuccessors gives vehicles bound to an order sequence the
// next order of that sequence.
type assignSequenceSuccessors struct{ u *orderUtil }

func (assignSequenceSuccessors) Name() string { return PhaseAssignSequenceSuccessor }

func (p assignSequenceSuccessors) Run() {
	for _, v := range p.u.store.Vehicles() {
		if v.OrderSequence == "" || v.TransportOrder != "" || v.ProcState != model.ProcIdle || !v.IsAvailableForOrders() {
			continue
		}
		seq, ok := p.u.store.Sequence(v.OrderSequence)
		if !ok {
			continue
		}
		next, ok := seq.NextUnfinishedOrder()
		if !ok {
			continue
		}
		o, ok := p.u.store.Order(next)
		if !ok || o.State != model.OrderDispatchable {
			continue
		}
		cand, ok := p.u.candidate(v, o)
		if !ok {
			continue
		}
		if err := p.u.assign(v, o, cand.DriveOrders, PhaseAssignSequenceSuccessor); err != nil {
			p.u.log.Errorf("assigning %s of %s to %s: %v", o.Name, seq.Name, v.Name, err)
		}
	}
}
