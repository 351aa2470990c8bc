package dispatch

import "github.com/kilianp07/agvfleet/core/model"

// finishWithdrawals completes graceful withdrawals of vehicles that have
// stopped.
type finishWithdrawals struct{ u *orderUtil }

func (finishWithdrawals) Name() string { return PhaseFinishWithdrawals }

func (p finishWithdrawals) Run() {
	for _, v := range p.u.store.Vehicles() {
		if v.ProcState != model.ProcAwaitingOrder || v.TransportOrder == "" {
			continue
		}
		o, ok := p.u.store.Order(v.TransportOrder)
		if !ok || o.State != model.OrderWithdrawn {
			continue
		}
		p.u.finishWithdrawal(o, v.Name)
	}
}
