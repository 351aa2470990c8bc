package dispatch

import "github.com/kilianp07/agvfleet/core/model"

// assignNextDriveOrders moves vehicles that finished a drive order on to
// the next one of their order.
type assignNextDriveOrders struct {
	u  *orderUtil
	rr *rerouter
}

func (assignNextDriveOrders) Name() string { return PhaseAssignNextDriveOrders }

func (p assignNextDriveOrders) Run() {
	for _, v := range p.u.store.Vehicles() {
		if v.ProcState != model.ProcAwaitingOrder {
			continue
		}
		if v.TransportOrder == "" {
			p.u.releaseVehicle(v.Name)
			continue
		}
		o, ok := p.u.store.Order(v.TransportOrder)
		if !ok {
			p.u.log.Warnf("vehicle %s processes unknown order %s", v.Name, v.TransportOrder)
			p.u.releaseVehicle(v.Name)
			continue
		}
		if o.State != model.OrderBeingProcessed {
			continue
		}
		o, err := p.u.advanceDriveOrder(o.Name)
		if err != nil {
			p.u.log.Errorf("advancing %s: %v", v.TransportOrder, err)
			continue
		}
		if _, ok := o.CurrentDriveOrder(); ok && p.u.cfg.RerouteOnDriveOrderFinished {
			if err := p.rr.reroute(v.Name, RegularReroute); err != nil {
				p.u.log.Warnf("rerouting %s after drive order: %v", v.Name, err)
			}
			o, _ = p.u.store.Order(o.Name)
		}
		if err := p.u.proceed(v.Name, o); err != nil {
			p.u.log.Errorf("%v", err)
			if werr := p.u.withdraw(o.Name, true, err.Error()); werr != nil {
				p.u.log.Errorf("withdrawing %s: %v", o.Name, werr)
			}
		}
	}
}
