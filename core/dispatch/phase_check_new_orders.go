package dispatch

import "github.com/kilianp07/agvfleet/core/model"

// checkNewOrders activates raw orders and makes active orders dispatchable
// once their dependencies are finished.
type checkNewOrders struct{ u *orderUtil }

func (checkNewOrders) Name() string { return PhaseCheckNewOrders }

func (p checkNewOrders) Run() {
	for _, o := range p.u.store.Orders() {
		switch o.State {
		case model.OrderRaw:
			if p.u.cfg.DismissUnroutableOrders && !p.u.router.Routable(o) {
				p.u.log.Warnf("order %s is unroutable", o.Name)
				p.setState(o.Name, model.OrderUnroutable)
				continue
			}
			p.setState(o.Name, model.OrderActive)
			o.State = model.OrderActive
			p.checkActive(o)
		case model.OrderActive:
			p.checkActive(o)
		}
	}
}

func (p checkNewOrders) checkActive(o model.TransportOrder) {
	if !p.dependenciesFinished(o) || !p.nextInSequence(o) {
		return
	}
	p.setState(o.Name, model.OrderDispatchable)
}

func (p checkNewOrders) dependenciesFinished(o model.TransportOrder) bool {
	for _, dep := range o.Dependencies {
		d, ok := p.u.store.Order(dep)
		if !ok || d.State != model.OrderFinished {
			return false
		}
	}
	return true
}

func (p checkNewOrders) nextInSequence(o model.TransportOrder) bool {
	if o.WrappingSequence == "" {
		return true
	}
	seq, ok := p.u.store.Sequence(o.WrappingSequence)
	if !ok {
		return false
	}
	next, ok := seq.NextUnfinishedOrder()
	return ok && next == o.Name
}

func (p checkNewOrders) setState(name string, s model.OrderState) {
	if _, err := p.u.store.UpdateOrder(name, func(o *model.TransportOrder) { o.State = s }); err != nil {
		p.u.log.Warnf("order %s: %v", name, err)
	}
}
