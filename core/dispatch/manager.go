package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/monitoring"
	"github.com/kilianp07/agvfleet/core/objectstore"
	"github.com/kilianp07/agvfleet/core/router"
)

// Deps holds the collaborators of a DispatchManager. Decisions, Metrics,
// Reservations and Logger are optional.
type Deps struct {
	Store        objectstore.Store
	Router       router.Router
	Controllers  ControllerLookup
	Reservations *ReservationPool
	Decisions    logging.LogStore
	Metrics      metrics.MetricsSink
	Logger       logger.Logger
}

// DispatchManager assigns transport orders to vehicles and reroutes them.
// All work runs on the goroutine executing Run, one task at a time; the
// exported methods only enqueue tasks and may be called from anywhere.
type DispatchManager struct {
	util    *orderUtil
	rr      *rerouter
	phases  []Phase
	tasks   *taskQueue
	pending atomic.Bool
	recheck time.Duration
	log     logger.Logger
}

// NewDispatchManager creates a manager.
func NewDispatchManager(cfg Config, deps Deps) (*DispatchManager, error) {
	if deps.Store == nil || deps.Router == nil || deps.Controllers == nil {
		return nil, fmt.Errorf("dispatch: store, router and controllers are required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.OrNop(deps.Logger)
	res := deps.Reservations
	if res == nil {
		res = NewReservationPool()
	}
	var decisions logging.LogStore = logging.NopStore{}
	if deps.Decisions != nil {
		decisions = deps.Decisions
	}
	var sink metrics.MetricsSink = metrics.NopSink{}
	if deps.Metrics != nil {
		sink = deps.Metrics
	}
	u := &orderUtil{
		cfg:          cfg,
		store:        deps.Store,
		router:       deps.Router,
		controllers:  deps.Controllers,
		reservations: res,
		decisions:    decisions,
		sink:         sink,
		log:          log,
		now:          time.Now,
	}
	rr := &rerouter{u: u}
	return &DispatchManager{
		util:    u,
		rr:      rr,
		phases:  newPhases(u, rr),
		tasks:   newTaskQueue(),
		recheck: time.Duration(cfg.RecheckIntervalSeconds) * time.Second,
		log:     log,
	}, nil
}

// Reservations returns the manager's reservation pool.
func (m *DispatchManager) Reservations() *ReservationPool { return m.util.reservations }

// Run processes tasks until the context is canceled. A dispatch cycle is
// also started every recheck interval.
func (m *DispatchManager) Run(ctx context.Context) {
	var tick <-chan time.Time
	if m.recheck > 0 {
		t := time.NewTicker(m.recheck)
		defer t.Stop()
		tick = t.C
	}
	for {
		if f, ok := m.tasks.pop(); ok {
			m.execute(f)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-m.tasks.notify:
		case <-tick:
			m.Dispatch()
		}
	}
}

// drain runs all queued tasks on the calling goroutine. It must not be used
// while Run is active.
func (m *DispatchManager) drain() {
	for {
		f, ok := m.tasks.pop()
		if !ok {
			return
		}
		m.execute(f)
	}
}

func (m *DispatchManager) execute(f func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("dispatch task panicked: %v", r)
			monitoring.CaptureException(err, map[string]string{"component": "dispatch"})
			m.log.Errorf("%v", err)
		}
	}()
	f()
}

// Dispatch requests a dispatch cycle. Requests made while a cycle is still
// queued are merged into it.
func (m *DispatchManager) Dispatch() {
	if !m.pending.CompareAndSwap(false, true) {
		return
	}
	m.tasks.push(func() {
		m.pending.Store(false)
		m.cycle()
	})
}

func (m *DispatchManager) cycle() {
	start := time.Now()
	for _, p := range m.phases {
		p.Run()
	}
	dispatchCycles.Inc()
	dispatchDuration.Observe(time.Since(start).Seconds())
	if fr, ok := m.util.sink.(metrics.FleetSizeRecorder); ok {
		if err := fr.RecordFleetSize(len(m.util.store.Vehicles())); err != nil {
			m.log.Errorf("fleet size metrics error: %v", err)
		}
	}
}

// Submit stores a new transport order and triggers dispatching. An order
// without a name gets a generated one. The stored order is returned.
func (m *DispatchManager) Submit(order model.TransportOrder) (model.TransportOrder, error) {
	order, err := m.prepareOrder(order)
	if err != nil {
		return model.TransportOrder{}, err
	}
	if err := m.util.store.AddOrder(order); err != nil {
		return model.TransportOrder{}, err
	}
	m.log.Infof("order %s submitted with %d drive orders", order.Name, len(order.DriveOrders))
	m.Dispatch()
	stored, _ := m.util.store.Order(order.Name)
	return stored, nil
}

func (m *DispatchManager) prepareOrder(order model.TransportOrder) (model.TransportOrder, error) {
	if order.Name == "" {
		order.Name = "TOrder-" + uuid.NewString()
	}
	if err := order.Validate(); err != nil {
		return model.TransportOrder{}, err
	}
	for _, dep := range order.Dependencies {
		if _, ok := m.util.store.Order(dep); !ok {
			return model.TransportOrder{}, fmt.Errorf("order %s: dependency %s: %w", order.Name, dep, ErrUnknownOrder)
		}
	}
	if order.IntendedVehicle != "" {
		if _, ok := m.util.store.Vehicle(order.IntendedVehicle); !ok {
			return model.TransportOrder{}, fmt.Errorf("order %s: %s: %w", order.Name, order.IntendedVehicle, ErrUnknownVehicle)
		}
	}
	order.State = model.OrderRaw
	order.CurrentDriveIndex = -1
	order.ProcessingVehicle = ""
	order.Rejections = nil
	for i := range order.DriveOrders {
		order.DriveOrders[i].Route = nil
		order.DriveOrders[i].State = model.DriveOrderPristine
	}
	return order, nil
}

// SubmitSequence stores an order sequence together with its orders. The
// orders are processed one after another by the same vehicle. More orders
// may be appended with ExtendSequence until the sequence is complete.
func (m *DispatchManager) SubmitSequence(seq model.OrderSequence, orders ...model.TransportOrder) (model.OrderSequence, error) {
	if seq.Name == "" {
		seq.Name = "Seq-" + uuid.NewString()
	}
	if seq.IntendedVehicle != "" {
		if _, ok := m.util.store.Vehicle(seq.IntendedVehicle); !ok {
			return model.OrderSequence{}, fmt.Errorf("sequence %s: %s: %w", seq.Name, seq.IntendedVehicle, ErrUnknownVehicle)
		}
	}
	complete := seq.Complete
	seq.Complete = false
	seq.Orders = nil
	seq.FinishedIndex = -1
	seq.Finished = false
	seq.ProcessingVehicle = ""
	if err := m.util.store.AddSequence(seq); err != nil {
		return model.OrderSequence{}, err
	}
	if err := m.ExtendSequence(seq.Name, complete, orders...); err != nil {
		return model.OrderSequence{}, err
	}
	stored, _ := m.util.store.Sequence(seq.Name)
	return stored, nil
}

// ExtendSequence appends orders to an incomplete sequence and marks it
// complete if requested.
func (m *DispatchManager) ExtendSequence(name string, complete bool, orders ...model.TransportOrder) error {
	seq, ok := m.util.store.Sequence(name)
	if !ok {
		return fmt.Errorf("sequence %s: %w", name, objectstore.ErrUnknownSequence)
	}
	if seq.Complete {
		return fmt.Errorf("sequence %s is complete", name)
	}
	for _, o := range orders {
		o.WrappingSequence = name
		if o.IntendedVehicle == "" {
			o.IntendedVehicle = seq.IntendedVehicle
		}
		prepared, err := m.prepareOrder(o)
		if err != nil {
			return err
		}
		if err := m.util.store.AddOrder(prepared); err != nil {
			return err
		}
		if _, err := m.util.store.UpdateSequence(name, func(s *model.OrderSequence) {
			s.Orders = append(s.Orders, prepared.Name)
		}); err != nil {
			return err
		}
	}
	var bound string
	updated, err := m.util.store.UpdateSequence(name, func(s *model.OrderSequence) {
		s.Complete = complete
		if complete && len(s.Orders) > 0 && s.FinishedIndex >= len(s.Orders)-1 {
			s.Finished = true
			bound, s.ProcessingVehicle = s.ProcessingVehicle, ""
		}
	})
	if err != nil {
		return err
	}
	if updated.Finished && bound != "" {
		if _, err := m.util.store.UpdateVehicle(bound, func(v *model.Vehicle) {
			if v.OrderSequence == name {
				v.OrderSequence = ""
			}
		}); err != nil {
			m.log.Warnf("releasing %s from %s: %v", bound, name, err)
		}
	}
	m.Dispatch()
	return nil
}

// Withdraw withdraws a transport order. A graceful withdrawal lets the
// vehicle finish the commands it has already been sent.
func (m *DispatchManager) Withdraw(order string, immediate bool) error {
	if _, ok := m.util.store.Order(order); !ok {
		return fmt.Errorf("order %s: %w", order, ErrUnknownOrder)
	}
	m.tasks.push(func() {
		if err := m.util.withdraw(order, immediate, "withdrawn by request"); err != nil {
			m.log.Errorf("withdrawing %s: %v", order, err)
		}
		m.Dispatch()
	})
	return nil
}

// WithdrawByVehicle withdraws the order the vehicle is processing. It never
// blocks and matches vehicle.WithdrawFunc.
func (m *DispatchManager) WithdrawByVehicle(vehicle string, immediate bool, reason string) {
	m.tasks.push(func() {
		v, ok := m.util.store.Vehicle(vehicle)
		if !ok || v.TransportOrder == "" {
			m.log.Debugf("vehicle %s has no order to withdraw", vehicle)
			return
		}
		if err := m.util.withdraw(v.TransportOrder, immediate, reason); err != nil {
			m.log.Errorf("withdrawing %s from %s: %v", v.TransportOrder, vehicle, err)
		}
		m.Dispatch()
	})
}

// Reroute computes a new route for the vehicle's order.
func (m *DispatchManager) Reroute(vehicle string, typ RerouteType) error {
	if _, ok := m.util.store.Vehicle(vehicle); !ok {
		return fmt.Errorf("vehicle %s: %w", vehicle, ErrUnknownVehicle)
	}
	if typ != RegularReroute && typ != ForcedReroute {
		return fmt.Errorf("unknown reroute type %q", typ)
	}
	m.tasks.push(func() {
		if err := m.rr.reroute(vehicle, typ); err != nil {
			m.log.Warnf("rerouting %s: %v", vehicle, err)
		}
	})
	return nil
}

// RerouteAll reroutes every vehicle processing an order.
func (m *DispatchManager) RerouteAll(typ RerouteType) {
	m.tasks.push(func() { m.rerouteAll(typ) })
}

func (m *DispatchManager) rerouteAll(typ RerouteType) {
	for _, v := range m.util.store.Vehicles() {
		if v.TransportOrder == "" {
			continue
		}
		if err := m.rr.reroute(v.Name, typ); err != nil {
			m.log.Warnf("rerouting %s: %v", v.Name, err)
		}
	}
}

// TopologyChanged rebuilds the router's graph and, if configured, reroutes
// all vehicles.
func (m *DispatchManager) TopologyChanged() {
	m.tasks.push(func() {
		m.util.router.TopologyChanged()
		if m.util.cfg.RerouteOnTopologyChanges {
			m.rerouteAll(RegularReroute)
		}
		m.Dispatch()
	})
}

// SetPathLocked locks or unlocks a path and handles the topology change.
func (m *DispatchManager) SetPathLocked(path string, locked bool) error {
	if err := m.util.store.SetPathLocked(path, locked); err != nil {
		return err
	}
	m.log.Infof("path %s locked=%t", path, locked)
	m.TopologyChanged()
	return nil
}

// Handlers returns the reactions of the dispatcher to domain events.
func (m *DispatchManager) Handlers() events.Handlers {
	return events.Handlers{
		Vehicle: func(e events.VehicleChanged) {
			m.recordVehicle(e)
			if dispatchRelevant(e) {
				m.Dispatch()
			}
		},
	}
}

// dispatchRelevant reports whether a vehicle change may allow an
// assignment that was not possible before.
func dispatchRelevant(e events.VehicleChanged) bool {
	prev, cur := e.Previous, e.Current
	switch {
	case prev.Name == "":
		return true
	case prev.ProcState != cur.ProcState &&
		(cur.ProcState == model.ProcIdle || cur.ProcState == model.ProcAwaitingOrder):
		return true
	case cur.ProcState == model.ProcIdle && prev.EnergyLevel != cur.EnergyLevel:
		return true
	case prev.OrderSequence != "" && cur.OrderSequence == "":
		return true
	case prev.State != cur.State && (cur.State == model.StateIdle || cur.State == model.StateCharging):
		return true
	}
	return prev.IsAvailableForOrders() != cur.IsAvailableForOrders()
}

func (m *DispatchManager) recordVehicle(e events.VehicleChanged) {
	rec, ok := m.util.sink.(metrics.VehicleStateRecorder)
	if !ok {
		return
	}
	prev, cur := e.Previous, e.Current
	if prev.Name != "" && prev.State == cur.State && prev.ProcState == cur.ProcState &&
		prev.EnergyLevel == cur.EnergyLevel && prev.CurrentPosition == cur.CurrentPosition {
		return
	}
	if err := rec.RecordVehicleState(metrics.VehicleStateEvent{Vehicle: cur, Component: "dispatch", Time: time.Now()}); err != nil {
		m.log.Errorf("vehicle state metrics error: %v", err)
	}
}

// Close closes the decision log.
func (m *DispatchManager) Close() error {
	return m.util.decisions.Close()
}
