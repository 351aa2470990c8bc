package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/objectstore"
	"github.com/kilianp07/agvfleet/core/router"
	"github.com/kilianp07/agvfleet/core/vehicle"
)

type update struct {
	order  model.TransportOrder
	forced bool
}

// fakeController records the dispatcher's calls and mirrors the processing
// state changes of a real controller in the store.
type fakeController struct {
	name  string
	store *objectstore.MemoryStore

	mu      sync.Mutex
	sets    []model.TransportOrder
	updates []update
	aborts  []bool
	clears  int
	reject  string
	src     string
	branch  int
	// diverge makes the next updates fail as if the vehicle had moved on
	// to moved/movedBranch in the meantime.
	diverge     int
	moved       string
	movedBranch int
}

func (c *fakeController) SetTransportOrder(order model.TransportOrder) error {
	c.mu.Lock()
	c.sets = append(c.sets, order.Clone())
	c.mu.Unlock()
	_, err := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) { v.ProcState = model.ProcProcessingOrder })
	return err
}

func (c *fakeController) UpdateTransportOrder(order model.TransportOrder, forced bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, update{order: order.Clone(), forced: forced})
	if c.diverge > 0 {
		c.diverge--
		c.src, c.branch = c.moved, c.movedBranch
		return vehicle.ErrRouteDiverged
	}
	return nil
}

func (c *fakeController) AbortTransportOrder(immediate bool) {
	c.mu.Lock()
	c.aborts = append(c.aborts, immediate)
	c.mu.Unlock()
	if immediate {
		_, _ = c.store.UpdateVehicle(c.name, func(v *model.Vehicle) { v.ProcState = model.ProcAwaitingOrder })
	}
}

func (c *fakeController) ClearTransportOrder() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
}

func (c *fakeController) CanProcess(model.TransportOrder) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reject == "", c.reject
}

func (c *fakeController) RerouteSource(bool) (string, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := len(c.sets) > 0
	if c.src != "" {
		return c.src, c.branch, active
	}
	v, _ := c.store.Vehicle(c.name)
	return v.CurrentPosition, 0, active
}

func (c *fakeController) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sets)
}

func (c *fakeController) lastSet() model.TransportOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets[len(c.sets)-1]
}

// memLog keeps decision records in memory.
type memLog struct {
	mu   sync.Mutex
	recs []logging.LogRecord
}

func (l *memLog) Append(_ context.Context, rec logging.LogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
	return nil
}

func (l *memLog) Query(_ context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logging.LogRecord
	for _, r := range l.recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *memLog) Close() error { return nil }

func (l *memLog) kind(kind string) []logging.LogRecord {
	out, _ := l.Query(context.Background(), logging.LogQuery{Kind: kind})
	return out
}

// recordingSink implements every metrics recorder.
type recordingSink struct {
	mu          sync.Mutex
	assignments []metrics.AssignmentEvent
	reroutes    []metrics.RerouteEvent
	withdrawals []metrics.WithdrawalEvent
	states      []metrics.VehicleStateEvent
	fleetSizes  []int
}

func (s *recordingSink) RecordAssignment(ev metrics.AssignmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, ev)
	return nil
}

func (s *recordingSink) RecordReroute(ev metrics.RerouteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reroutes = append(s.reroutes, ev)
	return nil
}

func (s *recordingSink) RecordWithdrawal(ev metrics.WithdrawalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawals = append(s.withdrawals, ev)
	return nil
}

func (s *recordingSink) RecordVehicleState(ev metrics.VehicleStateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, ev)
	return nil
}

func (s *recordingSink) RecordFleetSize(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fleetSizes = append(s.fleetSizes, n)
	return nil
}

type fleet struct {
	t      *testing.T
	store  *objectstore.MemoryStore
	router *router.GraphRouter
	ctrls  map[string]*fakeController
	log    *memLog
	sink   *recordingSink
	m      *DispatchManager
}

// newFleet builds a two-way line p1 - p2 - ... - p6 of 1000 each with a
// detour p2 - p7 - p4 of 1500 per path, park points k1 behind p1 and k2
// behind p6, and a charger linked to p3. Dispatch metrics are reset.
func newFleet(t *testing.T, cfg Config) *fleet {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	s := objectstore.NewMemoryStore(nil)
	for _, p := range []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"} {
		require.NoError(t, s.AddPoint(model.Point{Name: p, Type: model.PointHalt}))
	}
	for _, p := range []string{"k1", "k2"} {
		require.NoError(t, s.AddPoint(model.Point{Name: p, Type: model.PointPark}))
	}
	line := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	for i := 0; i+1 < len(line); i++ {
		addTwoWayPath(t, s, line[i], line[i+1], 1000)
	}
	addTwoWayPath(t, s, "p2", "p7", 1500)
	addTwoWayPath(t, s, "p7", "p4", 1500)
	addTwoWayPath(t, s, "k1", "p1", 500)
	addTwoWayPath(t, s, "p6", "k2", 500)
	require.NoError(t, s.AddLocation(model.Location{
		Name: "charger", Type: "charging", LinkedPoints: []string{"p3"}, AllowedOperations: []string{model.OpCharge},
	}))

	f := &fleet{
		t:      t,
		store:  s,
		router: router.NewGraphRouter(s, nil),
		ctrls:  map[string]*fakeController{},
		log:    &memLog{},
		sink:   &recordingSink{},
	}
	m, err := NewDispatchManager(cfg, Deps{
		Store:  s,
		Router: f.router,
		Controllers: func(name string) (VehicleController, bool) {
			c, ok := f.ctrls[name]
			if !ok {
				return nil, false
			}
			return c, true
		},
		Decisions: f.log,
		Metrics:   f.sink,
	})
	require.NoError(t, err)
	f.m = m
	return f
}

func addTwoWayPath(t *testing.T, s *objectstore.MemoryStore, from, to string, length int64) {
	t.Helper()
	require.NoError(t, s.AddPath(model.Path{
		Name: from + "-" + to, Source: from, Destination: to, Length: length,
		MaxVelocity: 1, MaxReverseVelocity: 1,
	}))
}

// addVehicle adds an idle, fully charged, utilized vehicle with a fake
// controller attached.
func (f *fleet) addVehicle(name, pos string, edit ...func(*model.Vehicle)) *fakeController {
	f.t.Helper()
	v := model.Vehicle{
		Name:              name,
		Length:            1000,
		EnergyLevel:       100,
		EnergyThresholds:  model.DefaultEnergyThresholds,
		State:             model.StateIdle,
		IntegrationLevel:  model.LevelUtilized,
		CurrentPosition:   pos,
		RechargeOperation: model.OpCharge,
	}
	for _, e := range edit {
		e(&v)
	}
	require.NoError(f.t, f.store.AddVehicle(v))
	c := &fakeController{name: name, store: f.store}
	f.ctrls[name] = c
	return c
}

func (f *fleet) submit(name string, targets ...string) model.TransportOrder {
	f.t.Helper()
	var dests []model.Destination
	for _, t := range targets {
		dests = append(dests, model.Destination{Target: t})
	}
	o, err := f.m.Submit(model.NewTransportOrder(name, dests...))
	require.NoError(f.t, err)
	return o
}

// dispatch runs all queued work including a dispatch cycle.
func (f *fleet) dispatch() {
	f.m.Dispatch()
	f.m.drain()
}

// arrive moves the vehicle to the end of its current drive order and
// reports the drive order done, then runs a dispatch cycle.
func (f *fleet) arrive(vehicle string) {
	f.t.Helper()
	v := f.vehicle(vehicle)
	o := f.order(v.TransportOrder)
	cur, ok := o.CurrentDriveOrder()
	require.True(f.t, ok, "vehicle %s has no drive order", vehicle)
	require.NotNil(f.t, cur.Route)
	_, err := f.store.UpdateVehicle(vehicle, func(v *model.Vehicle) {
		v.CurrentPosition = cur.Route.FinalDestinationPoint().Name
		v.ProcState = model.ProcAwaitingOrder
	})
	require.NoError(f.t, err)
	f.dispatch()
}

// stop reports that the vehicle has stopped without reaching its destination.
func (f *fleet) stop(vehicle string) {
	f.t.Helper()
	_, err := f.store.UpdateVehicle(vehicle, func(v *model.Vehicle) { v.ProcState = model.ProcAwaitingOrder })
	require.NoError(f.t, err)
	f.dispatch()
}

func (f *fleet) vehicle(name string) model.Vehicle {
	f.t.Helper()
	v, ok := f.store.Vehicle(name)
	require.True(f.t, ok, "vehicle %s", name)
	return v
}

func (f *fleet) order(name string) model.TransportOrder {
	f.t.Helper()
	o, ok := f.store.Order(name)
	require.True(f.t, ok, "order %s", name)
	return o
}

func (f *fleet) ordersOfType(typ string) []model.TransportOrder {
	var out []model.TransportOrder
	for _, o := range f.store.Orders() {
		if o.Type == typ {
			out = append(out, o)
		}
	}
	return out
}

func pathNames(r *model.Route) []string {
	var out []string
	for _, s := range r.Steps {
		if s.Path != nil {
			out = append(out, s.Path.Name)
		}
	}
	return out
}
