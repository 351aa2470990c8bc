package dispatch

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/scheduler"
	"github.com/kilianp07/agvfleet/core/vehicle"
)

func TestRerouteOnTopologyChangeKeepsCommittedSteps(t *testing.T) {
	f := newFleet(t, Config{RerouteOnTopologyChanges: true})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	c.src, c.branch = "p2", 1

	require.NoError(t, f.m.SetPathLocked("p3-p4", true))
	f.m.drain()

	want := []string{"p1-p2", "p2-p7", "p7-p4", "p4-p5", "p5-p6"}
	rt := f.order("o1").DriveOrders[0].Route
	assert.Equal(t, want, pathNames(rt))
	assert.EqualValues(t, 6000, rt.Costs)
	for i, s := range rt.Steps {
		assert.Equal(t, i, s.RouteIndex)
	}
	selected := f.router.SelectedRoute("v1")
	require.Len(t, selected, 1)
	assert.Equal(t, want, pathNames(selected[0].Route))

	require.Len(t, c.updates, 1)
	assert.False(t, c.updates[0].forced)
	assert.Equal(t, want, pathNames(c.updates[0].order.DriveOrders[0].Route))

	recs := f.log.kind(logging.KindReroute)
	require.Len(t, recs, 1)
	assert.Equal(t, "regular rerouted", recs[0].Reason)
	assert.EqualValues(t, 6000, recs[0].Costs)
	require.Len(t, f.sink.reroutes, 1)
	assert.Equal(t, outcomeRerouted, f.sink.reroutes[0].Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(reroutesTotal.WithLabelValues("regular", outcomeRerouted)))
}

func TestTopologyChangeWithoutRerouting(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	require.NoError(t, f.m.SetPathLocked("p3-p4", true))
	f.m.drain()
	assert.Empty(t, c.updates)
	assert.Equal(t, []string{"p1-p2", "p2-p3", "p3-p4", "p4-p5", "p5-p6"}, pathNames(f.order("o1").DriveOrders[0].Route))
	assert.Error(t, f.m.SetPathLocked("missing", true))
}

func TestForcedRerouteStartsAtCurrentPosition(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	require.NoError(t, f.m.SetPathLocked("p3-p4", true))
	f.m.drain()

	c.src, c.branch = "p3", 2
	require.NoError(t, f.m.Reroute("v1", ForcedReroute))
	f.m.drain()

	rt := f.order("o1").DriveOrders[0].Route
	assert.Equal(t, []string{"p1-p2", "p2-p3", "p2-p3", "p2-p7", "p7-p4", "p4-p5", "p5-p6"}, pathNames(rt))
	assert.Equal(t, model.OrientationBackward, rt.Steps[2].Orientation)
	assert.Equal(t, "p2", rt.Steps[2].Destination.Name)
	require.NoError(t, rt.Validate())
	require.Len(t, c.updates, 1)
	assert.True(t, c.updates[0].forced)
	assert.True(t, f.sink.reroutes[0].Forced)
}

func TestRerouteKeepsDriveOrderEndingAtSource(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p3", "p6")
	f.dispatch()
	c.src, c.branch = "p3", 2

	require.NoError(t, f.m.Reroute("v1", RegularReroute))
	f.m.drain()
	o := f.order("o1")
	assert.Equal(t, []string{"p1-p2", "p2-p3"}, pathNames(o.DriveOrders[0].Route))
	assert.Equal(t, []string{"p3-p4", "p4-p5", "p5-p6"}, pathNames(o.DriveOrders[1].Route))
	assert.Equal(t, model.DriveOrderTravelling, o.DriveOrders[0].State)
	require.Len(t, c.updates, 1)
}

func TestRerouteSplicesFinishedDriveOrders(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p2", "p6")
	f.dispatch()
	f.arrive("v1")
	require.Equal(t, 1, f.order("o1").CurrentDriveIndex)

	require.NoError(t, f.store.SetPathLocked("p3-p4", true))
	f.router.TopologyChanged()
	c.src, c.branch = "p2", 0
	require.NoError(t, f.m.Reroute("v1", RegularReroute))
	f.m.drain()

	o := f.order("o1")
	require.Len(t, o.DriveOrders, 2)
	assert.Equal(t, model.DriveOrderFinished, o.DriveOrders[0].State)
	assert.Equal(t, []string{"p1-p2"}, pathNames(o.DriveOrders[0].Route))
	assert.Equal(t, []string{"p2-p7", "p7-p4", "p4-p5", "p5-p6"}, pathNames(o.DriveOrders[1].Route))
	assert.Equal(t, 1, o.CurrentDriveIndex)
}

func TestRerouteFallbackPausesAtLockedPath(t *testing.T) {
	f := newFleet(t, Config{RerouteOnTopologyChanges: true, ReroutingImpossibleStrategy: PauseAtPathLock})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	c.src, c.branch = "p2", 1

	require.NoError(t, f.store.SetPathLocked("p2-p7", true))
	require.NoError(t, f.m.SetPathLocked("p3-p4", true))
	f.m.drain()

	rt := f.order("o1").DriveOrders[0].Route
	assert.Equal(t, []string{"p1-p2", "p2-p3", "p3-p4", "p4-p5", "p5-p6"}, pathNames(rt))
	for i, s := range rt.Steps {
		assert.Equal(t, i < 2, s.ExecutionAllowed, "step %d", i)
	}
	assert.True(t, rt.Steps[2].Path.Locked)
	require.Len(t, c.updates, 1)
	assert.False(t, c.updates[0].order.DriveOrders[0].Route.Steps[2].ExecutionAllowed)

	recs := f.log.kind(logging.KindReroute)
	require.Len(t, recs, 1)
	assert.Equal(t, "regular fallback", recs[0].Reason)
	assert.Equal(t, 1.0, testutil.ToFloat64(reroutesTotal.WithLabelValues("regular", outcomeFallback)))
}

func TestRerouteFallbackIgnoringPathLocks(t *testing.T) {
	f := newFleet(t, Config{RerouteOnTopologyChanges: true})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	c.src, c.branch = "p2", 1

	require.NoError(t, f.store.SetPathLocked("p2-p7", true))
	require.NoError(t, f.m.SetPathLocked("p3-p4", true))
	f.m.drain()

	rt := f.order("o1").DriveOrders[0].Route
	for _, s := range rt.Steps {
		assert.True(t, s.ExecutionAllowed)
	}
	assert.True(t, rt.Steps[2].Path.Locked)
	assert.Equal(t, outcomeFallback, f.sink.reroutes[0].Outcome)
	require.Len(t, c.updates, 1)
}

func TestRerouteBranchPointNotFound(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	c.src, c.branch = "p7", 0

	err := f.m.rr.reroute("v1", RegularReroute)
	assert.ErrorIs(t, err, ErrBranchPointNotFound)
	assert.Equal(t, []string{"p1-p2", "p2-p3", "p3-p4", "p4-p5", "p5-p6"}, pathNames(f.order("o1").DriveOrders[0].Route))
	assert.Empty(t, c.updates)
	assert.Equal(t, 1.0, testutil.ToFloat64(reroutesTotal.WithLabelValues("regular", outcomeFailed)))
}

func TestRerouteWithoutOrder(t *testing.T) {
	f := newFleet(t, Config{})
	f.addVehicle("v1", "p1")
	require.NoError(t, f.m.Reroute("v1", RegularReroute))
	f.m.drain()
	assert.Equal(t, 0, testutil.CollectAndCount(reroutesTotal))

	assert.ErrorIs(t, f.m.Reroute("ghost", RegularReroute), ErrUnknownVehicle)
	assert.Error(t, f.m.Reroute("v1", RerouteType("sideways")))
}

// queueAdapter accepts commands up to its capacity and never reports.
type queueAdapter struct {
	mu       sync.Mutex
	capacity int
	queue    []model.MovementCommand
}

func (a *queueAdapter) Enable(func(vehicle.Report)) error { return nil }
func (a *queueAdapter) Disable()                          {}
func (a *queueAdapter) CanAcceptNextCommand() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue) < a.capacity
}
func (a *queueAdapter) EnqueueCommand(cmd model.MovementCommand) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, cmd)
	return true
}
func (a *queueAdapter) ClearCommandQueue() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = nil
}
func (a *queueAdapter) CanProcess(model.TransportOrder) (bool, string) { return true, "" }

func (a *queueAdapter) pop() model.MovementCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	cmd := a.queue[0]
	a.queue = a.queue[1:]
	return cmd
}

func (a *queueAdapter) peek() (model.MovementCommand, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return model.MovementCommand{}, false
	}
	return a.queue[0], true
}

func TestRerouteWithVehicleController(t *testing.T) {
	f := newFleet(t, Config{})
	require.NoError(t, f.store.AddVehicle(model.Vehicle{
		Name: "v1", Length: 1000, EnergyLevel: 100, EnergyThresholds: model.DefaultEnergyThresholds,
		State: model.StateIdle, IntegrationLevel: model.LevelUtilized, CurrentPosition: "p1",
	}))
	pool := vehicle.NewPool()
	defer pool.Close()
	m, err := NewDispatchManager(Config{RerouteOnTopologyChanges: true}, Deps{
		Store: f.store, Router: f.router, Controllers: FromPool(pool),
	})
	require.NoError(t, err)

	sched := scheduler.NewMemoryScheduler(nil)
	ad := &queueAdapter{capacity: 1}
	ctrl, err := vehicle.NewController(vehicle.Config{
		Vehicle: "v1", Store: f.store, Scheduler: sched, Adapter: ad, Withdraw: m.WithdrawByVehicle,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Attach(ctrl))

	_, err = m.Submit(model.NewTransportOrder("o1", model.Destination{Target: "p6"}))
	require.NoError(t, err)
	m.drain()
	sched.Wait()
	first, ok := ad.peek()
	require.True(t, ok)
	assert.Equal(t, "p1-p2", first.Step.Path.Name)

	require.NoError(t, m.SetPathLocked("p3-p4", true))
	m.drain()
	sched.Wait()
	o, _ := f.store.Order("o1")
	assert.Equal(t, []string{"p1-p2", "p2-p7", "p7-p4", "p4-p5", "p5-p6"}, pathNames(o.DriveOrders[0].Route))

	ctrl.CommandExecuted(ad.pop())
	sched.Wait()
	next, ok := ad.peek()
	require.True(t, ok)
	assert.Equal(t, "p2-p7", next.Step.Path.Name)
	assert.Equal(t, "p2", next.Step.Source.Name)
}

func TestRerouteRetriesWhenVehicleMovedOn(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	c.src, c.branch = "p2", 1
	c.diverge, c.moved, c.movedBranch = 1, "p3", 2

	require.NoError(t, f.store.SetPathLocked("p3-p4", true))
	f.router.TopologyChanged()
	require.NoError(t, f.m.Reroute("v1", RegularReroute))
	f.m.drain()

	require.Len(t, c.updates, 2)
	assert.Equal(t, []string{"p1-p2", "p2-p7", "p7-p4", "p4-p5", "p5-p6"},
		pathNames(c.updates[0].order.DriveOrders[0].Route))
	want := []string{"p1-p2", "p2-p3", "p2-p3", "p2-p7", "p7-p4", "p4-p5", "p5-p6"}
	assert.Equal(t, want, pathNames(c.updates[1].order.DriveOrders[0].Route))
	rt := f.order("o1").DriveOrders[0].Route
	assert.Equal(t, want, pathNames(rt))
	require.NoError(t, rt.Validate())

	recs := f.log.kind(logging.KindReroute)
	require.Len(t, recs, 1)
	assert.Equal(t, "regular rerouted", recs[0].Reason)
	require.Len(t, f.sink.reroutes, 1)
}

func TestRerouteGivesUpWhileVehicleKeepsMoving(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	c.src, c.branch = "p2", 1
	c.diverge, c.moved, c.movedBranch = maxRerouteAttempts+1, "p2", 1

	require.NoError(t, f.store.SetPathLocked("p3-p4", true))
	f.router.TopologyChanged()
	err := f.m.rr.reroute("v1", RegularReroute)
	assert.ErrorIs(t, err, vehicle.ErrRouteDiverged)
	assert.Len(t, c.updates, maxRerouteAttempts)
	assert.Equal(t, []string{"p1-p2", "p2-p3", "p3-p4", "p4-p5", "p5-p6"}, pathNames(f.order("o1").DriveOrders[0].Route),
		"the stored route is left alone")
	assert.Empty(t, f.log.kind(logging.KindReroute))
	assert.Equal(t, 1.0, testutil.ToFloat64(reroutesTotal.WithLabelValues("regular", outcomeFailed)))
}

func TestRerouteFallbackIgnoresLocksBehindVehicle(t *testing.T) {
	f := newFleet(t, Config{RerouteOnTopologyChanges: true, ReroutingImpossibleStrategy: PauseAtPathLock})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p6")
	f.dispatch()
	c.src, c.branch = "p3", 2

	require.NoError(t, f.store.SetPathLocked("p1-p2", true))
	require.NoError(t, f.m.SetPathLocked("p4-p5", true))
	f.m.drain()

	rt := f.order("o1").DriveOrders[0].Route
	assert.Equal(t, []string{"p1-p2", "p2-p3", "p3-p4", "p4-p5", "p5-p6"}, pathNames(rt))
	for i, s := range rt.Steps {
		assert.Equal(t, i < 3, s.ExecutionAllowed, "step %d", i)
	}
	assert.True(t, rt.Steps[0].Path.Locked)
	assert.Equal(t, outcomeFallback, f.sink.reroutes[0].Outcome)
}

// movingController lets the vehicle make progress between the reroute
// reading its source and handing over the new route.
type movingController struct {
	*vehicle.Controller
	once sync.Once
	move func()
}

func (c *movingController) RerouteSource(forced bool) (string, int, bool) {
	src, branch, active := c.Controller.RerouteSource(forced)
	c.once.Do(c.move)
	return src, branch, active
}

func TestRerouteWhileVehicleMovesOn(t *testing.T) {
	f := newFleet(t, Config{})
	require.NoError(t, f.store.AddVehicle(model.Vehicle{
		Name: "v1", Length: 1000, EnergyLevel: 100, EnergyThresholds: model.DefaultEnergyThresholds,
		State: model.StateIdle, IntegrationLevel: model.LevelUtilized, CurrentPosition: "p1",
	}))
	sched := scheduler.NewMemoryScheduler(nil)
	ad := &queueAdapter{capacity: 1}
	ctrl, err := vehicle.NewController(vehicle.Config{Vehicle: "v1", Store: f.store, Scheduler: sched, Adapter: ad})
	require.NoError(t, err)
	require.NoError(t, ctrl.Enable())
	mc := &movingController{Controller: ctrl, move: func() {
		ctrl.CommandExecuted(ad.pop())
		sched.Wait()
	}}
	m, err := NewDispatchManager(Config{RerouteOnTopologyChanges: true}, Deps{
		Store: f.store, Router: f.router,
		Controllers: func(name string) (VehicleController, bool) { return mc, name == "v1" },
	})
	require.NoError(t, err)

	_, err = m.Submit(model.NewTransportOrder("o1", model.Destination{Target: "p6"}))
	require.NoError(t, err)
	m.drain()
	sched.Wait()

	require.NoError(t, m.SetPathLocked("p3-p4", true))
	m.drain()
	sched.Wait()

	inFlight, ok := ad.peek()
	require.True(t, ok)
	assert.Equal(t, "p3", inFlight.Step.Destination.Name)
	o, _ := f.store.Order("o1")
	rt := o.DriveOrders[0].Route
	require.NoError(t, rt.Validate())
	assert.Equal(t, []string{"p1-p2", "p2-p3", "p2-p3", "p2-p7", "p7-p4", "p4-p5", "p5-p6"}, pathNames(rt))

	ctrl.CommandExecuted(ad.pop())
	sched.Wait()
	next, ok := ad.peek()
	require.True(t, ok)
	assert.Equal(t, "p3", next.Step.Source.Name, "commands connect")
	assert.Equal(t, "p2", next.Step.Destination.Name)
}
