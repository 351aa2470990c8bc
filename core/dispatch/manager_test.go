package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/objectstore"
	"github.com/kilianp07/agvfleet/core/router"
)

func TestNewDispatchManagerValidates(t *testing.T) {
	s := objectstore.NewMemoryStore(nil)
	r := router.NewGraphRouter(s, nil)
	lookup := func(string) (VehicleController, bool) { return nil, false }

	_, err := NewDispatchManager(Config{}, Deps{Router: r, Controllers: lookup})
	assert.Error(t, err)
	_, err = NewDispatchManager(Config{AssignmentStrategy: "random"}, Deps{Store: s, Router: r, Controllers: lookup})
	assert.Error(t, err)
	_, err = NewDispatchManager(Config{ReroutingImpossibleStrategy: "teleport"}, Deps{Store: s, Router: r, Controllers: lookup})
	assert.Error(t, err)

	m, err := NewDispatchManager(Config{}, Deps{Store: s, Router: r, Controllers: lookup})
	require.NoError(t, err)
	assert.Equal(t, StrategyCheapestCompleteRoute, m.util.cfg.AssignmentStrategy)
	assert.Equal(t, 10*time.Second, m.recheck)
	assert.NoError(t, m.Close())
}

func TestDispatchAssignsCheapestVehicle(t *testing.T) {
	f := newFleet(t, Config{})
	c1 := f.addVehicle("v1", "p1")
	c2 := f.addVehicle("v2", "p6")
	f.submit("o1", "p3")
	f.dispatch()

	o := f.order("o1")
	assert.Equal(t, model.OrderBeingProcessed, o.State)
	assert.Equal(t, "v1", o.ProcessingVehicle)
	assert.Equal(t, 0, o.CurrentDriveIndex)
	assert.Equal(t, model.DriveOrderTravelling, o.DriveOrders[0].State)
	assert.Equal(t, []string{"p1-p2", "p2-p3"}, pathNames(o.DriveOrders[0].Route))

	v := f.vehicle("v1")
	assert.Equal(t, "o1", v.TransportOrder)
	assert.Equal(t, model.ProcProcessingOrder, v.ProcState)
	assert.Equal(t, 1, c1.setCount())
	assert.Equal(t, 0, c2.setCount())
	assert.Len(t, f.router.SelectedRoute("v1"), 1)

	recs := f.log.kind(logging.KindAssignment)
	require.Len(t, recs, 1)
	assert.Equal(t, PhaseAssignFreeOrders, recs[0].Phase)
	assert.EqualValues(t, 2000, recs[0].Costs)
	assert.Equal(t, []string{"p1", "p2", "p3"}, recs[0].Route)

	require.Len(t, f.sink.assignments, 1)
	assert.EqualValues(t, 2000, f.sink.assignments[0].CompleteCost)
	assert.Equal(t, 1.0, testutil.ToFloat64(assignmentsTotal.WithLabelValues(PhaseAssignFreeOrders)))
	assert.Equal(t, 1.0, testutil.ToFloat64(dispatchCycles))
	assert.Equal(t, []int{2}, f.sink.fleetSizes)
}

func TestDispatchTieBrokenByVehicleName(t *testing.T) {
	for _, positions := range [][2]string{{"p2", "p4"}, {"p4", "p2"}} {
		f := newFleet(t, Config{})
		f.addVehicle("v1", positions[0])
		f.addVehicle("v2", positions[1])
		f.submit("o1", "p3")
		f.dispatch()
		assert.Equal(t, "v1", f.order("o1").ProcessingVehicle, "v1 at %s", positions[0])
	}
}

func TestDispatchEarliestDeadlineFirst(t *testing.T) {
	f := newFleet(t, Config{})
	f.addVehicle("v1", "p1")
	late := model.NewTransportOrder("late", model.Destination{Target: "p2"})
	late.Deadline = time.Now().Add(time.Hour)
	early := model.NewTransportOrder("early", model.Destination{Target: "p5"})
	early.Deadline = time.Now().Add(time.Minute)
	for _, o := range []model.TransportOrder{late, early} {
		_, err := f.m.Submit(o)
		require.NoError(t, err)
	}
	f.dispatch()
	assert.Equal(t, "early", f.vehicle("v1").TransportOrder)
	assert.Equal(t, model.OrderDispatchable, f.order("late").State)
}

func TestDispatchProcessesDriveOrdersInSequence(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p3", "p5")
	f.dispatch()
	require.Equal(t, 1, c.setCount())

	f.arrive("v1")
	o := f.order("o1")
	assert.Equal(t, 1, o.CurrentDriveIndex)
	assert.Equal(t, model.DriveOrderFinished, o.DriveOrders[0].State)
	assert.Equal(t, model.DriveOrderTravelling, o.DriveOrders[1].State)
	require.Equal(t, 2, c.setCount())
	assert.Equal(t, 1, c.lastSet().CurrentDriveIndex)
	assert.Equal(t, model.ProcProcessingOrder, f.vehicle("v1").ProcState)

	f.arrive("v1")
	o = f.order("o1")
	assert.Equal(t, model.OrderFinished, o.State)
	v := f.vehicle("v1")
	assert.Equal(t, model.ProcIdle, v.ProcState)
	assert.Empty(t, v.TransportOrder)
	assert.Equal(t, "p5", v.CurrentPosition)
	assert.Empty(t, f.router.SelectedRoute("v1"))
	assert.Len(t, f.log.kind(logging.KindFinished), 1)
	assert.Equal(t, 2, c.setCount())
}

func TestDispatchSkipsRedundantDriveOrders(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p1", "p3")
	f.dispatch()

	o := f.order("o1")
	assert.Equal(t, 1, o.CurrentDriveIndex)
	assert.Equal(t, model.DriveOrderFinished, o.DriveOrders[0].State)
	require.Equal(t, 1, c.setCount())
	assert.Equal(t, 1, c.lastSet().CurrentDriveIndex)

	f.submit("o2", "p3")
	f.arrive("v1")
	f.dispatch()
	assert.Equal(t, model.OrderFinished, f.order("o2").State, "vehicle already stands at p3")
	assert.Equal(t, 1, c.setCount())
}

func TestDispatchAssignsRedundantDriveOrdersWhenConfigured(t *testing.T) {
	f := newFleet(t, Config{AssignRedundantOrders: true})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p1", "p3")
	f.dispatch()
	require.Equal(t, 1, c.setCount())
	assert.Equal(t, 0, c.lastSet().CurrentDriveIndex)
}

func TestDispatchRecordsRejectionOnce(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	c.reject = "unsupported operation"
	f.submit("o1", "p3")
	f.dispatch()
	f.dispatch()

	o := f.order("o1")
	assert.Equal(t, model.OrderDispatchable, o.State)
	require.Len(t, o.Rejections, 1)
	assert.Equal(t, "v1", o.Rejections[0].Vehicle)
	assert.Equal(t, "unsupported operation", o.Rejections[0].Reason)
	assert.Len(t, f.log.kind(logging.KindRejection), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(rejectionsTotal))
	assert.Equal(t, 0, c.setCount())
}

func TestDispatchWaitsForDependencies(t *testing.T) {
	f := newFleet(t, Config{})
	f.addVehicle("v1", "p1")
	f.submit("o1", "p3")
	dep := model.NewTransportOrder("o2", model.Destination{Target: "p5"})
	dep.Dependencies = []string{"o1"}
	_, err := f.m.Submit(dep)
	require.NoError(t, err)
	f.dispatch()
	assert.Equal(t, "o1", f.vehicle("v1").TransportOrder)
	assert.Equal(t, model.OrderActive, f.order("o2").State)

	f.arrive("v1")
	assert.Equal(t, model.OrderFinished, f.order("o1").State)
	f.dispatch()
	assert.Equal(t, model.OrderBeingProcessed, f.order("o2").State)
	assert.Equal(t, "o2", f.vehicle("v1").TransportOrder)
}

func TestSubmitValidates(t *testing.T) {
	f := newFleet(t, Config{})
	_, err := f.m.Submit(model.TransportOrder{Name: "empty"})
	assert.Error(t, err)

	dep := model.NewTransportOrder("o1", model.Destination{Target: "p3"})
	dep.Dependencies = []string{"missing"}
	_, err = f.m.Submit(dep)
	assert.ErrorIs(t, err, ErrUnknownOrder)

	intended := model.NewTransportOrder("o2", model.Destination{Target: "p3"})
	intended.IntendedVehicle = "ghost"
	_, err = f.m.Submit(intended)
	assert.ErrorIs(t, err, ErrUnknownVehicle)

	o, err := f.m.Submit(model.NewTransportOrder("", model.Destination{Target: "p3"}))
	require.NoError(t, err)
	assert.Contains(t, o.Name, "TOrder-")
	assert.Equal(t, model.OrderRaw, o.State)
	assert.Equal(t, -1, o.CurrentDriveIndex)
	assert.False(t, o.CreatedAt.IsZero())
}

func TestDispatchUnroutableOrders(t *testing.T) {
	f := newFleet(t, Config{DismissUnroutableOrders: true})
	f.addVehicle("v1", "p1")
	f.submit("o1", "nowhere")
	f.dispatch()
	assert.Equal(t, model.OrderUnroutable, f.order("o1").State)

	f = newFleet(t, Config{})
	f.addVehicle("v1", "p1")
	f.submit("o1", "nowhere")
	f.dispatch()
	assert.Equal(t, model.OrderDispatchable, f.order("o1").State, "kept until the plant changes")
	assert.Empty(t, f.vehicle("v1").TransportOrder)
}

func TestIntendedVehicleAndOrderTypes(t *testing.T) {
	f := newFleet(t, Config{})
	f.addVehicle("v1", "p2")
	f.addVehicle("v2", "p6", func(v *model.Vehicle) { v.AllowedOrderTypes = []string{"Transport"} })

	intended := model.NewTransportOrder("o1", model.Destination{Target: "p3"})
	intended.IntendedVehicle = "v2"
	intended.Type = "Transport"
	_, err := f.m.Submit(intended)
	require.NoError(t, err)
	typed := model.NewTransportOrder("o2", model.Destination{Target: "p5"})
	typed.Type = "Lift"
	_, err = f.m.Submit(typed)
	require.NoError(t, err)
	f.dispatch()

	assert.Equal(t, "v2", f.order("o1").ProcessingVehicle)
	assert.Equal(t, "v1", f.order("o2").ProcessingVehicle, "v2 does not accept Lift orders")
}

func TestChargingVehicleEligibility(t *testing.T) {
	thresholds := model.EnergyThresholds{Critical: 10, Good: 80, Sufficiently: 50, Fully: 95}
	cases := []struct {
		name   string
		keep   bool
		state  model.VehicleState
		energy int
		want   bool
	}{
		{"charging, sufficiently recharged", false, model.StateCharging, 60, true},
		{"charging, not sufficiently recharged", false, model.StateCharging, 40, false},
		{"keep charging, not full", true, model.StateCharging, 60, false},
		{"keep charging, full", true, model.StateCharging, 96, true},
		{"critical", false, model.StateIdle, 8, false},
		{"idle, degraded", false, model.StateIdle, 60, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFleet(t, Config{KeepRechargingUntilFullyCharged: tc.keep})
			f.addVehicle("v1", "p1", func(v *model.Vehicle) {
				v.EnergyThresholds = thresholds
				v.EnergyLevel = tc.energy
				v.State = tc.state
			})
			f.submit("o1", "p3")
			f.dispatch()
			assert.Equal(t, tc.want, f.order("o1").ProcessingVehicle == "v1")
		})
	}
}

func TestWithdrawGracefully(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p5")
	f.dispatch()

	require.NoError(t, f.m.Withdraw("o1", false))
	f.m.drain()
	assert.Equal(t, model.OrderWithdrawn, f.order("o1").State)
	assert.Equal(t, []bool{false}, c.aborts)
	assert.Equal(t, "o1", f.vehicle("v1").TransportOrder, "vehicle finishes its commands first")
	assert.Equal(t, 0, c.clears)

	f.stop("v1")
	o := f.order("o1")
	assert.Equal(t, model.OrderFailed, o.State)
	assert.Equal(t, model.DriveOrderFailed, o.DriveOrders[0].State)
	assert.Equal(t, 1, c.clears)
	v := f.vehicle("v1")
	assert.Equal(t, model.ProcIdle, v.ProcState)
	assert.Empty(t, v.TransportOrder)

	require.Len(t, f.sink.withdrawals, 1)
	assert.False(t, f.sink.withdrawals[0].Immediate)
	assert.Equal(t, 1.0, testutil.ToFloat64(withdrawalsTotal.WithLabelValues("false")))
}

func TestWithdrawImmediately(t *testing.T) {
	f := newFleet(t, Config{})
	c := f.addVehicle("v1", "p1")
	f.submit("o1", "p5")
	f.dispatch()

	require.NoError(t, f.m.Withdraw("o1", true))
	f.m.drain()
	assert.Equal(t, model.OrderFailed, f.order("o1").State)
	assert.Equal(t, []bool{true}, c.aborts)
	assert.Equal(t, 1, c.clears)
	assert.Equal(t, model.ProcIdle, f.vehicle("v1").ProcState)
	assert.Equal(t, 1.0, testutil.ToFloat64(withdrawalsTotal.WithLabelValues("true")))
}

func TestWithdrawUnassignedOrder(t *testing.T) {
	f := newFleet(t, Config{})
	f.submit("o1", "p5")
	f.dispatch()
	require.NoError(t, f.m.Withdraw("o1", false))
	f.m.drain()
	assert.Equal(t, model.OrderFailed, f.order("o1").State)

	require.NoError(t, f.m.Withdraw("o1", true), "withdrawing a final order is a no-op")
	f.m.drain()
	assert.Len(t, f.log.kind(logging.KindWithdrawal), 1)

	assert.ErrorIs(t, f.m.Withdraw("missing", true), ErrUnknownOrder)
}

func TestWithdrawByVehicle(t *testing.T) {
	f := newFleet(t, Config{})
	f.addVehicle("v1", "p1")
	f.submit("o1", "p5")
	f.dispatch()

	f.m.WithdrawByVehicle("v1", true, "door failed")
	f.m.WithdrawByVehicle("v1", true, "door failed")
	f.m.drain()
	assert.Equal(t, model.OrderFailed, f.order("o1").State)
	recs := f.log.kind(logging.KindWithdrawal)
	require.Len(t, recs, 1)
	assert.Equal(t, "door failed", recs[0].Reason)
	assert.Equal(t, "v1", recs[0].Vehicle)
}

func TestParkIdleVehicles(t *testing.T) {
	f := newFleet(t, Config{ParkIdleVehicles: true})
	f.addVehicle("v1", "p3")
	f.addVehicle("v2", "p4")
	f.addVehicle("v3", "k2")
	f.dispatch()

	parks := f.ordersOfType(OrderTypePark)
	require.Len(t, parks, 1, "k2 is occupied by v3")
	o := parks[0]
	assert.Equal(t, "v1", o.ProcessingVehicle, "v1 is closer to k1")
	assert.True(t, o.Dispensable)
	assert.Equal(t, "v1", o.IntendedVehicle)
	assert.Equal(t, "k1", o.DriveOrders[0].Destination.Target)
	assert.Equal(t, model.OpPark, o.DriveOrders[0].Destination.Operation)
	assert.Empty(t, f.vehicle("v2").TransportOrder)
	assert.Empty(t, f.vehicle("v3").TransportOrder, "already parked")
}

func TestDispensableOrderIsPreempted(t *testing.T) {
	f := newFleet(t, Config{ParkIdleVehicles: true})
	c := f.addVehicle("v1", "p3")
	f.dispatch()
	parks := f.ordersOfType(OrderTypePark)
	require.Len(t, parks, 1)
	park := parks[0].Name

	f.submit("o1", "p5")
	f.dispatch()
	vehicle, ok := f.m.Reservations().ReservedFor("o1")
	require.True(t, ok)
	assert.Equal(t, "v1", vehicle)
	assert.Equal(t, model.OrderWithdrawn, f.order(park).State)
	assert.Equal(t, []bool{false}, c.aborts)

	f.stop("v1")
	assert.Equal(t, model.OrderFailed, f.order(park).State)
	o := f.order("o1")
	assert.Equal(t, model.OrderBeingProcessed, o.State)
	assert.Equal(t, "v1", o.ProcessingVehicle)
	assert.False(t, f.m.Reservations().IsReserved("o1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(assignmentsTotal.WithLabelValues(PhaseAssignReservedOrders)))
}

func TestRechargeIdleVehicles(t *testing.T) {
	f := newFleet(t, Config{RechargeIdleVehicles: true})
	f.addVehicle("v1", "p1", func(v *model.Vehicle) { v.EnergyLevel = 50 })
	f.addVehicle("v2", "p6", func(v *model.Vehicle) { v.EnergyLevel = 40 })
	f.addVehicle("v3", "p5", func(v *model.Vehicle) {
		v.EnergyLevel = 20
		v.RechargeOperation = ""
	})
	f.dispatch()

	charges := f.ordersOfType(OrderTypeCharge)
	require.Len(t, charges, 1, "the only charger is targeted once")
	o := charges[0]
	assert.Equal(t, "v1", o.ProcessingVehicle)
	assert.True(t, o.Dispensable)
	assert.Equal(t, "charger", o.DriveOrders[0].Destination.Target)
	assert.Equal(t, model.OpCharge, o.DriveOrders[0].Destination.Operation)
	assert.Equal(t, "p3", o.DriveOrders[0].Route.FinalDestinationPoint().Name)
	assert.Empty(t, f.vehicle("v2").TransportOrder)
	assert.Empty(t, f.vehicle("v3").TransportOrder)

	_, err := f.store.UpdateVehicle("v1", func(v *model.Vehicle) { v.State = model.StateCharging })
	require.NoError(t, err)
	f.arrive("v1")
	assert.Equal(t, model.OrderFinished, f.order(o.Name).State)
	assert.Empty(t, f.vehicle("v1").TransportOrder, "charging vehicles are left alone")
}

func TestChargingVehicleIsNotSentToRecharge(t *testing.T) {
	f := newFleet(t, Config{RechargeIdleVehicles: true})
	f.addVehicle("v1", "p3", func(v *model.Vehicle) {
		v.EnergyLevel = 50
		v.State = model.StateCharging
	})
	f.dispatch()
	assert.Empty(t, f.ordersOfType(OrderTypeCharge))
}

func TestSequenceProcessedBySameVehicle(t *testing.T) {
	f := newFleet(t, Config{})
	f.addVehicle("v1", "p1")
	f.addVehicle("v2", "p6")
	seq, err := f.m.SubmitSequence(model.OrderSequence{Name: "s1", Complete: true},
		model.NewTransportOrder("o1", model.Destination{Target: "p2"}),
		model.NewTransportOrder("o2", model.Destination{Target: "p5"}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, seq.Orders)
	assert.True(t, seq.Complete)
	f.dispatch()

	assert.Equal(t, "v1", f.order("o1").ProcessingVehicle)
	assert.Equal(t, model.OrderActive, f.order("o2").State)
	assert.Equal(t, "s1", f.vehicle("v1").OrderSequence)

	f.arrive("v1")
	f.dispatch()
	o2 := f.order("o2")
	assert.Equal(t, "v1", o2.ProcessingVehicle, "v2 is closer but the sequence belongs to v1")
	assert.Equal(t, 1.0, testutil.ToFloat64(assignmentsTotal.WithLabelValues(PhaseAssignSequenceSuccessor)))

	f.arrive("v1")
	s, _ := f.store.Sequence("s1")
	assert.True(t, s.Finished)
	assert.Equal(t, 1, s.FinishedIndex)
	assert.Empty(t, s.ProcessingVehicle)
	assert.Empty(t, f.vehicle("v1").OrderSequence)
}

func TestFailureFatalSequence(t *testing.T) {
	f := newFleet(t, Config{})
	f.addVehicle("v1", "p1")
	_, err := f.m.SubmitSequence(model.OrderSequence{Name: "s1", Complete: true, FailureFatal: true},
		model.NewTransportOrder("o1", model.Destination{Target: "p2"}),
		model.NewTransportOrder("o2", model.Destination{Target: "p3"}),
		model.NewTransportOrder("o3", model.Destination{Target: "p4"}),
	)
	require.NoError(t, err)
	f.dispatch()
	require.Equal(t, "o1", f.vehicle("v1").TransportOrder)

	require.NoError(t, f.m.Withdraw("o1", true))
	f.m.drain()
	for _, name := range []string{"o1", "o2", "o3"} {
		assert.Equal(t, model.OrderFailed, f.order(name).State, name)
	}
	s, _ := f.store.Sequence("s1")
	assert.True(t, s.Finished)
	v := f.vehicle("v1")
	assert.Empty(t, v.OrderSequence)
	assert.Empty(t, v.TransportOrder)
}

func TestExtendSequence(t *testing.T) {
	f := newFleet(t, Config{})
	f.addVehicle("v1", "p1")
	seq, err := f.m.SubmitSequence(model.OrderSequence{IntendedVehicle: "v1"},
		model.NewTransportOrder("o1", model.Destination{Target: "p2"}))
	require.NoError(t, err)
	assert.Contains(t, seq.Name, "Seq-")
	assert.False(t, seq.Complete)
	assert.Equal(t, "v1", f.order("o1").IntendedVehicle)
	f.dispatch()

	f.arrive("v1")
	assert.Equal(t, seq.Name, f.vehicle("v1").OrderSequence, "incomplete sequence keeps its vehicle")

	require.NoError(t, f.m.ExtendSequence(seq.Name, false, model.NewTransportOrder("o2", model.Destination{Target: "p3"})))
	f.dispatch()
	f.dispatch()
	assert.Equal(t, "o2", f.vehicle("v1").TransportOrder)
	f.arrive("v1")

	require.NoError(t, f.m.ExtendSequence(seq.Name, true))
	s, _ := f.store.Sequence(seq.Name)
	assert.True(t, s.Finished)
	assert.Empty(t, f.vehicle("v1").OrderSequence)
	assert.Error(t, f.m.ExtendSequence(seq.Name, true), "complete sequences cannot be extended")
}

func TestDispatchRequestsAreMerged(t *testing.T) {
	f := newFleet(t, Config{})
	f.m.Dispatch()
	f.m.Dispatch()
	f.m.Dispatch()
	assert.Equal(t, 1, f.m.tasks.size())
	f.m.drain()
	assert.Equal(t, 0, f.m.tasks.size())
	assert.Equal(t, 1.0, testutil.ToFloat64(dispatchCycles))
	f.m.Dispatch()
	assert.Equal(t, 1, f.m.tasks.size())
}

func TestPanickingTaskIsRecovered(t *testing.T) {
	f := newFleet(t, Config{})
	f.m.tasks.push(func() { panic("boom") })
	f.addVehicle("v1", "p1")
	f.submit("o1", "p2")
	assert.NotPanics(t, f.m.drain)
	assert.Equal(t, "v1", f.order("o1").ProcessingVehicle)
}

func TestDispatchRelevant(t *testing.T) {
	base := model.Vehicle{
		Name: "v1", IntegrationLevel: model.LevelUtilized, State: model.StateExecuting,
		ProcState: model.ProcProcessingOrder, CurrentPosition: "p1", EnergyLevel: 80,
	}
	with := func(edit func(*model.Vehicle)) model.Vehicle {
		v := base.Clone()
		edit(&v)
		return v
	}
	cases := []struct {
		name string
		prev model.Vehicle
		cur  model.Vehicle
		want bool
	}{
		{"new vehicle", model.Vehicle{}, base, true},
		{"awaiting order", base, with(func(v *model.Vehicle) { v.ProcState = model.ProcAwaitingOrder }), true},
		{"became idle", base, with(func(v *model.Vehicle) { v.ProcState = model.ProcIdle }), true},
		{"position only", base, with(func(v *model.Vehicle) { v.CurrentPosition = "p2" }), false},
		{"energy while busy", base, with(func(v *model.Vehicle) { v.EnergyLevel = 70 }), false},
		{"energy while idle",
			with(func(v *model.Vehicle) { v.ProcState = model.ProcIdle }),
			with(func(v *model.Vehicle) { v.ProcState = model.ProcIdle; v.EnergyLevel = 90 }), true},
		{"released from sequence",
			with(func(v *model.Vehicle) { v.OrderSequence = "s1" }), base, true},
		{"started charging", base, with(func(v *model.Vehicle) { v.State = model.StateCharging }), true},
		{"paused", base, with(func(v *model.Vehicle) { v.Paused = true }), true},
		{"properties", base, with(func(v *model.Vehicle) { v.Properties = map[string]string{"a": "b"} }), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dispatchRelevant(events.VehicleChanged{Previous: tc.prev, Current: tc.cur}))
		})
	}
}

func TestVehicleHandlerRecordsStateAndDispatches(t *testing.T) {
	f := newFleet(t, Config{})
	h := f.m.Handlers()
	prev := model.Vehicle{Name: "v1", ProcState: model.ProcProcessingOrder, State: model.StateExecuting}
	cur := prev
	cur.ProcState = model.ProcAwaitingOrder

	h.Vehicle(events.VehicleChanged{Previous: prev, Current: cur})
	assert.Len(t, f.sink.states, 1)
	assert.Equal(t, 1, f.m.tasks.size())

	same := cur
	same.Properties = map[string]string{"k": "v"}
	h.Vehicle(events.VehicleChanged{Previous: cur, Current: same})
	assert.Len(t, f.sink.states, 1)
	assert.Nil(t, h.PathLock, "path locks are handled by SetPathLocked")
}

func TestRunProcessesTasksUntilCanceled(t *testing.T) {
	f := newFleet(t, Config{RecheckIntervalSeconds: 1})
	f.addVehicle("v1", "p1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.m.Run(ctx)
		close(done)
	}()

	f.submit("o1", "p3")
	require.Eventually(t, func() bool {
		o, _ := f.store.Order("o1")
		return o.State == model.OrderBeingProcessed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
