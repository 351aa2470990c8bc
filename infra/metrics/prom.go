package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/core/model"
)

// PromSink records per-vehicle fleet metrics in Prometheus.
type PromSink struct {
	assignments *prometheus.CounterVec
	routeCosts  *prometheus.HistogramVec
	reroutes    *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
	energy      *prometheus.GaugeVec
	state       *prometheus.GaugeVec
	fleet       prometheus.Gauge
}

// NewPromSink registers fleet metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered under the same name are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_vehicle_assignments_total",
			Help: "Transport orders assigned per vehicle",
		}, []string{"vehicle", "phase"}),
		routeCosts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleet_assignment_route_costs",
			Help:    "Complete route costs of assigned transport orders",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 12),
		}, []string{"vehicle"}),
		reroutes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_vehicle_reroutes_total",
			Help: "Reroute attempts per vehicle",
		}, []string{"vehicle", "forced", "outcome"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_vehicle_withdrawals_total",
			Help: "Transport orders withdrawn from a vehicle",
		}, []string{"vehicle", "immediate"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_vehicle_energy_level_percent",
			Help: "Last reported energy level of a vehicle",
		}, []string{"vehicle"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_vehicle_state",
			Help: "Current state of a vehicle, 1 for the active state",
		}, []string{"vehicle", "state"}),
		fleet: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_vehicles_total",
			Help: "Number of vehicles known to the dispatcher",
		}),
	}

	var err error
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.routeCosts, err = register(reg, s.routeCosts); err != nil {
		return nil, err
	}
	if s.reroutes, err = register(reg, s.reroutes); err != nil {
		return nil, err
	}
	if s.withdrawals, err = register(reg, s.withdrawals); err != nil {
		return nil, err
	}
	if s.energy, err = register(reg, s.energy); err != nil {
		return nil, err
	}
	if s.state, err = register(reg, s.state); err != nil {
		return nil, err
	}
	if s.fleet, err = register(reg, s.fleet); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAssignment counts the assignment and observes its route costs.
func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(ev.Vehicle, ev.Phase).Inc()
	s.routeCosts.WithLabelValues(ev.Vehicle).Observe(float64(ev.CompleteCost))
	return nil
}

// RecordReroute counts a reroute attempt.
func (s *PromSink) RecordReroute(ev coremetrics.RerouteEvent) error {
	s.reroutes.WithLabelValues(ev.Vehicle, strconv.FormatBool(ev.Forced), ev.Outcome).Inc()
	return nil
}

// RecordWithdrawal counts a withdrawal. Orders withdrawn before assignment
// are counted under an empty vehicle label.
func (s *PromSink) RecordWithdrawal(ev coremetrics.WithdrawalEvent) error {
	s.withdrawals.WithLabelValues(ev.Vehicle, strconv.FormatBool(ev.Immediate)).Inc()
	return nil
}

var vehicleStates = []model.VehicleState{
	model.StateUnknown, model.StateUnavailable, model.StateError,
	model.StateIdle, model.StateExecuting, model.StateCharging,
}

// RecordVehicleState sets the energy gauge and flags the vehicle's state.
func (s *PromSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	v := ev.Vehicle
	s.energy.WithLabelValues(v.Name).Set(float64(v.EnergyLevel))
	for _, st := range vehicleStates {
		val := 0.0
		if st == v.State {
			val = 1
		}
		s.state.WithLabelValues(v.Name, string(st)).Set(val)
	}
	return nil
}

// RecordFleetSize sets the gauge to the number of known vehicles.
func (s *PromSink) RecordFleetSize(size int) error {
	s.fleet.Set(float64(size))
	return nil
}
