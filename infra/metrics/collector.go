package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/internal/eventbus"
)

var (
	orderTransitions *prometheus.CounterVec
	jobTransitions   *prometheus.CounterVec
	lockedPaths      *prometheus.GaugeVec
)

func newEventCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.GaugeVec) {
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_order_transitions_total",
		Help: "Transport order state transitions by target state",
	}, []string{"state"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_peripheral_job_transitions_total",
		Help: "Peripheral job state transitions by target state",
	}, []string{"state"})
	locks := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_path_locked",
		Help: "1 while a path is locked",
	}, []string{"path"})
	return orders, jobs, locks
}

func init() {
	orderTransitions, jobTransitions, lockedPaths = newEventCollectors()
	MustRegisterEventMetrics(nil)
}

// MustRegisterEventMetrics registers the event collectors on reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterEventMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(orderTransitions, jobTransitions, lockedPaths)
}

// ResetEventMetrics reinitializes the event collectors for testing purposes
// and registers them on reg if not nil.
func ResetEventMetrics(reg prometheus.Registerer) {
	orderTransitions, jobTransitions, lockedPaths = newEventCollectors()
	if reg != nil {
		MustRegisterEventMetrics(reg)
	}
}

// StartEventCollector subscribes to the event bus and counts order and job
// state transitions and path locks. It stops when the context is canceled
// or the bus is closed. The returned channel is closed once it stopped.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Event]) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil {
		close(done)
		return done
	}
	h := events.Handlers{
		TransportOrder: func(e events.TransportOrderChanged) {
			if e.StateTransition() {
				orderTransitions.WithLabelValues(string(e.Current.State)).Inc()
			}
		},
		PeripheralJob: func(e events.PeripheralJobChanged) {
			if e.StateTransition() {
				jobTransitions.WithLabelValues(string(e.Current.State)).Inc()
			}
		},
		PathLock: func(e events.PathLockChanged) {
			val := 0.0
			if e.Locked {
				val = 1
			}
			lockedPaths.WithLabelValues(e.Path).Set(val)
		},
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				h.Handle(ev)
			}
		}
	}()
	return done
}
