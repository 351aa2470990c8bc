package usage

import (
	"time"

	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/model"
)

// PathLookup finds the path connecting two points.
type PathLookup interface {
	Paths() []model.Path
}

// Tracker turns domain events into usage records.
type Tracker struct {
	store Store
	paths PathLookup
	log   logger.Logger
	now   func() time.Time
}

// NewTracker creates a tracker writing to store.
func NewTracker(store Store, paths PathLookup, log logger.Logger) *Tracker {
	log = logger.OrNop(log)
	return &Tracker{store: store, paths: paths, log: log, now: time.Now}
}

// Handlers returns the tracker's reactions to domain events.
func (t *Tracker) Handlers() events.Handlers {
	return events.Handlers{
		Vehicle:        t.vehicleChanged,
		TransportOrder: t.orderChanged,
	}
}

func (t *Tracker) vehicleChanged(e events.VehicleChanged) {
	prev, cur := e.Previous, e.Current
	if prev.Name == "" {
		return
	}
	rec := Record{Vehicle: cur.Name, Date: t.now()}
	if prev.CurrentPosition != "" && cur.CurrentPosition != "" && prev.CurrentPosition != cur.CurrentPosition {
		rec.Distance = t.distance(prev.CurrentPosition, cur.CurrentPosition)
	}
	switch d := cur.EnergyLevel - prev.EnergyLevel; {
	case d < 0:
		rec.EnergyConsumed = -d
	case d > 0:
		rec.EnergyCharged = d
	}
	if rec == (Record{Vehicle: rec.Vehicle, Date: rec.Date}) {
		return
	}
	t.add(rec)
}

func (t *Tracker) orderChanged(e events.TransportOrderChanged) {
	cur := e.Current
	if !e.StateTransition() || cur.ProcessingVehicle == "" {
		return
	}
	rec := Record{Vehicle: cur.ProcessingVehicle, Date: t.now()}
	switch cur.State {
	case model.OrderFinished:
		rec.OrdersFinished = 1
	case model.OrderFailed:
		rec.OrdersFailed = 1
	default:
		return
	}
	t.add(rec)
}

func (t *Tracker) distance(from, to string) int64 {
	for _, p := range t.paths.Paths() {
		if p.Source == from && p.Destination == to {
			return p.Length
		}
	}
	return 0
}

func (t *Tracker) add(rec Record) {
	if err := t.store.Add(rec); err != nil {
		t.log.Errorf("usage record for %s: %v", rec.Vehicle, err)
	}
}
