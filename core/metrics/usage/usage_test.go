package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/core/model"
)

func TestMemoryStoreAggregation(t *testing.T) {
	s := NewMemoryStore()
	d := Day(time.Now())
	require.NoError(t, s.Add(Record{Vehicle: "v1", Date: d, Distance: 1000}))
	require.NoError(t, s.Add(Record{Vehicle: "v1", Date: d.Add(2 * time.Hour), Distance: 500, EnergyConsumed: 3}))
	require.NoError(t, s.Add(Record{Vehicle: "v1", Date: d.Add(-24 * time.Hour), Distance: 10}))

	recs, err := s.Query("v1", d, d)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1500), recs[0].Distance)
	assert.Equal(t, 3, recs[0].EnergyConsumed)

	recs, err = s.Query("v1", d.Add(-24*time.Hour), d)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Date.Before(recs[1].Date))
}

func TestRecordRatios(t *testing.T) {
	r := Record{Distance: 2000, EnergyConsumed: 4, OrdersFinished: 3, OrdersFailed: 1}
	assert.InDelta(t, 2.0, r.EnergyPerDistance(), 1e-9)
	assert.InDelta(t, 0.75, r.SuccessRatio(), 1e-9)
	assert.Zero(t, Record{}.EnergyPerDistance())
	assert.Zero(t, Record{}.SuccessRatio())
}

type paths []model.Path

func (p paths) Paths() []model.Path { return p }

func TestTrackerRecordsEvents(t *testing.T) {
	s := NewMemoryStore()
	tr := NewTracker(s, paths{{Name: "p1-p2", Source: "p1", Destination: "p2", Length: 1200}}, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	h := tr.Handlers()

	v := model.Vehicle{Name: "v1", CurrentPosition: "p1", EnergyLevel: 90}
	h.Handle(events.VehicleChanged{Current: v})
	moved := v
	moved.CurrentPosition = "p2"
	moved.EnergyLevel = 88
	h.Handle(events.VehicleChanged{Previous: v, Current: moved})
	charged := moved
	charged.EnergyLevel = 95
	h.Handle(events.VehicleChanged{Previous: moved, Current: charged})

	o := model.TransportOrder{Name: "o1", State: model.OrderBeingProcessed, ProcessingVehicle: "v1"}
	done := o
	done.State = model.OrderFinished
	h.Handle(events.TransportOrderChanged{Previous: o, Current: done})
	h.Handle(events.TransportOrderChanged{Previous: done, Current: done})

	recs, err := s.Query("v1", now, now)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1200), recs[0].Distance)
	assert.Equal(t, 2, recs[0].EnergyConsumed)
	assert.Equal(t, 7, recs[0].EnergyCharged)
	assert.Equal(t, 1, recs[0].OrdersFinished)
	assert.Zero(t, recs[0].OrdersFailed)
}
