package usage

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[time.Time]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[time.Time]*Record{}}
}

// Add merges r into the record of its vehicle and day.
func (s *MemoryStore) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[r.Vehicle] == nil {
		s.data[r.Vehicle] = map[time.Time]*Record{}
	}
	d := Day(r.Date)
	rec := s.data[r.Vehicle][d]
	if rec == nil {
		rec = &Record{Vehicle: r.Vehicle, Date: d}
		s.data[r.Vehicle][d] = rec
	}
	rec.Distance += r.Distance
	rec.EnergyConsumed += r.EnergyConsumed
	rec.EnergyCharged += r.EnergyCharged
	rec.OrdersFinished += r.OrdersFinished
	rec.OrdersFailed += r.OrdersFailed
	return nil
}

// Query returns the vehicle's records between start and end inclusive,
// oldest first.
func (s *MemoryStore) Query(vehicle string, start, end time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start = Day(start)
	end = Day(end)
	var res []Record
	for d, r := range s.data[vehicle] {
		if d.Before(start) || d.After(end) {
			continue
		}
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}
