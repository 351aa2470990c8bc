package objectstore

import (
	"fmt"
	"sort"

	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/core/model"
)

// CreatePeripheralJob creates a job for the device at op.Location.
func (s *MemoryStore) CreatePeripheralJob(token, vehicle, order string, op model.PeripheralOperation) (model.PeripheralJob, error) {
	s.mu.Lock()
	if _, ok := s.locations[op.Location]; !ok {
		s.mu.Unlock()
		return model.PeripheralJob{}, fmt.Errorf("peripheral job at %s: %w", op.Location, ErrUnknownLocation)
	}
	s.jobSeq++
	job := model.PeripheralJob{
		Name:                  fmt.Sprintf("PJob-%06d", s.jobSeq),
		ReservationToken:      token,
		RelatedVehicle:        vehicle,
		RelatedTransportOrder: order,
		Operation:             op,
		State:                 model.JobToBeProcessed,
	}
	s.jobs[job.Name] = job
	s.mu.Unlock()
	s.publish(events.PeripheralJobChanged{Current: job})
	return job, nil
}

func (s *MemoryStore) PeripheralJob(name string) (model.PeripheralJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[name]
	return j, ok
}

// PeripheralJobs returns all jobs sorted by name, which is creation order.
func (s *MemoryStore) PeripheralJobs() []model.PeripheralJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.PeripheralJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		res = append(res, j)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// UpdatePeripheralJobState moves a job to state. Final states are sticky.
func (s *MemoryStore) UpdatePeripheralJobState(name string, state model.PeripheralJobState) (model.PeripheralJob, error) {
	s.mu.Lock()
	prev, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return model.PeripheralJob{}, fmt.Errorf("peripheral job %s: %w", name, ErrUnknownJob)
	}
	if prev.State.IsFinal() || prev.State == state {
		s.mu.Unlock()
		return prev, nil
	}
	cur := prev
	cur.State = state
	s.jobs[name] = cur
	s.mu.Unlock()
	s.publish(events.PeripheralJobChanged{Previous: prev, Current: cur})
	return cur, nil
}
