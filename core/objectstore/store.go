// Package objectstore holds the fleet object model: the plant, vehicles,
// transport orders, order sequences and peripheral jobs. Every change is
// published as a domain event.
package objectstore

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/core/model"
)

var (
	ErrUnknownPoint    = errors.New("unknown point")
	ErrUnknownPath     = errors.New("unknown path")
	ErrUnknownLocation = errors.New("unknown location")
	ErrUnknownVehicle  = errors.New("unknown vehicle")
	ErrUnknownOrder    = errors.New("unknown transport order")
	ErrUnknownSequence = errors.New("unknown order sequence")
	ErrUnknownJob      = errors.New("unknown peripheral job")
	ErrExists          = errors.New("object already exists")
	ErrInvalidPath     = errors.New("invalid path")
)

// Publisher receives the events fired by the store.
type Publisher interface {
	Publish(events.Event)
}

// Store is the object service consumed by controllers, the dispatcher and the API.
type Store interface {
	Point(name string) (model.Point, bool)
	Path(name string) (model.Path, bool)
	Location(name string) (model.Location, bool)
	Points() []model.Point
	Paths() []model.Path
	Locations() []model.Location
	SetPathLocked(name string, locked bool) error

	Vehicle(name string) (model.Vehicle, bool)
	Vehicles() []model.Vehicle
	UpdateVehicle(name string, fn func(*model.Vehicle)) (model.Vehicle, error)

	AddOrder(o model.TransportOrder) error
	Order(name string) (model.TransportOrder, bool)
	Orders() []model.TransportOrder
	UpdateOrder(name string, fn func(*model.TransportOrder)) (model.TransportOrder, error)

	AddSequence(s model.OrderSequence) error
	Sequence(name string) (model.OrderSequence, bool)
	Sequences() []model.OrderSequence
	UpdateSequence(name string, fn func(*model.OrderSequence)) (model.OrderSequence, error)

	CreatePeripheralJob(token, vehicle, order string, op model.PeripheralOperation) (model.PeripheralJob, error)
	PeripheralJob(name string) (model.PeripheralJob, bool)
	PeripheralJobs() []model.PeripheralJob
	UpdatePeripheralJobState(name string, state model.PeripheralJobState) (model.PeripheralJob, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	points    map[string]model.Point
	paths     map[string]model.Path
	locations map[string]model.Location
	vehicles  map[string]model.Vehicle
	orders    map[string]model.TransportOrder
	sequences map[string]model.OrderSequence
	jobs      map[string]model.PeripheralJob
	jobSeq    uint64

	pub Publisher
	now func() time.Time
}

// NewMemoryStore creates an empty store publishing to pub. pub may be nil.
func NewMemoryStore(pub Publisher) *MemoryStore {
	return &MemoryStore{
		points:    map[string]model.Point{},
		paths:     map[string]model.Path{},
		locations: map[string]model.Location{},
		vehicles:  map[string]model.Vehicle{},
		orders:    map[string]model.TransportOrder{},
		sequences: map[string]model.OrderSequence{},
		jobs:      map[string]model.PeripheralJob{},
		pub:       pub,
		now:       time.Now,
	}
}

func (s *MemoryStore) publish(ev events.Event) {
	if s.pub != nil {
		s.pub.Publish(ev)
	}
}

// AddPoint adds a point to the plant.
func (s *MemoryStore) AddPoint(p model.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.points[p.Name]; ok {
		return fmt.Errorf("point %s: %w", p.Name, ErrExists)
	}
	if p.Type == "" {
		p.Type = model.PointHalt
	}
	s.points[p.Name] = p
	return nil
}

// AddPath adds a path of positive length between two known points.
func (s *MemoryStore) AddPath(p model.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[p.Name]; ok {
		return fmt.Errorf("path %s: %w", p.Name, ErrExists)
	}
	for _, end := range []string{p.Source, p.Destination} {
		if _, ok := s.points[end]; !ok {
			return fmt.Errorf("path %s: point %s: %w", p.Name, end, ErrUnknownPoint)
		}
	}
	if p.Length <= 0 {
		return fmt.Errorf("path %s: length %d must be positive: %w", p.Name, p.Length, ErrInvalidPath)
	}
	s.paths[p.Name] = p
	return nil
}

// AddLocation adds a location linked to known points.
func (s *MemoryStore) AddLocation(l model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[l.Name]; ok {
		return fmt.Errorf("location %s: %w", l.Name, ErrExists)
	}
	for _, p := range l.LinkedPoints {
		if _, ok := s.points[p]; !ok {
			return fmt.Errorf("location %s: point %s: %w", l.Name, p, ErrUnknownPoint)
		}
	}
	s.locations[l.Name] = l
	return nil
}

func (s *MemoryStore) Point(name string) (model.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[name]
	return p, ok
}

func (s *MemoryStore) Path(name string) (model.Path, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paths[name]
	return p, ok
}

func (s *MemoryStore) Location(name string) (model.Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[name]
	return l, ok
}

// Points returns all points sorted by name.
func (s *MemoryStore) Points() []model.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Point, 0, len(s.points))
	for _, p := range s.points {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Paths returns all paths sorted by name.
func (s *MemoryStore) Paths() []model.Path {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Path, 0, len(s.paths))
	for _, p := range s.paths {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Locations returns all locations sorted by name.
func (s *MemoryStore) Locations() []model.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Location, 0, len(s.locations))
	for _, l := range s.locations {
		res = append(res, l)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// SetPathLocked changes the lock flag of a path.
func (s *MemoryStore) SetPathLocked(name string, locked bool) error {
	s.mu.Lock()
	p, ok := s.paths[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("path %s: %w", name, ErrUnknownPath)
	}
	changed := p.Locked != locked
	p.Locked = locked
	s.paths[name] = p
	s.mu.Unlock()
	if changed {
		s.publish(events.PathLockChanged{Path: name, Locked: locked})
	}
	return nil
}

// AddVehicle registers a vehicle.
func (s *MemoryStore) AddVehicle(v model.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.vehicles[v.Name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("vehicle %s: %w", v.Name, ErrExists)
	}
	if v.ProcState == "" {
		v.ProcState = model.ProcIdle
	}
	if v.State == "" {
		v.State = model.StateUnknown
	}
	if v.IntegrationLevel == "" {
		v.IntegrationLevel = model.LevelRespected
	}
	v = v.Clone()
	s.vehicles[v.Name] = v
	s.mu.Unlock()
	s.publish(events.VehicleChanged{Current: v.Clone()})
	return nil
}

func (s *MemoryStore) Vehicle(name string) (model.Vehicle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[name]
	return v.Clone(), ok
}

// Vehicles returns all vehicles sorted by name.
func (s *MemoryStore) Vehicles() []model.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		res = append(res, v.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// UpdateVehicle applies fn to the stored vehicle. An event is published only
// if fn changed something.
func (s *MemoryStore) UpdateVehicle(name string, fn func(*model.Vehicle)) (model.Vehicle, error) {
	s.mu.Lock()
	prev, ok := s.vehicles[name]
	if !ok {
		s.mu.Unlock()
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", name, ErrUnknownVehicle)
	}
	cur := prev.Clone()
	fn(&cur)
	cur.Name = name
	s.vehicles[name] = cur
	s.mu.Unlock()
	if !reflect.DeepEqual(prev, cur) {
		s.publish(events.VehicleChanged{Previous: prev, Current: cur.Clone()})
	}
	return cur.Clone(), nil
}

// AddOrder stores a new transport order.
func (s *MemoryStore) AddOrder(o model.TransportOrder) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.orders[o.Name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("transport order %s: %w", o.Name, ErrExists)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	if o.State == "" {
		o.State = model.OrderRaw
	}
	o = o.Clone()
	s.orders[o.Name] = o
	s.mu.Unlock()
	s.publish(events.TransportOrderChanged{Current: o.Clone()})
	return nil
}

func (s *MemoryStore) Order(name string) (model.TransportOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[name]
	return o.Clone(), ok
}

// Orders returns all transport orders, oldest first.
func (s *MemoryStore) Orders() []model.TransportOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.TransportOrder, 0, len(s.orders))
	for _, o := range s.orders {
		res = append(res, o.Clone())
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].Name < res[j].Name
	})
	return res
}

// UpdateOrder applies fn to the stored order.
func (s *MemoryStore) UpdateOrder(name string, fn func(*model.TransportOrder)) (model.TransportOrder, error) {
	s.mu.Lock()
	prev, ok := s.orders[name]
	if !ok {
		s.mu.Unlock()
		return model.TransportOrder{}, fmt.Errorf("transport order %s: %w", name, ErrUnknownOrder)
	}
	cur := prev.Clone()
	fn(&cur)
	cur.Name = name
	s.orders[name] = cur
	s.mu.Unlock()
	if !reflect.DeepEqual(prev, cur) {
		s.publish(events.TransportOrderChanged{Previous: prev, Current: cur.Clone()})
	}
	return cur.Clone(), nil
}

// AddSequence stores a new order sequence.
func (s *MemoryStore) AddSequence(seq model.OrderSequence) error {
	if seq.Name == "" {
		return fmt.Errorf("order sequence name must not be empty")
	}
	s.mu.Lock()
	if _, ok := s.sequences[seq.Name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("order sequence %s: %w", seq.Name, ErrExists)
	}
	seq = seq.Clone()
	s.sequences[seq.Name] = seq
	s.mu.Unlock()
	s.publish(events.OrderSequenceChanged{Current: seq.Clone()})
	return nil
}

func (s *MemoryStore) Sequence(name string) (model.OrderSequence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.sequences[name]
	return seq.Clone(), ok
}

// Sequences returns all order sequences sorted by name.
func (s *MemoryStore) Sequences() []model.OrderSequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.OrderSequence, 0, len(s.sequences))
	for _, seq := range s.sequences {
		res = append(res, seq.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// UpdateSequence applies fn to the stored sequence.
func (s *MemoryStore) UpdateSequence(name string, fn func(*model.OrderSequence)) (model.OrderSequence, error) {
	s.mu.Lock()
	prev, ok := s.sequences[name]
	if !ok {
		s.mu.Unlock()
		return model.OrderSequence{}, fmt.Errorf("order sequence %s: %w", name, ErrUnknownSequence)
	}
	cur := prev.Clone()
	fn(&cur)
	cur.Name = name
	s.sequences[name] = cur
	s.mu.Unlock()
	if !reflect.DeepEqual(prev, cur) {
		s.publish(events.OrderSequenceChanged{Previous: prev, Current: cur.Clone()})
	}
	return cur.Clone(), nil
}
