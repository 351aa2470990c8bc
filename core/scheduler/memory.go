package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/model"
)

type resourceKey struct {
	kind model.ResourceKind
	name string
}

func keyOf(r model.Resource) resourceKey { return resourceKey{kind: r.Kind, name: r.Name} }

type request struct {
	client Client
	set    model.ResourceSet
}

// MemoryScheduler grants resources exclusively. Requests that cannot be
// granted are deferred and retried in arrival order whenever resources are
// freed. Results are delivered on their own goroutine.
type MemoryScheduler struct {
	mu       sync.Mutex
	owners   map[resourceKey]string
	claims   map[string][]model.ResourceSet
	deferred []request
	log      logger.Logger
	wg       sync.WaitGroup
}

// NewMemoryScheduler creates an empty scheduler.
func NewMemoryScheduler(log logger.Logger) *MemoryScheduler {
	log = logger.OrNop(log)
	return &MemoryScheduler{
		owners: map[resourceKey]string{},
		claims: map[string][]model.ResourceSet{},
		log:    log,
	}
}

func (s *MemoryScheduler) Claim(c Client, sets []model.ResourceSet) {
	s.mu.Lock()
	s.claims[c.ID()] = append([]model.ResourceSet(nil), sets...)
	s.mu.Unlock()
}

func (s *MemoryScheduler) Unclaim(c Client) {
	s.mu.Lock()
	delete(s.claims, c.ID())
	s.mu.Unlock()
}

// Claims returns the client's current claim.
func (s *MemoryScheduler) Claims(id string) []model.ResourceSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ResourceSet(nil), s.claims[id]...)
}

func (s *MemoryScheduler) Allocate(c Client, set model.ResourceSet) {
	s.mu.Lock()
	if len(set) == 0 {
		s.mu.Unlock()
		s.deliver(c, AllocationResult{Resources: set, Reason: ErrEmptyResourceSet.Error()})
		return
	}
	for _, r := range s.deferred {
		if r.client.ID() == c.ID() {
			s.mu.Unlock()
			s.deliver(c, AllocationResult{
				Resources: set,
				Reason:    fmt.Sprintf("client %s already waiting for %s", c.ID(), r.set),
			})
			return
		}
	}
	if s.grantable(c.ID(), set) {
		s.take(c.ID(), set)
		s.mu.Unlock()
		s.deliver(c, AllocationResult{Resources: set, Granted: true})
		return
	}
	s.deferred = append(s.deferred, request{client: c, set: set})
	s.mu.Unlock()
	s.log.Debugf("scheduler: deferred %s for %s", set, c.ID())
}

func (s *MemoryScheduler) AllocateNow(c Client, set model.ResourceSet) error {
	if len(set) == 0 {
		return ErrEmptyResourceSet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range set {
		if owner, ok := s.owners[keyOf(r)]; ok && owner != c.ID() {
			return fmt.Errorf("%s held by %s: %w", r, owner, ErrResourcesUnavailable)
		}
	}
	s.take(c.ID(), set)
	return nil
}

func (s *MemoryScheduler) Free(c Client, set model.ResourceSet) {
	s.mu.Lock()
	for _, r := range set {
		if s.owners[keyOf(r)] == c.ID() {
			delete(s.owners, keyOf(r))
		}
	}
	granted := s.retryDeferred()
	s.mu.Unlock()
	s.deliverAll(granted)
}

func (s *MemoryScheduler) FreeAll(c Client) {
	s.mu.Lock()
	for k, owner := range s.owners {
		if owner == c.ID() {
			delete(s.owners, k)
		}
	}
	granted := s.retryDeferred()
	s.mu.Unlock()
	s.deliverAll(granted)
}

func (s *MemoryScheduler) ClearPendingAllocations(c Client) {
	s.mu.Lock()
	kept := s.deferred[:0]
	for _, r := range s.deferred {
		if r.client.ID() != c.ID() {
			kept = append(kept, r)
		}
	}
	s.deferred = kept
	granted := s.retryDeferred()
	s.mu.Unlock()
	s.deliverAll(granted)
}

// Allocations maps every client to the names of the resources it owns.
func (s *MemoryScheduler) Allocations() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]string{}
	for k, owner := range s.owners {
		out[owner] = append(out[owner], k.name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}

// Wait blocks until all results delivered so far were handled by their clients.
func (s *MemoryScheduler) Wait() { s.wg.Wait() }

// grantable reports whether set is free for id and no earlier deferred
// request of another client competes for one of its resources.
func (s *MemoryScheduler) grantable(id string, set model.ResourceSet) bool {
	for _, r := range set {
		if owner, ok := s.owners[keyOf(r)]; ok && owner != id {
			return false
		}
	}
	for _, d := range s.deferred {
		if d.client.ID() != id && overlaps(d.set, set) {
			return false
		}
	}
	return true
}

func (s *MemoryScheduler) take(id string, set model.ResourceSet) {
	for _, r := range set {
		s.owners[keyOf(r)] = id
	}
}

// retryDeferred grants deferred requests in arrival order. A request that is
// still blocked keeps blocking later requests for the same resources.
func (s *MemoryScheduler) retryDeferred() []request {
	var granted []request
	var waiting []request
	for _, d := range s.deferred {
		free := true
		for _, r := range d.set {
			if owner, ok := s.owners[keyOf(r)]; ok && owner != d.client.ID() {
				free = false
				break
			}
		}
		if free {
			for _, w := range waiting {
				if overlaps(w.set, d.set) {
					free = false
					break
				}
			}
		}
		if !free {
			waiting = append(waiting, d)
			continue
		}
		s.take(d.client.ID(), d.set)
		granted = append(granted, d)
	}
	s.deferred = waiting
	return granted
}

func (s *MemoryScheduler) deliverAll(reqs []request) {
	for _, r := range reqs {
		s.deliver(r.client, AllocationResult{Resources: r.set, Granted: true})
	}
}

func (s *MemoryScheduler) deliver(c Client, res AllocationResult) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !c.OnAllocation(res) && res.Granted {
			s.log.Debugf("scheduler: %s refused %s", c.ID(), res.Resources)
			s.Free(c, res.Resources)
		}
	}()
}

func overlaps(a, b model.ResourceSet) bool {
	for _, x := range a {
		for _, y := range b {
			if keyOf(x) == keyOf(y) {
				return true
			}
		}
	}
	return false
}
