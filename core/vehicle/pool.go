package vehicle

import (
	"fmt"
	"sort"
	"sync"
)

// Pool holds the controllers of all attached vehicles.
type Pool struct {
	mu          sync.RWMutex
	controllers map[string]*Controller
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{controllers: map[string]*Controller{}}
}

// Attach enables c and adds it to the pool.
func (p *Pool) Attach(c *Controller) error {
	p.mu.Lock()
	if _, ok := p.controllers[c.ID()]; ok {
		p.mu.Unlock()
		return fmt.Errorf("vehicle %s already attached", c.ID())
	}
	p.controllers[c.ID()] = c
	p.mu.Unlock()
	if err := c.Enable(); err != nil {
		p.mu.Lock()
		delete(p.controllers, c.ID())
		p.mu.Unlock()
		return err
	}
	return nil
}

// Detach disables and removes the controller of vehicle.
func (p *Pool) Detach(vehicle string) {
	p.mu.Lock()
	c, ok := p.controllers[vehicle]
	delete(p.controllers, vehicle)
	p.mu.Unlock()
	if ok {
		c.Disable()
	}
}

// Get returns the controller of vehicle.
func (p *Pool) Get(vehicle string) (*Controller, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.controllers[vehicle]
	return c, ok
}

// All returns all controllers sorted by vehicle name.
func (p *Pool) All() []*Controller {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Controller, 0, len(p.controllers))
	for _, c := range p.controllers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Close detaches every controller.
func (p *Pool) Close() {
	for _, c := range p.All() {
		p.Detach(c.ID())
	}
}
