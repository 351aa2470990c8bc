package loopback

import (
	"context"
	"fmt"
	"sync"
	"time"

	corelogger "github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/vehicle"
	"github.com/kilianp07/agvfleet/infra/logger"
)

// Sim is a virtual vehicle executing movement commands one after another.
// Commands stay queued until they are executed, so the queue length is what
// the vehicle still has to do.
type Sim struct {
	name    string
	cfg     Config
	battery *Battery
	ops     map[string]bool
	fails   map[string]bool
	log     corelogger.Logger

	mu       sync.Mutex
	queue    []model.MovementCommand
	gen      uint64
	position string
	state    model.VehicleState
	report   func(vehicle.Report)
	wake     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSim creates a stopped virtual vehicle standing at position.
func NewSim(name, position string, cfg Config) *Sim {
	cfg.SetDefaults()
	return &Sim{
		name:     name,
		cfg:      cfg,
		battery:  NewBattery(cfg.InitialEnergy),
		ops:      toSet(cfg.Operations),
		fails:    toSet(cfg.FailOperations),
		log:      logger.ForVehicle("loopback", name),
		position: position,
		state:    model.StateIdle,
		wake:     make(chan struct{}, 1),
	}
}

func toSet(list []string) map[string]bool {
	if len(list) == 0 {
		return nil
	}
	m := make(map[string]bool, len(list))
	for _, s := range list {
		m[s] = true
	}
	return m
}

// Start runs the vehicle until Stop. The initial position, energy level and
// state are reported first.
func (s *Sim) Start(report func(vehicle.Report)) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.report = report
	pos, state := s.position, s.state
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.emit(vehicle.PositionReport{Point: pos})
		s.emit(vehicle.EnergyLevelReport{Level: s.battery.Level()})
		s.emit(vehicle.StateReport{State: state})
		s.run(ctx)
	}()
}

// Stop halts the vehicle and waits for its goroutine to exit. Queued
// commands are dropped.
func (s *Sim) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.queue = nil
	s.gen++
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.mu.Lock()
	s.report = nil
	s.mu.Unlock()
}

// Running reports whether the vehicle was started.
func (s *Sim) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// CanAccept reports whether the queue has room.
func (s *Sim) CanAccept() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil && len(s.queue) < s.cfg.QueueCapacity
}

// Enqueue appends cmd to the queue.
func (s *Sim) Enqueue(cmd model.MovementCommand) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil || len(s.queue) >= s.cfg.QueueCapacity {
		return false
	}
	s.queue = append(s.queue, cmd)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Clear drops all queued commands. A command being executed is abandoned
// without a report.
func (s *Sim) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.gen++
}

// Supports reports whether the vehicle can perform op at a destination.
func (s *Sim) Supports(op string) bool {
	if model.IsNoOperation(op) || op == model.OpMove || op == model.OpPark || op == s.cfg.ChargeOperation {
		return true
	}
	return s.ops == nil || s.ops[op]
}

// Position returns the point the vehicle is at.
func (s *Sim) Position() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Energy returns the current energy level.
func (s *Sim) Energy() int { return s.battery.Level() }

func (s *Sim) emit(r vehicle.Report) {
	s.mu.Lock()
	report := s.report
	s.mu.Unlock()
	if report != nil {
		report(r)
	}
}

func (s *Sim) setState(state model.VehicleState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.emit(vehicle.StateReport{State: state})
	}
}

// head returns the first queued command and the current generation.
func (s *Sim) head() (model.MovementCommand, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return model.MovementCommand{}, s.gen, false
	}
	return s.queue[0], s.gen, true
}

func (s *Sim) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// pop removes the head if the queue was not cleared in the meantime.
func (s *Sim) pop(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || len(s.queue) == 0 {
		return false
	}
	s.queue = s.queue[1:]
	return true
}

func (s *Sim) run(ctx context.Context) {
	for {
		cmd, gen, ok := s.head()
		if !ok {
			s.setState(model.StateIdle)
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		if !s.execute(ctx, cmd, gen) {
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// execute travels cmd's steps and performs its operation. It returns false
// if the command was abandoned.
func (s *Sim) execute(ctx context.Context, cmd model.MovementCommand, gen uint64) bool {
	s.setState(model.StateExecuting)
	for _, st := range cmd.Steps() {
		if !sleep(ctx, s.cfg.step()) || !s.current(gen) {
			return false
		}
		if st.Path != nil {
			s.emit(vehicle.EnergyLevelReport{Level: s.battery.Drain(s.cfg.EnergyPerStep)})
		}
		s.mu.Lock()
		s.position = st.Destination.Name
		s.mu.Unlock()
		s.emit(vehicle.PositionReport{Point: st.Destination.Name})
	}

	var failure string
	switch op := cmd.Operation; {
	case model.IsNoOperation(op), op == model.OpMove, op == model.OpPark:
	case op == s.cfg.ChargeOperation:
		if !s.charge(ctx, gen) {
			return false
		}
	default:
		if !sleep(ctx, s.cfg.operation()) || !s.current(gen) {
			return false
		}
		if s.fails[op] {
			failure = fmt.Sprintf("operation %s failed", op)
		}
	}

	if !s.pop(gen) {
		return false
	}
	if failure != "" {
		s.log.Warnf("vehicle %s: %s", s.name, failure)
		s.emit(vehicle.CommandFailedReport{Command: cmd, Reason: failure})
		return true
	}
	s.emit(vehicle.CommandExecutedReport{Command: cmd})
	return true
}

// charge raises the energy level until full, then reports idle again.
func (s *Sim) charge(ctx context.Context, gen uint64) bool {
	s.setState(model.StateCharging)
	defer s.setState(model.StateIdle)
	for s.battery.Level() < 100 {
		if !sleep(ctx, s.cfg.step()) || !s.current(gen) {
			return false
		}
		s.emit(vehicle.EnergyLevelReport{Level: s.battery.Charge(s.cfg.ChargePerTick)})
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
