// Package vehicle contains the per-vehicle controller. A controller turns the
// route of the current drive order into movement commands, allocates the
// resources of each command one step ahead of execution and releases them
// again once the vehicle has passed them.
package vehicle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/objectstore"
	"github.com/kilianp07/agvfleet/core/peripheral"
	"github.com/kilianp07/agvfleet/core/scheduler"
)

var (
	ErrDriveOrderActive = errors.New("vehicle already processes a drive order")
	ErrNoDriveOrder     = errors.New("no drive order to process")
	ErrNoRoute          = errors.New("drive order has no route")
	ErrFaulted          = errors.New("controller is faulted")
	// ErrRouteDiverged is returned by UpdateTransportOrder when the vehicle
	// committed to a step the new route does not contain.
	ErrRouteDiverged = errors.New("route diverges from committed commands")
)

// WithdrawFunc asks the dispatcher to withdraw the vehicle's transport order.
// It must not block.
type WithdrawFunc func(vehicle string, immediate bool, reason string)

// Config holds the collaborators of a controller.
type Config struct {
	Vehicle   string
	Store     objectstore.Store
	Scheduler scheduler.Scheduler
	Adapter   CommAdapter
	Jobs      peripheral.JobService
	Withdraw  WithdrawFunc
	Logger    logger.Logger
}

// Controller drives one vehicle. All state is guarded by mu; every entry
// point (dispatcher calls, scheduler callbacks, adapter reports and
// peripheral job updates) takes it.
type Controller struct {
	name     string
	store    objectstore.Store
	sched    scheduler.Scheduler
	adapter  CommAdapter
	withdraw WithdrawFunc
	log      logger.Logger

	mu         sync.Mutex
	interactor *peripheral.Interactor
	enabled    bool
	faulted    bool
	lastID     uint64

	order         model.TransportOrder
	driveOrder    model.DriveOrder
	hasDriveOrder bool

	futureCommands []model.MovementCommand
	// pendingCommand is set while an allocation request is outstanding.
	pendingCommand   *model.MovementCommand
	pendingResources model.ResourceSet
	// awaitingInteraction holds allocated commands whose pre-movement
	// interactions have not finished.
	awaitingInteraction []model.MovementCommand
	commandsSent        []model.MovementCommand
	lastExecuted        *model.MovementCommand

	claimedResources   []model.ResourceSet
	allocatedResources []model.ResourceSet
}

// NewController creates a controller for cfg.Vehicle.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Vehicle == "" {
		return nil, fmt.Errorf("vehicle name must not be empty")
	}
	if cfg.Store == nil || cfg.Scheduler == nil || cfg.Adapter == nil {
		return nil, fmt.Errorf("vehicle %s: store, scheduler and adapter are required", cfg.Vehicle)
	}
	if _, ok := cfg.Store.Vehicle(cfg.Vehicle); !ok {
		return nil, fmt.Errorf("vehicle %s: %w", cfg.Vehicle, objectstore.ErrUnknownVehicle)
	}
	log := logger.OrNop(cfg.Logger)
	jobs := cfg.Jobs
	if jobs == nil {
		jobs = cfg.Store
	}
	withdraw := cfg.Withdraw
	if withdraw == nil {
		withdraw = func(string, bool, string) {}
	}
	return &Controller{
		name:       cfg.Vehicle,
		store:      cfg.Store,
		sched:      cfg.Scheduler,
		adapter:    cfg.Adapter,
		withdraw:   withdraw,
		log:        log,
		interactor: peripheral.NewInteractor(cfg.Vehicle, jobs, log),
	}, nil
}

// ID identifies the controller towards the scheduler.
func (c *Controller) ID() string { return c.name }

// Enable starts the comm adapter and takes the vehicle's reported position
// into account.
func (c *Controller) Enable() error {
	if err := c.adapter.Enable(c.HandleReport); err != nil {
		return fmt.Errorf("vehicle %s: enabling adapter: %w", c.name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
	v, _ := c.store.Vehicle(c.name)
	if v.IntegrationLevel.AllocatesResources() && v.CurrentPosition != "" {
		c.acquirePosition(v.CurrentPosition)
	}
	return nil
}

// Disable stops the adapter and releases everything the vehicle holds.
func (c *Controller) Disable() {
	c.mu.Lock()
	c.clearCommandQueueLocked()
	c.clearDriveOrderLocked()
	c.sched.FreeAll(c)
	c.allocatedResources = nil
	c.publishResources()
	c.enabled = false
	c.mu.Unlock()
	c.adapter.Disable()
}

// Faulted reports whether the controller stopped after an allocation failure.
func (c *Controller) Faulted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faulted
}

// CanProcess asks the adapter whether the vehicle can process order.
func (c *Controller) CanProcess(order model.TransportOrder) (bool, string) {
	return c.adapter.CanProcess(order)
}

// HasDriveOrder reports whether a drive order is in progress.
func (c *Controller) HasDriveOrder() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasDriveOrder
}

// SetTransportOrder starts processing the current drive order of order. The
// controller must not have a drive order already. The remaining resources of
// the whole order are claimed up front.
func (c *Controller) SetTransportOrder(order model.TransportOrder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.faulted {
		return ErrFaulted
	}
	if c.hasDriveOrder {
		return fmt.Errorf("vehicle %s: %w", c.name, ErrDriveOrderActive)
	}
	cur, ok := order.CurrentDriveOrder()
	if !ok {
		return fmt.Errorf("vehicle %s, order %s: %w", c.name, order.Name, ErrNoDriveOrder)
	}
	if cur.Route == nil {
		return fmt.Errorf("vehicle %s, order %s: %w", c.name, order.Name, ErrNoRoute)
	}

	c.order = order.Clone()
	c.driveOrder = cur.Clone()
	c.hasDriveOrder = true
	c.futureCommands = buildCommands(c.order, c.order.CurrentDriveIndex, c.nextID)
	c.claimedResources = claimSequence(c.order, c.order.CurrentDriveIndex, c.futureCommands)
	c.sched.Claim(c, c.claimedResources)
	c.publishResources()
	c.setProcState(model.ProcProcessingOrder)
	c.log.Infof("vehicle %s: processing drive order %d of %s with %d commands",
		c.name, c.order.CurrentDriveIndex, c.order.Name, len(c.futureCommands))

	c.allocateForNextCommand()
	return nil
}

// UpdateTransportOrder replaces the current drive order with the one of
// order, typically a merged route after rerouting. Commands already sent
// keep running; new commands are only built for the part of the route
// behind them. With forced set, commands in flight are dropped and the
// vehicle continues from its current position.
func (c *Controller) UpdateTransportOrder(order model.TransportOrder, forced bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.faulted {
		return ErrFaulted
	}
	if !c.hasDriveOrder {
		return fmt.Errorf("vehicle %s: %w", c.name, ErrNoDriveOrder)
	}
	cur, ok := order.CurrentDriveOrder()
	if !ok || cur.Route == nil {
		return fmt.Errorf("vehicle %s, order %s: %w", c.name, order.Name, ErrNoRoute)
	}
	if last := c.committedCommand(forced); last != nil {
		i := last.Step.RouteIndex
		steps := cur.Route.Steps
		if i >= len(steps) || steps[i].Destination.Name != last.Step.Destination.Name {
			return fmt.Errorf("vehicle %s, order %s: committed up to %s at index %d: %w",
				c.name, order.Name, last.Step.Destination.Name, i, ErrRouteDiverged)
		}
	}

	if forced {
		c.clearCommandQueueLocked()
	}
	c.cancelPendingAllocation()

	c.order = order.Clone()
	c.driveOrder = cur.Clone()

	progress := c.progressIndex()
	var future []model.MovementCommand
	for _, cmd := range buildCommands(c.order, c.order.CurrentDriveIndex, c.nextID) {
		if cmd.Step.RouteIndex <= progress {
			continue
		}
		future = append(future, cmd)
	}
	c.futureCommands = future
	c.claimedResources = claimSequence(c.order, c.order.CurrentDriveIndex, c.futureCommands)
	c.sched.Claim(c, c.claimedResources)
	c.publishResources()
	c.log.Infof("vehicle %s: drive order of %s updated (forced=%t), %d commands left after route index %d",
		c.name, c.order.Name, forced, len(c.futureCommands), progress)

	c.allocateForNextCommand()
	c.checkForPendingCommands()
	return nil
}

// progressIndex returns the route index of the last command committed to the
// current drive order: awaiting interactions, sent, or else executed. It is
// -1 if nothing of the current drive order was committed yet.
func (c *Controller) progressIndex() int {
	if last := c.committedCommand(false); last != nil {
		return last.Step.RouteIndex
	}
	return -1
}

// committedCommand returns the last command of the current drive order the
// vehicle is bound to. Without the commands in flight only the last executed
// one counts.
func (c *Controller) committedCommand(executedOnly bool) *model.MovementCommand {
	if !executedOnly {
		if n := len(c.awaitingInteraction); n > 0 && c.sameDriveOrder(c.awaitingInteraction[n-1]) {
			return &c.awaitingInteraction[n-1]
		}
		if n := len(c.commandsSent); n > 0 && c.sameDriveOrder(c.commandsSent[n-1]) {
			return &c.commandsSent[n-1]
		}
	}
	if c.lastExecuted != nil && c.sameDriveOrder(*c.lastExecuted) {
		return c.lastExecuted
	}
	return nil
}

func (c *Controller) sameDriveOrder(cmd model.MovementCommand) bool {
	return cmd.TransportOrder == c.order.Name && cmd.DriveOrderIndex == c.order.CurrentDriveIndex
}

// RerouteSource returns the point a new route has to start at, the index of
// the first route step a new route may replace and whether a drive order is
// in progress. Regular reroutes start where the last committed command ends;
// forced reroutes start at the vehicle's current position.
func (c *Controller) RerouteSource(forced bool) (string, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !forced {
		if n := len(c.awaitingInteraction); n > 0 {
			last := c.awaitingInteraction[n-1].Step
			return last.Destination.Name, last.RouteIndex + 1, c.hasDriveOrder
		}
		if n := len(c.commandsSent); n > 0 {
			last := c.commandsSent[n-1].Step
			return last.Destination.Name, last.RouteIndex + 1, c.hasDriveOrder
		}
	}
	branch := 0
	if c.hasDriveOrder && c.lastExecuted != nil && c.sameDriveOrder(*c.lastExecuted) {
		branch = c.lastExecuted.Step.RouteIndex + 1
	}
	v, _ := c.store.Vehicle(c.name)
	return v.CurrentPosition, branch, c.hasDriveOrder
}

// allocateForNextCommand requests the resources of the next future command
// if nothing blocks it. At most one request is outstanding at any time.
func (c *Controller) allocateForNextCommand() {
	if !c.canAllocateNext() {
		return
	}
	cmd := c.futureCommands[0]
	c.futureCommands = c.futureCommands[1:]
	set := cmd.RequiredResources()
	c.pendingCommand = &cmd
	c.pendingResources = set
	allocationRequests.Inc()
	c.log.Debugf("vehicle %s: allocating %s for %s", c.name, set, cmd)
	c.sched.Allocate(c, set)
}

func (c *Controller) canAllocateNext() bool {
	return !c.faulted &&
		c.pendingCommand == nil &&
		len(c.futureCommands) > 0 &&
		c.futureCommands[0].ExecutionAllowed() &&
		!c.interactor.Waiting() &&
		c.adapter.CanAcceptNextCommand()
}

// OnAllocation receives the scheduler's answer to the outstanding request.
func (c *Controller) OnAllocation(res scheduler.AllocationResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !res.Granted {
		c.allocationFailed(res)
		return false
	}
	if c.faulted {
		return false
	}
	if c.pendingCommand == nil || !c.pendingResources.Equal(res.Resources) {
		if c.holdsSet(res.Resources) {
			// Granted twice after a route update re-requested it. Refusing
			// would free resources the vehicle still uses.
			c.log.Debugf("vehicle %s: %s granted twice", c.name, res.Resources)
			return true
		}
		staleAllocations.Inc()
		c.log.Debugf("vehicle %s: refusing stale allocation of %s", c.name, res.Resources)
		return false
	}

	cmd := *c.pendingCommand
	c.pendingCommand = nil
	c.pendingResources = nil
	c.allocatedResources = append(c.allocatedResources, res.Resources)
	c.dropClaim(res.Resources)
	c.sched.Claim(c, c.claimedResources)
	c.publishResources()

	c.interactor.Prepare(cmd, c.order.ReservationToken(c.name))
	c.awaitingInteraction = append(c.awaitingInteraction, cmd)
	c.onPreMovement(cmd, c.interactor.StartPreMovement(cmd))
	return true
}

func (c *Controller) holdsSet(set model.ResourceSet) bool {
	for _, s := range c.allocatedResources {
		if s.Equal(set) {
			return true
		}
	}
	return false
}

func (c *Controller) dropClaim(set model.ResourceSet) {
	for i, s := range c.claimedResources {
		if s.Equal(set) {
			c.claimedResources = append(c.claimedResources[:i:i], c.claimedResources[i+1:]...)
			return
		}
	}
}

// allocationFailed is a broken scheduler invariant. The controller stops.
func (c *Controller) allocationFailed(res scheduler.AllocationResult) {
	allocationFailures.Inc()
	err := fmt.Errorf("vehicle %s: allocation of %s failed: %s", c.name, res.Resources, res.Reason)
	c.faulted = true
	c.pendingCommand = nil
	c.pendingResources = nil
	c.log.Errorf("%v", err)
	captureFault(err, c.name)
	if _, uerr := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) { v.State = model.StateError }); uerr != nil {
		c.log.Warnf("vehicle %s: %v", c.name, uerr)
	}
}

func (c *Controller) onPreMovement(cmd model.MovementCommand, out peripheral.Outcome) {
	switch out.Kind {
	case peripheral.Pending:
		c.log.Debugf("vehicle %s: %s waits for peripheral jobs", c.name, cmd)
	case peripheral.Succeeded:
		c.removeAwaiting(cmd)
		if c.sendCommand(cmd) {
			c.allocateForNextCommand()
		}
	case peripheral.Failed:
		c.removeAwaiting(cmd)
		c.requestWithdrawal(out.Reason)
	}
}

func (c *Controller) removeAwaiting(cmd model.MovementCommand) {
	for i, a := range c.awaitingInteraction {
		if a.ID == cmd.ID {
			c.awaitingInteraction = append(c.awaitingInteraction[:i:i], c.awaitingInteraction[i+1:]...)
			return
		}
	}
}

// sendCommand hands cmd to the adapter. If the adapter does not take it, the
// command goes back to the front of the queue and its resources are returned.
func (c *Controller) sendCommand(cmd model.MovementCommand) bool {
	if !c.adapter.EnqueueCommand(cmd) {
		c.log.Warnf("vehicle %s: adapter rejected %s", c.name, cmd)
		c.futureCommands = append([]model.MovementCommand{cmd}, c.futureCommands...)
		set := cmd.RequiredResources()
		if n := len(c.allocatedResources); n > 0 && c.allocatedResources[n-1].Equal(set) {
			c.allocatedResources = c.allocatedResources[:n-1]
			c.sched.Free(c, set)
		}
		c.claimedResources = append([]model.ResourceSet{set}, c.claimedResources...)
		c.sched.Claim(c, c.claimedResources)
		c.publishResources()
		return false
	}
	commandsSent.Inc()
	c.commandsSent = append(c.commandsSent, cmd)
	if len(c.commandsSent) == 1 {
		c.setNextPosition(cmd.Step.Destination.Name)
	}
	return true
}

func (c *Controller) requestWithdrawal(reason string) {
	c.log.Warnf("vehicle %s: requesting withdrawal of %s: %s", c.name, c.order.Name, reason)
	c.withdraw(c.name, false, reason)
}

// checkForPendingCommands finishes the drive order once nothing is left to
// allocate, execute or interact with.
func (c *Controller) checkForPendingCommands() {
	if !c.hasDriveOrder {
		return
	}
	if len(c.futureCommands) > 0 || c.pendingCommand != nil || len(c.commandsSent) > 0 ||
		len(c.awaitingInteraction) > 0 || c.interactor.HasPostMovementInteractions() {
		return
	}
	c.log.Infof("vehicle %s: drive order %d of %s done", c.name, c.order.CurrentDriveIndex, c.order.Name)
	c.hasDriveOrder = false
	c.driveOrder = model.DriveOrder{}
	c.setProcState(model.ProcAwaitingOrder)
}

func (c *Controller) nextID() uint64 {
	c.lastID++
	return c.lastID
}
