package vehicle

import (
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/monitoring"
)

// AbortTransportOrder stops processing the current order. A graceful abort
// only drops commands not sent yet, so the vehicle finishes what it was told
// and reports awaiting-order afterwards. An immediate abort also drops the
// commands in flight and keeps only the resources at the current position.
func (c *Controller) AbortTransportOrder(immediate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Infof("vehicle %s: aborting %s (immediate=%t)", c.name, c.order.Name, immediate)
	if immediate {
		c.clearCommandQueueLocked()
		c.clearDriveOrderLocked()
		return
	}
	c.futureCommands = nil
	c.cancelPendingAllocation()
	c.claimedResources = nil
	c.sched.Unclaim(c)
	c.publishResources()
	c.checkForPendingCommands()
}

// ClearCommandQueue drops all commands, queued or in flight, and releases
// every resource except the one at the vehicle's position.
func (c *Controller) ClearCommandQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearCommandQueueLocked()
}

// ClearTransportOrder forgets the order after it was finished or withdrawn.
func (c *Controller) ClearTransportOrder() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearCommandQueueLocked()
	c.clearDriveOrderLocked()
}

func (c *Controller) clearCommandQueueLocked() {
	c.futureCommands = nil
	c.cancelPendingAllocation()
	c.commandsSent = nil
	c.awaitingInteraction = nil
	for _, blocked := range c.interactor.Clear() {
		c.releaseAllocated(blocked.RequiredResources())
	}
	c.adapter.ClearCommandQueue()
	c.freeAllButPosition()
	c.setNextPosition("")
}

func (c *Controller) clearDriveOrderLocked() {
	wasActive := c.hasDriveOrder
	c.hasDriveOrder = false
	c.driveOrder = model.DriveOrder{}
	c.order = model.TransportOrder{}
	c.claimedResources = nil
	c.sched.Unclaim(c)
	c.publishResources()
	if wasActive {
		c.setProcState(model.ProcAwaitingOrder)
	}
}

func (c *Controller) cancelPendingAllocation() {
	if c.pendingCommand == nil {
		return
	}
	c.sched.ClearPendingAllocations(c)
	c.pendingCommand = nil
	c.pendingResources = nil
}

// releaseAllocated frees one allocated set that was never used.
func (c *Controller) releaseAllocated(set model.ResourceSet) {
	for i, s := range c.allocatedResources {
		if s.Equal(set) {
			c.allocatedResources = append(c.allocatedResources[:i:i], c.allocatedResources[i+1:]...)
			c.sched.Free(c, s)
			c.publishResources()
			return
		}
	}
}

// freeAllButPosition frees every allocated set except the newest one holding
// the vehicle's current position.
func (c *Controller) freeAllButPosition() {
	v, _ := c.store.Vehicle(c.name)
	keep := -1
	for i := len(c.allocatedResources) - 1; i >= 0; i-- {
		if v.CurrentPosition != "" && c.allocatedResources[i].ContainsPoint(v.CurrentPosition) {
			keep = i
			break
		}
	}
	var kept []model.ResourceSet
	for i, s := range c.allocatedResources {
		if i == keep {
			kept = append(kept, s)
			continue
		}
		c.sched.Free(c, s)
	}
	if keep >= 0 && len(kept[0]) > 1 {
		// Only the point itself stays occupied.
		var rest []model.Resource
		for _, r := range kept[0] {
			if r.Kind != model.KindPoint || r.Name != v.CurrentPosition {
				rest = append(rest, r)
			}
		}
		c.sched.Free(c, model.NewResourceSet(rest...))
		kept = []model.ResourceSet{model.NewResourceSet(model.Resource{Kind: model.KindPoint, Name: v.CurrentPosition})}
	}
	c.allocatedResources = kept
	c.publishResources()
}

// acquirePosition makes the set holding point the only allocated one.
func (c *Controller) acquirePosition(point string) {
	set := model.NewResourceSet(model.Resource{Kind: model.KindPoint, Name: point})
	if len(c.allocatedResources) == 1 && c.allocatedResources[0].Equal(set) {
		return
	}
	c.sched.FreeAll(c)
	c.allocatedResources = nil
	if err := c.sched.AllocateNow(c, set); err != nil {
		c.log.Warnf("vehicle %s: allocating position %s: %v", c.name, point, err)
		c.publishResources()
		return
	}
	c.allocatedResources = []model.ResourceSet{set}
	c.publishResources()
}

func (c *Controller) publishResources() {
	claimed := model.ResourceNames(c.claimedResources)
	allocated := model.ResourceNames(c.allocatedResources)
	if _, err := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) {
		v.ClaimedResources = claimed
		v.AllocatedResources = allocated
	}); err != nil {
		c.log.Warnf("vehicle %s: %v", c.name, err)
	}
}

func (c *Controller) setProcState(s model.ProcState) {
	if _, err := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) { v.ProcState = s }); err != nil {
		c.log.Warnf("vehicle %s: %v", c.name, err)
	}
}

func (c *Controller) setPosition(point string) {
	next := ""
	if len(c.commandsSent) > 0 {
		next = c.commandsSent[0].Step.Destination.Name
		if next == point {
			next = ""
			if len(c.commandsSent) > 1 {
				next = c.commandsSent[1].Step.Destination.Name
			}
		}
	}
	if _, err := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) {
		v.CurrentPosition = point
		v.NextPosition = next
	}); err != nil {
		c.log.Warnf("vehicle %s: %v", c.name, err)
	}
}

func (c *Controller) setNextPosition(point string) {
	if _, err := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) { v.NextPosition = point }); err != nil {
		c.log.Warnf("vehicle %s: %v", c.name, err)
	}
}

func captureFault(err error, vehicle string) {
	monitoring.CaptureException(err, map[string]string{"vehicle": vehicle, "component": "vehicle-controller"})
}
