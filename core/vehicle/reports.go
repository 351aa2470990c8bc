package vehicle

import (
	"fmt"

	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/peripheral"
	"github.com/kilianp07/agvfleet/core/resources"
)

// HandleReport dispatches a report from the comm adapter.
func (c *Controller) HandleReport(r Report) {
	switch rep := r.(type) {
	case CommandExecutedReport:
		c.CommandExecuted(rep.Command)
	case CommandFailedReport:
		c.CommandFailed(rep.Command, rep.Reason)
	case PositionReport:
		c.PositionReported(rep.Point)
	case EnergyLevelReport:
		c.EnergyLevelReported(rep.Level)
	case StateReport:
		c.StateReported(rep.State)
	default:
		panic(fmt.Sprintf("vehicle: unhandled report type %T", r))
	}
}

// CommandExecuted processes the adapter's confirmation of cmd. Resources
// behind the vehicle are freed, keeping enough of them to cover the vehicle's
// length.
func (c *Controller) CommandExecuted(cmd model.MovementCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.takeSent(cmd) {
		return
	}
	commandsExecuted.Inc()
	executed := cmd
	c.lastExecuted = &executed
	c.freePassedResources(cmd.Step.Destination.Name)
	if len(c.commandsSent) > 0 {
		c.setNextPosition(c.commandsSent[0].Step.Destination.Name)
	} else {
		c.setNextPosition("")
	}

	out := c.interactor.StartPostMovement(cmd)
	if out.Kind == peripheral.Failed {
		c.requestWithdrawal(out.Reason)
	}
	c.allocateForNextCommand()
	c.checkForPendingCommands()
}

// CommandFailed processes a command the vehicle could not execute. The order
// is withdrawn once commands in flight are done.
func (c *Controller) CommandFailed(cmd model.MovementCommand, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.takeSent(cmd) {
		return
	}
	c.log.Errorf("vehicle %s: %s failed: %s", c.name, cmd, reason)
	c.futureCommands = nil
	c.cancelPendingAllocation()
	c.requestWithdrawal(fmt.Sprintf("command failed: %s", reason))
	c.checkForPendingCommands()
}

// takeSent removes cmd from the sent queue. A command that is not at the head
// is logged and everything sent before it is dropped as well, since the
// vehicle evidently got past those.
func (c *Controller) takeSent(cmd model.MovementCommand) bool {
	if len(c.commandsSent) == 0 {
		commandMismatches.Inc()
		c.log.Warnf("vehicle %s: %s reported but no command was sent", c.name, cmd)
		return false
	}
	idx := -1
	for i, s := range c.commandsSent {
		if s.ID == cmd.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		commandMismatches.Inc()
		c.log.Warnf("vehicle %s: %s reported but expected %s", c.name, cmd, c.commandsSent[0])
		return false
	}
	if idx > 0 {
		commandMismatches.Inc()
		c.log.Warnf("vehicle %s: %s reported before %s", c.name, cmd, c.commandsSent[0])
	}
	c.commandsSent = c.commandsSent[idx+1:]
	return true
}

// freePassedResources releases the oldest allocated sets the vehicle no
// longer covers, in allocation order. Sets of commands still in flight or
// awaiting interactions are ahead of the vehicle whatever they contain.
func (c *Controller) freePassedResources(point string) {
	reached := len(c.allocatedResources) - len(c.commandsSent) - len(c.awaitingInteraction)
	if reached < 0 {
		reached = 0
	}
	passed, _ := resources.Split(c.allocatedResources[:reached], point)
	v, _ := c.store.Vehicle(c.name)
	n := resources.FreeableResourceSetCount(passed, v.Length)
	if n == 0 {
		return
	}
	for _, set := range c.allocatedResources[:n] {
		c.sched.Free(c, set)
	}
	c.allocatedResources = append([]model.ResourceSet(nil), c.allocatedResources[n:]...)
	c.publishResources()
}

// PositionReported processes a position report according to the vehicle's
// integration level.
func (c *Controller) PositionReported(point string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store.Vehicle(c.name)
	if !ok {
		return
	}
	if point != "" {
		if _, ok := c.store.Point(point); !ok {
			c.log.Warnf("vehicle %s: reported unknown point %s", c.name, point)
			return
		}
	}
	switch v.IntegrationLevel {
	case model.LevelIgnored:
		return
	case model.LevelNoticed:
		c.setPosition(point)
		return
	}

	switch {
	case point == "":
		if !c.hasDriveOrder && len(c.commandsSent) == 0 {
			c.sched.FreeAll(c)
			c.allocatedResources = nil
			c.publishResources()
		}
	case !c.hasDriveOrder && len(c.commandsSent) == 0:
		// Idle vehicle moved or was placed: occupy the new position only.
		c.acquirePosition(point)
	case len(c.commandsSent) == 0:
		if !c.holds(point) {
			c.log.Warnf("vehicle %s: reported %s without a command in flight", c.name, point)
		}
	default:
		if !c.holds(point) {
			c.log.Warnf("vehicle %s: reported %s outside its allocated resources", c.name, point)
		}
	}
	c.setPosition(point)
}

// EnergyLevelReported stores the battery level.
func (c *Controller) EnergyLevelReported(level int) {
	if _, err := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) { v.EnergyLevel = level }); err != nil {
		c.log.Warnf("vehicle %s: %v", c.name, err)
	}
}

// StateReported stores the vehicle's physical state. A faulted controller
// keeps the vehicle in error.
func (c *Controller) StateReported(state model.VehicleState) {
	c.mu.Lock()
	faulted := c.faulted
	c.mu.Unlock()
	if faulted {
		state = model.StateError
	}
	if _, err := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) { v.State = state }); err != nil {
		c.log.Warnf("vehicle %s: %v", c.name, err)
	}
}

// SetIntegrationLevel changes how far the vehicle is integrated. Rising to
// respected or utilized occupies the vehicle's position; dropping below
// releases everything. A vehicle processing an order cannot drop below
// utilized.
func (c *Controller) SetIntegrationLevel(level model.IntegrationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store.Vehicle(c.name)
	if !ok {
		return fmt.Errorf("vehicle %s: unknown", c.name)
	}
	if c.hasDriveOrder && level != model.LevelUtilized {
		return fmt.Errorf("vehicle %s: %w", c.name, ErrDriveOrderActive)
	}
	if _, err := c.store.UpdateVehicle(c.name, func(v *model.Vehicle) {
		v.IntegrationLevel = level
		if level == model.LevelIgnored {
			v.CurrentPosition = ""
			v.NextPosition = ""
		}
	}); err != nil {
		return err
	}
	switch {
	case level.AllocatesResources() && !v.IntegrationLevel.AllocatesResources():
		if v.CurrentPosition != "" {
			c.acquirePosition(v.CurrentPosition)
		}
	case !level.AllocatesResources():
		c.sched.FreeAll(c)
		c.allocatedResources = nil
		c.publishResources()
	}
	return nil
}

// HandlePeripheralJobUpdate feeds a peripheral job change into the vehicle's
// interactions and continues whatever they were blocking.
func (c *Controller) HandlePeripheralJobUpdate(job model.PeripheralJob) {
	if job.RelatedVehicle != "" && job.RelatedVehicle != c.name {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cont := range c.interactor.HandleJobUpdate(job) {
		switch cont.Phase {
		case peripheral.PreMovement:
			c.onPreMovement(cont.Command, cont.Outcome)
		case peripheral.PostMovement:
			if cont.Outcome.Kind == peripheral.Failed {
				c.requestWithdrawal(cont.Outcome.Reason)
			}
			c.allocateForNextCommand()
			c.checkForPendingCommands()
		}
	}
}

func (c *Controller) holds(point string) bool {
	for _, s := range c.allocatedResources {
		if s.ContainsPoint(point) {
			return true
		}
	}
	return false
}
