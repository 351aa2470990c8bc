package loopback

import (
	"fmt"

	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/vehicle"
)

// Adapter is a vehicle.CommAdapter driving an in-process virtual vehicle.
type Adapter struct {
	sim *Sim
}

var _ vehicle.CommAdapter = (*Adapter)(nil)

// NewAdapter creates an adapter for a virtual vehicle standing at position.
func NewAdapter(name, position string, cfg Config) *Adapter {
	return &Adapter{sim: NewSim(name, position, cfg)}
}

// Sim exposes the virtual vehicle.
func (a *Adapter) Sim() *Sim { return a.sim }

func (a *Adapter) Enable(report func(vehicle.Report)) error {
	a.sim.Start(report)
	return nil
}

func (a *Adapter) Disable() { a.sim.Stop() }

func (a *Adapter) CanAcceptNextCommand() bool { return a.sim.CanAccept() }

func (a *Adapter) EnqueueCommand(cmd model.MovementCommand) bool { return a.sim.Enqueue(cmd) }

func (a *Adapter) ClearCommandQueue() { a.sim.Clear() }

// CanProcess rejects orders with operations the virtual vehicle does not know.
func (a *Adapter) CanProcess(order model.TransportOrder) (bool, string) {
	for _, d := range order.DriveOrders {
		if !a.sim.Supports(d.Destination.Operation) {
			return false, fmt.Sprintf("operation %s not supported", d.Destination.Operation)
		}
	}
	return true, ""
}
