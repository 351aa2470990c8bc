package vehicle

import "github.com/kilianp07/agvfleet/core/model"

// buildCommands turns the route of the drive order at index into movement
// commands. Steps ending at report points are not commands of their own; they
// are travelled as intermediate steps of the next halting step. The last
// command carries the drive order's operation, all others NOP.
func buildCommands(order model.TransportOrder, index int, nextID func() uint64) []model.MovementCommand {
	if index < 0 || index >= len(order.DriveOrders) {
		return nil
	}
	do := order.DriveOrders[index]
	if do.Route == nil || len(do.Route.Steps) == 0 {
		return nil
	}
	steps := do.Route.Steps
	final := do.Route.FinalDestinationPoint()
	opLocation := ""
	if final.Name != do.Destination.Target {
		opLocation = do.Destination.Target
	}
	props := mergeProperties(order.Properties, do.Destination.Properties)

	var cmds []model.MovementCommand
	var intermediate []model.Step
	for i, s := range steps {
		last := i == len(steps)-1
		if !last && !s.Destination.IsHaltingPosition() {
			intermediate = append(intermediate, s)
			continue
		}
		op := model.OpNOP
		loc := ""
		if last {
			op = do.Destination.Operation
			if op == "" {
				op = model.OpNOP
			}
			loc = opLocation
		}
		cmds = append(cmds, model.MovementCommand{
			ID:                       nextID(),
			TransportOrder:           order.Name,
			DriveOrderIndex:          index,
			Step:                     s,
			Intermediate:             intermediate,
			Operation:                op,
			OpLocation:               loc,
			FinalDestination:         final,
			FinalDestinationLocation: opLocation,
			FinalOperation:           do.Destination.Operation,
			FinalMovement:            last,
			Properties:               props,
		})
		intermediate = nil
	}
	return cmds
}

// claimSequence returns the resource sets of all commands from the drive
// order at index to the end of the order, with cmds standing in for the
// drive order at index.
func claimSequence(order model.TransportOrder, index int, cmds []model.MovementCommand) []model.ResourceSet {
	var sets []model.ResourceSet
	for _, c := range cmds {
		sets = append(sets, c.RequiredResources())
	}
	var scratch uint64
	next := func() uint64 { scratch++; return scratch }
	for i := index + 1; i < len(order.DriveOrders); i++ {
		for _, c := range buildCommands(order, i, next) {
			sets = append(sets, c.RequiredResources())
		}
	}
	return sets
}

func mergeProperties(maps ...map[string]string) map[string]string {
	var out map[string]string
	for _, m := range maps {
		for k, v := range m {
			if out == nil {
				out = map[string]string{}
			}
			out[k] = v
		}
	}
	return out
}
