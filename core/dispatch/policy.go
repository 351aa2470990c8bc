package dispatch

import "github.com/kilianp07/agvfleet/core/model"

// MustAssign reports whether the drive order has to be handed to the
// vehicle's controller. A drive order that ends where the vehicle already
// stands and carries no operation (or a plain move) has no physical effect
// and is skipped unless assignRedundant is set. A nil drive order must
// always be assigned.
func MustAssign(do *model.DriveOrder, v model.Vehicle, assignRedundant bool) bool {
	if do == nil || assignRedundant {
		return true
	}
	dest := do.Destination.Target
	if do.Route != nil && len(do.Route.Steps) > 0 {
		dest = do.Route.FinalDestinationPoint().Name
	}
	if dest != v.CurrentPosition {
		return true
	}
	op := do.Destination.Operation
	return !model.IsNoOperation(op) && op != model.OpMove
}
