package dispatch

// Names of the dispatch phases in the order they run.
const (
	PhaseCheckNewOrders          = "check-new-orders"
	PhaseFinishWithdrawals       = "finish-withdrawals"
	PhaseAssignNextDriveOrders   = "assign-next-drive-orders"
	PhaseAssignReservedOrders    = "assign-reserved-orders"
	PhaseAssignSequenceSuccessor = "assign-sequence-successors"
	PhaseAssignFreeOrders        = "assign-free-orders"
	PhaseRechargeIdleVehicles    = "recharge-idle-vehicles"
	PhaseParkIdleVehicles        = "park-idle-vehicles"
)

// Types of the orders the dispatcher creates for idle vehicles.
const (
	OrderTypeCharge = "Charge"
	OrderTypePark   = "Park"
)

// Phase is one step of a dispatch cycle.
type Phase interface {
	Name() string
	Run()
}

// newPhases returns the pipeline in its fixed order.
func newPhases(u *orderUtil, rr *rerouter) []Phase {
	return []Phase{
		checkNewOrders{u},
		finishWithdrawals{u},
		assignNextDriveOrders{u, rr},
		assignReservedOrders{u},
		assignSequenceSuccessors{u},
		assignFreeOrders{u},
		rechargeIdleVehicles{u},
		parkIdleVehicles{u},
	}
}
