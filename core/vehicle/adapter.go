package vehicle

import "github.com/kilianp07/agvfleet/core/model"

// CommAdapter is the transport to one physical or simulated vehicle.
//
// Implementations must never invoke the report function from within one of
// their own methods; reports are delivered on the adapter's goroutines.
type CommAdapter interface {
	// Enable starts communication. Reports from the vehicle are passed to report.
	Enable(report func(Report)) error
	Disable()
	// CanAcceptNextCommand reports whether the adapter's queue has room.
	CanAcceptNextCommand() bool
	// EnqueueCommand queues cmd for execution. It returns false if the
	// command was not accepted.
	EnqueueCommand(cmd model.MovementCommand) bool
	ClearCommandQueue()
	// CanProcess checks whether the vehicle is able to process the order's
	// operations. The reason explains a negative answer.
	CanProcess(order model.TransportOrder) (bool, string)
}

// Report is a message from a vehicle. The set of reports is closed.
type Report interface {
	isReport()
}

// CommandExecutedReport confirms that a command was executed.
type CommandExecutedReport struct {
	Command model.MovementCommand
}

// CommandFailedReport signals that the vehicle could not execute a command.
type CommandFailedReport struct {
	Command model.MovementCommand
	Reason  string
}

// PositionReport carries the point the vehicle is at. An empty point means
// the position is unknown.
type PositionReport struct {
	Point string
}

// EnergyLevelReport carries the battery level in percent.
type EnergyLevelReport struct {
	Level int
}

// StateReport carries the vehicle's physical state.
type StateReport struct {
	State model.VehicleState
}

func (CommandExecutedReport) isReport() {}
func (CommandFailedReport) isReport()   {}
func (PositionReport) isReport()        {}
func (EnergyLevelReport) isReport()     {}
func (StateReport) isReport()           {}
