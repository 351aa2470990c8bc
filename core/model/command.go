package model

import "fmt"

// Operations with a built-in meaning. Any other operation string is passed to
// the vehicle unchanged.
const (
	OpNOP    = "NOP"
	OpMove   = "MOVE"
	OpPark   = "PARK"
	OpCharge = "CHARGE"
)

// IsNoOperation reports whether op has no physical effect at the destination.
func IsNoOperation(op string) bool { return op == "" || op == OpNOP }

// MovementCommand is one executable step handed to a vehicle's comm adapter.
// Commands are immutable once created; the controller identifies them by ID.
type MovementCommand struct {
	ID              uint64 `json:"id"`
	TransportOrder  string `json:"transport_order"`
	DriveOrderIndex int    `json:"drive_order_index"`
	Step            Step   `json:"step"`
	// Intermediate holds the report-point steps travelled before Step
	// without stopping. Their resources are allocated together with Step.
	Intermediate             []Step            `json:"intermediate,omitempty"`
	Operation                string            `json:"operation"`
	OpLocation               string            `json:"op_location,omitempty"`
	FinalDestination         Point             `json:"final_destination"`
	FinalDestinationLocation string            `json:"final_destination_location,omitempty"`
	FinalOperation           string            `json:"final_operation"`
	FinalMovement            bool              `json:"final_movement"`
	Properties               map[string]string `json:"properties,omitempty"`
}

// RequiredResources returns the resource set the vehicle must own before the
// command may be sent.
func (c MovementCommand) RequiredResources() ResourceSet {
	var rs []Resource
	for _, s := range c.Intermediate {
		rs = append(rs, s.Resources()...)
	}
	rs = append(rs, c.Step.Resources()...)
	return NewResourceSet(rs...)
}

// ExecutionAllowed is false if any step travelled by the command is blocked.
func (c MovementCommand) ExecutionAllowed() bool {
	for _, s := range c.Intermediate {
		if !s.ExecutionAllowed {
			return false
		}
	}
	return c.Step.ExecutionAllowed
}

// Steps returns the intermediate steps followed by the command's own step.
func (c MovementCommand) Steps() []Step {
	out := make([]Step, 0, len(c.Intermediate)+1)
	out = append(out, c.Intermediate...)
	return append(out, c.Step)
}

// HasEmptyOperation reports whether the command carries no operation.
func (c MovementCommand) HasEmptyOperation() bool { return IsNoOperation(c.Operation) }

func (c MovementCommand) String() string {
	return fmt.Sprintf("cmd#%d{%s, op=%s, final=%t}", c.ID, c.Step, c.Operation, c.FinalMovement)
}
