package model

// PeripheralTrigger states when a peripheral operation is executed relative
// to the movement along its path.
type PeripheralTrigger string

const (
	TriggerAfterAllocation PeripheralTrigger = "after-allocation"
	TriggerAfterMovement   PeripheralTrigger = "after-movement"
)

// PeripheralOperation is an operation a peripheral device at Location has to
// perform when a vehicle travels the path it is attached to.
type PeripheralOperation struct {
	Location           string            `json:"location"`
	Operation          string            `json:"operation"`
	Trigger            PeripheralTrigger `json:"trigger"`
	CompletionRequired bool              `json:"completion_required"`
}

// PeripheralJobState is the lifecycle state of a peripheral job.
type PeripheralJobState string

const (
	JobToBeProcessed  PeripheralJobState = "to-be-processed"
	JobBeingProcessed PeripheralJobState = "being-processed"
	JobFinished       PeripheralJobState = "finished"
	JobFailed         PeripheralJobState = "failed"
)

// IsFinal reports whether the job reached a terminal state.
func (s PeripheralJobState) IsFinal() bool { return s == JobFinished || s == JobFailed }

// PeripheralJob is a request for a peripheral device to perform one operation.
type PeripheralJob struct {
	Name                  string              `json:"name"`
	ReservationToken      string              `json:"reservation_token"`
	RelatedVehicle        string              `json:"related_vehicle,omitempty"`
	RelatedTransportOrder string              `json:"related_transport_order,omitempty"`
	Operation             PeripheralOperation `json:"operation"`
	State                 PeripheralJobState  `json:"state"`
}
