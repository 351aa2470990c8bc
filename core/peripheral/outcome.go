// Package peripheral tracks the peripheral device jobs (doors, lifts, ...)
// that have to complete before or after a vehicle moves along a path.
package peripheral

import "github.com/kilianp07/agvfleet/core/model"

// OutcomeKind is the state of a continuation.
type OutcomeKind int

const (
	Pending OutcomeKind = iota
	Succeeded
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome tells the caller how to continue after starting an interaction or
// feeding it a job update.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func pending() Outcome { return Outcome{Kind: Pending} }

func succeeded() Outcome { return Outcome{Kind: Succeeded} }

func failed(reason string) Outcome { return Outcome{Kind: Failed, Reason: reason} }

// Done reports whether the outcome is final.
func (o Outcome) Done() bool { return o.Kind != Pending }

// Phase distinguishes interactions before and after a movement.
type Phase int

const (
	PreMovement Phase = iota
	PostMovement
)

func (p Phase) String() string {
	if p == PostMovement {
		return "post-movement"
	}
	return "pre-movement"
}

// Continuation is a finished interaction handed back to the owner of the
// command it belongs to.
type Continuation struct {
	Command model.MovementCommand
	Phase   Phase
	Outcome Outcome
}

// JobService creates peripheral jobs.
type JobService interface {
	CreatePeripheralJob(token, vehicle, order string, op model.PeripheralOperation) (model.PeripheralJob, error)
}
