package peripheral

import (
	"fmt"

	"github.com/kilianp07/agvfleet/core/model"
)

// State of an interaction.
type State int

const (
	StatePristine State = iota
	StateStarted
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "pristine"
	}
}

// Interaction is the set of peripheral operations tied to one movement command.
type Interaction struct {
	command    model.MovementCommand
	operations []model.PeripheralOperation
	vehicle    string
	token      string

	state State
	// jobs holds every job created on Start, required the ones still outstanding.
	jobs     []string
	required map[string]struct{}
	reason   string
}

// NewInteraction creates a pristine interaction. Jobs are created under token.
func NewInteraction(vehicle, token string, cmd model.MovementCommand, ops []model.PeripheralOperation) *Interaction {
	return &Interaction{
		command:    cmd,
		operations: append([]model.PeripheralOperation(nil), ops...),
		vehicle:    vehicle,
		token:      token,
		required:   map[string]struct{}{},
	}
}

func (i *Interaction) State() State { return i.state }

func (i *Interaction) Command() model.MovementCommand { return i.command }

func (i *Interaction) Operations() []model.PeripheralOperation { return i.operations }

// Jobs returns the names of the jobs created for the interaction.
func (i *Interaction) Jobs() []string { return append([]string(nil), i.jobs...) }

// RequiresCompletion reports whether any operation must finish before the
// interaction does.
func (i *Interaction) RequiresCompletion() bool {
	for _, op := range i.operations {
		if op.CompletionRequired {
			return true
		}
	}
	return false
}

// Start creates one job per operation. Without operations requiring
// completion the interaction finishes immediately.
func (i *Interaction) Start(jobs JobService) Outcome {
	if i.state != StatePristine {
		return i.outcome()
	}
	for _, op := range i.operations {
		job, err := jobs.CreatePeripheralJob(i.token, i.vehicle, i.command.TransportOrder, op)
		if err != nil {
			i.state = StateFailed
			i.reason = fmt.Sprintf("creating job for %s at %s: %v", op.Operation, op.Location, err)
			return i.outcome()
		}
		i.jobs = append(i.jobs, job.Name)
		if op.CompletionRequired {
			i.required[job.Name] = struct{}{}
		}
	}
	if len(i.required) == 0 {
		i.state = StateFinished
	} else {
		i.state = StateStarted
	}
	return i.outcome()
}

// JobFinished marks a job as done. The last outstanding required job
// finishes the interaction.
func (i *Interaction) JobFinished(job string) Outcome {
	if i.state != StateStarted {
		return i.outcome()
	}
	if _, ok := i.required[job]; !ok {
		return i.outcome()
	}
	delete(i.required, job)
	if len(i.required) == 0 {
		i.state = StateFinished
	}
	return i.outcome()
}

// JobFailed fails the interaction if job is one of its outstanding required jobs.
func (i *Interaction) JobFailed(job string) Outcome {
	if i.state != StateStarted {
		return i.outcome()
	}
	if _, ok := i.required[job]; !ok {
		return i.outcome()
	}
	i.state = StateFailed
	i.reason = fmt.Sprintf("peripheral job %s failed", job)
	return i.outcome()
}

// RelatesTo reports whether job was created by this interaction.
func (i *Interaction) RelatesTo(job string) bool {
	for _, j := range i.jobs {
		if j == job {
			return true
		}
	}
	return false
}

func (i *Interaction) outcome() Outcome {
	switch i.state {
	case StateFinished:
		return succeeded()
	case StateFailed:
		return failed(i.reason)
	default:
		return pending()
	}
}
