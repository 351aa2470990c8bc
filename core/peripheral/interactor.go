package peripheral

import (
	"sort"

	"github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/model"
)

// Interactor manages the interactions of one vehicle. It is owned by the
// vehicle's controller and must only be used under the controller's lock.
type Interactor struct {
	vehicle string
	jobs    JobService
	log     logger.Logger

	pre  map[uint64]*Interaction
	post map[uint64]*Interaction
}

// NewInteractor creates an interactor for vehicle.
func NewInteractor(vehicle string, jobs JobService, log logger.Logger) *Interactor {
	log = logger.OrNop(log)
	return &Interactor{
		vehicle: vehicle,
		jobs:    jobs,
		log:     log,
		pre:     map[uint64]*Interaction{},
		post:    map[uint64]*Interaction{},
	}
}

// Prepare creates the interactions for the peripheral operations attached to
// the paths the command travels. token is the owning order's reservation
// token.
func (it *Interactor) Prepare(cmd model.MovementCommand, token string) {
	var preOps, postOps []model.PeripheralOperation
	for _, s := range cmd.Steps() {
		if s.Path == nil {
			continue
		}
		for _, op := range s.Path.PeripheralOperations {
			switch op.Trigger {
			case model.TriggerAfterMovement:
				postOps = append(postOps, op)
			default:
				preOps = append(preOps, op)
			}
		}
	}
	if len(preOps) > 0 {
		it.pre[cmd.ID] = NewInteraction(it.vehicle, token, cmd, preOps)
	}
	if len(postOps) > 0 {
		it.post[cmd.ID] = NewInteraction(it.vehicle, token, cmd, postOps)
	}
}

// StartPreMovement starts the pre-movement interaction of cmd. Commands
// without one succeed immediately.
func (it *Interactor) StartPreMovement(cmd model.MovementCommand) Outcome {
	return it.start(it.pre, cmd, PreMovement)
}

// StartPostMovement starts the post-movement interaction of cmd.
func (it *Interactor) StartPostMovement(cmd model.MovementCommand) Outcome {
	return it.start(it.post, cmd, PostMovement)
}

func (it *Interactor) start(m map[uint64]*Interaction, cmd model.MovementCommand, phase Phase) Outcome {
	in, ok := m[cmd.ID]
	if !ok {
		return succeeded()
	}
	out := in.Start(it.jobs)
	it.log.Debugf("peripheral: %s %s interaction for %s: %s", it.vehicle, phase, cmd, out.Kind)
	if out.Done() {
		delete(m, cmd.ID)
	}
	return out
}

// Waiting reports whether the controller has to hold back the next command:
// a pre-movement interaction has not finished yet, or a started interaction
// still waits for required jobs.
func (it *Interactor) Waiting() bool {
	if len(it.pre) > 0 {
		return true
	}
	for _, in := range it.post {
		if in.State() == StateStarted {
			return true
		}
	}
	return false
}

// HasPostMovementInteractions reports whether any post-movement interaction
// is prepared or running.
func (it *Interactor) HasPostMovementInteractions() bool { return len(it.post) > 0 }

// HandleJobUpdate feeds a job state change into the interactions that
// created the job and returns those that completed.
func (it *Interactor) HandleJobUpdate(job model.PeripheralJob) []Continuation {
	if !job.State.IsFinal() {
		return nil
	}
	var out []Continuation
	for _, phase := range []Phase{PreMovement, PostMovement} {
		m := it.pre
		if phase == PostMovement {
			m = it.post
		}
		for _, id := range sortedIDs(m) {
			in := m[id]
			if !in.RelatesTo(job.Name) {
				continue
			}
			var o Outcome
			if job.State == model.JobFinished {
				o = in.JobFinished(job.Name)
			} else {
				o = in.JobFailed(job.Name)
			}
			if o.Done() {
				delete(m, id)
				out = append(out, Continuation{Command: in.Command(), Phase: phase, Outcome: o})
			}
		}
	}
	return out
}

// Clear drops all interactions. It returns the commands whose pre-movement
// interactions had not finished, in command order; their resources were
// allocated but the commands were never sent.
func (it *Interactor) Clear() []model.MovementCommand {
	var blocked []model.MovementCommand
	for _, id := range sortedIDs(it.pre) {
		blocked = append(blocked, it.pre[id].Command())
	}
	it.pre = map[uint64]*Interaction{}
	it.post = map[uint64]*Interaction{}
	return blocked
}

func sortedIDs(m map[uint64]*Interaction) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
