package peripheral

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvfleet/core/model"
)

type fakeJobs struct {
	n       int
	created []model.PeripheralJob
	err     error
}

func (f *fakeJobs) CreatePeripheralJob(token, vehicle, order string, op model.PeripheralOperation) (model.PeripheralJob, error) {
	if f.err != nil {
		return model.PeripheralJob{}, f.err
	}
	f.n++
	j := model.PeripheralJob{
		Name:                  fmt.Sprintf("job-%d", f.n),
		ReservationToken:      token,
		RelatedVehicle:        vehicle,
		RelatedTransportOrder: order,
		Operation:             op,
		State:                 model.JobToBeProcessed,
	}
	f.created = append(f.created, j)
	return j, nil
}

func op(name string, trigger model.PeripheralTrigger, required bool) model.PeripheralOperation {
	return model.PeripheralOperation{Location: "door", Operation: name, Trigger: trigger, CompletionRequired: required}
}

func command(id uint64, ops ...model.PeripheralOperation) model.MovementCommand {
	return model.MovementCommand{
		ID:             id,
		TransportOrder: "o1",
		Step: model.Step{
			Path:        &model.Path{Name: "a-b", Source: "a", Destination: "b", PeripheralOperations: ops},
			Source:      model.Point{Name: "a"},
			Destination: model.Point{Name: "b"},
		},
	}
}

func TestInteractionRequiredAndOptional(t *testing.T) {
	jobs := &fakeJobs{}
	in := NewInteraction("v1", "tok", command(1), []model.PeripheralOperation{
		op("open", model.TriggerAfterAllocation, true),
		op("light", model.TriggerAfterAllocation, false),
	})
	out := in.Start(jobs)
	require.Equal(t, Pending, out.Kind)
	require.Len(t, jobs.created, 2, "one job per operation")
	assert.Equal(t, "tok", jobs.created[0].ReservationToken)

	optional := jobs.created[1].Name
	required := jobs.created[0].Name
	assert.Equal(t, Pending, in.JobFailed(optional).Kind, "optional failure is ignored")
	assert.Equal(t, Succeeded, in.JobFinished(required).Kind)
	assert.Equal(t, StateFinished, in.State())
}

func TestInteractionRequiredFailure(t *testing.T) {
	jobs := &fakeJobs{}
	in := NewInteraction("v1", "tok", command(1), []model.PeripheralOperation{
		op("open", model.TriggerAfterAllocation, true),
		op("light", model.TriggerAfterAllocation, false),
	})
	in.Start(jobs)
	// the optional job finishing changes nothing
	assert.Equal(t, Pending, in.JobFinished(jobs.created[1].Name).Kind)
	out := in.JobFailed(jobs.created[0].Name)
	assert.Equal(t, Failed, out.Kind)
	assert.NotEmpty(t, out.Reason)
	assert.Equal(t, Failed, in.JobFinished(jobs.created[0].Name).Kind, "failed is final")
}

func TestInteractionWithoutRequiredOperationsFinishesOnStart(t *testing.T) {
	in := NewInteraction("v1", "tok", command(1), []model.PeripheralOperation{op("light", model.TriggerAfterAllocation, false)})
	assert.Equal(t, Succeeded, in.Start(&fakeJobs{}).Kind)
}

func TestInteractionJobCreationFailure(t *testing.T) {
	in := NewInteraction("v1", "tok", command(1), []model.PeripheralOperation{op("open", model.TriggerAfterAllocation, true)})
	out := in.Start(&fakeJobs{err: errors.New("device offline")})
	assert.Equal(t, Failed, out.Kind)
}

func TestInteractorPartitionsByTrigger(t *testing.T) {
	jobs := &fakeJobs{}
	it := NewInteractor("v1", jobs, nil)
	cmd := command(7, op("open", model.TriggerAfterAllocation, true), op("close", model.TriggerAfterMovement, true))
	it.Prepare(cmd, "tok")
	assert.True(t, it.Waiting(), "prepared pre-movement interaction blocks")
	assert.True(t, it.HasPostMovementInteractions())

	require.Equal(t, Pending, it.StartPreMovement(cmd).Kind)
	conts := it.HandleJobUpdate(model.PeripheralJob{Name: jobs.created[0].Name, State: model.JobFinished})
	require.Len(t, conts, 1)
	assert.Equal(t, PreMovement, conts[0].Phase)
	assert.Equal(t, Succeeded, conts[0].Outcome.Kind)
	assert.Equal(t, uint64(7), conts[0].Command.ID)
	assert.False(t, it.Waiting(), "unstarted post-movement interaction does not block")

	require.Equal(t, Pending, it.StartPostMovement(cmd).Kind)
	assert.True(t, it.Waiting())
	conts = it.HandleJobUpdate(model.PeripheralJob{Name: jobs.created[1].Name, State: model.JobFailed})
	require.Len(t, conts, 1)
	assert.Equal(t, Failed, conts[0].Outcome.Kind)
	assert.False(t, it.HasPostMovementInteractions())
}

func TestInteractorCommandWithoutOperations(t *testing.T) {
	it := NewInteractor("v1", &fakeJobs{}, nil)
	cmd := command(1)
	it.Prepare(cmd, "tok")
	assert.False(t, it.Waiting())
	assert.Equal(t, Succeeded, it.StartPreMovement(cmd).Kind)
	assert.Equal(t, Succeeded, it.StartPostMovement(cmd).Kind)
}

func TestInteractorIgnoresNonFinalUpdates(t *testing.T) {
	jobs := &fakeJobs{}
	it := NewInteractor("v1", jobs, nil)
	cmd := command(1, op("open", model.TriggerAfterAllocation, true))
	it.Prepare(cmd, "tok")
	it.StartPreMovement(cmd)
	assert.Empty(t, it.HandleJobUpdate(model.PeripheralJob{Name: jobs.created[0].Name, State: model.JobBeingProcessed}))
	assert.True(t, it.Waiting())
}

func TestInteractorClearReturnsBlockedCommands(t *testing.T) {
	jobs := &fakeJobs{}
	it := NewInteractor("v1", jobs, nil)
	c2 := command(2, op("open", model.TriggerAfterAllocation, true))
	c1 := command(1, op("open", model.TriggerAfterAllocation, true))
	it.Prepare(c2, "tok")
	it.Prepare(c1, "tok")
	it.StartPreMovement(c1)
	blocked := it.Clear()
	require.Len(t, blocked, 2)
	assert.Equal(t, uint64(1), blocked[0].ID)
	assert.False(t, it.Waiting())
}
