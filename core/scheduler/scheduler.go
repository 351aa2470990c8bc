package scheduler

import (
	"errors"

	"github.com/kilianp07/agvfleet/core/model"
)

var (
	// ErrResourcesUnavailable is returned by AllocateNow when another client
	// holds one of the requested resources.
	ErrResourcesUnavailable = errors.New("resources allocated by another client")
	// ErrEmptyResourceSet is reported when a client asks for nothing.
	ErrEmptyResourceSet = errors.New("empty resource set")
)

// AllocationResult is delivered to a client once an allocation request is decided.
type AllocationResult struct {
	Resources model.ResourceSet
	Granted   bool
	// Reason explains a failed allocation.
	Reason string
}

// Client is a party allocating resources, typically a vehicle controller.
type Client interface {
	ID() string
	// OnAllocation is called outside of any scheduler lock. Returning false
	// for a granted result refuses the resources; the scheduler frees them.
	OnAllocation(AllocationResult) bool
}

// Scheduler manages exclusive ownership of plant resources.
type Scheduler interface {
	// Claim announces the resource sets the client will allocate, in order.
	// A new claim replaces the previous one.
	Claim(c Client, sets []model.ResourceSet)
	Unclaim(c Client)
	// Allocate requests set asynchronously. The client must not have another
	// request outstanding.
	Allocate(c Client, set model.ResourceSet)
	// AllocateNow allocates set immediately or fails.
	AllocateNow(c Client, set model.ResourceSet) error
	Free(c Client, set model.ResourceSet)
	FreeAll(c Client)
	// ClearPendingAllocations drops the client's outstanding requests.
	ClearPendingAllocations(c Client)
}
