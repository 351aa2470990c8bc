// Package scheduler defines the resource scheduler contract used by vehicle
// controllers and provides an in-memory implementation.
//
// A client first claims the ordered list of resource sets it will need,
// then allocates them one set at a time. Allocation is asynchronous: the
// result is delivered to Client.OnAllocation once the set is free. A client
// may refuse a granted set, in which case the scheduler frees it again.
package scheduler
