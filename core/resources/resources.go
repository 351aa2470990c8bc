// Package resources provides helpers for reasoning about the ordered resource
// sets a vehicle has allocated along its route.
package resources

import "github.com/kilianp07/agvfleet/core/model"

// Split divides sets at the most recent set containing point. Passed holds
// every set up to and including that one, ahead holds the rest. If no set
// contains the point, passed is empty and ahead holds all sets.
func Split(sets []model.ResourceSet, point string) (passed, ahead []model.ResourceSet) {
	for i := len(sets) - 1; i >= 0; i-- {
		if sets[i].ContainsPoint(point) {
			return append([]model.ResourceSet(nil), sets[:i+1]...),
				append([]model.ResourceSet(nil), sets[i+1:]...)
		}
	}
	return nil, append([]model.ResourceSet(nil), sets...)
}

// FreeableResourceSetCount returns how many of the oldest passed sets can be
// released while the vehicle still covers its physical length with the most
// recent ones. Walking backwards from the newest set, sets are kept until
// their path lengths add up to the vehicle length; every older set is
// freeable. Lengths below 1 count as 1 so the newest set is always kept.
func FreeableResourceSetCount(passed []model.ResourceSet, vehicleLength int64) int {
	remaining := vehicleLength
	if remaining < 1 {
		remaining = 1
	}
	freeable := 0
	for i := len(passed) - 1; i >= 0; i-- {
		if remaining > 0 {
			remaining -= passed[i].PathLength()
			continue
		}
		freeable++
	}
	return freeable
}
