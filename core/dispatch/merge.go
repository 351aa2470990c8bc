package dispatch

import (
	"errors"
	"fmt"

	"github.com/kilianp07/agvfleet/core/model"
)

// ErrBranchPointNotFound means the recomputed route does not start at any
// point of the original route the vehicle has not committed to yet.
var ErrBranchPointNotFound = errors.New("branch point not found in original route")

// MergeRoutes replaces the part of original that starts where recomputed
// starts. The branch point is the first step at or after searchFrom whose
// source is the source of recomputed; the steps before it are kept. The
// merged steps are renumbered from 0 and its costs are computed by costs
// between the merged route's end points.
func MergeRoutes(original, recomputed model.Route, searchFrom int, costs func(src, dst string) int64) (model.Route, error) {
	if len(recomputed.Steps) == 0 {
		return model.Route{}, fmt.Errorf("empty recomputed route: %w", ErrBranchPointNotFound)
	}
	if searchFrom < 0 {
		searchFrom = 0
	}
	src := recomputed.Steps[0].Source.Name
	branch := -1
	for i := searchFrom; i < len(original.Steps); i++ {
		if original.Steps[i].Source.Name == src {
			branch = i
			break
		}
	}
	if branch < 0 {
		return model.Route{}, fmt.Errorf("point %s at or after step %d: %w", src, searchFrom, ErrBranchPointNotFound)
	}

	prefix := original.Clone().Steps[:branch]
	merged := model.Route{Steps: append(prefix, recomputed.Clone().Steps...)}
	merged.Renumber()
	merged.Costs = costs(merged.SourcePoint().Name, merged.FinalDestinationPoint().Name)
	return merged, nil
}
