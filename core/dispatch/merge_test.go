package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvfleet/core/model"
)

func lineRoute(points ...string) model.Route {
	var r model.Route
	for i := 0; i+1 < len(points); i++ {
		p := model.Path{Name: points[i] + "-" + points[i+1], Source: points[i], Destination: points[i+1], Length: 1000}
		r.Steps = append(r.Steps, model.Step{
			Path:             &p,
			Source:           model.Point{Name: points[i]},
			Destination:      model.Point{Name: points[i+1]},
			Orientation:      model.OrientationForward,
			RouteIndex:       i,
			ExecutionAllowed: true,
		})
	}
	r.Costs = int64(len(r.Steps)) * 1000
	return r
}

func fixedCosts(c int64) func(string, string) int64 {
	return func(string, string) int64 { return c }
}

func TestMergeRoutes_SplicesAtBranchPoint(t *testing.T) {
	original := lineRoute("p1", "p2", "p3", "p4", "p5")
	detour := lineRoute("p2", "p7", "p4", "p5")

	merged, err := MergeRoutes(original, detour, 1, fixedCosts(4000))
	require.NoError(t, err)
	require.NoError(t, merged.Validate())
	var names []string
	for i, s := range merged.Steps {
		assert.Equal(t, i, s.RouteIndex)
		names = append(names, s.Path.Name)
	}
	assert.Equal(t, []string{"p1-p2", "p2-p7", "p7-p4", "p4-p5"}, names)
	assert.EqualValues(t, 4000, merged.Costs)
	assert.Equal(t, 1, original.Steps[1].RouteIndex, "inputs are not modified")
	assert.Equal(t, "p2-p3", original.Steps[1].Path.Name)
}

func TestMergeRoutes_Idempotent(t *testing.T) {
	original := lineRoute("p1", "p2", "p3", "p4")
	for branch := 0; branch < len(original.Steps); branch++ {
		tail := model.Route{Steps: original.Clone().Steps[branch:]}
		tail.Renumber()
		merged, err := MergeRoutes(original, tail, branch, fixedCosts(original.Costs))
		require.NoError(t, err)
		assert.Equal(t, original, merged, "branch %d", branch)
	}
}

func TestMergeRoutes_SearchStartsAtCommittedStep(t *testing.T) {
	// p2 is visited twice; the search must not branch before searchFrom.
	original := lineRoute("p1", "p2", "p3", "p2", "p4")
	recomputed := lineRoute("p2", "p5")
	merged, err := MergeRoutes(original, recomputed, 2, fixedCosts(0))
	require.NoError(t, err)
	require.Len(t, merged.Steps, 4)
	assert.Equal(t, "p3-p2", merged.Steps[2].Path.Name)
	assert.Equal(t, "p2-p5", merged.Steps[3].Path.Name)
}

func TestMergeRoutes_BranchPointNotFound(t *testing.T) {
	original := lineRoute("p1", "p2", "p3")
	_, err := MergeRoutes(original, lineRoute("p9", "p3"), 0, fixedCosts(0))
	assert.ErrorIs(t, err, ErrBranchPointNotFound)
	_, err = MergeRoutes(original, lineRoute("p1", "p3"), 1, fixedCosts(0))
	assert.ErrorIs(t, err, ErrBranchPointNotFound, "p1 lies before the search start")
	_, err = MergeRoutes(original, model.Route{}, 0, fixedCosts(0))
	assert.ErrorIs(t, err, ErrBranchPointNotFound)
}
