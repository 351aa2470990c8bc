package resources

import (
	"testing"

	"github.com/kilianp07/agvfleet/core/model"
)

func set(point, path string, length int64) model.ResourceSet {
	rs := []model.Resource{{Kind: model.KindPoint, Name: point}}
	if path != "" {
		rs = append(rs, model.Resource{Kind: model.KindPath, Name: path, Length: length})
	}
	return model.NewResourceSet(rs...)
}

func history() []model.ResourceSet {
	return []model.ResourceSet{
		set("p1", "", 0),
		set("p2", "p1-p2", 1000),
		set("p3", "p2-p3", 1000),
		set("p4", "p3-p4", 1000),
	}
}

func TestSplit(t *testing.T) {
	passed, ahead := Split(history(), "p2")
	if len(passed) != 2 || len(ahead) != 2 {
		t.Fatalf("expected 2/2 got %d/%d", len(passed), len(ahead))
	}
	if !passed[1].ContainsPoint("p2") || !ahead[0].ContainsPoint("p3") {
		t.Fatalf("split at wrong position: %v | %v", passed, ahead)
	}

	// back and forth over p1-p2: the revisit of p1 counts
	revisit := []model.ResourceSet{set("p1", "", 0), set("p2", "p1-p2", 1000), set("p1", "p1-p2", 1000)}
	passed, ahead = Split(revisit, "p1")
	if len(passed) != 3 || len(ahead) != 0 {
		t.Fatalf("expected split at the revisit, got %d/%d", len(passed), len(ahead))
	}
	if got := FreeableResourceSetCount(passed, 1000); got != 2 {
		t.Fatalf("expected 2 freeable sets after the revisit, got %d", got)
	}

	passed, ahead = Split(history(), "unknown")
	if len(passed) != 0 || len(ahead) != 4 {
		t.Fatalf("expected nothing passed for unknown point")
	}
}

func TestFreeableResourceSetCount(t *testing.T) {
	cases := []struct {
		length int64
		want   int
	}{
		{0, 3},
		{500, 3},
		{1000, 3},
		{1001, 2},
		{2000, 2},
		{2500, 1},
		{10000, 0},
	}
	for _, c := range cases {
		if got := FreeableResourceSetCount(history(), c.length); got != c.want {
			t.Fatalf("length %d: expected %d got %d", c.length, c.want, got)
		}
	}
}

func TestFreeableResourceSetCountMonotonic(t *testing.T) {
	prev := FreeableResourceSetCount(history(), 0)
	for length := int64(0); length <= 5000; length += 50 {
		got := FreeableResourceSetCount(history(), length)
		if got > prev {
			t.Fatalf("freeable count grew from %d to %d at length %d", prev, got, length)
		}
		prev = got
	}
}

func TestFreeableResourceSetCountEmpty(t *testing.T) {
	if got := FreeableResourceSetCount(nil, 1000); got != 0 {
		t.Fatalf("expected 0 got %d", got)
	}
}
