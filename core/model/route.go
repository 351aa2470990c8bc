package model

import "fmt"

// Orientation is the direction in which a vehicle travels a path.
type Orientation string

const (
	OrientationForward   Orientation = "forward"
	OrientationBackward  Orientation = "backward"
	OrientationUndefined Orientation = "undefined"
)

// Step is one edge of a route. A step without a path keeps the vehicle on its
// source point, which is how a route to the vehicle's own position looks.
type Step struct {
	Path             *Path       `json:"path,omitempty"`
	Source           Point       `json:"source"`
	Destination      Point       `json:"destination"`
	Orientation      Orientation `json:"orientation"`
	RouteIndex       int         `json:"route_index"`
	ExecutionAllowed bool        `json:"execution_allowed"`
}

// Resources returns the resources a vehicle needs to occupy the step: its
// destination point and, if any, the path leading to it.
func (s Step) Resources() []Resource {
	rs := []Resource{s.Destination.Resource()}
	if s.Path != nil {
		rs = append(rs, s.Path.Resource())
	}
	return rs
}

// SameMovement reports whether two steps describe the same movement,
// ignoring the execution flag.
func (s Step) SameMovement(o Step) bool {
	if s.Source.Name != o.Source.Name || s.Destination.Name != o.Destination.Name {
		return false
	}
	if (s.Path == nil) != (o.Path == nil) {
		return false
	}
	if s.Path != nil && s.Path.Name != o.Path.Name {
		return false
	}
	return s.RouteIndex == o.RouteIndex && s.Orientation == o.Orientation
}

func (s Step) String() string {
	if s.Path == nil {
		return fmt.Sprintf("%d:%s", s.RouteIndex, s.Destination.Name)
	}
	return fmt.Sprintf("%d:%s-(%s)->%s", s.RouteIndex, s.Source.Name, s.Path.Name, s.Destination.Name)
}

// Route is an ordered sequence of connected steps.
type Route struct {
	Steps []Step `json:"steps"`
	Costs int64  `json:"costs"`
}

// Validate checks that the route is non-empty and its steps connect.
func (r Route) Validate() error {
	if len(r.Steps) == 0 {
		return fmt.Errorf("route has no steps")
	}
	for i := 0; i+1 < len(r.Steps); i++ {
		if r.Steps[i].Destination.Name != r.Steps[i+1].Source.Name {
			return fmt.Errorf("step %d ends at %s but step %d starts at %s",
				i, r.Steps[i].Destination.Name, i+1, r.Steps[i+1].Source.Name)
		}
	}
	return nil
}

// SourcePoint returns the point the route starts at.
func (r Route) SourcePoint() Point {
	if len(r.Steps) == 0 {
		return Point{}
	}
	return r.Steps[0].Source
}

// FinalDestinationPoint returns the point the route ends at.
func (r Route) FinalDestinationPoint() Point {
	if len(r.Steps) == 0 {
		return Point{}
	}
	return r.Steps[len(r.Steps)-1].Destination
}

// Clone returns a deep copy of the route so that callers can change step
// flags without affecting the original.
func (r Route) Clone() Route {
	steps := make([]Step, len(r.Steps))
	for i, s := range r.Steps {
		if s.Path != nil {
			p := *s.Path
			s.Path = &p
		}
		steps[i] = s
	}
	return Route{Steps: steps, Costs: r.Costs}
}

// Renumber assigns route indices 0..n-1 in step order.
func (r *Route) Renumber() {
	for i := range r.Steps {
		r.Steps[i].RouteIndex = i
	}
}
