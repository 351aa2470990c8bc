package model

// PointType describes how vehicles may use a point.
type PointType string

const (
	PointHalt   PointType = "halt"
	PointReport PointType = "report"
	PointPark   PointType = "park"
)

// Point is a node of the driving course.
type Point struct {
	Name string    `json:"name"`
	Type PointType `json:"type"`
}

// IsHaltingPosition reports whether vehicles may stop at the point.
// Report points are passed without stopping.
func (p Point) IsHaltingPosition() bool { return p.Type != PointReport }

// IsParkingPosition reports whether vehicles may park at the point.
func (p Point) IsParkingPosition() bool { return p.Type == PointPark }

// Resource returns the scheduler resource for the point.
func (p Point) Resource() Resource { return Resource{Kind: KindPoint, Name: p.Name} }

// Path is a directed edge between two points. Vehicles travel it forward from
// Source to Destination when MaxVelocity is positive and backward when
// MaxReverseVelocity is positive.
type Path struct {
	Name                 string                `json:"name"`
	Source               string                `json:"source"`
	Destination          string                `json:"destination"`
	Length               int64                 `json:"length"`
	MaxVelocity          int                   `json:"max_velocity"`
	MaxReverseVelocity   int                   `json:"max_reverse_velocity"`
	Locked               bool                  `json:"locked"`
	PeripheralOperations []PeripheralOperation `json:"peripheral_operations,omitempty"`
}

// Resource returns the scheduler resource for the path.
func (p Path) Resource() Resource {
	return Resource{Kind: KindPath, Name: p.Name, Length: p.Length}
}

// NavigableForward reports whether vehicles may travel the path from source to destination.
func (p Path) NavigableForward() bool { return p.MaxVelocity > 0 }

// NavigableReverse reports whether vehicles may travel the path from destination to source.
func (p Path) NavigableReverse() bool { return p.MaxReverseVelocity > 0 }

// Location is a station linked to one or more points, e.g. a transfer station,
// a charger or a peripheral device such as a door or a lift.
type Location struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	LinkedPoints      []string `json:"linked_points"`
	AllowedOperations []string `json:"allowed_operations,omitempty"`
	PeripheralDevice  bool     `json:"peripheral_device,omitempty"`
}

// AllowsOperation reports whether the operation may be executed at the location.
func (l Location) AllowsOperation(op string) bool {
	for _, o := range l.AllowedOperations {
		if o == op {
			return true
		}
	}
	return false
}

// Resource returns the scheduler resource for the location.
func (l Location) Resource() Resource { return Resource{Kind: KindLocation, Name: l.Name} }
