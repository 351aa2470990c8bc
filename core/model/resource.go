package model

import (
	"sort"
	"strings"
)

// ResourceKind distinguishes the kinds of plant elements a vehicle can occupy.
type ResourceKind int

const (
	KindPoint ResourceKind = iota + 1
	KindPath
	KindLocation
)

func (k ResourceKind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindPath:
		return "path"
	case KindLocation:
		return "location"
	default:
		return "unknown"
	}
}

// Resource identifies a point, path or location of the plant. Length is only
// meaningful for paths.
type Resource struct {
	Kind   ResourceKind `json:"kind"`
	Name   string       `json:"name"`
	Length int64        `json:"length,omitempty"`
}

func (r Resource) String() string { return r.Kind.String() + ":" + r.Name }

// ResourceSet is an unordered collection of resources needed to occupy one
// route step. Sets built with NewResourceSet are sorted and free of duplicates
// so that two sets holding the same resources compare equal.
type ResourceSet []Resource

// NewResourceSet normalises the given resources into a ResourceSet.
func NewResourceSet(rs ...Resource) ResourceSet {
	set := make(ResourceSet, 0, len(rs))
	seen := make(map[Resource]struct{}, len(rs))
	for _, r := range rs {
		if r.Name == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		set = append(set, r)
	}
	sort.Slice(set, func(i, j int) bool {
		if set[i].Kind != set[j].Kind {
			return set[i].Kind < set[j].Kind
		}
		return set[i].Name < set[j].Name
	})
	return set
}

// Equal reports whether both sets contain the same resources.
func (s ResourceSet) Equal(o ResourceSet) bool {
	a, b := NewResourceSet(s...), NewResourceSet(o...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Contains reports whether the set holds a resource of the given kind and name.
func (s ResourceSet) Contains(kind ResourceKind, name string) bool {
	for _, r := range s {
		if r.Kind == kind && r.Name == name {
			return true
		}
	}
	return false
}

// ContainsPoint is shorthand for Contains(KindPoint, name).
func (s ResourceSet) ContainsPoint(name string) bool { return s.Contains(KindPoint, name) }

// PathLength sums the length of all paths in the set.
func (s ResourceSet) PathLength() int64 {
	var total int64
	for _, r := range s {
		if r.Kind == KindPath {
			total += r.Length
		}
	}
	return total
}

// Names returns the resource names in set order.
func (s ResourceSet) Names() []string {
	names := make([]string, 0, len(s))
	for _, r := range s {
		names = append(names, r.Name)
	}
	return names
}

func (s ResourceSet) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range NewResourceSet(s...) {
		parts = append(parts, r.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ResourceNames flattens a list of resource sets into their names, one slice
// per set. It is used to expose claims and allocations on the vehicle model.
func ResourceNames(sets []ResourceSet) [][]string {
	out := make([][]string, 0, len(sets))
	for _, s := range sets {
		out = append(out, s.Names())
	}
	return out
}
