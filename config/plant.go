package config

import (
	"fmt"

	"github.com/kilianp07/agvfleet/core/model"
)

// PlantConfig declares the driving course.
type PlantConfig struct {
	Points    []model.Point    `json:"points"`
	Paths     []model.Path     `json:"paths"`
	Locations []model.Location `json:"locations"`
}

// HasPoint reports whether a point with the given name is declared.
func (c PlantConfig) HasPoint(name string) bool {
	for _, p := range c.Points {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Validate checks names and references of the plant elements.
func (c PlantConfig) Validate() error {
	points := make(map[string]bool, len(c.Points))
	for _, p := range c.Points {
		if p.Name == "" {
			return fmt.Errorf("plant: point without name")
		}
		if points[p.Name] {
			return fmt.Errorf("plant: duplicate point %s", p.Name)
		}
		switch p.Type {
		case "", model.PointHalt, model.PointReport, model.PointPark:
		default:
			return fmt.Errorf("plant: point %s: unknown type %q", p.Name, p.Type)
		}
		points[p.Name] = true
	}
	paths := make(map[string]bool, len(c.Paths))
	for _, p := range c.Paths {
		if p.Name == "" {
			return fmt.Errorf("plant: path without name")
		}
		if paths[p.Name] {
			return fmt.Errorf("plant: duplicate path %s", p.Name)
		}
		if !points[p.Source] || !points[p.Destination] {
			return fmt.Errorf("plant: path %s connects unknown points", p.Name)
		}
		if p.Length <= 0 {
			return fmt.Errorf("plant: path %s: length must be positive", p.Name)
		}
		paths[p.Name] = true
	}
	for _, l := range c.Locations {
		if l.Name == "" {
			return fmt.Errorf("plant: location without name")
		}
		for _, lp := range l.LinkedPoints {
			if !points[lp] {
				return fmt.Errorf("plant: location %s linked to unknown point %s", l.Name, lp)
			}
		}
	}
	return nil
}
