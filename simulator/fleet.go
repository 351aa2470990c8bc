package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kilianp07/agvfleet/infra/loopback"
	"github.com/kilianp07/agvfleet/simulator/sim"
)

// FleetConfig holds parameters for bulk fleet generation.
type FleetConfig struct {
	Size        int
	TopicPrefix string
	StartPoints []string
	Loopback    loopback.Config
}

// VehicleTemplate overrides the generated settings of one vehicle.
type VehicleTemplate struct {
	Start          string   `json:"start"`
	Energy         int      `json:"energy"`
	FailOperations []string `json:"fail_operations"`
}

// GenerateFleet creates Size vehicles named veh0001..vehNNNN. Start points
// are assigned round-robin unless a template names one.
func GenerateFleet(cfg FleetConfig, tmpl map[string]VehicleTemplate) []sim.Vehicle {
	if cfg.Size <= 0 || len(cfg.StartPoints) == 0 {
		return nil
	}
	vs := make([]sim.Vehicle, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		name := fmt.Sprintf("veh%04d", i+1)
		lc := cfg.Loopback
		lc.Operations = append([]string(nil), cfg.Loopback.Operations...)
		lc.FailOperations = append([]string(nil), cfg.Loopback.FailOperations...)
		start := cfg.StartPoints[i%len(cfg.StartPoints)]
		if t, ok := tmpl[name]; ok {
			if t.Start != "" {
				start = t.Start
			}
			if t.Energy > 0 {
				lc.InitialEnergy = t.Energy
			}
			if len(t.FailOperations) > 0 {
				lc.FailOperations = t.FailOperations
			}
		}
		vs[i] = sim.Vehicle{
			Name:        name,
			Start:       start,
			TopicPrefix: cfg.TopicPrefix,
			Loopback:    lc,
		}
	}
	return vs
}

// LoadTemplates reads per-vehicle overrides keyed by vehicle name.
func LoadTemplates(data []byte) (map[string]VehicleTemplate, error) {
	var m map[string]VehicleTemplate
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	for name, t := range m {
		if t.Energy < 0 || t.Energy > 100 {
			return nil, fmt.Errorf("templates: %s: energy must be within 0..100", name)
		}
	}
	return m, nil
}

func readTemplateFile(path string) (map[string]VehicleTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadTemplates(data)
}
