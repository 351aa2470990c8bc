package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/agvfleet/config"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/infra/loopback"
)

type PathDef struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Length int64  `yaml:"length"`
	OneWay bool   `yaml:"one_way,omitempty"`
}

type LocationDef struct {
	Name       string   `yaml:"name"`
	Points     []string `yaml:"points"`
	Operations []string `yaml:"operations"`
}

type VehicleDef struct {
	Name           string   `yaml:"name"`
	Position       string   `yaml:"position"`
	Energy         int      `yaml:"energy,omitempty"`
	Operations     []string `yaml:"operations,omitempty"`
	FailOperations []string `yaml:"fail_operations,omitempty"`
}

func (v VehicleDef) ToConfig() config.VehicleConfig {
	return config.VehicleConfig{
		Name:        v.Name,
		Position:    v.Position,
		EnergyLevel: v.Energy,
		Operations:  v.Operations,
		Loopback: &loopback.Config{
			StepMS:         1,
			OperationMS:    1,
			FailOperations: v.FailOperations,
		},
	}
}

type DestinationDef struct {
	Target    string `yaml:"target"`
	Operation string `yaml:"operation,omitempty"`
}

type OrderDef struct {
	Name         string           `yaml:"name"`
	Vehicle      string           `yaml:"vehicle,omitempty"`
	Destinations []DestinationDef `yaml:"destinations"`
}

func (o OrderDef) ToModel() model.TransportOrder {
	dests := make([]model.Destination, len(o.Destinations))
	for i, d := range o.Destinations {
		dests[i] = model.Destination{Target: d.Target, Operation: d.Operation}
	}
	order := model.NewTransportOrder(o.Name, dests...)
	order.IntendedVehicle = o.Vehicle
	return order
}

type Expected struct {
	Finished   int `yaml:"finished"`
	Failed     int `yaml:"failed"`
	Unroutable int `yaml:"unroutable"`
	// ProcessedBy maps order names to the vehicle that must process them.
	ProcessedBy map[string]string `yaml:"processed_by,omitempty"`
}

type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Points      []string      `yaml:"points"`
	ParkPoints  []string      `yaml:"park_points,omitempty"`
	Paths       []PathDef     `yaml:"paths"`
	Locations   []LocationDef `yaml:"locations,omitempty"`
	Vehicles    []VehicleDef  `yaml:"vehicles"`
	Orders      []OrderDef    `yaml:"orders"`
	Expected    Expected      `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario has no name", path)
	}
	return &sc, nil
}

// Config builds a loopback fleet configuration for the scenario. Paths are
// two-way unless marked one_way.
func (sc *Scenario) Config(logPath string) (*config.Config, error) {
	cfg := &config.Config{
		LogLevel: "warn",
		Adapter:  config.AdapterConfig{Type: config.AdapterLoopback},
		Logging:  config.LoggingConfig{Backend: "jsonl", Path: logPath},
		HTTP:     config.HTTPConfig{Disabled: true},
	}
	for _, p := range sc.Points {
		cfg.Plant.Points = append(cfg.Plant.Points, model.Point{Name: p, Type: model.PointHalt})
	}
	for _, p := range sc.ParkPoints {
		cfg.Plant.Points = append(cfg.Plant.Points, model.Point{Name: p, Type: model.PointPark})
	}
	for _, p := range sc.Paths {
		cfg.Plant.Paths = append(cfg.Plant.Paths, pathModel(p.From, p.To, p.Length))
		if !p.OneWay {
			cfg.Plant.Paths = append(cfg.Plant.Paths, pathModel(p.To, p.From, p.Length))
		}
	}
	for _, l := range sc.Locations {
		cfg.Plant.Locations = append(cfg.Plant.Locations, model.Location{
			Name: l.Name, Type: "station", LinkedPoints: l.Points, AllowedOperations: l.Operations,
		})
	}
	for _, v := range sc.Vehicles {
		cfg.Vehicles = append(cfg.Vehicles, v.ToConfig())
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	return cfg, nil
}

func pathModel(from, to string, length int64) model.Path {
	if length <= 0 {
		length = 1000
	}
	return model.Path{
		Name: from + "-" + to, Source: from, Destination: to,
		Length: length, MaxVelocity: 1, MaxReverseVelocity: 1,
	}
}
