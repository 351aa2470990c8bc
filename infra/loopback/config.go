package loopback

import (
	"fmt"
	"time"

	"github.com/kilianp07/agvfleet/core/model"
)

// Config defines how a virtual vehicle behaves.
type Config struct {
	// StepMS is the time needed to travel one step.
	StepMS int `json:"step_ms"`
	// OperationMS is the time needed for an operation at a destination.
	OperationMS int `json:"operation_ms"`
	// EnergyPerStep is the energy in percent consumed per travelled step.
	EnergyPerStep float64 `json:"energy_per_step"`
	// ChargePerTick is the energy in percent gained per step duration while charging.
	ChargePerTick float64 `json:"charge_per_tick"`
	// InitialEnergy is the energy level in percent the vehicle starts with.
	InitialEnergy   int      `json:"initial_energy"`
	QueueCapacity   int      `json:"queue_capacity"`
	ChargeOperation string   `json:"charge_operation"`
	Operations      []string `json:"operations"`
	// FailOperations lists operations the vehicle reports as failed.
	FailOperations []string `json:"fail_operations"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.StepMS == 0 {
		c.StepMS = 500
	}
	if c.OperationMS == 0 {
		c.OperationMS = 1000
	}
	if c.EnergyPerStep == 0 {
		c.EnergyPerStep = 0.5
	}
	if c.ChargePerTick == 0 {
		c.ChargePerTick = 5
	}
	if c.InitialEnergy == 0 {
		c.InitialEnergy = 100
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 2
	}
	if c.ChargeOperation == "" {
		c.ChargeOperation = model.OpCharge
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.StepMS < 0 || c.OperationMS < 0 {
		return fmt.Errorf("loopback: durations must not be negative")
	}
	if c.InitialEnergy < 0 || c.InitialEnergy > 100 {
		return fmt.Errorf("loopback: initial_energy must be within 0..100")
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("loopback: queue_capacity must not be negative")
	}
	return nil
}

func (c Config) step() time.Duration      { return time.Duration(c.StepMS) * time.Millisecond }
func (c Config) operation() time.Duration { return time.Duration(c.OperationMS) * time.Millisecond }
