package config

import (
	"fmt"

	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/infra/loopback"
)

// VehicleConfig declares one vehicle of the fleet.
type VehicleConfig struct {
	Name              string                 `json:"name"`
	Length            int64                  `json:"length"`
	Position          string                 `json:"position"`
	EnergyLevel       int                    `json:"energy_level"`
	EnergyThresholds  model.EnergyThresholds `json:"energy_thresholds"`
	IntegrationLevel  string                 `json:"integration_level"`
	AllowedOrderTypes []string               `json:"allowed_order_types"`
	RechargeOperation string                 `json:"recharge_operation"`
	// Operations lists the operations the vehicle can perform. Empty allows all.
	Operations []string          `json:"operations"`
	Properties map[string]string `json:"properties"`
	// Loopback overrides the adapter's loopback settings for this vehicle.
	Loopback *loopback.Config `json:"loopback"`
}

// SetDefaults fills unset fields.
func (c *VehicleConfig) SetDefaults() {
	if c.Length == 0 {
		c.Length = 1000
	}
	if c.EnergyLevel == 0 {
		c.EnergyLevel = 100
	}
	if c.EnergyThresholds == (model.EnergyThresholds{}) {
		c.EnergyThresholds = model.DefaultEnergyThresholds
	}
	if c.IntegrationLevel == "" {
		c.IntegrationLevel = string(model.LevelUtilized)
	}
	if c.RechargeOperation == "" {
		c.RechargeOperation = model.OpCharge
	}
}

// Validate checks the vehicle's settings.
func (c VehicleConfig) Validate() error {
	switch model.IntegrationLevel(c.IntegrationLevel) {
	case model.LevelIgnored, model.LevelNoticed, model.LevelRespected, model.LevelUtilized:
	default:
		return fmt.Errorf("vehicle %s: unknown integration_level %q", c.Name, c.IntegrationLevel)
	}
	return c.Model().Validate()
}

// Model returns the vehicle as stored in the object store.
func (c VehicleConfig) Model() model.Vehicle {
	return model.Vehicle{
		Name:              c.Name,
		Length:            c.Length,
		EnergyLevel:       c.EnergyLevel,
		EnergyThresholds:  c.EnergyThresholds,
		State:             model.StateUnknown,
		ProcState:         model.ProcIdle,
		IntegrationLevel:  model.IntegrationLevel(c.IntegrationLevel),
		CurrentPosition:   c.Position,
		AllowedOrderTypes: append([]string(nil), c.AllowedOrderTypes...),
		RechargeOperation: c.RechargeOperation,
		Properties:        c.Properties,
	}
}
