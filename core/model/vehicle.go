package model

import "fmt"

// ProcState describes what a vehicle does with respect to transport orders.
type ProcState string

const (
	ProcIdle            ProcState = "idle"
	ProcAwaitingOrder   ProcState = "awaiting-order"
	ProcProcessingOrder ProcState = "processing-order"
)

// VehicleState is the physical state reported by the vehicle's driver.
type VehicleState string

const (
	StateUnknown     VehicleState = "unknown"
	StateUnavailable VehicleState = "unavailable"
	StateError       VehicleState = "error"
	StateIdle        VehicleState = "idle"
	StateExecuting   VehicleState = "executing"
	StateCharging    VehicleState = "charging"
)

// IntegrationLevel determines how far the fleet manager trusts and uses a vehicle.
type IntegrationLevel string

const (
	// LevelIgnored vehicles are not tracked at all.
	LevelIgnored IntegrationLevel = "ignored"
	// LevelNoticed vehicles have their position displayed but occupy nothing.
	LevelNoticed IntegrationLevel = "noticed"
	// LevelRespected vehicles occupy the resources at their position.
	LevelRespected IntegrationLevel = "respected"
	// LevelUtilized vehicles may also be assigned transport orders.
	LevelUtilized IntegrationLevel = "utilized"
)

// AllocatesResources reports whether the vehicle's position is backed by
// allocated resources at this level.
func (l IntegrationLevel) AllocatesResources() bool {
	return l == LevelRespected || l == LevelUtilized
}

// EnergyThresholds are percentages of a full battery.
type EnergyThresholds struct {
	Critical     int `json:"critical"`
	Good         int `json:"good"`
	Sufficiently int `json:"sufficiently_recharged"`
	Fully        int `json:"fully_recharged"`
}

// DefaultEnergyThresholds is applied to vehicles that do not configure their own.
var DefaultEnergyThresholds = EnergyThresholds{Critical: 30, Good: 90, Sufficiently: 30, Fully: 90}

// Vehicle is the object-model view of one fleet vehicle.
type Vehicle struct {
	Name               string            `json:"name"`
	Length             int64             `json:"length"`
	EnergyLevel        int               `json:"energy_level"`
	EnergyThresholds   EnergyThresholds  `json:"energy_thresholds"`
	State              VehicleState      `json:"state"`
	ProcState          ProcState         `json:"proc_state"`
	IntegrationLevel   IntegrationLevel  `json:"integration_level"`
	CurrentPosition    string            `json:"current_position,omitempty"`
	NextPosition       string            `json:"next_position,omitempty"`
	TransportOrder     string            `json:"transport_order,omitempty"`
	OrderSequence      string            `json:"order_sequence,omitempty"`
	AllowedOrderTypes  []string          `json:"allowed_order_types,omitempty"`
	Paused             bool              `json:"paused"`
	RechargeOperation  string            `json:"recharge_operation"`
	ClaimedResources   [][]string        `json:"claimed_resources,omitempty"`
	AllocatedResources [][]string        `json:"allocated_resources,omitempty"`
	Properties         map[string]string `json:"properties,omitempty"`
}

// Validate checks that the vehicle configuration is sound.
func (v Vehicle) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("vehicle name must not be empty")
	}
	if v.Length < 0 {
		return fmt.Errorf("vehicle %s: length must not be negative", v.Name)
	}
	t := v.EnergyThresholds
	if t.Critical < 0 || t.Critical > t.Good || t.Good > 100 {
		return fmt.Errorf("vehicle %s: energy thresholds must satisfy 0 <= critical <= good <= 100", v.Name)
	}
	if t.Sufficiently > t.Fully || t.Fully > 100 {
		return fmt.Errorf("vehicle %s: sufficiently recharged must not exceed fully recharged", v.Name)
	}
	return nil
}

// IsEnergyLevelCritical reports whether the vehicle must recharge before doing anything else.
func (v Vehicle) IsEnergyLevelCritical() bool { return v.EnergyLevel <= v.EnergyThresholds.Critical }

// IsEnergyLevelDegraded reports whether the vehicle should recharge when idle.
func (v Vehicle) IsEnergyLevelDegraded() bool { return v.EnergyLevel <= v.EnergyThresholds.Good }

// IsEnergyLevelSufficientlyRecharged reports whether a charging vehicle may take orders.
func (v Vehicle) IsEnergyLevelSufficientlyRecharged() bool {
	return v.EnergyLevel >= v.EnergyThresholds.Sufficiently
}

// IsEnergyLevelFullyRecharged reports whether a charging vehicle may stop charging.
func (v Vehicle) IsEnergyLevelFullyRecharged() bool {
	return v.EnergyLevel >= v.EnergyThresholds.Fully
}

// AcceptsOrderType reports whether the vehicle may process orders of type t.
// An empty list or "*" allows every type.
func (v Vehicle) AcceptsOrderType(t string) bool {
	if len(v.AllowedOrderTypes) == 0 {
		return true
	}
	for _, a := range v.AllowedOrderTypes {
		if a == "*" || a == t {
			return true
		}
	}
	return false
}

// IsAvailableForOrders reports whether the dispatcher may assign orders to the vehicle.
func (v Vehicle) IsAvailableForOrders() bool {
	return v.IntegrationLevel == LevelUtilized &&
		!v.Paused &&
		v.CurrentPosition != "" &&
		v.State != StateError &&
		v.State != StateUnavailable &&
		v.State != StateUnknown
}

// Clone returns a copy that shares no slices or maps with v.
func (v Vehicle) Clone() Vehicle {
	v.AllowedOrderTypes = append([]string(nil), v.AllowedOrderTypes...)
	v.ClaimedResources = cloneNames(v.ClaimedResources)
	v.AllocatedResources = cloneNames(v.AllocatedResources)
	if v.Properties != nil {
		props := make(map[string]string, len(v.Properties))
		for k, val := range v.Properties {
			props[k] = val
		}
		v.Properties = props
	}
	return v
}

func cloneNames(in [][]string) [][]string {
	if in == nil {
		return nil
	}
	out := make([][]string, len(in))
	for i, s := range in {
		out[i] = append([]string(nil), s...)
	}
	return out
}
