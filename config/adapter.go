package config

import (
	"fmt"

	"github.com/kilianp07/agvfleet/infra/loopback"
	"github.com/kilianp07/agvfleet/infra/mqtt"
)

// Adapter types.
const (
	AdapterLoopback = "loopback"
	AdapterMQTT     = "mqtt"
)

// AdapterConfig selects how the fleet talks to its vehicles.
type AdapterConfig struct {
	Type     string             `json:"type"`
	Loopback loopback.Config    `json:"loopback"`
	MQTT     mqtt.AdapterConfig `json:"mqtt"`
	// SimulatePeripherals runs simulated peripheral devices that process
	// every peripheral job.
	SimulatePeripherals bool                       `json:"simulate_peripherals"`
	Peripherals         loopback.PeripheralsConfig `json:"peripherals"`
}

// SetDefaults fills unset fields.
func (c *AdapterConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = AdapterLoopback
	}
	c.Loopback.SetDefaults()
}

// Validate checks the adapter type and its settings.
func (c AdapterConfig) Validate() error {
	switch c.Type {
	case AdapterLoopback:
		return c.Loopback.Validate()
	case AdapterMQTT:
		return nil
	default:
		return fmt.Errorf("adapter: unknown type %q", c.Type)
	}
}
