package metrics

import "github.com/kilianp07/agvfleet/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PromAddr is the listen address of the /metrics endpoint. Empty disables it.
	PromAddr string `json:"prom_addr"`
}
