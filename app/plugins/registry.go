package plugins

import (
	"fmt"

	"github.com/kilianp07/agvfleet/config"
	dispatchlog "github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/metrics/usage"
	coremqtt "github.com/kilianp07/agvfleet/core/mqtt"
	"github.com/kilianp07/agvfleet/core/vehicle"
)

// LogStoreFactory builds a decision log store from raw config.
type LogStoreFactory func(conf map[string]any) (dispatchlog.LogStore, error)

// UsageStoreFactory builds the store of per-vehicle usage records.
type UsageStoreFactory func(cfg config.UsageConfig) (usage.Store, error)

// AdapterEnv carries the shared resources adapters may use.
type AdapterEnv struct {
	// MQTT is the broker connection shared by all MQTT adapters.
	MQTT coremqtt.Client
}

// AdapterFactory builds the communication adapter of one vehicle.
type AdapterFactory func(v config.VehicleConfig, cfg config.AdapterConfig, env AdapterEnv) (vehicle.CommAdapter, error)

var (
	LogStores   = map[string]LogStoreFactory{}
	UsageStores = map[string]UsageStoreFactory{}
	Adapters    = map[string]AdapterFactory{}
)

func RegisterLogStore(name string, f LogStoreFactory)     { LogStores[name] = f }
func RegisterUsageStore(name string, f UsageStoreFactory) { UsageStores[name] = f }
func RegisterAdapter(name string, f AdapterFactory)       { Adapters[name] = f }

// NewLogStore builds the log store registered for backend.
func NewLogStore(backend string, conf map[string]any) (dispatchlog.LogStore, error) {
	f, ok := LogStores[backend]
	if !ok {
		return nil, fmt.Errorf("unknown log store %s", backend)
	}
	return f(conf)
}

// NewUsageStore builds the usage store registered for cfg.Backend.
func NewUsageStore(cfg config.UsageConfig) (usage.Store, error) {
	f, ok := UsageStores[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown usage store %s", cfg.Backend)
	}
	return f(cfg)
}

// NewAdapter builds the adapter registered for cfg.Type.
func NewAdapter(v config.VehicleConfig, cfg config.AdapterConfig, env AdapterEnv) (vehicle.CommAdapter, error) {
	f, ok := Adapters[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown adapter %s", cfg.Type)
	}
	return f(v, cfg, env)
}
