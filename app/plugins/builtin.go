package plugins

import (
	"fmt"

	"github.com/kilianp07/agvfleet/config"
	dispatchlog "github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/factory"
	"github.com/kilianp07/agvfleet/core/metrics/usage"
	"github.com/kilianp07/agvfleet/core/vehicle"
	"github.com/kilianp07/agvfleet/infra/kpi"
	"github.com/kilianp07/agvfleet/infra/loopback"
	"github.com/kilianp07/agvfleet/infra/mqtt"
)

func init() {
	RegisterLogStore(config.LogBackendJSONL, func(conf map[string]any) (dispatchlog.LogStore, error) {
		var lc config.LoggingConfig
		if err := factory.Decode(conf, &lc); err != nil {
			return nil, err
		}
		if lc.MaxSizeMB > 0 {
			return dispatchlog.NewRotatingJSONLStore(lc.Path, lc.MaxSizeMB, lc.MaxBackups, lc.MaxAgeDays)
		}
		return dispatchlog.NewJSONLStore(lc.Path)
	})
	RegisterLogStore(config.LogBackendSQLite, func(conf map[string]any) (dispatchlog.LogStore, error) {
		var lc config.LoggingConfig
		if err := factory.Decode(conf, &lc); err != nil {
			return nil, err
		}
		return dispatchlog.NewSQLiteStore(lc.Path)
	})
	RegisterLogStore(config.LogBackendNop, func(map[string]any) (dispatchlog.LogStore, error) {
		return dispatchlog.NopStore{}, nil
	})

	RegisterUsageStore(config.UsageMemory, func(config.UsageConfig) (usage.Store, error) {
		return usage.NewMemoryStore(), nil
	})
	RegisterUsageStore(config.UsageSQLite, func(cfg config.UsageConfig) (usage.Store, error) {
		return kpi.NewSQLiteStore(cfg.Path)
	})

	RegisterAdapter(config.AdapterLoopback, func(v config.VehicleConfig, cfg config.AdapterConfig, _ AdapterEnv) (vehicle.CommAdapter, error) {
		lc := cfg.Loopback
		if v.Loopback != nil {
			lc = *v.Loopback
			lc.SetDefaults()
		}
		if len(v.Operations) > 0 {
			lc.Operations = v.Operations
		}
		if v.EnergyLevel > 0 {
			lc.InitialEnergy = v.EnergyLevel
		}
		if err := lc.Validate(); err != nil {
			return nil, fmt.Errorf("vehicle %s: %w", v.Name, err)
		}
		return loopback.NewAdapter(v.Name, v.Position, lc), nil
	})
	RegisterAdapter(config.AdapterMQTT, func(v config.VehicleConfig, cfg config.AdapterConfig, env AdapterEnv) (vehicle.CommAdapter, error) {
		if env.MQTT == nil {
			return nil, fmt.Errorf("vehicle %s: mqtt adapter needs a broker connection", v.Name)
		}
		ac := cfg.MQTT
		if len(v.Operations) > 0 {
			ac.Operations = v.Operations
		}
		return mqtt.NewVehicleAdapter(v.Name, env.MQTT, ac), nil
	})
}
