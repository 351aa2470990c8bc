package dispatch

import "fmt"

// Assignment strategies compare candidates by the cost of their whole route
// or of the first drive order only.
const (
	StrategyCheapestCompleteRoute = "cheapest_complete_route"
	StrategyNearestFirst          = "nearest_first"
)

// Strategies applied when a reroute finds no route because of locked paths.
const (
	IgnorePathLocks = "ignore_path_locks"
	PauseAtPathLock = "pause_at_path_lock"
)

// Config defines dispatch-related settings.
type Config struct {
	AssignmentStrategy              string `json:"assignment_strategy"`
	AssignRedundantOrders           bool   `json:"assign_redundant_orders"`
	DismissUnroutableOrders         bool   `json:"dismiss_unroutable_orders"`
	RerouteOnTopologyChanges        bool   `json:"reroute_on_topology_changes"`
	RerouteOnDriveOrderFinished     bool   `json:"reroute_on_drive_order_finished"`
	ReroutingImpossibleStrategy     string `json:"rerouting_impossible_strategy"`
	RechargeIdleVehicles            bool   `json:"recharge_idle_vehicles"`
	KeepRechargingUntilFullyCharged bool   `json:"keep_recharging_until_fully_charged"`
	ParkIdleVehicles                bool   `json:"park_idle_vehicles"`
	RecheckIntervalSeconds          int    `json:"recheck_interval_seconds"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.AssignmentStrategy == "" {
		c.AssignmentStrategy = StrategyCheapestCompleteRoute
	}
	if c.ReroutingImpossibleStrategy == "" {
		c.ReroutingImpossibleStrategy = IgnorePathLocks
	}
	if c.RecheckIntervalSeconds == 0 {
		c.RecheckIntervalSeconds = 10
	}
}

// Validate checks the configured strategies.
func (c Config) Validate() error {
	switch c.AssignmentStrategy {
	case StrategyCheapestCompleteRoute, StrategyNearestFirst:
	default:
		return fmt.Errorf("dispatch: unknown assignment_strategy %q", c.AssignmentStrategy)
	}
	switch c.ReroutingImpossibleStrategy {
	case IgnorePathLocks, PauseAtPathLock:
	default:
		return fmt.Errorf("dispatch: unknown rerouting_impossible_strategy %q", c.ReroutingImpossibleStrategy)
	}
	if c.RecheckIntervalSeconds < 0 {
		return fmt.Errorf("dispatch: recheck_interval_seconds must not be negative")
	}
	return nil
}
