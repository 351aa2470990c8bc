package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/agvfleet/app"
	"github.com/kilianp07/agvfleet/config"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/core/objectstore"
	"github.com/kilianp07/agvfleet/core/router"
	"github.com/kilianp07/agvfleet/infra/logger"
)

var routeCmd = &cobra.Command{
	Use:   "route <source> <destination>...",
	Short: "Compute a route through the configured plant",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)
}

type routeLeg struct {
	From   string   `yaml:"from"`
	To     string   `yaml:"to"`
	Costs  int64    `yaml:"costs"`
	Points []string `yaml:"points"`
	Paths  []string `yaml:"paths,omitempty"`
}

type routePlan struct {
	Legs  []routeLeg `yaml:"legs"`
	Costs int64      `yaml:"costs"`
}

// runRoute routes from the first point through every destination in turn.
// Destinations may name points or locations.
func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store := objectstore.NewMemoryStore(nil)
	if err := app.LoadPlant(store, cfg.Plant); err != nil {
		return fmt.Errorf("load plant: %w", err)
	}
	r := router.NewGraphRouter(store, logger.New("route-command"))

	var plan routePlan
	src := args[0]
	for _, dst := range args[1:] {
		rt, ok := r.RouteTo(model.Vehicle{}, src, dst)
		if !ok {
			return fmt.Errorf("no route from %s to %s", src, dst)
		}
		leg := routeLeg{From: src, To: dst, Costs: rt.Costs, Points: []string{src}}
		for _, st := range rt.Steps {
			if st.Path == nil {
				continue
			}
			leg.Points = append(leg.Points, st.Destination.Name)
			leg.Paths = append(leg.Paths, st.Path.Name)
		}
		plan.Legs = append(plan.Legs, leg)
		plan.Costs += rt.Costs
		src = rt.FinalDestinationPoint().Name
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(plan)
}
