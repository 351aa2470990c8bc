package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agvfleet/config"
	"github.com/kilianp07/agvfleet/core/model"
)

var fleetAPI string

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List vehicles",
	Long: "Without --api the vehicles of the configuration file are listed. " +
		"With --api the live state is read from a running fleet manager.",
	RunE: runFleetLs,
}

func init() {
	fleetLsCmd.Flags().StringVar(&fleetAPI, "api", "", "base URL of a running fleet manager, e.g. http://localhost:8080")
	fleetCmd.AddCommand(fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}

func runFleetLs(cmd *cobra.Command, args []string) error {
	if fleetAPI != "" {
		vs, err := fetchVehicles(cmd.Context(), fleetAPI)
		if err != nil {
			return err
		}
		return printLiveFleet(cmd.OutOrStdout(), vs)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPOSITION\tENERGY\tINTEGRATION\tADAPTER")
	for _, v := range cfg.Vehicles {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", v.Name, v.Position, v.EnergyLevel, v.IntegrationLevel, cfg.Adapter.Type)
	}
	return w.Flush()
}

func fetchVehicles(ctx context.Context, base string) ([]model.Vehicle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/vehicles/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch vehicles: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch vehicles: %s", resp.Status)
	}
	var vs []model.Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&vs); err != nil {
		return nil, fmt.Errorf("decode vehicles: %w", err)
	}
	return vs, nil
}

func printLiveFleet(out io.Writer, vs []model.Vehicle) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tPROC\tPOSITION\tENERGY\tORDER")
	for _, v := range vs {
		order := v.TransportOrder
		if order == "" {
			order = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", v.Name, v.State, v.ProcState, v.CurrentPosition, v.EnergyLevel, order)
	}
	return w.Flush()
}
