package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	coremetrics "github.com/kilianp07/agvfleet/core/metrics"
	coremqtt "github.com/kilianp07/agvfleet/core/mqtt"
	"github.com/kilianp07/agvfleet/infra/logger"
	"github.com/kilianp07/agvfleet/infra/loopback"
	"github.com/kilianp07/agvfleet/infra/metrics"
	inframqtt "github.com/kilianp07/agvfleet/infra/mqtt"
	"github.com/kilianp07/agvfleet/simulator/sim"
)

func main() {
	log := logger.New("simulator")
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Errorf("invalid config: %v", err)
		os.Exit(1)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink coremetrics.MetricsSink = coremetrics.NopSink{}
	if cfg.InfluxURL != "" {
		sink = metrics.NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	}
	if c, ok := sink.(interface{ Close() }); ok {
		defer c.Close()
	}

	var tmpl map[string]VehicleTemplate
	if cfg.TemplateFile != "" {
		var err error
		if tmpl, err = readTemplateFile(cfg.TemplateFile); err != nil {
			log.Errorf("template file: %v", err)
			os.Exit(1)
		}
	}

	vehicles := GenerateFleet(FleetConfig{
		Size:        cfg.Count,
		TopicPrefix: cfg.TopicPrefix,
		StartPoints: cfg.StartPoints,
		Loopback: loopback.Config{
			StepMS:         cfg.StepMS,
			OperationMS:    cfg.OperationMS,
			EnergyPerStep:  cfg.EnergyPerStep,
			InitialEnergy:  cfg.InitialEnergy,
			QueueCapacity:  cfg.QueueCapacity,
			Operations:     cfg.Operations,
			FailOperations: cfg.FailOperations,
		},
	}, tmpl)
	strat := sim.RandomAck{Delay: cfg.AckLatency, DropRate: cfg.DropRate, FailRate: cfg.FailRate}
	runVehicles(ctx, vehicles, cfg, strat, sink)
}

func parseFlags() Config {
	var cfg Config
	var starts, ops, fails string
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.IntVar(&cfg.Count, "count", 1, "number of vehicles")
	flag.StringVar(&cfg.TopicPrefix, "topic-prefix", coremqtt.DefaultTopicPrefix, "MQTT topic prefix")
	flag.StringVar(&starts, "start-points", "", "comma separated start points assigned round-robin")
	flag.IntVar(&cfg.StepMS, "step-ms", 500, "time to travel one step")
	flag.IntVar(&cfg.OperationMS, "operation-ms", 1000, "time to perform an operation")
	flag.Float64Var(&cfg.EnergyPerStep, "energy-per-step", 0.5, "energy in percent consumed per step")
	flag.IntVar(&cfg.InitialEnergy, "energy", 100, "initial energy level in percent")
	flag.IntVar(&cfg.QueueCapacity, "queue-capacity", 2, "command queue capacity")
	flag.StringVar(&ops, "operations", "", "comma separated supported operations, empty for all")
	flag.StringVar(&fails, "fail-operations", "", "comma separated operations that always fail")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 0, "delay before acknowledging an executed command")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "probability of dropping an acknowledgement")
	flag.Float64Var(&cfg.FailRate, "fail-rate", 0, "probability of reporting an executed command as failed")
	flag.StringVar(&cfg.TemplateFile, "template-file", "", "per-vehicle overrides (JSON)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	flag.StringVar(&cfg.InfluxURL, "influx-url", "", "InfluxDB URL")
	flag.StringVar(&cfg.InfluxToken, "influx-token", "", "InfluxDB token")
	flag.StringVar(&cfg.InfluxOrg, "influx-org", "", "InfluxDB organization")
	flag.StringVar(&cfg.InfluxBucket, "influx-bucket", "", "InfluxDB bucket")
	flag.Parse()
	cfg.StartPoints = splitList(starts)
	cfg.Operations = splitList(ops)
	cfg.FailOperations = splitList(fails)
	return cfg
}

func runVehicles(ctx context.Context, vehicles []sim.Vehicle, cfg Config, strat sim.AckStrategy, sink coremetrics.MetricsSink) {
	log := logger.New("simulator")
	var wg sync.WaitGroup
	for i := range vehicles {
		v := &vehicles[i]
		v.Strategy = strat
		v.Metrics = sink
		wg.Add(1)
		go func(v *sim.Vehicle) {
			defer wg.Done()
			cli, err := inframqtt.NewPahoClient(inframqtt.Config{
				Broker:      cfg.Broker,
				ClientID:    "sim-" + v.Name,
				TopicPrefix: cfg.TopicPrefix,
			})
			if err != nil {
				log.Errorf("%s: connect: %v", v.Name, err)
				return
			}
			defer cli.Disconnect()
			if err := v.Run(ctx, cli); err != nil {
				log.Errorf("%s: %v", v.Name, err)
			}
		}(v)
	}
	wg.Wait()
}
