package main

import (
	"fmt"
	"strings"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker      string
	Count       int
	TopicPrefix string
	// StartPoints are handed out to the vehicles round-robin.
	StartPoints    []string
	StepMS         int
	OperationMS    int
	EnergyPerStep  float64
	InitialEnergy  int
	QueueCapacity  int
	Operations     []string
	FailOperations []string
	AckLatency     time.Duration
	DropRate       float64
	FailRate       float64
	TemplateFile   string
	LogLevel       string
	InfluxURL      string
	InfluxToken    string
	InfluxOrg      string
	InfluxBucket   string
}

// Validate checks the flag values.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	if len(c.StartPoints) == 0 {
		return fmt.Errorf("at least one start point is required")
	}
	if c.DropRate < 0 || c.DropRate > 1 || c.FailRate < 0 || c.FailRate > 1 {
		return fmt.Errorf("rates must be within 0..1")
	}
	if c.InitialEnergy < 0 || c.InitialEnergy > 100 {
		return fmt.Errorf("energy must be within 0..100")
	}
	return nil
}

// splitList parses a comma separated flag value.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
