package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/agvfleet/connectors/webhook"
	"github.com/kilianp07/agvfleet/core/dispatch"
	"github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/infra/mqtt"
)

type Config struct {
	LogLevel string          `json:"log_level"`
	Plant    PlantConfig     `json:"plant"`
	Vehicles []VehicleConfig `json:"vehicles"`
	Dispatch dispatch.Config `json:"dispatch"`
	Adapter  AdapterConfig   `json:"adapter"`
	MQTT     mqtt.Config     `json:"mqtt"`
	Metrics  metrics.Config  `json:"metrics"`
	Logging  LoggingConfig   `json:"logging"`
	Sentry   SentryConfig    `json:"sentry"`
	HTTP     HTTPConfig      `json:"http"`
	Usage    UsageConfig     `json:"usage"`
	Webhook  webhook.Config  `json:"webhook"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Dispatch.SetDefaults()
	c.Adapter.SetDefaults()
	c.Logging.SetDefaults()
	c.HTTP.SetDefaults()
	c.Usage.SetDefaults()
	if c.Webhook.Enabled() {
		c.Webhook.SetDefaults()
	}
	for i := range c.Vehicles {
		c.Vehicles[i].SetDefaults()
	}
	if c.Adapter.Type == AdapterMQTT {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section and the references between them.
func (c Config) Validate() error {
	if err := c.Plant.Validate(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, v := range c.Vehicles {
		if err := v.Validate(); err != nil {
			return err
		}
		if seen[v.Name] {
			return fmt.Errorf("vehicle %s: duplicate name", v.Name)
		}
		seen[v.Name] = true
		if v.Position != "" && !c.Plant.HasPoint(v.Position) {
			return fmt.Errorf("vehicle %s: unknown position %s", v.Name, v.Position)
		}
	}
	if err := c.Dispatch.Validate(); err != nil {
		return err
	}
	if err := c.Adapter.Validate(); err != nil {
		return err
	}
	if c.Adapter.Type == AdapterMQTT {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Usage.Validate(); err != nil {
		return err
	}
	if err := c.Sentry.Validate(); err != nil {
		return err
	}
	return c.Webhook.Validate()
}
