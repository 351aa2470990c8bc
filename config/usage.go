package config

import "fmt"

// Usage store backends.
const (
	UsageMemory = "memory"
	UsageSQLite = "sqlite"
)

// UsageConfig selects where per-vehicle usage figures are kept.
type UsageConfig struct {
	Backend string `json:"backend"`
	// Path is the database file of the sqlite backend.
	Path string `json:"path"`
}

func (c *UsageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = UsageMemory
	}
	if c.Backend == UsageSQLite && c.Path == "" {
		c.Path = "usage.db"
	}
}

func (c UsageConfig) Validate() error {
	switch c.Backend {
	case UsageMemory:
		return nil
	case UsageSQLite:
		if c.Path == "" {
			return fmt.Errorf("usage: path is required")
		}
		return nil
	default:
		return fmt.Errorf("usage: unknown backend %s", c.Backend)
	}
}
