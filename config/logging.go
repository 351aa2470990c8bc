package config

import "fmt"

// Decision log backends.
const (
	LogBackendJSONL  = "jsonl"
	LogBackendSQLite = "sqlite"
	LogBackendNop    = "nop"
)

// LoggingConfig selects where dispatch decisions are recorded.
type LoggingConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// Rotation of the jsonl backend. MaxSizeMB zero keeps a single file.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = LogBackendJSONL
	}
	if c.Path != "" {
		return
	}
	switch c.Backend {
	case LogBackendJSONL:
		c.Path = "decisions.jsonl"
	case LogBackendSQLite:
		c.Path = "decisions.db"
	}
}

func (c LoggingConfig) Validate() error {
	switch c.Backend {
	case LogBackendNop:
		return nil
	case LogBackendJSONL, LogBackendSQLite:
	default:
		return fmt.Errorf("logging: unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("logging: path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	return nil
}
