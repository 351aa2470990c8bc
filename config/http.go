package config

// HTTPConfig defines the HTTP API listener.
type HTTPConfig struct {
	Addr     string `json:"addr"`
	Disabled bool   `json:"disabled"`
	// Token protects the decision log endpoint when set.
	Token string `json:"token"`
}

// SetDefaults fills unset fields.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" && !c.Disabled {
		c.Addr = ":8080"
	}
}
