package webhook

import (
	"fmt"
	"net/url"

	"github.com/kilianp07/agvfleet/auth"
	"github.com/kilianp07/agvfleet/core/model"
)

// Config defines where order state changes are posted.
type Config struct {
	// URL receives one POST per notified transition. Empty disables the webhook.
	URL string `json:"url"`
	// States lists the order states that are notified. Empty means the final
	// states.
	States    []string `json:"states"`
	TimeoutMS int      `json:"timeout_ms"`
	// QueueSize bounds the notifications waiting to be sent; further ones are
	// dropped.
	QueueSize int        `json:"queue_size"`
	Auth      *auth.Conf `json:"auth"`
}

func (c *Config) SetDefaults() {
	if len(c.States) == 0 {
		c.States = []string{string(model.OrderFinished), string(model.OrderFailed), string(model.OrderUnroutable)}
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 5000
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
}

func (c Config) Enabled() bool { return c.URL != "" }

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webhook: invalid url %q", c.URL)
	}
	if c.TimeoutMS < 0 || c.QueueSize < 0 {
		return fmt.Errorf("webhook: timeout_ms and queue_size must not be negative")
	}
	if c.Auth != nil {
		return c.Auth.Validate()
	}
	return nil
}
