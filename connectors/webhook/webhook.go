// Package webhook posts transport order state changes to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/agvfleet/auth"
	"github.com/kilianp07/agvfleet/core/events"
	corelogger "github.com/kilianp07/agvfleet/core/logger"
	coremon "github.com/kilianp07/agvfleet/core/monitoring"
)

var notifications *prometheus.CounterVec

func newCollector() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_notifications_total",
		Help: "Order notifications by outcome",
	}, []string{"outcome"})
}

func init() {
	notifications = newCollector()
	prometheus.MustRegister(notifications)
}

// ResetMetrics replaces the collector for tests and registers it on reg if
// not nil.
func ResetMetrics(reg prometheus.Registerer) {
	notifications = newCollector()
	if reg != nil {
		reg.MustRegister(notifications)
	}
}

// Notification is the JSON body posted for one order transition.
type Notification struct {
	Order         string    `json:"order"`
	Type          string    `json:"type,omitempty"`
	State         string    `json:"state"`
	PreviousState string    `json:"previous_state"`
	Vehicle       string    `json:"vehicle,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notifier queues order transitions and posts them one at a time.
type Notifier struct {
	cfg    Config
	client *http.Client
	creds  *auth.ClientCred
	states map[string]bool
	queue  chan Notification
	log    corelogger.Logger
}

// New creates a Notifier. Nothing is sent until Run.
func New(cfg Config, log corelogger.Logger) (*Notifier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = corelogger.OrNop(log)
	n := &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		states: make(map[string]bool, len(cfg.States)),
		queue:  make(chan Notification, cfg.QueueSize),
		log:    log,
	}
	for _, s := range cfg.States {
		n.states[s] = true
	}
	if cfg.Auth != nil {
		n.creds = auth.NewClientCred(*cfg.Auth)
	}
	return n, nil
}

// Handlers returns the event handlers feeding the notifier.
func (n *Notifier) Handlers() events.Handlers {
	return events.Handlers{TransportOrder: n.onOrder}
}

func (n *Notifier) onOrder(e events.TransportOrderChanged) {
	if !e.StateTransition() || !n.states[string(e.Current.State)] {
		return
	}
	msg := Notification{
		Order:         e.Current.Name,
		Type:          e.Current.Type,
		State:         string(e.Current.State),
		PreviousState: string(e.Previous.State),
		Vehicle:       e.Current.ProcessingVehicle,
		Timestamp:     time.Now(),
	}
	select {
	case n.queue <- msg:
	default:
		notifications.WithLabelValues("dropped").Inc()
		n.log.Warnf("webhook queue full, dropping notification for %s", msg.Order)
	}
}

// Run sends queued notifications until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.send(ctx, msg); err != nil {
				notifications.WithLabelValues("failed").Inc()
				n.log.Errorf("webhook %s: %v", msg.Order, err)
				coremon.CaptureException(err, map[string]string{"order": msg.Order, "component": "webhook"})
				continue
			}
			notifications.WithLabelValues("sent").Inc()
		}
	}
}

// send posts msg. A 401 with client credentials configured refreshes the
// token and retries once.
func (n *Notifier) send(ctx context.Context, msg Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	status, err := n.post(ctx, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && n.creds != nil {
		if _, err := n.creds.ForceRefresh(ctx); err != nil {
			return err
		}
		if status, err = n.post(ctx, body); err != nil {
			return err
		}
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("unexpected status code: %d", status)
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.creds != nil {
		if err := n.creds.SetAuthHeader(req); err != nil {
			return 0, fmt.Errorf("failed to set auth header: %w", err)
		}
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
