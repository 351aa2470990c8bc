package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	corelogger "github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/model"
	coremqtt "github.com/kilianp07/agvfleet/core/mqtt"
	"github.com/kilianp07/agvfleet/core/vehicle"
	"github.com/kilianp07/agvfleet/infra/logger"
)

// AdapterConfig defines the behaviour of one MQTT vehicle adapter.
type AdapterConfig struct {
	TopicPrefix string `json:"topic_prefix"`
	// QueueCapacity is the number of commands the vehicle may hold at once.
	QueueCapacity int `json:"queue_capacity"`
	// Operations lists the operations the vehicle can perform at a
	// destination. Empty allows every operation.
	Operations []string `json:"operations"`
}

// VehicleAdapter is a vehicle.CommAdapter talking to a vehicle over MQTT.
// Commands are published to the vehicle's command topic and stay queued until
// the vehicle reports them executed or failed.
type VehicleAdapter struct {
	name     string
	client   coremqtt.Client
	prefix   string
	capacity int
	ops      map[string]bool
	log      corelogger.Logger

	mu      sync.Mutex
	enabled bool
	report  func(vehicle.Report)
	queue   []model.MovementCommand
}

var _ vehicle.CommAdapter = (*VehicleAdapter)(nil)

// NewVehicleAdapter creates an adapter for the named vehicle.
func NewVehicleAdapter(name string, client coremqtt.Client, cfg AdapterConfig) *VehicleAdapter {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = coremqtt.DefaultTopicPrefix
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 2
	}
	var ops map[string]bool
	if len(cfg.Operations) > 0 {
		ops = make(map[string]bool, len(cfg.Operations))
		for _, op := range cfg.Operations {
			ops[op] = true
		}
	}
	return &VehicleAdapter{
		name:     name,
		client:   client,
		prefix:   cfg.TopicPrefix,
		capacity: cfg.QueueCapacity,
		ops:      ops,
		log:      logger.ForVehicle("mqtt-adapter", name),
	}
}

// Enable subscribes to the vehicle's report topic.
func (a *VehicleAdapter) Enable(report func(vehicle.Report)) error {
	a.mu.Lock()
	if a.enabled {
		a.mu.Unlock()
		return nil
	}
	a.report = report
	a.enabled = true
	a.mu.Unlock()
	if err := a.client.Subscribe(coremqtt.ReportTopic(a.prefix, a.name), a.onReport); err != nil {
		a.mu.Lock()
		a.enabled = false
		a.report = nil
		a.mu.Unlock()
		return fmt.Errorf("vehicle %s: %w", a.name, err)
	}
	return nil
}

// Disable stops listening to the vehicle and drops queued commands.
func (a *VehicleAdapter) Disable() {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return
	}
	a.enabled = false
	a.report = nil
	a.queue = nil
	a.mu.Unlock()
	if err := a.client.Unsubscribe(coremqtt.ReportTopic(a.prefix, a.name)); err != nil {
		a.log.Warnf("vehicle %s: %v", a.name, err)
	}
}

// CanAcceptNextCommand reports whether the vehicle's queue has room.
func (a *VehicleAdapter) CanAcceptNextCommand() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled && len(a.queue) < a.capacity
}

// EnqueueCommand publishes cmd to the vehicle.
func (a *VehicleAdapter) EnqueueCommand(cmd model.MovementCommand) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled || len(a.queue) >= a.capacity {
		return false
	}
	payload, err := json.Marshal(commandMessage(cmd))
	if err != nil {
		a.log.Errorf("vehicle %s: encode %s: %v", a.name, cmd, err)
		return false
	}
	if err := a.client.Publish(coremqtt.CommandTopic(a.prefix, a.name), payload); err != nil {
		a.log.Errorf("vehicle %s: send %s: %v", a.name, cmd, err)
		return false
	}
	a.queue = append(a.queue, cmd)
	return true
}

// ClearCommandQueue forgets queued commands and tells the vehicle to do the same.
func (a *VehicleAdapter) ClearCommandQueue() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = nil
	if !a.enabled {
		return
	}
	payload, _ := json.Marshal(coremqtt.CommandMessage{
		Kind:      coremqtt.CommandClear,
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	})
	if err := a.client.Publish(coremqtt.CommandTopic(a.prefix, a.name), payload); err != nil {
		a.log.Errorf("vehicle %s: clear queue: %v", a.name, err)
	}
}

// CanProcess checks every destination operation against the supported ones.
func (a *VehicleAdapter) CanProcess(order model.TransportOrder) (bool, string) {
	if a.ops == nil {
		return true, ""
	}
	for _, d := range order.DriveOrders {
		op := d.Destination.Operation
		if model.IsNoOperation(op) || op == model.OpMove || op == model.OpPark {
			continue
		}
		if !a.ops[op] {
			return false, fmt.Sprintf("operation %s not supported", op)
		}
	}
	return true, ""
}

func (a *VehicleAdapter) onReport(_ string, payload []byte) {
	msg, err := coremqtt.DecodeReport(payload)
	if err != nil {
		a.log.Warnf("vehicle %s: %v", a.name, err)
		return
	}
	a.mu.Lock()
	report := a.report
	if report == nil {
		a.mu.Unlock()
		return
	}
	var rep vehicle.Report
	switch msg.Kind {
	case coremqtt.ReportExecuted, coremqtt.ReportFailed:
		cmd, ok := a.take(msg.CommandID)
		if !ok {
			a.mu.Unlock()
			a.log.Warnf("vehicle %s: report for unknown command %d", a.name, msg.CommandID)
			return
		}
		if msg.Kind == coremqtt.ReportExecuted {
			rep = vehicle.CommandExecutedReport{Command: cmd}
		} else {
			rep = vehicle.CommandFailedReport{Command: cmd, Reason: msg.Reason}
		}
	case coremqtt.ReportPosition:
		rep = vehicle.PositionReport{Point: msg.Point}
	case coremqtt.ReportEnergy:
		rep = vehicle.EnergyLevelReport{Level: msg.Level}
	case coremqtt.ReportState:
		rep = vehicle.StateReport{State: model.VehicleState(msg.State)}
	}
	a.mu.Unlock()
	report(rep)
}

// take removes the command with the given ID and everything queued before it.
func (a *VehicleAdapter) take(id uint64) (model.MovementCommand, bool) {
	for i, c := range a.queue {
		if c.ID == id {
			a.queue = append([]model.MovementCommand(nil), a.queue[i+1:]...)
			return c, true
		}
	}
	return model.MovementCommand{}, false
}

func commandMessage(cmd model.MovementCommand) coremqtt.CommandMessage {
	m := coremqtt.CommandMessage{
		Kind:        coremqtt.CommandMove,
		MessageID:   uuid.NewString(),
		CommandID:   cmd.ID,
		Order:       cmd.TransportOrder,
		Source:      cmd.Steps()[0].Source.Name,
		Destination: cmd.Step.Destination.Name,
		Orientation: string(cmd.Step.Orientation),
		Operation:   cmd.Operation,
		Location:    cmd.OpLocation,
		Final:       cmd.FinalMovement,
		Properties:  cmd.Properties,
		Timestamp:   time.Now().UnixMilli(),
	}
	if cmd.Step.Path != nil {
		m.Path = cmd.Step.Path.Name
	}
	for _, s := range cmd.Intermediate {
		m.Via = append(m.Via, s.Destination.Name)
	}
	return m
}
