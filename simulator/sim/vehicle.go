// Package sim runs virtual vehicles that speak the MQTT vehicle protocol.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	corelogger "github.com/kilianp07/agvfleet/core/logger"
	coremetrics "github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/core/model"
	coremqtt "github.com/kilianp07/agvfleet/core/mqtt"
	"github.com/kilianp07/agvfleet/core/vehicle"
	"github.com/kilianp07/agvfleet/infra/logger"
	"github.com/kilianp07/agvfleet/infra/loopback"
)

// Vehicle drives a virtual vehicle from the commands it receives
// over MQTT and publishes its reports back.
type Vehicle struct {
	Name        string
	Start       string
	TopicPrefix string
	Loopback    loopback.Config
	Strategy    AckStrategy
	Metrics     coremetrics.MetricsSink

	client coremqtt.Client
	sim    *loopback.Sim
	log    corelogger.Logger

	mu    sync.Mutex
	state model.Vehicle
}

// Run subscribes to the vehicle's command topic and runs the virtual vehicle
// until ctx is done.
func (v *Vehicle) Run(ctx context.Context, client coremqtt.Client) error {
	if v.TopicPrefix == "" {
		v.TopicPrefix = coremqtt.DefaultTopicPrefix
	}
	if v.Strategy == nil {
		v.Strategy = AutoAck{}
	}
	v.client = client
	v.log = logger.ForVehicle("simulator", v.Name)
	v.state = model.Vehicle{Name: v.Name, CurrentPosition: v.Start, State: model.StateUnknown}
	v.sim = loopback.NewSim(v.Name, v.Start, v.Loopback)

	v.sim.Start(func(r vehicle.Report) { v.onReport(ctx, r) })
	topic := coremqtt.CommandTopic(v.TopicPrefix, v.Name)
	if err := client.Subscribe(topic, v.onCommand); err != nil {
		v.sim.Stop()
		return fmt.Errorf("%s: subscribe: %w", v.Name, err)
	}
	v.log.Infof("vehicle %s started at %s", v.Name, v.Start)

	<-ctx.Done()
	v.sim.Stop()
	if err := client.Unsubscribe(topic); err != nil {
		v.log.Warnf("unsubscribe %s: %v", topic, err)
	}
	return nil
}

func (v *Vehicle) onCommand(_ string, payload []byte) {
	msg, err := coremqtt.DecodeCommand(payload)
	if err != nil {
		v.log.Warnf("%s: %v", v.Name, err)
		return
	}
	if msg.Kind == coremqtt.CommandClear {
		v.log.Infof("%s: command queue cleared", v.Name)
		v.sim.Clear()
		return
	}
	cmd := msg.MovementCommand()
	if !v.sim.Supports(cmd.Operation) {
		v.publish(coremqtt.ReportMessage{
			Kind:      coremqtt.ReportFailed,
			CommandID: cmd.ID,
			Reason:    fmt.Sprintf("operation %s not supported", cmd.Operation),
		})
		return
	}
	if !v.sim.Enqueue(cmd) {
		v.log.Warnf("%s: queue full, rejecting command %d", v.Name, cmd.ID)
		v.publish(coremqtt.ReportMessage{Kind: coremqtt.ReportFailed, CommandID: cmd.ID, Reason: "command queue full"})
	}
}

func (v *Vehicle) onReport(ctx context.Context, r vehicle.Report) {
	msg, ok := reportMessage(r)
	if !ok {
		return
	}
	v.track(r)
	if msg.Kind == coremqtt.ReportExecuted && !v.Strategy.Ack(ctx, &msg) {
		return
	}
	v.publish(msg)
}

func (v *Vehicle) publish(msg coremqtt.ReportMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(msg)
	if err != nil {
		v.log.Errorf("%s: marshal report: %v", v.Name, err)
		return
	}
	if err := v.client.Publish(coremqtt.ReportTopic(v.TopicPrefix, v.Name), payload); err != nil {
		v.log.Errorf("%s: publish %s report: %v", v.Name, msg.Kind, err)
	}
}

// track keeps the vehicle snapshot sent to the metrics sink.
func (v *Vehicle) track(r vehicle.Report) {
	v.mu.Lock()
	switch rep := r.(type) {
	case vehicle.PositionReport:
		v.state.CurrentPosition = rep.Point
	case vehicle.EnergyLevelReport:
		v.state.EnergyLevel = rep.Level
	case vehicle.StateReport:
		v.state.State = rep.State
	default:
		v.mu.Unlock()
		return
	}
	snap := v.state
	v.mu.Unlock()
	rec, ok := v.Metrics.(coremetrics.VehicleStateRecorder)
	if !ok {
		return
	}
	if err := rec.RecordVehicleState(coremetrics.VehicleStateEvent{Vehicle: snap, Component: "simulator", Time: time.Now()}); err != nil {
		v.log.Warnf("%s: record state: %v", v.Name, err)
	}
}

func reportMessage(r vehicle.Report) (coremqtt.ReportMessage, bool) {
	switch rep := r.(type) {
	case vehicle.CommandExecutedReport:
		return coremqtt.ReportMessage{Kind: coremqtt.ReportExecuted, CommandID: rep.Command.ID}, true
	case vehicle.CommandFailedReport:
		return coremqtt.ReportMessage{Kind: coremqtt.ReportFailed, CommandID: rep.Command.ID, Reason: rep.Reason}, true
	case vehicle.PositionReport:
		return coremqtt.ReportMessage{Kind: coremqtt.ReportPosition, Point: rep.Point}, true
	case vehicle.EnergyLevelReport:
		return coremqtt.ReportMessage{Kind: coremqtt.ReportEnergy, Level: rep.Level}, true
	case vehicle.StateReport:
		return coremqtt.ReportMessage{Kind: coremqtt.ReportState, State: string(rep.State)}, true
	}
	return coremqtt.ReportMessage{}, false
}
