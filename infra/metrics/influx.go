package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/infra/logger"
)

// InfluxSink writes fleet events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client's resources.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAssignment writes an assignment with its route costs.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	p := write.NewPointWithMeasurement("order_assignment").
		AddTag("vehicle", ev.Vehicle).
		AddTag("order", ev.Order).
		AddTag("phase", ev.Phase).
		AddField("initial_costs", ev.InitialCost).
		AddField("complete_costs", ev.CompleteCost).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordReroute writes one reroute attempt.
func (s *InfluxSink) RecordReroute(ev coremetrics.RerouteEvent) error {
	p := write.NewPointWithMeasurement("order_reroute").
		AddTag("vehicle", ev.Vehicle).
		AddTag("order", ev.Order).
		AddTag("forced", strconv.FormatBool(ev.Forced)).
		AddField("outcome", ev.Outcome).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordWithdrawal writes a withdrawal.
func (s *InfluxSink) RecordWithdrawal(ev coremetrics.WithdrawalEvent) error {
	p := write.NewPointWithMeasurement("order_withdrawal").
		AddTag("order", ev.Order)
	if ev.Vehicle != "" {
		p = p.AddTag("vehicle", ev.Vehicle)
	}
	p = p.AddTag("immediate", strconv.FormatBool(ev.Immediate)).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordVehicleState writes a snapshot of a vehicle.
func (s *InfluxSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	v := ev.Vehicle
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("vehicle", v.Name)
	if ev.Component != "" {
		p = p.AddTag("component", ev.Component)
	}
	p = p.AddField("energy_level", v.EnergyLevel).
		AddField("energy_ratio", round3(float64(v.EnergyLevel)/100)).
		AddField("state", string(v.State)).
		AddField("proc_state", string(v.ProcState)).
		AddField("position", v.CurrentPosition).
		AddField("paused", v.Paused).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordFleetSize writes the number of vehicles known to the dispatcher.
func (s *InfluxSink) RecordFleetSize(size int) error {
	p := write.NewPointWithMeasurement("fleet_size").
		AddField("vehicles", size).
		SetTime(time.Now())
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
