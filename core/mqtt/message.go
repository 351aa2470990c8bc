package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kilianp07/agvfleet/core/model"
)

// DefaultTopicPrefix is the root of all vehicle topics.
const DefaultTopicPrefix = "agvfleet"

// CommandTopic is where a vehicle receives commands.
func CommandTopic(prefix, vehicle string) string {
	return prefix + "/vehicle/" + vehicle + "/command"
}

// ReportTopic is where a vehicle publishes its reports.
func ReportTopic(prefix, vehicle string) string {
	return prefix + "/vehicle/" + vehicle + "/report"
}

// ParseTopic splits a vehicle topic into the vehicle name and the channel
// ("command" or "report"). The prefix may contain slashes.
func ParseTopic(topic string) (vehicle, channel string, ok bool) {
	parts := strings.Split(topic, "/")
	n := len(parts)
	if n < 4 || parts[n-3] != "vehicle" || parts[n-2] == "" {
		return "", "", false
	}
	switch parts[n-1] {
	case "command", "report":
		return parts[n-2], parts[n-1], true
	}
	return "", "", false
}

// Command message kinds.
const (
	CommandMove  = "move"
	CommandClear = "clear"
)

// CommandMessage is published to a vehicle for every movement command.
// A clear message only carries Kind and MessageID.
type CommandMessage struct {
	Kind        string `json:"kind"`
	MessageID   string `json:"message_id"`
	CommandID   uint64 `json:"command_id,omitempty"`
	Order       string `json:"order,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Path        string `json:"path,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	// Via lists report points passed without stopping.
	Via        []string          `json:"via,omitempty"`
	Operation  string            `json:"operation,omitempty"`
	Location   string            `json:"location,omitempty"`
	Final      bool              `json:"final,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

// DecodeCommand parses and checks a command payload.
func DecodeCommand(payload []byte) (CommandMessage, error) {
	var m CommandMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fmt.Errorf("decode command: %w", err)
	}
	switch m.Kind {
	case CommandMove:
		if m.Destination == "" {
			return m, fmt.Errorf("decode command %d: %w", m.CommandID, ErrMissingDestination)
		}
		return m, nil
	case CommandClear:
		return m, nil
	default:
		return m, fmt.Errorf("%w: %q", ErrUnknownCommand, m.Kind)
	}
}

// MovementCommand rebuilds the command a move message was created from.
// Path names of intermediate steps are not transmitted; those steps carry a
// path with only its end points set.
func (m CommandMessage) MovementCommand() model.MovementCommand {
	points := append([]string{m.Source}, m.Via...)
	points = append(points, m.Destination)
	orientation := model.Orientation(m.Orientation)
	steps := make([]model.Step, 0, len(points)-1)
	for i := 0; i+1 < len(points); i++ {
		st := model.Step{
			Source:      model.Point{Name: points[i]},
			Destination: model.Point{Name: points[i+1]},
			Orientation: orientation,
			RouteIndex:  i,
		}
		if points[i] != points[i+1] {
			st.Path = &model.Path{Source: points[i], Destination: points[i+1]}
		}
		steps = append(steps, st)
	}
	last := len(steps) - 1
	if m.Path != "" && steps[last].Path != nil {
		steps[last].Path.Name = m.Path
	}
	return model.MovementCommand{
		ID:             m.CommandID,
		TransportOrder: m.Order,
		Step:           steps[last],
		Intermediate:   steps[:last],
		Operation:      m.Operation,
		OpLocation:     m.Location,
		FinalMovement:  m.Final,
		Properties:     m.Properties,
	}
}

// Report message kinds.
const (
	ReportExecuted = "executed"
	ReportFailed   = "failed"
	ReportPosition = "position"
	ReportEnergy   = "energy"
	ReportState    = "state"
)

// ReportMessage is published by a vehicle.
type ReportMessage struct {
	Kind      string `json:"kind"`
	CommandID uint64 `json:"command_id,omitempty"`
	Point     string `json:"point,omitempty"`
	Level     int    `json:"level,omitempty"`
	State     string `json:"state,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// DecodeReport parses and checks a report payload.
func DecodeReport(payload []byte) (ReportMessage, error) {
	var m ReportMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fmt.Errorf("decode report: %w", err)
	}
	switch m.Kind {
	case ReportExecuted, ReportFailed, ReportPosition, ReportEnergy, ReportState:
		return m, nil
	default:
		return m, fmt.Errorf("%w: %q", ErrUnknownReport, m.Kind)
	}
}
