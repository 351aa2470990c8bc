package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordAssignment(ev AssignmentEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordReroute forwards reroute events.
func (m *MultiSink) RecordReroute(ev RerouteEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RerouteRecorder); ok {
			if err := rec.RecordReroute(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordWithdrawal forwards withdrawal events.
func (m *MultiSink) RecordWithdrawal(ev WithdrawalEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(WithdrawalRecorder); ok {
			if err := rec.RecordWithdrawal(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordVehicleState forwards vehicle snapshots.
func (m *MultiSink) RecordVehicleState(ev VehicleStateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(VehicleStateRecorder); ok {
			if err := rec.RecordVehicleState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetSize forwards the fleet size.
func (m *MultiSink) RecordFleetSize(size int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FleetSizeRecorder); ok {
			if err := rec.RecordFleetSize(size); err != nil {
				return err
			}
		}
	}
	return nil
}
