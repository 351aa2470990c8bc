package mqtt

import "errors"

var (
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("mqtt: not connected")
	// ErrUnknownReport is returned for report messages of an unknown type.
	ErrUnknownReport = errors.New("mqtt: unknown report type")
	// ErrUnknownCommand is returned for command messages of an unknown type.
	ErrUnknownCommand = errors.New("mqtt: unknown command type")
	// ErrMissingDestination is returned for move commands without a destination.
	ErrMissingDestination = errors.New("mqtt: move command without destination")
)
