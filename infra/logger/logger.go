package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/agvfleet/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// ForVehicle returns a component logger whose entries name the vehicle.
func ForVehicle(component, vehicle string) Logger {
	return NewZerologLogger(component).With("vehicle", vehicle)
}

// SetLevel sets the minimum level for every logger created by this package.
// An empty level keeps the default (debug).
func SetLevel(level string) error {
	if strings.TrimSpace(level) == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
