package telemetry

import "errors"

// Domain errors for the telemetry package.
var (
	// ErrDisabled is returned when connecting with telemetry disabled.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed is returned when the InfluxDB server is unreachable.
	ErrConnectionFailed = errors.New("telemetry: connection failed")

	// ErrNotConnected is returned when writing without a connection.
	ErrNotConnected = errors.New("telemetry: not connected")
)
