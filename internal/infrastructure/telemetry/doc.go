// Package telemetry writes playback telemetry to InfluxDB.
//
// The control loop emits one point per tick (running instances,
// applied and dropped device updates) plus show lifecycle points.
// Writes are non-blocking and batched by the InfluxDB client, so the
// control loop never waits on the network. Telemetry is optional and
// disabled by default.
package telemetry
