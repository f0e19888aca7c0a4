package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTickStats records one control-loop tick.
//
// The write is non-blocking; points are batched and sent
// asynchronously.
//
// Parameters:
//   - machineID: Machine identifier tag
//   - at: Tick time
//   - instances: Running show instances at tick end
//   - applied: Device updates applied this tick
//   - dropped: Device updates dropped by priority arbitration
func (c *Client) WriteTickStats(machineID string, at time.Time, instances, applied, dropped int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"show_ticks",
		map[string]string{
			"machine_id": machineID,
		},
		map[string]interface{}{
			"instances_running": instances,
			"updates_applied":   applied,
			"updates_dropped":   dropped,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteShowEvent records a show lifecycle transition (played, looped,
// stopped).
//
// Parameters:
//   - machineID: Machine identifier tag
//   - showName: The show's name
//   - event: Lifecycle event name
func (c *Client) WriteShowEvent(machineID, showName, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"show_events",
		map[string]string{
			"machine_id": machineID,
			"show":       showName,
			"event":      event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
