package mqtt

import "fmt"

// Topic prefixes for Tilt Logic MQTT traffic.
//
// External show commands arrive on tiltlogic/show/... topics from the
// media controller; triggers and lifecycle events are published outbound.
const (
	// TopicPrefix is the base for all Tilt Logic topics.
	TopicPrefix = "tiltlogic"

	// TopicPrefixShow is the base for external show command topics.
	TopicPrefixShow = "tiltlogic/show"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tiltlogic/system"
)

// Topics provides builders for Tilt Logic MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// ShowStart returns the topic on which an external show start command arrives.
//
// Example: tiltlogic/show/attract-sweep/start
func (Topics) ShowStart(name string) string {
	return fmt.Sprintf("%s/%s/start", TopicPrefixShow, name)
}

// ShowStop returns the topic on which an external show stop command arrives.
//
// Example: tiltlogic/show/attract-sweep/stop
func (Topics) ShowStop(name string) string {
	return fmt.Sprintf("%s/%s/stop", TopicPrefixShow, name)
}

// ShowFrame returns the topic on which external show frame data arrives.
//
// Example: tiltlogic/show/attract-sweep/frame
func (Topics) ShowFrame(name string) string {
	return fmt.Sprintf("%s/%s/frame", TopicPrefixShow, name)
}

// Device returns the outbound topic a device write is published on.
//
// Example: tiltlogic/device/led/led_shoot_again/set
func (Topics) Device(class, name string) string {
	return fmt.Sprintf("%s/device/%s/%s/set", TopicPrefix, class, name)
}

// Trigger returns the outbound topic for a named trigger.
//
// Example: tiltlogic/trigger/flasher_hit
func (Topics) Trigger(name string) string {
	return fmt.Sprintf("%s/trigger/%s", TopicPrefix, name)
}

// Event returns the outbound topic for a named machine event.
//
// Example: tiltlogic/event/show_stopped
func (Topics) Event(name string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, name)
}

// SystemStatus returns the system status topic.
//
// Example: tiltlogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllShowCommands returns a pattern matching every external show command.
//
// Pattern: tiltlogic/show/+/+
func (Topics) AllShowCommands() string {
	return TopicPrefixShow + "/+/+"
}
