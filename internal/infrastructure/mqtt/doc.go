// Package mqtt wraps the paho MQTT client for Tilt Logic Core.
//
// It is the transport for remotely driven (external) shows and for
// outbound trigger and lifecycle event publication. The wrapper adds
// automatic re-subscription after reconnects and consistent topic
// construction via Topics.
//
// Message handlers run on paho's goroutines; anything that touches
// playback state must be handed to the control loop (see the show
// package's command queue) rather than mutated inline.
package mqtt
