// Package device defines the machine's output devices and their registry.
//
// A pinball machine exposes several classes of outputs: matrix lights,
// RGB LEDs, coils, general illumination strings, and flashers. The show
// engine never talks to hardware directly; it resolves names against
// this registry at compile time and routes value updates through the
// controller's arbitration queues.
//
// The registry is loaded once at startup from a YAML devices file and
// treated as read-only afterwards.
package device
