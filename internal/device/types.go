package device

// Class identifies a kind of output device on the playfield.
//
// The class determines how show action payloads are validated, how
// queued updates are collapsed, and in which order the controller
// applies them each frame.
type Class string

const (
	ClassLight   Class = "light"
	ClassLED     Class = "led"
	ClassCoil    Class = "coil"
	ClassGI      Class = "gi"
	ClassFlasher Class = "flasher"
)

// AllClasses returns all physical device classes in apply order.
// Events and triggers are not devices; they have their own queues.
func AllClasses() []Class {
	return []Class{
		ClassLight,
		ClassLED,
		ClassCoil,
		ClassGI,
		ClassFlasher,
	}
}

// Device is one named output on the machine.
type Device struct {
	// Name is the unique identifier within the device's class
	// (e.g., "led_left_ramp").
	Name string `yaml:"name"`

	// Class is the device class.
	Class Class `yaml:"class"`

	// Label is an optional human-readable description.
	Label string `yaml:"label,omitempty"`

	// Tags allow shows to address groups of devices ("tag|playfield").
	Tags []string `yaml:"tags,omitempty"`
}

// HasTag reports whether the device carries the given tag.
func (d Device) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IdleValue returns the value a device of the given class falls back to
// when no show holds it (all outputs off).
func IdleValue(class Class) string {
	switch class {
	case ClassLED:
		return "000000"
	default:
		return "00"
	}
}
