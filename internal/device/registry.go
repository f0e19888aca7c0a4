package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds the machine's output devices, keyed by class and name.
//
// The registry is populated once at startup from the machine's devices
// file and is read-only afterwards; the show compiler and the external
// show runner use it to resolve device names.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[Class]map[string]Device
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[Class]map[string]Device),
	}
}

// Register adds a device to the registry.
//
// Returns:
//   - error: ErrInvalidName, ErrInvalidClass, or ErrDeviceExists
func (r *Registry) Register(d Device) error {
	if d.Name == "" {
		return ErrInvalidName
	}
	if !validClass(d.Class) {
		return fmt.Errorf("%w: %q", ErrInvalidClass, d.Class)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.devices[d.Class]
	if !ok {
		byName = make(map[string]Device)
		r.devices[d.Class] = byName
	}
	if _, dup := byName[d.Name]; dup {
		return fmt.Errorf("%w: %s %q", ErrDeviceExists, d.Class, d.Name)
	}

	byName[d.Name] = d
	return nil
}

// Get retrieves a device by class and name.
func (r *Registry) Get(class Class, name string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[class][name]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s %q", ErrDeviceNotFound, class, name)
	}
	return d, nil
}

// Exists reports whether a device with the given class and name is registered.
func (r *Registry) Exists(class Class, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.devices[class][name]
	return ok
}

// Names returns the sorted names of all devices in a class.
func (r *Registry) Names(class Class) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.devices[class]))
	for name := range r.devices[class] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamesTagged returns the sorted names of devices in a class carrying a tag.
func (r *Registry) NamesTagged(class Class, tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, d := range r.devices[class] {
		if d.HasTag(tag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the total number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, byName := range r.devices {
		total += len(byName)
	}
	return total
}

// devicesFile mirrors the YAML layout of the machine's devices file:
//
//	lights:
//	  - name: light_shoot_again
//	    tags: [playfield]
//	leds:
//	  - name: led_left_ramp
type devicesFile struct {
	Lights   []Device `yaml:"lights"`
	LEDs     []Device `yaml:"leds"`
	Coils    []Device `yaml:"coils"`
	GI       []Device `yaml:"gi"`
	Flashers []Device `yaml:"flashers"`
}

// LoadYAML populates the registry from devices file content.
// Each section's class is implied by the section name; any class set on
// an entry is overridden.
//
// Returns:
//   - error: If parsing fails or any device is invalid/duplicated
func (r *Registry) LoadYAML(data []byte) error {
	var file devicesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing devices file: %w", err)
	}

	sections := []struct {
		class   Class
		entries []Device
	}{
		{ClassLight, file.Lights},
		{ClassLED, file.LEDs},
		{ClassCoil, file.Coils},
		{ClassGI, file.GI},
		{ClassFlasher, file.Flashers},
	}

	for _, section := range sections {
		for _, d := range section.entries {
			d.Class = section.class
			d.Name = strings.TrimSpace(d.Name)
			if err := r.Register(d); err != nil {
				return err
			}
		}
	}

	return nil
}

// validClass reports whether the class is one of the known device classes.
func validClass(class Class) bool {
	for _, c := range AllClasses() {
		if c == class {
			return true
		}
	}
	return false
}
