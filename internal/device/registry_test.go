package device

import (
	"errors"
	"testing"
)

// ─────────────────────────────────────────────
// Test Helpers
// ─────────────────────────────────────────────

// newTestRegistry creates a registry populated with a small machine.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	devices := []Device{
		{Name: "light_shoot_again", Class: ClassLight, Tags: []string{"playfield"}},
		{Name: "light_extra_ball", Class: ClassLight},
		{Name: "led_left_ramp", Class: ClassLED, Tags: []string{"playfield", "ramps"}},
		{Name: "led_right_ramp", Class: ClassLED, Tags: []string{"ramps"}},
		{Name: "coil_slingshot_left", Class: ClassCoil},
		{Name: "gi_backbox", Class: ClassGI},
		{Name: "flasher_pop_bumper", Class: ClassFlasher},
	}
	for _, d := range devices {
		if err := r.Register(d); err != nil {
			t.Fatalf("Register(%q) failed: %v", d.Name, err)
		}
	}
	return r
}

// ─────────────────────────────────────────────
// Register
// ─────────────────────────────────────────────

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Register(Device{Name: "led_left_ramp", Class: ClassLED})
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("expected ErrDeviceExists, got %v", err)
	}
}

func TestRegisterSameNameDifferentClass(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Device{Name: "shoot_again", Class: ClassLight}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	// Names are only unique within a class.
	if err := r.Register(Device{Name: "shoot_again", Class: ClassLED}); err != nil {
		t.Errorf("same name in a different class should register, got %v", err)
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Device{Name: "", Class: ClassLight}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	if err := r.Register(Device{Name: "x", Class: Class("servo")}); !errors.Is(err, ErrInvalidClass) {
		t.Errorf("expected ErrInvalidClass, got %v", err)
	}
}

// ─────────────────────────────────────────────
// Lookup
// ─────────────────────────────────────────────

func TestGetAndExists(t *testing.T) {
	r := newTestRegistry(t)

	d, err := r.Get(ClassLED, "led_left_ramp")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !d.HasTag("ramps") {
		t.Error("expected led_left_ramp to carry the ramps tag")
	}

	if !r.Exists(ClassLight, "light_shoot_again") {
		t.Error("expected light_shoot_again to exist")
	}
	if r.Exists(ClassLight, "led_left_ramp") {
		t.Error("LED name should not exist in the light class")
	}

	_, err = r.Get(ClassCoil, "coil_missing")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	r := newTestRegistry(t)

	names := r.Names(ClassLED)
	want := []string{"led_left_ramp", "led_right_ramp"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("names[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestNamesTagged(t *testing.T) {
	r := newTestRegistry(t)

	tagged := r.NamesTagged(ClassLED, "playfield")
	if len(tagged) != 1 || tagged[0] != "led_left_ramp" {
		t.Errorf("NamesTagged(led, playfield) = %v, want [led_left_ramp]", tagged)
	}

	if got := r.NamesTagged(ClassCoil, "playfield"); len(got) != 0 {
		t.Errorf("expected no tagged coils, got %v", got)
	}
}

func TestCount(t *testing.T) {
	r := newTestRegistry(t)

	if got := r.Count(); got != 7 {
		t.Errorf("Count() = %d, want 7", got)
	}
}

// ─────────────────────────────────────────────
// LoadYAML
// ─────────────────────────────────────────────

func TestLoadYAML(t *testing.T) {
	data := []byte(`
lights:
  - name: light_shoot_again
    tags: [playfield]
leds:
  - name: led_left_ramp
  - name: led_right_ramp
coils:
  - name: coil_knocker
    label: Replay knocker
gi:
  - name: gi_backbox
flashers:
  - name: flasher_pop_bumper
`)

	r := NewRegistry()
	if err := r.LoadYAML(data); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}

	if got := r.Count(); got != 6 {
		t.Errorf("Count() = %d, want 6", got)
	}

	// Section name wins over any class set on the entry.
	d, err := r.Get(ClassCoil, "coil_knocker")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Class != ClassCoil {
		t.Errorf("class = %q, want %q", d.Class, ClassCoil)
	}
	if d.Label != "Replay knocker" {
		t.Errorf("label = %q, want %q", d.Label, "Replay knocker")
	}
}

func TestLoadYAMLDuplicate(t *testing.T) {
	data := []byte(`
leds:
  - name: led_left_ramp
  - name: led_left_ramp
`)

	r := NewRegistry()
	err := r.LoadYAML(data)
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("expected ErrDeviceExists, got %v", err)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadYAML([]byte("leds: {not: [a, list")); err == nil {
		t.Error("expected parse error for malformed YAML")
	}
}

// ─────────────────────────────────────────────
// IdleValue
// ─────────────────────────────────────────────

func TestIdleValue(t *testing.T) {
	if got := IdleValue(ClassLED); got != "000000" {
		t.Errorf("IdleValue(led) = %q, want 000000", got)
	}
	if got := IdleValue(ClassLight); got != "00" {
		t.Errorf("IdleValue(light) = %q, want 00", got)
	}
}
