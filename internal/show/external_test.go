package show

import (
	"testing"

	"github.com/tiltlogic/tiltlogic-core/internal/device"
)

// ─────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────

func TestExternalShowStartStop(t *testing.T) {
	rig := newTestRig(t)

	rig.c.ExternalStart("media", 100, false, map[device.Class][]string{
		device.ClassLED: {"led1", "led2"},
	})
	rig.frame()
	if rig.c.ExternalShowCount() != 1 {
		t.Fatalf("ExternalShowCount() = %d, want 1", rig.c.ExternalShowCount())
	}

	rig.c.ExternalStop("media")
	rig.frame()
	if rig.c.ExternalShowCount() != 0 {
		t.Errorf("ExternalShowCount() = %d, want 0 after stop", rig.c.ExternalShowCount())
	}
}

func TestExternalShowCommandsDrainOnTick(t *testing.T) {
	rig := newTestRig(t)

	// Queued but not yet drained: the controller state is untouched
	// until the next tick.
	rig.c.ExternalStart("media", 100, false, map[device.Class][]string{
		device.ClassLED: {"led1"},
	})
	if rig.c.ExternalShowCount() != 0 {
		t.Fatal("external start applied before the tick")
	}
	rig.frame()
	if rig.c.ExternalShowCount() != 1 {
		t.Fatal("external start not applied on the tick")
	}
}

// ─────────────────────────────────────────────
// Frame decode
// ─────────────────────────────────────────────

func TestExternalFrameDecodesFixedWidths(t *testing.T) {
	rig := newTestRig(t)

	rig.c.ExternalStart("media", 100, false, map[device.Class][]string{
		device.ClassLED:   {"led1", "led2"},
		device.ClassLight: {"light1"},
		device.ClassGI:    {"gi1"},
	})
	rig.c.ExternalFrame("media", map[device.Class]string{
		device.ClassLED:   "ff000000ff00", // led1 red, led2 green
		device.ClassLight: "80",
		device.ClassGI:    "ff",
	}, nil)
	rig.frame()

	tests := []struct {
		class device.Class
		name  string
		value string
	}{
		{device.ClassLED, "led1", "ff0000"},
		{device.ClassLED, "led2", "00ff00"},
		{device.ClassLight, "light1", "80"},
		{device.ClassGI, "gi1", "ff"},
	}
	for _, tt := range tests {
		w, ok := rig.out.last(tt.class, tt.name)
		if !ok || w.value != tt.value {
			t.Errorf("%s %s = %v (ok=%v), want %q", tt.class, tt.name, w, ok, tt.value)
		}
	}
}

func TestExternalFrameFireFlags(t *testing.T) {
	rig := newTestRig(t)

	rig.c.ExternalStart("media", 100, false, map[device.Class][]string{
		device.ClassCoil:    {"coil1"},
		device.ClassFlasher: {"flasher1"},
	})

	// "0" flags are no-ops, not "off" writes.
	rig.c.ExternalFrame("media", map[device.Class]string{
		device.ClassCoil:    "0",
		device.ClassFlasher: "0",
	}, nil)
	rig.frame()
	if len(rig.out.writes) != 0 {
		t.Fatalf("zero fire flags still wrote devices: %v", rig.out.writes)
	}

	rig.c.ExternalFrame("media", map[device.Class]string{
		device.ClassCoil:    "1",
		device.ClassFlasher: "1",
	}, nil)
	rig.frame()
	if _, ok := rig.out.last(device.ClassCoil, "coil1"); !ok {
		t.Error("coil fire flag never applied")
	}
	if _, ok := rig.out.last(device.ClassFlasher, "flasher1"); !ok {
		t.Error("flasher fire flag never applied")
	}
}

func TestExternalFrameLengthMismatchSkipsClass(t *testing.T) {
	rig := newTestRig(t)

	rig.c.ExternalStart("media", 100, false, map[device.Class][]string{
		device.ClassLED: {"led1", "led2"},
	})
	// 6 chars for 2 LEDs: wrong length, the whole class is skipped.
	rig.c.ExternalFrame("media", map[device.Class]string{
		device.ClassLED: "ff0000",
	}, nil)
	rig.frame()

	if len(rig.out.writes) != 0 {
		t.Errorf("mismatched frame still wrote devices: %v", rig.out.writes)
	}
}

func TestExternalFrameEvents(t *testing.T) {
	rig := newTestRig(t)

	rig.c.ExternalStart("media", 100, false, nil)
	rig.c.ExternalFrame("media", nil, []string{"midnight_madness"})
	rig.frame()

	if rig.events.count("midnight_madness") != 1 {
		t.Errorf("frame event posted %d times, want 1", rig.events.count("midnight_madness"))
	}
}

// ─────────────────────────────────────────────
// Arbitration parity with local shows
// ─────────────────────────────────────────────

func TestExternalShowArbitratesLikeLocalShows(t *testing.T) {
	rig := newTestRig(t)

	local := mustCompile(t, "local", rawSteps(
		step("duration", -1, "leds", map[string]any{"led1": "0000ff"}),
	))
	if _, err := rig.c.PlayShow(local, PlayOptions{Priority: 10}); err != nil {
		t.Fatalf("PlayShow failed: %v", err)
	}
	rig.frame()

	rig.c.ExternalStart("media", 100, false, map[device.Class][]string{
		device.ClassLED: {"led1"},
	})
	rig.c.ExternalFrame("media", map[device.Class]string{
		device.ClassLED: "ff0000",
	}, nil)
	rig.frame()

	if w, _ := rig.out.last(device.ClassLED, "led1"); w.value != "ff0000" {
		t.Fatalf("external frame at priority 100 should win, got %q", w.value)
	}

	// Stopping the external show restores the local holder's value.
	rig.out.reset()
	rig.c.ExternalStop("media")
	rig.frame()
	if w, ok := rig.out.last(device.ClassLED, "led1"); !ok || w.value != "0000ff" {
		t.Errorf("expected restore to local 0000ff, got %v (ok=%v)", w, ok)
	}
}

func TestExternalShowUnknownDeviceKeepsSlot(t *testing.T) {
	rig := newTestRig(t)

	// The remote side encodes frames against the list it sent, so an
	// unresolved name must keep its chunk position.
	rig.c.ExternalStart("media", 100, false, map[device.Class][]string{
		device.ClassLED: {"led1", "led_missing", "led2"},
	})
	rig.c.ExternalFrame("media", map[device.Class]string{
		device.ClassLED: "ff0000aaaaaa00ff00",
	}, nil)
	rig.frame()

	if w, ok := rig.out.last(device.ClassLED, "led1"); !ok || w.value != "ff0000" {
		t.Errorf("led1 = %v (ok=%v), want ff0000", w, ok)
	}
	if w, ok := rig.out.last(device.ClassLED, "led2"); !ok || w.value != "00ff00" {
		t.Errorf("led2 = %v (ok=%v), want 00ff00", w, ok)
	}
	for _, w := range rig.out.writes {
		if w.name == "led_missing" {
			t.Errorf("unresolved device was written: %v", w)
		}
	}
}

func TestExternalShowUnknownDeviceShortFrameSkipped(t *testing.T) {
	rig := newTestRig(t)

	rig.c.ExternalStart("media", 100, false, map[device.Class][]string{
		device.ClassLED: {"led1", "led_missing"},
	})
	// 6 chars for a 2-slot list: length check still expects both chunks.
	rig.c.ExternalFrame("media", map[device.Class]string{
		device.ClassLED: "ff0000",
	}, nil)
	rig.frame()

	if len(rig.out.writes) != 0 {
		t.Errorf("short frame still wrote devices: %v", rig.out.writes)
	}
}
