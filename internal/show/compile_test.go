package show

import (
	"errors"
	"testing"
	"time"

	"github.com/tiltlogic/tiltlogic-core/internal/device"
)

// ─────────────────────────────────────────────
// Test Helpers
// ─────────────────────────────────────────────

// newTestRegistry builds a small machine for compile/playback tests.
func newTestRegistry(t *testing.T) *device.Registry {
	t.Helper()

	r := device.NewRegistry()
	devices := []device.Device{
		{Name: "led1", Class: device.ClassLED, Tags: []string{"playfield"}},
		{Name: "led2", Class: device.ClassLED, Tags: []string{"playfield"}},
		{Name: "led3", Class: device.ClassLED},
		{Name: "light1", Class: device.ClassLight},
		{Name: "light2", Class: device.ClassLight},
		{Name: "coil1", Class: device.ClassCoil},
		{Name: "gi1", Class: device.ClassGI},
		{Name: "flasher1", Class: device.ClassFlasher},
	}
	for _, d := range devices {
		if err := r.Register(d); err != nil {
			t.Fatalf("Register(%q) failed: %v", d.Name, err)
		}
	}
	return r
}

func newTestPlayers(t *testing.T) map[string]DevicePlayer {
	t.Helper()
	return NewPlayers(newTestRegistry(t), nil)
}

// step builds a raw step record.
func step(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func rawSteps(steps ...map[string]any) []any {
	out := make([]any, len(steps))
	for i, s := range steps {
		out[i] = s
	}
	return out
}

func mustCompile(t *testing.T, name string, raw []any) *Show {
	t.Helper()
	s, err := Compile(name, raw, newTestPlayers(t))
	if err != nil {
		t.Fatalf("Compile(%s) failed: %v", name, err)
	}
	return s
}

func wantDurations(t *testing.T, s *Show, want ...time.Duration) {
	t.Helper()
	if s.TotalSteps() != len(want) {
		t.Fatalf("TotalSteps() = %d, want %d", s.TotalSteps(), len(want))
	}
	for i, d := range want {
		if s.steps[i].Duration != d {
			t.Errorf("step %d duration = %v, want %v", i, s.steps[i].Duration, d)
		}
	}
}

// ─────────────────────────────────────────────
// Duration resolution
// ─────────────────────────────────────────────

func TestCompileExplicitDurations(t *testing.T) {
	s := mustCompile(t, "basic", rawSteps(
		step("duration", 2, "leds", map[string]any{"led1": "ff0000"}),
		step("duration", 0.5, "leds", map[string]any{"led1": "000000"}),
	))
	wantDurations(t, s, 2*time.Second, 500*time.Millisecond)
}

func TestCompileDefaultDuration(t *testing.T) {
	// No duration and no next-step time: defaults to one second.
	s := mustCompile(t, "default", rawSteps(
		step("leds", map[string]any{"led1": "ff0000"}),
	))
	wantDurations(t, s, time.Second)
}

func TestCompileRelativeNextTime(t *testing.T) {
	s := mustCompile(t, "relative", rawSteps(
		step("leds", map[string]any{"led1": "ff0000"}),
		step("time", "+2", "leds", map[string]any{"led1": "00ff00"}),
	))
	wantDurations(t, s, 2*time.Second, time.Second)
}

func TestCompileAbsoluteNextTime(t *testing.T) {
	// Step 0 runs until the absolute 3s mark, step 1 until 5s.
	s := mustCompile(t, "absolute", rawSteps(
		step("leds", map[string]any{"led1": "ff0000"}),
		step("time", 3, "leds", map[string]any{"led1": "00ff00"}),
		step("time", 5),
	))
	// The final time-only record is a trailing no-op and is dropped.
	wantDurations(t, s, 3*time.Second, 2*time.Second)
}

func TestCompileSynthesizedLeadingStep(t *testing.T) {
	// Scenario: first step carries time=2, so a dark leading step of 2s
	// is synthesized and total steps = input length + 1.
	s := mustCompile(t, "leadin", rawSteps(
		step("time", 2, "leds", map[string]any{"led1": "ff0000"}),
		step("time", 5),
	))
	wantDurations(t, s, 2*time.Second, 3*time.Second)
	if len(s.steps[0].Actions) != 0 {
		t.Errorf("synthesized leading step should have no actions, got %v", s.steps[0].Actions)
	}
}

func TestCompileTrailingTimeOnlyKept_WhenFirst(t *testing.T) {
	// A time-only record is only dropped when it is last AND not first.
	s := mustCompile(t, "single", rawSteps(
		step("time", "+3"),
	))
	if s.TotalSteps() != 1 {
		t.Fatalf("TotalSteps() = %d, want 1", s.TotalSteps())
	}
}

func TestCompileOpenEndedStep(t *testing.T) {
	s := mustCompile(t, "open", rawSteps(
		step("leds", map[string]any{"led1": "ff0000"}),
		step("duration", -1, "leds", map[string]any{"led1": "00ff00"}),
	))
	if s.steps[1].Duration >= 0 {
		t.Errorf("open-ended step duration = %v, want negative", s.steps[1].Duration)
	}
}

func TestCompileAbsoluteAfterOpenEnded(t *testing.T) {
	_, err := Compile("bad", rawSteps(
		step("duration", -1, "leds", map[string]any{"led1": "ff0000"}),
		step("leds", map[string]any{"led1": "00ff00"}),
		step("time", 5, "leds", map[string]any{"led1": "0000ff"}),
	), newTestPlayers(t))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for absolute time after open-ended step, got %v", err)
	}
}

func TestCompileZeroDuration(t *testing.T) {
	_, err := Compile("zero", rawSteps(
		step("duration", 0, "leds", map[string]any{"led1": "ff0000"}),
	), newTestPlayers(t))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for zero duration, got %v", err)
	}
}

func TestCompileDeterministic(t *testing.T) {
	build := func() []any {
		return rawSteps(
			step("time", 1, "leds", map[string]any{"led1": "ff0000", "(tok)": "00ff00"}),
			step("time", "+2", "lights", map[string]any{"light1": "80"}),
			step("time", 6),
		)
	}

	a := mustCompile(t, "same", build())
	b := mustCompile(t, "same", build())

	if a.TotalSteps() != b.TotalSteps() {
		t.Fatalf("total steps differ: %d vs %d", a.TotalSteps(), b.TotalSteps())
	}
	for i := range a.steps {
		if a.steps[i].Duration != b.steps[i].Duration {
			t.Errorf("step %d durations differ: %v vs %v",
				i, a.steps[i].Duration, b.steps[i].Duration)
		}
	}
}

// ─────────────────────────────────────────────
// Validation failures
// ─────────────────────────────────────────────

func TestCompileEmptyShow(t *testing.T) {
	_, err := Compile("empty", nil, newTestPlayers(t))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty show, got %v", err)
	}
}

func TestCompileNonMappingStep(t *testing.T) {
	_, err := Compile("bad", []any{"not a map"}, newTestPlayers(t))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for non-mapping step, got %v", err)
	}
}

func TestCompileUnknownSectionDidYouMean(t *testing.T) {
	_, err := Compile("typo", rawSteps(
		step("led", map[string]any{"led1": "ff0000"}),
	), newTestPlayers(t))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Key != "led" {
		t.Errorf("Key = %q, want %q", verr.Key, "led")
	}
	if verr.Hint != "leds" {
		t.Errorf("Hint = %q, want %q", verr.Hint, "leds")
	}
	if verr.Show != "typo" {
		t.Errorf("Show = %q, want %q", verr.Show, "typo")
	}
}

func TestCompileUnknownDevice(t *testing.T) {
	_, err := Compile("baddev", rawSteps(
		step("leds", map[string]any{"led9": "ff0000"}),
	), newTestPlayers(t))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Key != "led9" {
		t.Errorf("Key = %q, want %q", verr.Key, "led9")
	}
}

func TestCompileTokenDeviceSkipsValidation(t *testing.T) {
	// Token-marked and tag-prefixed device names resolve later and must
	// not fail compile-time existence checks.
	s := mustCompile(t, "tokens", rawSteps(
		step("leds", map[string]any{"(target)": "ff0000", "tag|playfield": "00ff00"}),
	))
	if got := s.Tokens(); len(got) != 1 || got[0] != "target" {
		t.Errorf("Tokens() = %v, want [target]", got)
	}
}

// ─────────────────────────────────────────────
// Time value parsing
// ─────────────────────────────────────────────

func TestParseTimeValue(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		secs     float64
		relative bool
		wantErr  bool
	}{
		{"int", 3, 3, false, false},
		{"float", 1.5, 1.5, false, false},
		{"string seconds", "2", 2, false, false},
		{"suffix s", "1.5s", 1.5, false, false},
		{"suffix ms", "250ms", 0.25, false, false},
		{"relative", "+2", 2, true, false},
		{"relative ms", "+500ms", 0.5, true, false},
		{"garbage", "abc", 0, false, true},
		{"wrong type", []any{}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secs, relative, err := parseTimeValue(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if secs != tt.secs || relative != tt.relative {
				t.Errorf("got (%g, %v), want (%g, %v)", secs, relative, tt.secs, tt.relative)
			}
		})
	}
}

func TestParseDurationRejectsRelative(t *testing.T) {
	if _, err := parseDurationValue("+2"); err == nil {
		t.Error("expected error for relative duration")
	}
}
