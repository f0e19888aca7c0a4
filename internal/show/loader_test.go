package show

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiltlogic/tiltlogic-core/internal/device"
)

// ─────────────────────────────────────────────
// Test Helpers
// ─────────────────────────────────────────────

const testShowVersion = 5

// writeShowFile drops a show YAML into dir.
func writeShowFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing show file: %v", err)
	}
}

func newTestLibrary(t *testing.T, rig *testRig) (*Library, string) {
	t.Helper()
	dir := t.TempDir()
	lib := NewLibrary(rig.c, dir, testShowVersion, NewPlayers(newTestRegistry(t), nil), nil)
	return lib, dir
}

const validShow = `#show_version=5
- duration: 1
  leds:
    led1: ff0000
- duration: 1
  leds:
    led1: "000000"
`

// ─────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────

func TestLibraryLoadAll(t *testing.T) {
	rig := newTestRig(t)
	lib, dir := newTestLibrary(t, rig)

	writeShowFile(t, dir, "attract", validShow)
	writeShowFile(t, dir, "bonus", validShow)

	if err := lib.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if lib.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", lib.Count())
	}

	s, ok := lib.Get("attract")
	if !ok {
		t.Fatal("attract not loaded")
	}
	if s.TotalSteps() != 2 {
		t.Errorf("TotalSteps() = %d, want 2", s.TotalSteps())
	}

	names := lib.Names()
	if len(names) != 2 || names[0] != "attract" || names[1] != "bonus" {
		t.Errorf("Names() = %v, want [attract bonus]", names)
	}
}

func TestLibraryVersionMismatch(t *testing.T) {
	rig := newTestRig(t)
	lib, dir := newTestLibrary(t, rig)

	writeShowFile(t, dir, "old", "#show_version=4\n- duration: 1\n")
	err := lib.loadFile("old", filepath.Join(dir, "old.yaml"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	var verr *VersionError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VersionError, got %T", err)
	}
	if verr.Required != 5 || verr.Found != 4 {
		t.Errorf("got required %d found %d, want 5/4", verr.Required, verr.Found)
	}
}

func TestLibraryMissingVersionMarker(t *testing.T) {
	rig := newTestRig(t)
	lib, dir := newTestLibrary(t, rig)

	writeShowFile(t, dir, "unmarked", "- duration: 1\n")
	err := lib.loadFile("unmarked", filepath.Join(dir, "unmarked.yaml"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("expected ErrVersionMismatch for missing marker, got %v", err)
	}
}

func TestLibraryBadShowSkippedByLoadAll(t *testing.T) {
	rig := newTestRig(t)
	lib, dir := newTestLibrary(t, rig)

	writeShowFile(t, dir, "good", validShow)
	writeShowFile(t, dir, "broken", "#show_version=5\n- duration: 0\n")

	if err := lib.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if lib.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (broken show skipped)", lib.Count())
	}
	if _, ok := lib.Get("broken"); ok {
		t.Error("broken show was marked loaded")
	}
}

// ─────────────────────────────────────────────
// Deferred autoplay
// ─────────────────────────────────────────────

func TestLibraryDeferredPlayFiresOnLoad(t *testing.T) {
	rig := newTestRig(t)
	lib, dir := newTestLibrary(t, rig)

	in, err := lib.Play("attract", PlayOptions{Priority: 10, Loops: -1})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if in != nil {
		t.Fatal("play of an unloaded show returned an instance")
	}
	if rig.c.RunningCount() != 0 {
		t.Fatal("deferred play started before the show loaded")
	}

	writeShowFile(t, dir, "attract", validShow)
	if err := lib.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	rig.frame()

	if rig.c.RunningCount() != 1 {
		t.Fatalf("deferred play never fired, running = %d", rig.c.RunningCount())
	}
	if w, ok := rig.out.last(device.ClassLED, "led1"); !ok || w.value != "ff0000" {
		t.Errorf("deferred play's first step not applied, got %v (ok=%v)", w, ok)
	}
}

func TestLibraryDeferredPlayNeverFiresOnLoadFailure(t *testing.T) {
	rig := newTestRig(t)
	lib, dir := newTestLibrary(t, rig)

	if _, err := lib.Play("broken", PlayOptions{Priority: 10}); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	writeShowFile(t, dir, "broken", "#show_version=5\n- duration: 0\n")
	if err := lib.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	rig.frame()
	rig.tick(time.Second)

	if rig.c.RunningCount() != 0 {
		t.Error("deferred play fired for a show that failed to load")
	}
}

func TestLibraryReload(t *testing.T) {
	rig := newTestRig(t)
	lib, dir := newTestLibrary(t, rig)

	writeShowFile(t, dir, "attract", validShow)
	if err := lib.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	// Replace the file with a one-step variant and reload.
	writeShowFile(t, dir, "attract", "#show_version=5\n- duration: 2\n  leds:\n    led1: 00ff00\n")
	if err := lib.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	s, ok := lib.Get("attract")
	if !ok {
		t.Fatal("attract missing after reload")
	}
	if s.TotalSteps() != 1 {
		t.Errorf("TotalSteps() = %d, want 1 after reload", s.TotalSteps())
	}
}

func TestLibraryPlayLoadedShow(t *testing.T) {
	rig := newTestRig(t)
	lib, dir := newTestLibrary(t, rig)

	writeShowFile(t, dir, "attract", validShow)
	if err := lib.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	in, err := lib.Play("attract", PlayOptions{Priority: 10, Loops: -1})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if in == nil {
		t.Fatal("Play of a loaded show returned nil instance")
	}
	rig.frame()
	if rig.c.RunningCount() != 1 {
		t.Errorf("RunningCount() = %d, want 1", rig.c.RunningCount())
	}
}
