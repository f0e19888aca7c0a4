package show

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/database"
	_ "github.com/tiltlogic/tiltlogic-core/migrations"
)

// ─────────────────────────────────────────────
// Test Helpers
// ─────────────────────────────────────────────

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     false,
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating database: %v", err)
	}

	return NewRepository(db.DB)
}

// ─────────────────────────────────────────────
// Audit trail
// ─────────────────────────────────────────────

func TestRepositoryRecordStartStop(t *testing.T) {
	repo := newTestRepository(t)
	started := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	id, err := repo.RecordStart(ExecutionStart{
		ShowName:  "attract",
		Key:       "mode_attract",
		Priority:  10,
		Speed:     1,
		Loops:     -1,
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("RecordStart failed: %v", err)
	}
	if id == "" {
		t.Fatal("RecordStart returned an empty id")
	}

	if err := repo.RecordStop(id, started.Add(30*time.Second), 7, "stopped"); err != nil {
		t.Fatalf("RecordStop failed: %v", err)
	}

	execs, err := repo.RecentExecutions(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentExecutions failed: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("got %d executions, want 1", len(execs))
	}

	e := execs[0]
	if e.ID != id || e.ShowName != "attract" || e.Key != "mode_attract" {
		t.Errorf("unexpected row: %+v", e)
	}
	if e.Priority != 10 || e.Loops != -1 || e.LoopsPlayed != 7 {
		t.Errorf("unexpected counters: %+v", e)
	}
	if e.StopReason != "stopped" {
		t.Errorf("StopReason = %q, want stopped", e.StopReason)
	}
	if e.StoppedAt == nil {
		t.Error("StoppedAt not recorded")
	}
}

func TestRepositoryRecentExecutionsOrder(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	for i, name := range []string{"first", "second", "third"} {
		if _, err := repo.RecordStart(ExecutionStart{
			ShowName:  name,
			Speed:     1,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("RecordStart(%s) failed: %v", name, err)
		}
	}

	execs, err := repo.RecentExecutions(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentExecutions failed: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("got %d executions, want 2", len(execs))
	}
	if execs[0].ShowName != "third" || execs[1].ShowName != "second" {
		t.Errorf("order = [%s %s], want [third second]", execs[0].ShowName, execs[1].ShowName)
	}
}

func TestRepositoryRecordsFromController(t *testing.T) {
	// Wire the repository into a controller and confirm a full
	// play/stop cycle lands in the audit trail.
	repo := newTestRepository(t)
	rig := newTestRig(t)
	rig.c.recorder = repo

	s := twoStepShow(t, "audited")
	in, err := rig.c.PlayShow(s, PlayOptions{Priority: 10, Loops: -1, Key: "test"})
	if err != nil {
		t.Fatalf("PlayShow failed: %v", err)
	}
	rig.frame()
	rig.c.StopShow(in)

	execs, err := repo.RecentExecutions(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentExecutions failed: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("got %d executions, want 1", len(execs))
	}
	if execs[0].ShowName != "audited" || execs[0].StopReason != "stopped" {
		t.Errorf("unexpected row: %+v", execs[0])
	}
}
