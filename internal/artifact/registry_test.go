package artifact

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := OpenRegistry(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("unexpected error opening registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestSeenReportsFalseForUnknownInput(t *testing.T) {
	reg := openTestRegistry(t)
	if _, ok, err := reg.Seen("never-seen.mp4"); err != nil || ok {
		t.Errorf("expected not-seen for an unknown input, ok=%v err=%v", ok, err)
	}
}

func TestMarkSeenThenSeenRoundTrips(t *testing.T) {
	reg := openTestRegistry(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := reg.MarkSeen("game.mp4", "run-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runID, ok, err := reg.Seen("game.mp4")
	if err != nil || !ok {
		t.Fatalf("expected seen, ok=%v err=%v", ok, err)
	}
	if runID != "run-1" {
		t.Errorf("expected run-1, got %q", runID)
	}
}

func TestMarkSeenInitializesQueuedStatus(t *testing.T) {
	reg := openTestRegistry(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := reg.MarkSeen("game.mp4", "run-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, ok, err := reg.Get("run-1")
	if err != nil || !ok {
		t.Fatalf("expected to find run-1, ok=%v err=%v", ok, err)
	}
	if rec.Status != "queued" {
		t.Errorf("expected queued status, got %q", rec.Status)
	}
}

func TestUpdateStatusRecordsErrorMessage(t *testing.T) {
	reg := openTestRegistry(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := reg.MarkSeen("game.mp4", "run-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	later := now.Add(time.Minute)
	if err := reg.UpdateStatus("run-1", "failed", later, errors.New("engine unavailable")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, ok, err := reg.Get("run-1")
	if err != nil || !ok {
		t.Fatalf("expected to find run-1, ok=%v err=%v", ok, err)
	}
	if rec.Status != "failed" || rec.Error != "engine unavailable" {
		t.Errorf("unexpected record after failure: %+v", rec)
	}
}

func TestListReturnsAllRecords(t *testing.T) {
	reg := openTestRegistry(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := reg.MarkSeen("a.mp4", "run-a", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.MarkSeen("b.mp4", "run-b", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, err := reg.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}
