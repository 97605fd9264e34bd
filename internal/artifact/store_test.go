package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/otbreview/otbreview/internal/domain"
)

func TestNewStoreCreatesLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range layoutDirs {
		if info, err := os.Stat(s.Path(d)); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", d)
		}
	}
}

func TestWriteJSONWritesNonEmptyFile(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	type payload struct {
		Name string `json:"name"`
	}
	if err := s.WriteJSON("thing.json", payload{Name: "rook"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(s.Path("thing.json"))
	if err != nil {
		t.Fatalf("unexpected error reading back: %v", err)
	}
	if !filepath.IsAbs(s.Path("thing.json")) {
		t.Errorf("expected absolute path")
	}
	if string(data) == "" {
		t.Errorf("expected non-empty JSON")
	}
}

func TestWriteJSONLeavesNoTempFiles(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.WriteJSON("a/b/c.json", map[string]int{"x": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := os.ReadDir(s.Path("a/b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range entries {
		if len(e.Name()) >= 5 && e.Name()[:5] == ".tmp-" {
			t.Errorf("found leftover temp file %s", e.Name())
		}
	}
}

func TestAppendCSVRowWritesHeaderOnce(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	header := []string{"t", "motion", "stable"}
	if err := s.AppendCSVRow("debug/motion.csv", header, []string{"0.0", "1.2", "false"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendCSVRow("debug/motion.csv", header, []string{"0.1", "0.2", "true"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(s.Path("debug/motion.csv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := splitLines(string(data))
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines (header + 2 rows), got %d: %v", len(lines), lines)
	}
	if lines[0] != "t,motion,stable" {
		t.Errorf("unexpected header row: %q", lines[0])
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}

func TestWriteRunMeta(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := domain.RunContext{
		ID:        "run-1",
		InputPath: "game.mp4",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Params: domain.RunParams{
			TargetFPS: 2,
			Mode:      domain.ModePhotometric,
		},
	}
	if err := s.WriteRunMeta(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(s.Path("run_meta.json")); err != nil {
		t.Errorf("expected run_meta.json to exist: %v", err)
	}
}

func TestReadOverrideMissingIsNotAnError(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	override, ok, err := s.ReadOverride()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || override != nil {
		t.Errorf("expected no override when file is absent")
	}
}

func TestReadOverrideParsesPresentFile(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.WriteJSON("board_ids_override.json", Override{FromFrameIndex: 42}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	override, ok, err := s.ReadOverride()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || override == nil {
		t.Fatal("expected an override to be found")
	}
	if override.FromFrameIndex != 42 {
		t.Errorf("expected FromFrameIndex 42, got %d", override.FromFrameIndex)
	}
}
