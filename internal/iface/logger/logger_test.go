package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetupAndLog(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "run.log")

	if err := Setup(LevelDebug, logPath); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	Info("pipeline started", "run_id", "r1")
	LogStage(StageMetrics{RunID: "r1", Stage: "A", ItemsIn: 100, ItemsOut: 12, DurationMs: 512.3})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log output to be written to file")
	}
}

func TestStartOperationSuccessAndFailure(t *testing.T) {
	tmpDir := t.TempDir()
	if err := Setup(LevelInfo, filepath.Join(tmpDir, "run.log")); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	done := StartOperation("decode_move", map[string]any{"ply": 3})
	done(nil)

	done2 := StartOperation("engine_query", map[string]any{"ply": 4})
	done2(os.ErrDeadlineExceeded)
}

func TestAnalyzeLogs(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "run.log")
	if err := Setup(LevelDebug, logPath); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	Info("ok event")
	Error("boom", "error", "engine timeout")

	summary, err := AnalyzeLogs(logPath)
	if err != nil {
		t.Fatalf("AnalyzeLogs failed: %v", err)
	}
	if summary.TotalEntries == 0 {
		t.Error("expected at least one log entry")
	}
	if summary.ErrorCount == 0 {
		t.Error("expected at least one error entry")
	}
}
