package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.AppName != "otbreview" {
		t.Errorf("Expected AppName 'otbreview', got %s", cfg.AppName)
	}

	if cfg.Version == "" {
		t.Error("Version not set")
	}

	if cfg.Board.RectifiedSide != 800 {
		t.Errorf("Expected RectifiedSide 800, got %d", cfg.Board.RectifiedSide)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config failed validation: %v", err)
	}

	cfg.Sampling.TargetFPS = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid target fps")
	}
	cfg.Sampling.TargetFPS = 2

	cfg.Board.Mode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid mode")
	}
	cfg.Board.Mode = "photometric"

	cfg.Engine.Depth = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid engine depth")
	}
	cfg.Engine.Depth = 14

	cfg.Performance.MaxConcurrentRuns = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid max_concurrent_runs")
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	cfg := DefaultConfig()
	cfg.AppName = "TestApp"

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.AppName != "TestApp" {
		t.Errorf("Expected AppName 'TestApp', got %s", loaded.AppName)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault("nonexistent.json")
	if cfg == nil {
		t.Fatal("LoadOrDefault returned nil")
	}

	if cfg.AppName != "otbreview" {
		t.Error("LoadOrDefault did not return default config")
	}

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	testCfg := DefaultConfig()
	testCfg.AppName = "CustomName"
	testCfg.Save(configPath)

	loaded := LoadOrDefault(configPath)
	if loaded.AppName != "CustomName" {
		t.Error("LoadOrDefault did not load existing config")
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Interface.LogPath = filepath.Join(tmpDir, "logs", "test.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("Failed to ensure directories: %v", err)
	}

	dir := filepath.Join(tmpDir, "logs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("Directory was not created: %s", dir)
	}
}

func TestConfigFieldsPresent(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Sampling.TargetFPS == 0 {
		t.Error("Sampling config not initialized")
	}

	if cfg.Board.RectifiedSide == 0 {
		t.Error("Board config not initialized")
	}

	if cfg.Engine.Depth == 0 {
		t.Error("Engine config not initialized")
	}

	if cfg.Interface.LogLevel == "" {
		t.Error("Interface config not initialized")
	}

	if cfg.Performance.MaxConcurrentRuns == 0 {
		t.Error("Performance config not initialized")
	}
}

func TestStockfishPathOverride(t *testing.T) {
	cfg := DefaultConfig()

	os.Setenv("STOCKFISH_PATH", "/usr/local/bin/stockfish")
	defer os.Unsetenv("STOCKFISH_PATH")

	if got := cfg.StockfishPath(); got != "/usr/local/bin/stockfish" {
		t.Errorf("expected env override, got %q", got)
	}

	cfg.Engine.Path = "/opt/stockfish"
	if got := cfg.StockfishPath(); got != "/opt/stockfish" {
		t.Errorf("expected explicit config path to win, got %q", got)
	}
}
