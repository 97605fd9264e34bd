// Package config loads and validates the run-parameter defaults used by
// every otbreview subcommand.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	AppName     string            `json:"app_name"`
	Version     string            `json:"version"`
	Sampling    SamplingConfig    `json:"sampling"`
	Board       BoardConfig       `json:"board"`
	Engine      EngineConfig      `json:"engine"`
	Interface   InterfaceConfig   `json:"interface"`
	Performance PerformanceConfig `json:"performance"`
}

// SamplingConfig controls the Frame Sampler (component A).
type SamplingConfig struct {
	TargetFPS       float64 `json:"target_fps"`
	MotionThreshold float64 `json:"motion_threshold"`
	StableDuration  float64 `json:"stable_duration_seconds"`
}

// BoardConfig controls the Board Locator and Square Observer (components B, C).
type BoardConfig struct {
	RectifiedSide int     `json:"rectified_side"`
	UseMarkers    bool     `json:"use_markers"`
	Mode          string   `json:"mode"` // "photometric" | "tag"
	Orientation   string   `json:"orientation"` // "white_bottom" | "black_bottom"
	CalibSigma    float64  `json:"calibration_sigma"`
}

// EngineConfig controls the Engine Annotator (component E).
type EngineConfig struct {
	Path          string `json:"path"`
	Depth         int    `json:"depth"`
	PVLength      int    `json:"pv_length"`
	TimeoutMillis int    `json:"timeout_millis"`
}

// InterfaceConfig contains logging/run-root settings.
type InterfaceConfig struct {
	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path"`
	Quiet    bool   `json:"quiet"`
}

// PerformanceConfig holds resource limits for the watch supervisor.
type PerformanceConfig struct {
	MaxConcurrentRuns int `json:"max_concurrent_runs"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	return &cfg, nil
}

// Save writes the configuration to a file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		AppName: "otbreview",
		Version: "1.0.0",
		Sampling: SamplingConfig{
			TargetFPS:       2,
			MotionThreshold: 0.02,
			StableDuration:  1.5,
		},
		Board: BoardConfig{
			RectifiedSide: 800,
			UseMarkers:    true,
			Mode:          "photometric",
			Orientation:   "white_bottom",
			CalibSigma:    4,
		},
		Engine: EngineConfig{
			Path:          "",
			Depth:         14,
			PVLength:      6,
			TimeoutMillis: 5000,
		},
		Interface: InterfaceConfig{
			LogLevel: "info",
			LogPath:  filepath.Join(homeDir, ".otbreview", "logs", "otbreview.log"),
			Quiet:    false,
		},
		Performance: PerformanceConfig{
			MaxConcurrentRuns: 2,
		},
	}
}

// LoadOrDefault loads configuration from file, or returns default if not found.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Sampling.TargetFPS <= 0 || c.Sampling.TargetFPS > 60 {
		return errors.Errorf("invalid target_fps: %f (must be > 0 and <= 60)", c.Sampling.TargetFPS)
	}
	if c.Sampling.MotionThreshold <= 0 || c.Sampling.MotionThreshold >= 1 {
		return errors.Errorf("invalid motion_threshold: %f", c.Sampling.MotionThreshold)
	}
	if c.Sampling.StableDuration <= 0 {
		return errors.Errorf("invalid stable_duration_seconds: %f", c.Sampling.StableDuration)
	}
	if c.Board.RectifiedSide <= 0 {
		return errors.Errorf("invalid rectified_side: %d", c.Board.RectifiedSide)
	}
	if c.Board.Mode != "photometric" && c.Board.Mode != "tag" {
		return errors.Errorf("invalid mode: %q (must be photometric or tag)", c.Board.Mode)
	}
	if c.Board.Orientation != "white_bottom" && c.Board.Orientation != "black_bottom" {
		return errors.Errorf("invalid orientation: %q", c.Board.Orientation)
	}
	if c.Engine.Depth <= 0 {
		return errors.Errorf("invalid engine depth: %d", c.Engine.Depth)
	}
	if c.Performance.MaxConcurrentRuns <= 0 {
		return errors.Errorf("invalid max_concurrent_runs: %d", c.Performance.MaxConcurrentRuns)
	}
	return nil
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Interface.LogPath)}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}

	return nil
}

// StockfishPath resolves the engine binary path: explicit config value,
// else STOCKFISH_PATH environment override, else empty (callers then run
// without an engine; PATH is not searched).
func (c *Config) StockfishPath() string {
	if c.Engine.Path != "" {
		return c.Engine.Path
	}
	return os.Getenv("STOCKFISH_PATH")
}
