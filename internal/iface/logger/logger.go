// Package logger wraps log/slog with run/stage-oriented structured helpers
// shared by every otbreview subcommand.
package logger

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var defaultLogger *slog.Logger

// Level represents log level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Setup initializes the logger with the specified configuration.
func Setup(level Level, logPath string) error {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	if logPath != "" {
		dir := filepath.Dir(logPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "create log directory")
		}
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if logPath != "" {
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		writers = append(writers, file)
	}

	multiWriter := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: false,
	}

	handler := slog.NewTextHandler(multiWriter, opts)
	defaultLogger = slog.New(handler)

	return nil
}

// Get returns the default logger instance.
func Get() *slog.Logger {
	if defaultLogger == nil {
		Setup(LevelInfo, "")
	}
	return defaultLogger
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// With returns a logger with additional attributes.
func With(args ...any) *slog.Logger { return Get().With(args...) }

// WithGroup returns a logger with a group name.
func WithGroup(name string) *slog.Logger { return Get().WithGroup(name) }

// LogEvent logs a structured event.
func LogEvent(event string, attrs map[string]any) {
	args := make([]any, 0, len(attrs)*2)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	Get().Info(event, args...)
}

// LogPerformance logs performance metrics.
func LogPerformance(operation string, duration float64, success bool) {
	Get().Info("performance",
		"operation", operation,
		"duration_ms", duration,
		"success", success,
	)
}

// LogError logs an error with context.
func LogError(err error, context map[string]any) {
	args := make([]any, 0, len(context)*2+2)
	args = append(args, "error", err.Error())
	for k, v := range context {
		args = append(args, k, v)
	}
	Get().Error("error occurred", args...)
}

// StageMetrics describes a completed pipeline stage (Frame Sampler, Board
// Locator, Square Observer, Move Decoder, Engine Annotator).
type StageMetrics struct {
	RunID       string
	Stage       string // "A".."F"
	ItemsIn     int
	ItemsOut    int
	FailedItems int
	DurationMs  float64
}

// LogStage logs a completed pipeline stage.
func LogStage(metrics StageMetrics) {
	Get().Info("stage_complete",
		"run_id", metrics.RunID,
		"stage", metrics.Stage,
		"items_in", metrics.ItemsIn,
		"items_out", metrics.ItemsOut,
		"failed", metrics.FailedItems,
		"duration_ms", fmt.Sprintf("%.1f", metrics.DurationMs),
	)
}

// PlyMetrics describes a single annotated ply.
type PlyMetrics struct {
	RunID          string
	Ply            int
	SAN            string
	EvalCP         int
	Classification string
	Uncertain      bool
}

// LogPly logs a single engine-annotated ply.
func LogPly(metrics PlyMetrics) {
	Get().Debug("ply_annotated",
		"run_id", metrics.RunID,
		"ply", metrics.Ply,
		"san", metrics.SAN,
		"eval_cp", metrics.EvalCP,
		"classification", metrics.Classification,
		"uncertain", metrics.Uncertain,
	)
}

// SystemMetrics holds system resource metrics.
type SystemMetrics struct {
	CPUPercent    float64
	MemoryUsedMB  float64
	MemoryTotalMB float64
	ActiveRuns    int
}

// LogSystemMetrics logs system resource usage, used by the watch supervisor.
func LogSystemMetrics(metrics SystemMetrics) {
	memPercent := 0.0
	if metrics.MemoryTotalMB > 0 {
		memPercent = (metrics.MemoryUsedMB / metrics.MemoryTotalMB) * 100
	}
	Get().Info("system_metrics",
		"cpu_percent", fmt.Sprintf("%.1f%%", metrics.CPUPercent),
		"memory_used_mb", fmt.Sprintf("%.1f", metrics.MemoryUsedMB),
		"memory_percent", fmt.Sprintf("%.1f%%", memPercent),
		"active_runs", metrics.ActiveRuns,
	)
}

// ProfilerMetrics tracks code performance profiling.
type ProfilerMetrics struct {
	FunctionName string
	CallCount    int
	TotalTimeMs  float64
	AvgTimeMs    float64
}

// LogProfiler logs performance profiling data.
func LogProfiler(metrics ProfilerMetrics) {
	Get().Debug("profiler",
		"function", metrics.FunctionName,
		"calls", metrics.CallCount,
		"total_ms", fmt.Sprintf("%.2f", metrics.TotalTimeMs),
		"avg_ms", fmt.Sprintf("%.3f", metrics.AvgTimeMs),
	)
}

// StartOperation logs the start of an operation and returns a cleanup function.
func StartOperation(operation string, attrs map[string]any) func(error) {
	startTime := time.Now()

	logArgs := make([]any, 0, len(attrs)*2+2)
	logArgs = append(logArgs, "operation", operation)
	for k, v := range attrs {
		logArgs = append(logArgs, k, v)
	}
	Get().Info("operation_start", logArgs...)

	return func(err error) {
		duration := time.Since(startTime)
		success := err == nil

		endArgs := make([]any, 0, len(attrs)*2+6)
		endArgs = append(endArgs, "operation", operation)
		endArgs = append(endArgs, "duration_ms", duration.Milliseconds())
		endArgs = append(endArgs, "success", success)
		if err != nil {
			endArgs = append(endArgs, "error", err.Error())
		}
		for k, v := range attrs {
			endArgs = append(endArgs, k, v)
		}

		if success {
			Get().Info("operation_complete", endArgs...)
		} else {
			Get().Error("operation_failed", endArgs...)
		}
	}
}

// LogSummary represents aggregated log statistics.
type LogSummary struct {
	TotalEntries int
	ErrorCount   int
	WarningCount int
	InfoCount    int
	DebugCount   int
	AvgLatencyMs float64
	ErrorRate    float64
	TopErrors    map[string]int
}

// AnalyzeLogs provides summary statistics by parsing log files.
func AnalyzeLogs(logFilePath string) (*LogSummary, error) {
	file, err := os.Open(logFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	defer file.Close()

	summary := &LogSummary{TopErrors: make(map[string]int)}

	var totalLatency float64
	var latencyCount int

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		summary.TotalEntries++

		switch {
		case strings.Contains(line, "level=ERROR"):
			summary.ErrorCount++
			if idx := strings.Index(line, "error="); idx != -1 {
				if msg := extractQuotedValue(line[idx:]); msg != "" {
					summary.TopErrors[msg]++
				}
			}
		case strings.Contains(line, "level=WARN"):
			summary.WarningCount++
		case strings.Contains(line, "level=INFO"):
			summary.InfoCount++
		case strings.Contains(line, "level=DEBUG"):
			summary.DebugCount++
		}

		if idx := strings.Index(line, "duration_ms="); idx != -1 {
			latencyStr := extractNumericValue(line[idx+12:])
			if latency, err := strconv.ParseFloat(latencyStr, 64); err == nil {
				totalLatency += latency
				latencyCount++
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read log file")
	}

	if latencyCount > 0 {
		summary.AvgLatencyMs = totalLatency / float64(latencyCount)
	}
	if summary.TotalEntries > 0 {
		summary.ErrorRate = float64(summary.ErrorCount) / float64(summary.TotalEntries) * 100
	}

	return summary, nil
}

func extractQuotedValue(s string) string {
	if idx := strings.Index(s, "\""); idx != -1 {
		s = s[idx+1:]
		if endIdx := strings.Index(s, "\""); endIdx != -1 {
			return s[:endIdx]
		}
	}
	if idx := strings.Index(s, " "); idx != -1 {
		return s[:idx]
	}
	return s
}

func extractNumericValue(s string) string {
	var result strings.Builder
	for _, ch := range s {
		if (ch >= '0' && ch <= '9') || ch == '.' || ch == '-' {
			result.WriteRune(ch)
		} else {
			break
		}
	}
	return result.String()
}

// FormatMove formats a decoded move for logging.
func FormatMove(san, uci string, uncertain bool) map[string]any {
	return map[string]any{
		"san":       san,
		"uci":       uci,
		"uncertain": uncertain,
	}
}
