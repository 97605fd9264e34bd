package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/otbreview/otbreview/internal/artifact"
	"github.com/otbreview/otbreview/internal/config"
	"github.com/otbreview/otbreview/internal/domain"
	"github.com/otbreview/otbreview/internal/engine"
	ifacelog "github.com/otbreview/otbreview/internal/iface/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// videoExtensions mirrors the original watcher's suffix filter.
var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
}

const watchPollInterval = 2 * time.Second
const watchSettleDelay = 2 * time.Second

// WatchOptions configures the inbox supervisor.
type WatchOptions struct {
	InboxDir      string
	OutRootDir    string
	Cfg           *config.Config
	Registry      *artifact.Registry
	Engine        *engine.Client
	Logger        *zap.Logger
	MaxConcurrent int
}

// Watch polls InboxDir for new video files, grounded on the original
// watcher's on_created handler (suffix filter, settle delay, processed
// set) but using directory polling via time.Ticker since no
// filesystem-event library is present anywhere in this module's stack.
// Each newly-seen, settled file is dispatched to Run through a
// semaphore-bounded worker pool, and every outcome is durably recorded
// in the registry so a restarted watcher does not reprocess it.
func Watch(ctx context.Context, opts WatchOptions) error {
	if _, err := os.Stat(opts.InboxDir); err != nil {
		return errors.Wrapf(err, "inbox directory %s", opts.InboxDir)
	}

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	sem := make(chan struct{}, maxConcurrent)

	var wg sync.WaitGroup
	settling := make(map[string]time.Time)

	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	opts.Logger.Info("watch started", zap.String("inbox", opts.InboxDir), zap.Int("max_concurrent", maxConcurrent))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			entries, err := os.ReadDir(opts.InboxDir)
			if err != nil {
				opts.Logger.Warn("failed to scan inbox", zap.Error(err))
				continue
			}

			ifacelog.LogSystemMetrics(ifacelog.SystemMetrics{ActiveRuns: len(sem)})

			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				path := filepath.Join(opts.InboxDir, e.Name())
				if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
					continue
				}
				if _, seen, err := opts.Registry.Seen(path); err == nil && seen {
					continue
				}
				if _, stillSettling := settling[path]; !stillSettling {
					settling[path] = time.Now()
					continue
				}
				if time.Since(settling[path]) < watchSettleDelay {
					continue
				}
				delete(settling, path)

				if _, err := os.Stat(path); err != nil {
					continue // removed before it settled
				}

				wg.Add(1)
				sem <- struct{}{}
				go func(inputPath string) {
					defer wg.Done()
					defer func() { <-sem }()
					dispatchRun(ctx, opts, inputPath)
				}(path)
			}
		}
	}
}

func dispatchRun(ctx context.Context, opts WatchOptions, inputPath string) {
	now := time.Now()
	runID := uuid.NewString()
	outDir := filepath.Join(opts.OutRootDir, fmt.Sprintf("game_%s", now.Format("20060102_150405")))

	if err := opts.Registry.MarkSeen(inputPath, runID, now); err != nil {
		opts.Logger.Error("failed to record new run", zap.String("input", inputPath), zap.Error(err))
		return
	}
	opts.Logger.Info("new input detected", zap.String("input", inputPath), zap.String("run_id", runID))

	_ = opts.Registry.UpdateStatus(runID, "running", time.Now(), nil)

	store, err := artifact.NewStore(outDir)
	if err != nil {
		opts.Logger.Error("failed to create run store", zap.String("run_id", runID), zap.Error(err))
		_ = opts.Registry.UpdateStatus(runID, "failed", time.Now(), err)
		return
	}

	rc := domain.RunContext{
		ID:        runID,
		RootDir:   outDir,
		InputPath: inputPath,
		CreatedAt: now,
		Params:    runParamsFromConfig(opts.Cfg),
	}
	if err := store.WriteRunMeta(rc); err != nil {
		opts.Logger.Warn("failed to write run_meta.json", zap.String("run_id", runID), zap.Error(err))
	}

	_, _, err = Run(ctx, rc, store, opts.Engine, opts.Logger)
	if err != nil {
		opts.Logger.Error("run failed", zap.String("run_id", runID), zap.Error(err))
		_ = opts.Registry.UpdateStatus(runID, "failed", time.Now(), err)
		return
	}

	opts.Logger.Info("run complete", zap.String("run_id", runID), zap.String("out_dir", outDir))
	_ = opts.Registry.UpdateStatus(runID, "done", time.Now(), nil)
}

// runParamsFromConfig translates the on-disk config into the immutable
// per-run parameter record.
func runParamsFromConfig(cfg *config.Config) domain.RunParams {
	return domain.RunParams{
		TargetFPS:       cfg.Sampling.TargetFPS,
		MotionThreshold: cfg.Sampling.MotionThreshold,
		StableDuration:  cfg.Sampling.StableDuration,
		Mode:            domain.Mode(cfg.Board.Mode),
		Orientation:     domain.Orientation(cfg.Board.Orientation),
		UseMarkers:      cfg.Board.UseMarkers,
		RectifiedSide:   cfg.Board.RectifiedSide,
		EngineDepth:     cfg.Engine.Depth,
		PVLength:        cfg.Engine.PVLength,
		EngineTimeout:   time.Duration(cfg.Engine.TimeoutMillis) * time.Millisecond,
	}
}
