package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otbreview/otbreview/internal/artifact"
	"github.com/otbreview/otbreview/internal/config"
	"github.com/otbreview/otbreview/internal/domain"
	"github.com/otbreview/otbreview/internal/engine"
	"github.com/otbreview/otbreview/internal/iface/logger"
	"github.com/otbreview/otbreview/internal/pipeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// runAnalyze implements the "analyze" subcommand: run the full A-F
// pipeline once over a single video file and leave every artifact in
// -out.
func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	input := fs.String("input", "", "path to the recorded game video (required)")
	out := fs.String("out", "", "output directory for this run's artifacts (required)")
	configPath := fs.String("config", "", "path to a config.json; defaults are used when empty")
	mode := fs.String("mode", "", "override board.mode: photometric | tag")
	orientation := fs.String("orientation", "", "override board.orientation: white_bottom | black_bottom")
	enginePath := fs.String("engine", "", "override engine.path")
	depth := fs.Int("depth", 0, "override engine.depth (0 keeps the config value)")
	logLevel := fs.String("log-level", "", "override interface.log_level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *input == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-input and -out are required")
	}

	cfg := config.LoadOrDefault(*configPath)
	if *mode != "" {
		cfg.Board.Mode = *mode
	}
	if *orientation != "" {
		cfg.Board.Orientation = *orientation
	}
	if *enginePath != "" {
		cfg.Engine.Path = *enginePath
	}
	if *depth > 0 {
		cfg.Engine.Depth = *depth
	}
	if *logLevel != "" {
		cfg.Interface.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Setup(logger.Level(cfg.Interface.LogLevel), cfg.Interface.LogPath); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stdout"}
	if cfg.Interface.Quiet {
		zcfg.OutputPaths = nil
	}
	zlog, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("building analysis logger: %w", err)
	}
	defer zlog.Sync()

	store, err := artifact.NewStore(*out)
	if err != nil {
		return fmt.Errorf("preparing output directory: %w", err)
	}

	var eng *engine.Client
	if path := cfg.StockfishPath(); path != "" {
		eng, err = engine.NewClient(path, zlog)
		if err != nil {
			logger.Get().Warn("engine unavailable, moves will be annotated without eval", "error", err)
		} else {
			defer eng.Close()
		}
	}

	rc := domain.RunContext{
		ID:        uuid.NewString(),
		RootDir:   *out,
		InputPath: *input,
		CreatedAt: time.Now(),
		Params: domain.RunParams{
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
		},
	}
	if err := store.WriteRunMeta(rc); err != nil {
		logger.Get().Warn("failed to write run_meta.json", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rlog := logger.With("run_id", rc.ID)
	rlog.Info("starting analysis", "input", *input, "out", *out)

	game, stats, err := pipeline.Run(ctx, rc, store, eng, zlog)
	if err != nil {
		logger.LogError(err, map[string]any{"run_id": rc.ID, "input": *input})
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	rlog.Info("analysis complete", "result", game.Headers["Result"])

	fmt.Printf("\nrun %s complete\n", rc.ID)
	fmt.Printf("  plies decoded:        %d\n", stats.PliesDecoded)
	fmt.Printf("  uncertain plies:      %d\n", stats.UncertainPlies)
	fmt.Printf("  engine annotations:   %d\n", stats.EnginePliesAnnotated)
	fmt.Printf("  elapsed:              %s\n", stats.Elapsed)
	fmt.Printf("  result:               %s\n", game.Headers["Result"])
	fmt.Printf("  artifacts written to: %s\n", *out)
	if len(stats.Warnings) > 0 {
		fmt.Printf("  warnings:             %d (see logs)\n", len(stats.Warnings))
	}

	return nil
}
