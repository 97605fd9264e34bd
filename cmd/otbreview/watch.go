package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/otbreview/otbreview/internal/artifact"
	"github.com/otbreview/otbreview/internal/config"
	"github.com/otbreview/otbreview/internal/engine"
	"github.com/otbreview/otbreview/internal/iface/logger"
	"github.com/otbreview/otbreview/internal/pipeline"
	"go.uber.org/zap"
)

// runWatch implements the "watch" subcommand: supervise an inbox
// directory and analyze every new recording that settles there, the
// long-running counterpart to "analyze".
func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	inbox := fs.String("inbox", "", "directory to watch for new recordings (required)")
	outRoot := fs.String("out", "", "root directory under which each run gets its own subdirectory (required)")
	configPath := fs.String("config", "", "path to a config.json; defaults are used when empty")
	registryPath := fs.String("registry", "", "path to the run registry database (defaults to <out>/registry.db)")
	maxConcurrent := fs.Int("max-concurrent", 0, "override performance.max_concurrent_runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *inbox == "" || *outRoot == "" {
		fs.Usage()
		return fmt.Errorf("-inbox and -out are required")
	}

	cfg := config.LoadOrDefault(*configPath)
	if *maxConcurrent > 0 {
		cfg.Performance.MaxConcurrentRuns = *maxConcurrent
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(*outRoot, 0o755); err != nil {
		return fmt.Errorf("preparing output root: %w", err)
	}

	if err := logger.Setup(logger.Level(cfg.Interface.LogLevel), cfg.Interface.LogPath); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	regPath := *registryPath
	if regPath == "" {
		regPath = filepath.Join(*outRoot, "registry.db")
	}
	registry, err := artifact.OpenRegistry(regPath)
	if err != nil {
		return fmt.Errorf("opening run registry: %w", err)
	}
	defer registry.Close()

	zlog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building watch logger: %w", err)
	}
	defer zlog.Sync()

	var eng *engine.Client
	if path := cfg.StockfishPath(); path != "" {
		eng, err = engine.NewClient(path, zlog)
		if err != nil {
			logger.Get().Warn("engine unavailable, runs will be annotated without eval", "error", err)
		} else {
			defer eng.Close()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wlog := logger.WithGroup("watch")
	wlog.Info("watching inbox", "inbox", *inbox, "out_root", *outRoot)

	err = pipeline.Watch(ctx, pipeline.WatchOptions{
		InboxDir:      *inbox,
		OutRootDir:    *outRoot,
		Cfg:           cfg,
		Registry:      registry,
		Engine:        eng,
		Logger:        zlog,
		MaxConcurrent: cfg.Performance.MaxConcurrentRuns,
	})
	if err != nil {
		logger.LogError(err, map[string]any{"inbox": *inbox, "out_root": *outRoot})
	}
	return err
}
