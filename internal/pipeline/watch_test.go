package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/otbreview/otbreview/internal/artifact"
	"github.com/otbreview/otbreview/internal/config"
	"github.com/otbreview/otbreview/internal/domain"
	"go.uber.org/zap"
)

func TestRunParamsFromConfigTranslatesFields(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Board.Mode = "tag"
	cfg.Board.Orientation = "black_bottom"

	p := runParamsFromConfig(cfg)
	if p.Mode != domain.ModeTag {
		t.Errorf("expected tag mode, got %q", p.Mode)
	}
	if p.Orientation != domain.OrientationBlackBottom {
		t.Errorf("expected black_bottom orientation, got %q", p.Orientation)
	}
	if p.EngineTimeout != time.Duration(cfg.Engine.TimeoutMillis)*time.Millisecond {
		t.Errorf("expected engine timeout to be translated from millis, got %v", p.EngineTimeout)
	}
}

func TestWatchRejectsMissingInboxDir(t *testing.T) {
	reg, err := artifact.OpenRegistry(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer reg.Close()

	err = Watch(context.Background(), WatchOptions{
		InboxDir:   filepath.Join(t.TempDir(), "does-not-exist"),
		OutRootDir: t.TempDir(),
		Cfg:        config.DefaultConfig(),
		Registry:   reg,
		Logger:     zap.NewNop(),
	})
	if err == nil {
		t.Error("expected an error for a missing inbox directory")
	}
}

func TestWatchReturnsPromptlyOnCancelWithEmptyInbox(t *testing.T) {
	reg, err := artifact.OpenRegistry(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, WatchOptions{
			InboxDir:   t.TempDir(),
			OutRootDir: t.TempDir(),
			Cfg:        config.DefaultConfig(),
			Registry:   reg,
			Logger:     zap.NewNop(),
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after context cancellation")
	}
}
