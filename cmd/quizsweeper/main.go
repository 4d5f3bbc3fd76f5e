package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"paidquiz"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config file (defaults and PAIDQUIZ_* env vars otherwise)")
		once       = flag.Bool("once", false, "Run a single sweep and exit")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)

	flag.Parse()

	logger := paidquiz.NewLogger(os.Stderr, *verbose)
	if err := run(logger, *configPath, *once, *verbose); err != nil {
		level.Error(logger).Log("msg", "quizsweeper failed", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, configPath string, once, verbose bool) error {
	cfg, err := paidquiz.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Verbose && !verbose {
		logger = paidquiz.NewLogger(os.Stderr, true)
	}

	engine, err := paidquiz.NewEngine(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			level.Warn(logger).Log("msg", "failed to close engine", "err", err)
		}
	}()

	if once {
		result, err := engine.Sweeper.SweepOnce(context.Background())
		level.Info(logger).Log("msg", "sweep done", "expired_sets", result.ExpiredSets, "abandoned_sessions", result.AbandonedSessions)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sweeper exited: %w", err)
	}
	return nil
}
