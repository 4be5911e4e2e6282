// Package main is the entry point for the Blockforge editor.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/blockforge/internal/config"
	"github.com/Faultbox/blockforge/internal/engine/blocks"
	"github.com/Faultbox/blockforge/internal/logger"
	"github.com/Faultbox/blockforge/internal/persistence"
	"github.com/Faultbox/blockforge/internal/telemetry"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("=== Blockforge Editor ===",
		zap.String("config", cmp.Or(cfg.Source, "defaults")),
		zap.String("backend", cfg.Persistence.Backend),
		zap.String("store", cfg.Persistence.StorePath()))
	logger.Sugar.Debugf("Config: %+v", cfg)

	if err := run(cfg); err != nil {
		logger.Error("editor error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("editor closed normally")
	logger.Sync()
}

func run(cfg *config.Config) error {
	reg := blocks.NewDefaultRegistry()
	if cfg.Blocks.CatalogFile != "" {
		if err := blocks.LoadCatalog(reg, cfg.Blocks.CatalogFile); err != nil {
			return fmt.Errorf("block catalog: %w", err)
		}
		logger.Info("block catalog loaded",
			zap.String("file", cfg.Blocks.CatalogFile),
			zap.Int("types", reg.Len()))
	}

	path := cfg.Persistence.StorePath()
	backend, err := persistence.Open(cfg.Persistence.Backend, path)
	if err != nil {
		return fmt.Errorf("open %s store %s: %w", cfg.Persistence.Backend, path, err)
	}
	bridge := persistence.NewBridge(backend)
	defer func() {
		if err := bridge.Close(); err != nil {
			logger.Warn("closing project store", zap.Error(err))
		}
	}()
	logger.Info("project store opened",
		zap.String("backend", cfg.Persistence.Backend),
		zap.String("path", path))

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsAddr != "" {
		metrics = telemetry.NewMetrics()
		addr, err := metrics.Serve(cfg.Telemetry.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		logger.Info("serving metrics", zap.Stringer("addr", addr))
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metrics.Close(ctx)
		}()
	}

	app, err := newApp(cfg, reg, bridge, metrics)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Run()
}
