// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command aggregator-gateway runs the journal aggregation gateway: it
// fans a patient-journal request out to a fixed set of backend
// resources, multiplexes their asynchronous callback results into a
// per-request Server-Sent Events stream, and exposes a WebRTC
// signaling relay alongside it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inera-health/aggregator-gateway/aggregator"
	"github.com/inera-health/aggregator-gateway/gatewayhttp"
	"github.com/inera-health/aggregator-gateway/lib/config"
	"github.com/inera-health/aggregator-gateway/lib/process"
	"github.com/inera-health/aggregator-gateway/lib/telemetry"
	"github.com/inera-health/aggregator-gateway/lib/version"
	"github.com/inera-health/aggregator-gateway/signaling"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("aggregator-gateway %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("starting aggregator-gateway",
		"version", version.Info(),
		"backends", len(cfg.ResourceURLs),
		"port", cfg.Port,
		"max_timeout", cfg.MaxTimeout,
	)

	tracingEnabled := os.Getenv("OTEL_ENABLED") != ""
	shutdownTracing, err := telemetry.Init("aggregator-gateway", tracingEnabled)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	engine := aggregator.NewEngine(cfg.ResourceURLs, cfg.CallbackURL, cfg.MaxTimeout, logger)
	handler := gatewayhttp.NewHandler(engine, logger)

	signalingManager := signaling.NewManager(cfg.ICEServers, 0, logger)
	signalingHandler := signaling.NewHandler(signalingManager, logger)

	server, err := gatewayhttp.NewServer(gatewayhttp.ServerConfig{
		Addr:      ":" + cfg.Port,
		Handler:   handler,
		Signaling: signalingHandler,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("listening", "addr", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("received shutdown signal")

	engine.Shutdown()
	signalingManager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("shutdown tracing", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
