// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tuyaopen/ai-monitor/internal/config"
	"github.com/tuyaopen/ai-monitor/internal/logging"
	"github.com/tuyaopen/ai-monitor/internal/monitor"
	"github.com/tuyaopen/ai-monitor/internal/transport"
)

func main() {
	configPath := flag.String("config", "/etc/tuya/ai-monitor.yaml", "path to the AI monitor config file")
	flag.Parse()

	cfg, err := config.LoadMonitorConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	baseLogger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	logSink := logging.NewMonitorLogSink(baseLogger.Handler())
	logger := slog.New(logSink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	loop := transport.NewLoop(logger)
	deps := monitor.Deps{
		NetworkManager: transport.LocalNetwork{},
		Activation:     transport.NewFixedActivation(true),
		SocketLoop:     loop,
		Encoder:        transport.SimpleEncoder{},
		Logger:         logger,
		LogSink:        logSink,
	}

	svc, err := monitor.New(*cfg, deps)
	if err != nil {
		logger.Error("failed to construct service", "err", err)
		os.Exit(1)
	}

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start service", "err", err)
		os.Exit(1)
	}
	logger.Info("ai monitor service started", "port", cfg.Port, "max_clients", cfg.MaxClients)

	<-ctx.Done()
	svc.Deinit()
	logger.Info("ai monitor service stopped")
}
