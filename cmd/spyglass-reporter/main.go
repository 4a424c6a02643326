// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/spyglass-obs/spyglass/delivery"
	"github.com/spyglass-obs/spyglass/lib/clock"
	"github.com/spyglass-obs/spyglass/lib/config"
	"github.com/spyglass-obs/spyglass/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "",
		"path to the spyglass.yaml config file (overrides SPYGLASS_CONFIG)")
	logLevel := pflag.String("log-level", "info",
		"log level: debug, info, warn, error")
	once := pflag.Bool("once", false,
		"run a single dispatch round and exit")
	pflag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if cfg.Reporter.ConsumersFile == "" {
		return fmt.Errorf("reporter.consumers_file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := delivery.LoadRegistry(cfg.Reporter.ConsumersFile)
	if err != nil {
		return err
	}

	broker, err := observability.NewBroker(cfg.Broker.URL,
		cfg.Broker.ConnectTimeout.Std(), cfg.Broker.MaxConnections)
	if err != nil {
		return fmt.Errorf("connecting broker pool: %w", err)
	}
	defer broker.Close()

	encoding, err := observability.ParseEncoding(cfg.Broker.Compression)
	if err != nil {
		return err
	}
	buffer := observability.NewEventBuffer(broker, observability.BufferConfig{
		Batch:        cfg.Broker.Batch,
		MaxLength:    cfg.Broker.MaxLength,
		DrainTimeout: cfg.Broker.DrainTimeout.Std(),
		Encoding:     encoding,
	}, clock.Real())

	sender := delivery.NewSchemeSender(delivery.NewHTTPSender(
		&http.Client{Timeout: 30 * time.Second}, cfg.Domain))
	deliverer := delivery.NewDeliverer(registry, sender, logger)

	dispatcher := observability.NewDispatcher(buffer, deliverer,
		cfg.Reporter.Period.Std(), clock.Real(), logger)

	if *once {
		return dispatcher.DispatchOnce(ctx)
	}

	logger.Info("spyglass reporter running",
		"broker", cfg.Broker.URL,
		"period", cfg.Reporter.Period,
		"batch", cfg.Broker.Batch,
		"compression", cfg.Broker.Compression,
	)
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("spyglass reporter stopped")
	return nil
}
