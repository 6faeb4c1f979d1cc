package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/replica/internal/config"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/injector"
	"github.com/zeusync/replica/sdk/go/client"
)

func main() {
	configPath := flag.String("config", "configs/replica.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}
	logger := injector.InitializeLogger(cfg)
	defer func() { _ = logger.Sync() }()

	w, err := injector.InitializeWorld(cfg, logger)
	if err != nil {
		logger.Fatal("Error creating world", log.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := client.NewClient(cfg.Client, w, logger)
	if err != nil {
		logger.Fatal("Error creating client", log.Error(err))
	}
	c.OnStatus = func(op protocol.Op, status protocol.Status) {
		logger.Debug("Applied op", log.Stringer("op", op), log.Stringer("status", status))
	}

	err = c.Run(ctx)
	_ = c.Close()

	fields := []log.Field{
		log.Int("reconnects", c.Reconnects()),
		log.Int("entities", len(w.Entities())),
	}
	if s := c.Session(); s != nil {
		stats := s.Stats()
		fields = append(fields,
			log.Uint64("applied", stats.Applied),
			log.Uint64("failed", stats.Failed),
			log.Uint64("malformed", stats.Malformed),
		)
	}
	logger.Info("Client finished", fields...)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Client stopped", log.Error(err))
		os.Exit(1)
	}
}
