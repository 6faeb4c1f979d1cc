package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeusync/replica/internal/config"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/injector"
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

	srv, err := injector.InitializeServer(cfg, logger)
	if err != nil {
		logger.Fatal("Error creating server", log.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err = srv.Start(ctx); err != nil {
		logger.Fatal("Error starting server", log.Error(err))
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err = srv.Stop(stopCtx); err != nil {
		logger.Error("Error stopping server", log.Error(err))
	}
	_ = srv.Close()
}
