package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"range-meter/src/config"
	"range-meter/src/logger"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Components
	c := setupComponents(ctx, cfg, appLogger)

	// 2. Upstream session. A failure here is reported, not retried.
	appLogger.Info("Connecting to %s upstream...", cfg.Upstream.Type)
	connectCtx, connectCancel := context.WithTimeout(ctx, time.Duration(cfg.Network.RequestTimeout)*time.Second)
	err = c.session.Connect(connectCtx)
	connectCancel()
	if err != nil {
		appLogger.Critical("Upstream unavailable: %v", err)
	}

	// 3. Servers
	grpcServer := startServers(ctx, c, cfg, appLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := c.server.Stop(shutdownCtx); err != nil {
		appLogger.Warning("HTTP shutdown: %v", err)
	}
	if err := c.session.Close(); err != nil {
		appLogger.Warning("Session close: %v", err)
	}
	if c.mirror != nil {
		c.mirror.Close()
	}
	if err := c.db.Close(); err != nil {
		appLogger.Warning("DB close: %v", err)
	}
}
