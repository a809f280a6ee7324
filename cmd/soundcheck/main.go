// Soundcheck relay server — broadcast hub + analysis trigger API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/soundcheck-live/soundcheck/pkg/analyzer"
	"github.com/soundcheck-live/soundcheck/pkg/api"
	"github.com/soundcheck-live/soundcheck/pkg/config"
	"github.com/soundcheck-live/soundcheck/pkg/hub"
	"github.com/soundcheck-live/soundcheck/pkg/logger"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	an, err := analyzer.New(cfg.Analyzer.Provider, cfg.Analyzer.APIKey, cfg.Analyzer.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyzer: %v\n", err)
		os.Exit(1)
	}
	logger.InfoCF("main", "Analyzer configured", map[string]interface{}{
		"provider": cfg.Analyzer.Provider,
	})

	// Bring the hub up eagerly so viewers can connect before the first
	// analysis. A startup conflict means another owner already has the
	// endpoint — log and continue.
	if _, err := hub.Acquire(cfg.HubAddr()); err != nil {
		logger.WarnCF("main", "Hub not started at boot", map[string]interface{}{
			"error": err.Error(),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := api.NewServer(cfg, an)
	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.InfoC("main", "Shutting down")
	server.Stop()
	hub.ResetSingleton()
}
