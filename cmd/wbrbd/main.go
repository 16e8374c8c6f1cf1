// Package main is the entry point for wbrbd, the demonstration daemon that
// embeds the write-behind, resync-in-background cache engine behind a
// configurable storage backend and an admin/status HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitaliisemenov/wbrbcache/internal/config"
	"github.com/vitaliisemenov/wbrbcache/pkg/logger"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/wbrbmetrics"
)

const (
	serviceName    = "wbrbd"
	serviceVersion = "0.1.0"
)

func main() {
	var configPath = flag.String("config", "", "Path to YAML config file (optional; env vars and defaults apply regardless)")
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	log.Info("starting wbrbd",
		"service", serviceName, "version", serviceVersion,
		"profile", cfg.GetProfileName(), "storage_backend", cfg.Storage.Backend,
	)

	engineCfg, err := buildEngineConfig(cfg.WBRB)
	if err != nil {
		log.Error("invalid wbrb engine configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := buildStorage(ctx, *cfg, log)
	if err != nil {
		log.Error("failed to initialize storage backend", "error", err)
		os.Exit(1)
	}
	if backend.closer != nil {
		defer func() {
			if err := backend.closer(); err != nil {
				log.Warn("error closing storage backend", "error", err)
			}
		}()
	}

	cache, err := wbrbcache.New[string, string, string, string, string, string](
		engineCfg, backend.storage, stringAdapters(), nil, nil,
	)
	if err != nil {
		log.Error("failed to construct cache engine", "error", err)
		os.Exit(1)
	}
	cache.Start(ctx)

	collector := wbrbmetrics.NewCollector(cfg.Metrics.Namespace)
	stopPoll := make(chan struct{})
	go pollMetrics(cache, collector, 2*time.Second, stopPoll)

	configSvc := config.NewConfigService(cfg, *configPath, time.Now(), configSourceFor(*configPath))
	router := newRouter(cache, configSvc, cfg.Metrics, backend.healthCheck)
	handler := logger.LoggingMiddleware(log)(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("admin/status HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down wbrbd")
	close(stopPoll)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", "error", err)
	}

	if err := cache.Shutdown(shutdownCtx, wbrbcache.TimeInterval(cfg.Server.GracefulShutdownTimeout.Milliseconds())); err != nil {
		log.Error("cache did not shut down cleanly", "error", err)
	}

	log.Info("wbrbd stopped")
}

func configSourceFor(configPath string) config.ConfigSource {
	if configPath == "" {
		return config.ConfigSourceEnv
	}
	return config.ConfigSourceMixed
}
