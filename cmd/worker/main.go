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

	"github.com/ignite/bulkmail/internal/analytics"
	"github.com/ignite/bulkmail/internal/api"
	"github.com/ignite/bulkmail/internal/app"
	"github.com/ignite/bulkmail/internal/archive"
	"github.com/ignite/bulkmail/internal/config"
	"github.com/ignite/bulkmail/internal/pkg/logger"
	"github.com/ignite/bulkmail/internal/providers"
)

func main() {
	configPath := flag.String("config", envOrDefault("CONFIG_PATH", "config/config.yaml"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Open(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	adapters, err := providers.Enabled(cfg, deps.Settings)
	if err != nil {
		logger.Error("provider selection failed", "error", err)
		os.Exit(1)
	}
	for _, a := range adapters {
		logger.Info("provider enabled",
			"provider", a.Name(),
			"configured", a.IsConfigured(ctx),
			"batch_size", a.BatchSize())
	}

	archiver, recorder, err := archive.FromConfig(ctx, cfg.Archive)
	if err != nil {
		logger.Error("archive setup failed", "error", err)
		os.Exit(1)
	}
	var opts []analytics.Option
	if archiver != nil {
		opts = append(opts, analytics.WithArchiver(archiver))
	}
	if recorder != nil {
		opts = append(opts, analytics.WithCycleRecorder(recorder))
	}

	scheduler := analytics.NewScheduler(adapters, deps.Suppressions, deps.Cursors, deps.Locks,
		analytics.SchedulerConfigFrom(cfg.Analytics), opts...)
	if len(adapters) > 0 {
		scheduler.Start(ctx)
	} else {
		logger.Warn("no providers enabled, analytics polling is idle")
	}

	handlers := api.NewHandlers(adapters, deps.Suppressions, scheduler)
	router := api.SetupRoutes(handlers, api.NewHealthChecker(deps.DB, deps.Redis), cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("admin api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			done <- syscall.SIGTERM
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	scheduler.Stop()
	cancel()
	logger.Info("worker stopped")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
