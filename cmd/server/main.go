package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chimera-protocol/chimera/apps/state/internal/api"
	"github.com/chimera-protocol/chimera/apps/state/internal/app"
	"github.com/chimera-protocol/chimera/apps/state/internal/config"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/mcp"
	"github.com/chimera-protocol/chimera/apps/state/internal/observability"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to chimera.yaml (default: search . and ~/.config/chimera)")
	flag.Parse()

	// Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logger
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, observability.Options{Version: version}, log)
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	// State core
	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Error("failed to build state core", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Hot reload
	if cfg.File != "" {
		w, err := config.NewWatcher(cfg, log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			w.OnChange(a.ApplyConfig)
			defer w.Stop()
		}
	}

	// Router
	mcpHandler := mcp.HTTPHandler(mcp.NewServer(a, version))
	router := api.NewRouter(a, mcpHandler, cfg.APIKey)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("state server starting", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server error", "error", err)
	}
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", "error", err)
	}

	log.Info("server stopped")
}
