package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
	"github.com/chimera-protocol/chimera/apps/state/internal/config"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/mcp"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to chimera.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %s\n", err)
		os.Exit(1)
	}

	// zap writes to stderr, leaving stdout to the protocol.
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %s\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Error("failed to build state core", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	log.Info("mcp server starting (stdio)", "version", version)
	if err := mcp.NewServer(a, version).Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
