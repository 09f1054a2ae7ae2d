package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
	"github.com/chimera-protocol/chimera/apps/state/internal/config"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "Path to chimera.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log output would tear the alt screen.
	a, err := app.New(ctx, cfg, logger.NewNop(), app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting state core: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	p := tea.NewProgram(
		tui.NewModel(ctx, a),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
