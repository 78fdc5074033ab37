// hlsgrabba-tui is a terminal front end for a running hlsgrabba daemon.
package main

import (
	"fmt"
	"os"

	"github.com/iconidentify/hlsgrabba/cmd/hlsgrabba-tui/internal/config"
	"github.com/iconidentify/hlsgrabba/cmd/hlsgrabba-tui/internal/ui"
)

func main() {
	cfg := config.Load()

	app, err := ui.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing TUI: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
