// Package main provides the flashdeck command line tool. It runs profile
// operations and media maintenance against the configured local stores.
//
// Usage:
//
//	flashdeck [config flags] <command> [command flags] [args]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/flashdeck/flashdeck/internal/config"
	"github.com/flashdeck/flashdeck/internal/di"
	"github.com/flashdeck/flashdeck/internal/logger"
)

func main() {
	injector := di.NewContainer()

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}

	if len(cfg.Args) == 0 {
		usage()
		os.Exit(2)
	}
	name, args := cfg.Args[0], cfg.Args[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	if cmd.prepare != nil {
		if err := cmd.prepare(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to prepare %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	runErr := cmd.run(ctx, &app{injector: injector, out: os.Stdout}, args)
	stop()

	// The container settles queued media work and closes every store.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	if runErr != nil {
		log.Error("Command failed", "command", name, "error", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: flashdeck [config flags] <command> [command flags] [args]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", name, commands[name].summary)
	}
}
