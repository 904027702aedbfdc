package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/bundlesize/internal/config"
	"github.com/fluxbase-eu/bundlesize/internal/logging"
	"github.com/fluxbase-eu/bundlesize/internal/server"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
	logFormat   = flag.String("log-format", "auto", "Log format: auto, console or json")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("bundlesize %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	logging.Setup(os.Stderr, logging.Format(*logFormat), false)

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting bundlesize")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		logging.Setup(os.Stderr, logging.Format(*logFormat), true)
	}

	server.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
