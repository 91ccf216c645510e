package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/jsgist/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	mode := flag.String("runner-mode", "", "Sandbox transport: inproc or process (overrides RUNNER_MODE)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *mode != "" {
		cfg.Runner.Mode = *mode
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Server error: %v", runErr)
	}
}
