package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jsgist/internal/runner"
	"github.com/GriffinCanCode/jsgist/internal/transport/process"
)

func main() {
	src := flag.String("src", "", "Sandbox url; its url parameter names the bootstrap script")
	timeout := flag.Duration("timeout", 10*time.Second, "Execution time limit")
	maxStack := flag.Int("max-call-stack", 1024, "JavaScript call stack limit")
	fetchTimeout := flag.Duration("fetch-timeout", 10*time.Second, "Bootstrap script fetch timeout")
	retries := flag.Int("fetch-retries", 2, "Bootstrap script fetch retries")
	level := flag.String("log-level", "info", "Log level for stderr")
	flag.Parse()

	logger, err := logging.New(logging.RunnerConfig(*level))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *src == "" {
		logger.Fatal("Missing -src")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := runner.Config{
		Timeout:          *timeout,
		MaxCallStackSize: *maxStack,
		Loader:           runner.NewHTTPLoader(*fetchTimeout, *retries, logger.Logger),
	}
	if err := process.ServeStdio(ctx, *src, os.Stdin, os.Stdout, cfg, logger.Component("runner")); err != nil {
		logger.Error("Runner failed", zap.Error(err))
		os.Exit(1)
	}
}
