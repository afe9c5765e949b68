package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idgen_server/config"
	"idgen_server/internal/bootstrap"
	"idgen_server/internal/console"
	"idgen_server/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "idgen",
	})

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "api", "Run mode: api, worker, console")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	switch *mode {
	case "api":
		runAPI(cfg)
	case "worker":
		runWorker(cfg)
	case "console":
		runConsole(cfg)
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(cfg *config.Config) {
	app, deps, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize API: %v", err)
	}
	defer cleanup()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigChan:
			logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		case err := <-deps.LeaseLost:
			// Another instance may now own our node id; stop issuing.
			logger.WithError(err).Error("Node lease lost, shutting down")
		}

		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func runWorker(cfg *config.Config) {
	worker, cleanup, err := bootstrap.NewWorker(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize worker: %v", err)
	}
	defer cleanup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down worker...")
		worker.Stop()
	}()

	logger.Info("Starting worker...")
	if err := worker.Start(); err != nil {
		logger.Error("Worker stopped: %v", err)
	}
}

func runConsole(cfg *config.Config) {
	bootstrap.InitLogger(cfg)
	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize console: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := console.New(deps.Service, console.Options{
		In:        os.Stdin,
		Out:       os.Stdout,
		JWTSecret: cfg.JWTSecret,
	})
	if err := c.Run(ctx); err != nil {
		logger.Error("Console stopped: %v", err)
	}
}
