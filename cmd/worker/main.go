package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/app"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/logging"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg := config.LoadOrEnv(*configPath)
	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to start")
	}
	defer a.Close()

	w := worker.New(a.Store.Jobs, a.Engine, a.Importer, cfg.Worker, logger)

	// Start returns once ctx is cancelled and the current job is done.
	w.Start(ctx)
	logger.Info("worker shut down")
}
