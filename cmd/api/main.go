package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/app"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/handlers"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/logging"
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

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		logger.WithError(err).Fatal("failed to create upload directory")
	}

	e := handlers.NewServer(handlers.Deps{
		Movements: a.Store.Movements,
		Payables:  a.Store.Payables,
		Runs:      a.Store.Runs,
		Imports:   a.Store.Imports,
		Jobs:      a.Store.Jobs,
		Queue:     a.Queue,
		Checks:    a.Checks,
		Server:    cfg.Server,
		Logger:    logger,
	})

	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()
	logger.WithField("port", cfg.Server.Port).Info("API server started")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
}
