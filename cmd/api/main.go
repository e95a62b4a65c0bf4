package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/app"
	"github.com/nimasrn/bank-reconciler/internal/config"
	"github.com/nimasrn/bank-reconciler/internal/handlers"
	xhttp "github.com/nimasrn/bank-reconciler/pkg/http"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	logger.Info("starting reconciler api", "version", version, "commit", commit, "date", date)

	a, err := app.Connect(config.Get())
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		return
	}
	defer a.Close()

	if err := a.StartMetrics(); err != nil {
		logger.Error("failed to start metrics", "error", err)
		return
	}

	// transport
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.TimeoutMiddleware(config.Get().HttpRequestTimeout))
	s.Use(xhttp.CompressMiddleware(6))

	// v1 handlers
	transactionHandler := handlers.NewTransactionHandler(a.TransactionService, a.IngestService, a.ReconciliationService)
	reconcilerHandler := handlers.NewReconcilerHandler(a.Worker)
	healthHandler := handlers.NewHealthHandler(a.HealthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterTransactionRoutes(g, transactionHandler)
	handlers.RegisterReconcilerRoutes(g, reconcilerHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)
	s.Router.GET("/health", healthHandler.GetHealth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Worker.Start()

	p, err := a.Poller()
	if err != nil {
		logger.Error("failed to create bank poller", "error", err)
		return
	}
	if p != nil {
		go func() {
			_ = p.Run(ctx)
		}()
	}

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a.Worker.Stop()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	if err := a.Worker.Wait(shutdownCtx); err != nil {
		logger.Warn("reconciliation run did not finish before shutdown", "error", err)
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "path", path, "error", err)
				return ""
			}
			return path
		}
	}
	return ""
}
