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
	"github.com/nimasrn/bank-reconciler/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// reconciler runs the matching worker and the bank poller without the http
// api. Several replicas can run side by side with RECONCILE_LOCK_ENABLED.
func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	logger.Info("starting reconciler worker", "version", version, "commit", commit, "date", date)

	if !config.Get().ReconcileEnabled && !config.Get().BankPollEnabled {
		logger.Error("both RECONCILE_ENABLED and BANK_POLL_ENABLED are off, nothing to run")
		return
	}
	if !config.Get().ReconcileLockEnabled {
		logger.Warn("run lock is disabled, do not scale this process beyond one replica")
	}

	a, err := app.Connect(config.Get())
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		return
	}
	defer a.Close()

	if err := a.StartMetrics(); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Worker.Start()

	p, err := a.Poller()
	if err != nil {
		logger.Error("failed to create bank poller", "error", err)
		return
	}
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if p != nil {
			_ = p.Run(ctx)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down reconciler worker")

	a.Worker.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Worker.Wait(shutdownCtx); err != nil {
		logger.Warn("reconciliation run did not finish before shutdown", "error", err)
	}
	<-pollDone

	st := a.Worker.Status()
	logger.Info("reconciler worker exited",
		"runs", st.Runs,
		"processed", st.ProcessedCount,
		"matched", st.MatchedCount,
		"errors", st.ErrorCount)
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
