package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/nimasrn/bank-reconciler/pkg/prom"
)

const DefaultInterval = 5 * time.Minute

var ErrRunInProgress = errors.New("reconciliation run already in progress")

type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

type Runner interface {
	RunAll(ctx context.Context) (*Summary, error)
}

type WorkerConfig struct {
	Interval time.Duration
	Enabled  bool
	// RunTimeout bounds a single pass. Zero means no bound.
	RunTimeout time.Duration
}

// ConfigUpdate is a partial WorkerConfig; nil fields are left unchanged.
type ConfigUpdate struct {
	Interval *time.Duration
	Enabled  *bool
}

type WorkerStats struct {
	processed       int64
	errors          int64
	matched         int64
	runs            int64
	lastProcessedNs int64
}

func (s *WorkerStats) record(summary *Summary, at time.Time) {
	atomic.AddInt64(&s.runs, 1)
	atomic.AddInt64(&s.processed, int64(summary.TotalProcessed))
	atomic.AddInt64(&s.errors, int64(summary.ErrorCount))
	atomic.AddInt64(&s.matched, int64(summary.MatchedCount))
	atomic.StoreInt64(&s.lastProcessedNs, at.UnixNano())
}

func (s *WorkerStats) recordFailure() {
	atomic.AddInt64(&s.runs, 1)
	atomic.AddInt64(&s.errors, 1)
}

type Status struct {
	State           State      `json:"state"`
	Enabled         bool       `json:"enabled"`
	Interval        string     `json:"interval"`
	IntervalSeconds float64    `json:"interval_seconds"`
	RunInProgress   bool       `json:"run_in_progress"`
	Runs            int64      `json:"runs"`
	ProcessedCount  int64      `json:"processed_count"`
	ErrorCount      int64      `json:"error_count"`
	MatchedCount    int64      `json:"matched_count"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// Worker schedules reconciliation passes. Passes never overlap: a tick or a
// manual run that finds one in progress is rejected with ErrRunInProgress.
type Worker struct {
	runner Runner
	lock   *RunLock

	mu     sync.Mutex
	config WorkerConfig
	state  State
	cancel context.CancelFunc

	runMu    sync.Mutex
	inFlight atomic.Bool
	stats    WorkerStats
}

// NewWorker creates a stopped worker. lock is optional.
func NewWorker(runner Runner, config WorkerConfig, lock *RunLock) *Worker {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Worker{
		runner: runner,
		lock:   lock,
		config: config,
		state:  StateStopped,
	}
}

// Start schedules a pass now and then every interval. Starting a running or
// disabled worker does nothing.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateRunning {
		logger.Info("reconciliation worker already running")
		return
	}
	if !w.config.Enabled {
		logger.Info("reconciliation worker is disabled, not starting")
		return
	}
	w.schedule(true)
	logger.Info("reconciliation worker started", "interval", w.config.Interval)
}

// Stop cancels the schedule. A pass already running is not interrupted.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateStopped {
		return
	}
	w.unschedule()
	logger.Info("reconciliation worker stopped")
}

// Wait blocks until the pass in flight, if any, has returned or ctx is done.
func (w *Worker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.runMu.Lock()
		w.runMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateConfig merges u into the current config. Changing the interval of a
// running worker replaces its schedule; disabling it stops the worker.
func (w *Worker) UpdateConfig(u ConfigUpdate) (WorkerConfig, error) {
	if u.Interval != nil && *u.Interval <= 0 {
		return WorkerConfig{}, fmt.Errorf("%w: interval must be positive", model.ErrValidation)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	intervalChanged := u.Interval != nil && *u.Interval != w.config.Interval
	if u.Interval != nil {
		w.config.Interval = *u.Interval
	}
	if u.Enabled != nil {
		w.config.Enabled = *u.Enabled
	}

	if w.state == StateRunning {
		switch {
		case !w.config.Enabled:
			w.unschedule()
			logger.Info("reconciliation worker disabled and stopped")
		case intervalChanged:
			w.unschedule()
			w.schedule(false)
			logger.Info("reconciliation worker rescheduled", "interval", w.config.Interval)
		}
	}
	return w.config, nil
}

func (w *Worker) Config() WorkerConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

func (w *Worker) Status() Status {
	w.mu.Lock()
	st := Status{
		State:           w.state,
		Enabled:         w.config.Enabled,
		Interval:        w.config.Interval.String(),
		IntervalSeconds: w.config.Interval.Seconds(),
	}
	w.mu.Unlock()

	st.RunInProgress = w.inFlight.Load()
	st.Runs = atomic.LoadInt64(&w.stats.runs)
	st.ProcessedCount = atomic.LoadInt64(&w.stats.processed)
	st.ErrorCount = atomic.LoadInt64(&w.stats.errors)
	st.MatchedCount = atomic.LoadInt64(&w.stats.matched)
	if ns := atomic.LoadInt64(&w.stats.lastProcessedNs); ns > 0 {
		t := time.Unix(0, ns).UTC()
		st.LastProcessedAt = &t
	}
	return st
}

// RunOnce performs a single pass unless one is already in progress.
func (w *Worker) RunOnce(ctx context.Context) (*Summary, error) {
	if !w.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer w.runMu.Unlock()

	w.inFlight.Store(true)
	defer w.inFlight.Store(false)

	if w.lock != nil {
		lease, err := w.lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		lease.KeepAlive()
		defer func() {
			if err := lease.Release(context.Background()); err != nil {
				logger.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	started := time.Now()
	summary, err := w.runner.RunAll(ctx)
	prom.ObserveRunDuration(time.Since(started).Seconds())
	if err != nil {
		w.stats.recordFailure()
		prom.AddRunErrors(1)
		return nil, err
	}

	w.stats.record(summary, time.Now())
	prom.AddRunErrors(summary.ErrorCount)
	return summary, nil
}

// schedule and unschedule must be called with mu held.
func (w *Worker) schedule(runNow bool) {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.state = StateRunning
	go w.loop(ctx, w.config.Interval, w.config.RunTimeout, runNow)
}

func (w *Worker) unschedule() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.state = StateStopped
}

func (w *Worker) loop(ctx context.Context, interval, runTimeout time.Duration, runNow bool) {
	if runNow {
		w.tick(runTimeout)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			w.tick(runTimeout)
		}
	}
}

func (w *Worker) tick(runTimeout time.Duration) {
	// a pass outlives the schedule that started it
	ctx := context.Background()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	_, err := w.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		logger.Info("skipping scheduled pass, previous pass still running")
		prom.IncRunSkipped("in_progress")
	case errors.Is(err, ErrLockHeld):
		logger.Debug("skipping scheduled pass, another instance holds the run lock")
		prom.IncRunSkipped("lock_held")
	default:
		logger.Error("scheduled reconciliation pass failed", "error", err)
	}
}
