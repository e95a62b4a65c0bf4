package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/nimasrn/bank-reconciler/pkg/logger"
)

var ErrNotStarted = errors.New("worker manager is not running")

type WorkerHandler = func(ctx context.Context, workerIndex int, job interface{})

type WorkerManager struct {
	jobChannel     chan interface{}
	numberOfWorker int
	do             WorkerHandler
	waiter         sync.WaitGroup

	mu      sync.RWMutex
	running bool
	ready   chan struct{}
}

// NewWorkerManager
// is a job manager based on go routines. Define the number of internal
// workers, and start publishing jobs using Enqueue. Jobs are distributed
// among the pool until the context given to Start is done.
func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &WorkerManager{
		numberOfWorker: numberOfWorkers,
		jobChannel:     make(chan interface{}, bufferSize),
		ready:          make(chan struct{}),
	}
}

// Ready is closed once Start has launched the workers.
func (w *WorkerManager) Ready() <-chan struct{} {
	return w.ready
}

func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// TryEnqueue publishes a job without blocking. It reports false when the
// buffer is full or the manager is not running.
func (w *WorkerManager) TryEnqueue(val interface{}) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.running {
		return false
	}
	select {
	case w.jobChannel <- val:
		return true
	default:
		return false
	}
}

// Enqueue blocks until the job is buffered or ctx is done.
func (w *WorkerManager) Enqueue(ctx context.Context, val interface{}) error {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()
	if !running {
		return ErrNotStarted
	}
	select {
	case w.jobChannel <- val:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start
// runs the workers and blocks until ctx is done. Jobs already picked up
// finish with the cancelled ctx; buffered jobs are dropped.
func (w *WorkerManager) Start(ctx context.Context) error {
	if w.do == nil {
		return errors.New("worker handler is not set")
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker manager already started")
	}
	w.running = true
	close(w.ready)
	w.mu.Unlock()

	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.do(ctx, index, job)
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	<-ctx.Done()
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.waiter.Wait()

	dropped := 0
	for {
		select {
		case <-w.jobChannel:
			dropped++
			continue
		default:
		}
		break
	}
	logger.Info("worker manager stopped", "workers", w.numberOfWorker, "dropped_jobs", dropped)
	return ctx.Err()
}
