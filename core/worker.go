package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"argus/metrics"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// poolStopTimeout bounds how long Stop waits for in-flight tasks.
const poolStopTimeout = 30 * time.Second

// WorkerPool runs submitted tasks on a fixed set of goroutines.
type WorkerPool struct {
	workers   int
	queueSize int
	taskCh    chan func()
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	mu        sync.RWMutex
	poolType  string // metrics label
}

// NewWorkerPool creates a pool bound to parentCtx. Workers are not started
// until Start is called; cancelling parentCtx stops them.
func NewWorkerPool(parentCtx context.Context, workers int, queueSize int, poolType string, logger *zap.SugaredLogger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if poolType == "" {
		poolType = "default"
	}
	ctx, cancel := context.WithCancel(parentCtx)
	return &WorkerPool{
		workers:   workers,
		queueSize: queueSize,
		taskCh:    make(chan func(), queueSize),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		poolType:  poolType,
	}
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return nil
	}
	if err := wp.ctx.Err(); err != nil {
		return err
	}

	wp.running = true
	wp.logger.Debugw("Starting worker pool", "pool_type", wp.poolType, "workers", wp.workers, "queue_size", wp.queueSize)
	metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.poolType).Set(float64(wp.workers))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	return nil
}

// Stop closes the queue and waits for the workers to drain it.
// Safe to call more than once.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.running {
		return
	}
	wp.running = false
	close(wp.taskCh)

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Debugw("Worker pool stopped", "pool_type", wp.poolType)
		metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.poolType).Set(0)
	case <-time.After(poolStopTimeout):
		wp.logger.Errorw("Worker pool shutdown timed out - goroutines leaked",
			"pool_type", wp.poolType,
			"workers", wp.workers,
			"timeout_seconds", int(poolStopTimeout.Seconds()))
		metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.poolType).Set(-1)
	}
	wp.cancel()
}

// Submit enqueues a task, blocking until there is room, ctx is done or
// the pool stops.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return ErrWorkerPoolNotRunning
	}

	select {
	case wp.taskCh <- task:
		metrics.WorkerPoolQueueSize.WithLabelValues(wp.poolType).Set(float64(len(wp.taskCh)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		return ErrWorkerPoolNotRunning
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	defer goroutine.Recover("worker-pool", wp.logger)

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task, ok := <-wp.taskCh:
			if !ok {
				return
			}
			wp.run(id, task)
		}
	}
}

func (wp *WorkerPool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Errorw("Task panicked in worker", "pool_type", wp.poolType, "worker_id", id, "panic", r)
		}
	}()
	task()
	metrics.WorkerPoolTasksProcessed.WithLabelValues(wp.poolType).Inc()
}

var ErrWorkerPoolNotRunning = errors.New("worker pool is not running")
