// Package parallel runs independent score sessions concurrently. Sessions
// share nothing, so each run owns its network from start to finish and the
// pool only bounds how many run at once.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrPoolShutdown is returned when trying to submit tasks to a shutdown pool.
var ErrPoolShutdown = errors.New("worker pool has been shutdown")

// WorkerPool manages a fixed set of goroutines. Submit blocks while every
// worker is busy and the task buffer is full.
type WorkerPool struct {
	maxWorkers   int
	taskChan     chan func()
	workerWg     sync.WaitGroup
	shutdownChan chan struct{}
	once         sync.Once
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If maxWorkers is 0 or negative, it defaults to the number of CPU cores.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}

	pool := &WorkerPool{
		maxWorkers:   maxWorkers,
		taskChan:     make(chan func(), maxWorkers*2),
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < maxWorkers; i++ {
		pool.workerWg.Add(1)
		go pool.worker()
	}

	return pool
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int { return wp.maxWorkers }

func (wp *WorkerPool) worker() {
	defer wp.workerWg.Done()

	for {
		select {
		case task := <-wp.taskChan:
			task()
		case <-wp.shutdownChan:
			return
		}
	}
}

// Submit queues a task. It fails when ctx is done or the pool is shut
// down before a slot frees up.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	if task == nil {
		return fmt.Errorf("parallel: nil task")
	}
	select {
	case <-wp.shutdownChan:
		return ErrPoolShutdown
	default:
	}
	select {
	case wp.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.shutdownChan:
		return ErrPoolShutdown
	}
}

// Shutdown stops the workers once their current task is done. Tasks still
// buffered are dropped; callers that need every result wait for their
// tasks before shutting down, as RunAll does.
func (wp *WorkerPool) Shutdown() {
	wp.once.Do(func() {
		close(wp.shutdownChan)
		wp.workerWg.Wait()
	})
}

// RunAll runs fn for runs 0..n-1 on the pool and returns the results in run
// order. The first failing run cancels the context passed to the others;
// runs that have not started yet are skipped. A panic in fn is returned as
// the error of its run.
func RunAll[T any](ctx context.Context, pool *WorkerPool, n int, fn func(ctx context.Context, run int) (T, error)) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]T, n)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for run := 0; run < n; run++ {
		wg.Add(1)
		err := pool.Submit(ctx, func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("run %d panicked: %v", run, r))
				}
			}()
			res, err := fn(ctx, run)
			if err != nil {
				fail(fmt.Errorf("run %d: %w", run, err))
				return
			}
			results[run] = res
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return results, firstErr
	}
	return results, nil
}
