package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andika/product-import/internal/logger"
)

// ErrRunnerClosed is returned when a batch is dispatched after Shutdown.
var ErrRunnerClosed = errors.New("task runner is closed")

// Task is one independent unit of background work. Run is executed
// at least once; OnFailure fires after all retry attempts are exhausted.
type Task struct {
	Run       func(ctx context.Context) error
	OnFailure func(ctx context.Context, err error)
}

// Batch groups independent tasks with batch-level continuations.
// OnComplete fires exactly once, after every task has finished, whether
// individual tasks succeeded or failed. OnError fires only when the batch
// itself cannot be started.
type Batch struct {
	Tasks      []Task
	OnComplete func(ctx context.Context)
	OnError    func(ctx context.Context, err error)
}

// Config holds runner tuning.
type Config struct {
	Workers int           // concurrent workers per batch
	Retries int           // attempts per task
	Backoff time.Duration // base delay between attempts, doubled each retry
}

// Runner executes batches of tasks on a bounded worker pool with per-task
// retry. Execution order across tasks is unspecified.
type Runner struct {
	workers int
	retries int
	backoff time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a task runner.
func NewRunner(cfg *Config) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 1
	}
	return &Runner{
		workers: workers,
		retries: retries,
		backoff: cfg.Backoff,
	}
}

// Dispatch submits a batch for asynchronous execution. It returns an error
// (and invokes the batch's OnError) only when the batch cannot be started;
// individual task failures are reported through each task's OnFailure and
// never fail the batch.
func (r *Runner) Dispatch(ctx context.Context, batch *Batch) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if batch.OnError != nil {
			batch.OnError(ctx, ErrRunnerClosed)
		}
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.runBatch(ctx, batch)
	return nil
}

func (r *Runner) runBatch(ctx context.Context, batch *Batch) {
	defer r.wg.Done()

	tasksChan := make(chan Task, r.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasksChan {
				r.runTask(ctx, t)
			}
		}()
	}

	for _, t := range batch.Tasks {
		tasksChan <- t
	}
	close(tasksChan)

	// Join barrier: the completion continuation runs only after every
	// task has finished
	wg.Wait()

	if batch.OnComplete != nil {
		batch.OnComplete(ctx)
	}
}

func (r *Runner) runTask(ctx context.Context, t Task) {
	var err error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 && r.backoff > 0 {
			delay := r.backoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}

		err = t.Run(ctx)
		if err == nil {
			return
		}
		logger.FromContext(ctx).WithField("attempt", attempt+1).WithError(err).Warn("Task attempt failed")
	}

	if t.OnFailure != nil {
		t.OnFailure(ctx, err)
	}
}

// Shutdown stops accepting new batches and waits for in-flight batches to
// drain, or for the context to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
