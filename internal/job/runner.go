package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/mediaforge/internal/media"
)

// Static errors returned by the runner.
var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("job queue is full")
	// ErrRunnerClosed is returned by Submit after Shutdown.
	ErrRunnerClosed = errors.New("job runner is closed")
	// ErrJobFinished is returned when cancelling a job that already completed.
	ErrJobFinished = errors.New("job already finished")
)

// DefaultQueueSize is the queue capacity used when none is configured.
const DefaultQueueSize = 64

// ProgressFunc reports the completed percentage of a running job, 0 to 100.
type ProgressFunc func(percent float64)

// Func is the work of a job. It must return promptly once ctx is cancelled.
type Func[T any] func(ctx context.Context, progress ProgressFunc) (T, error)

// Spec describes a job for its record.
type Spec struct {
	Kind   Kind
	Input  string
	Output string
}

// Observer receives lifecycle events, typically to export metrics.
type Observer interface {
	QueueDepth(n int)
	Started(kind Kind, waited time.Duration)
	Finished(kind Kind, status Status, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) QueueDepth(int)                       {}
func (nopObserver) Started(Kind, time.Duration)          {}
func (nopObserver) Finished(Kind, Status, time.Duration) {}

// Config sizes the worker pool.
type Config struct {
	// Workers is the number of concurrent jobs. Zero or less uses GOMAXPROCS.
	Workers int
	// QueueSize is the number of jobs that may wait for a worker. Zero or less uses DefaultQueueSize.
	QueueSize int
	// Retention is how long the records of finished jobs are kept. Zero keeps them forever.
	Retention time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// PanicError carries a value recovered from a panicking job.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// completion delivers the outcome of a task to its future.
type completion func(value any, err error)

type task struct {
	job    *Job
	ctx    context.Context
	cancel context.CancelFunc
	run    func(ctx context.Context, progress ProgressFunc) (any, error)

	// sender holds the task's only completion. Whoever takes it, the worker at
	// start or Cancel before start, is the sole deliverer.
	sender   chan completion
	finished atomic.Bool
	queuedAt time.Time
}

// Runner executes jobs FIFO on a fixed pool of workers. Submission never blocks.
type Runner struct {
	repo     Repository
	logger   *slog.Logger
	observer Observer
	workers  int

	queue   chan *task
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
	active map[string]*task

	// swept is closed when the retention sweeper exits; nil without retention.
	swept chan struct{}
}

// NewRunner creates a Runner and starts its workers.
func NewRunner(repo Repository, cfg Config, opts ...Option) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	ctx, stop := context.WithCancel(context.Background())
	r := &Runner{
		repo:     repo,
		logger:   slog.Default(),
		observer: nopObserver{},
		workers:  workers,
		queue:    make(chan *task, queueSize),
		baseCtx:  ctx,
		stop:     stop,
		active:   make(map[string]*task),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	if cfg.Retention > 0 {
		r.swept = make(chan struct{})
		go r.sweep(cfg.Retention)
	}

	r.logger.Info("job runner started",
		slog.Int("workers", workers),
		slog.Int("queue_size", queueSize),
		slog.Duration("retention", cfg.Retention),
	)
	return r
}

// Workers returns the size of the worker pool.
func (r *Runner) Workers() int {
	return r.workers
}

// Submit enqueues fn and returns its future. It returns ErrQueueFull when the
// queue is saturated and ErrRunnerClosed after Shutdown.
func Submit[T any](r *Runner, spec Spec, fn Func[T]) (*Future[T], error) {
	j := New(spec.Kind, spec.Input)
	j.Output = spec.Output

	f := newFuture[T](j.ID)
	ctx, cancel := context.WithCancel(r.baseCtx)
	t := &task{
		job:    j,
		ctx:    ctx,
		cancel: cancel,
		run: func(ctx context.Context, progress ProgressFunc) (any, error) {
			v, err := fn(ctx, progress)
			return v, err
		},
		sender: make(chan completion, 1),
	}
	t.sender <- f.complete
	f.cancel = func() bool { return r.cancelTask(t) }

	if err := r.enqueue(t); err != nil {
		cancel()
		return nil, err
	}
	return f, nil
}

func (r *Runner) enqueue(t *task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRunnerClosed
	}
	// Only submitters add to the queue and they hold r.mu, so a free slot stays free.
	if len(r.queue) == cap(r.queue) {
		return ErrQueueFull
	}
	if err := r.repo.Save(t.ctx, t.job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	t.queuedAt = time.Now()
	r.active[t.job.ID] = t
	r.queue <- t
	r.observer.QueueDepth(len(r.queue))

	r.logger.Debug("job queued",
		slog.String("job_id", t.job.ID),
		slog.String("kind", string(t.job.Kind)),
		slog.String("input", t.job.Input),
	)
	return nil
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for t := range r.queue {
		r.observer.QueueDepth(len(r.queue))
		r.execute(t)
	}
}

func (r *Runner) execute(t *task) {
	var send completion
	select {
	case send = <-t.sender:
	default:
		// Cancelled before start; Cancel already delivered.
		return
	}

	if err := t.ctx.Err(); err != nil {
		r.finish(t, send, nil, r.cancelled(t, err))
		return
	}

	if err := t.job.Start(); err != nil {
		r.logger.Warn("job start transition rejected", slog.String("job_id", t.job.ID), slog.String("error", err.Error()))
	}
	r.save(t.job)
	r.observer.Started(t.job.Kind, time.Since(t.queuedAt))

	value, err := r.run(t)
	if ctxErr := t.ctx.Err(); ctxErr != nil && media.KindOf(err) != media.KindCancelled {
		// Cancellation wins over whatever the job produced after it was requested.
		value, err = nil, r.cancelled(t, ctxErr)
	}
	if err != nil {
		value, err = nil, media.Classify(string(t.job.Kind), t.job.Input, err)
	}
	r.finish(t, send, value, err)
}

// run executes the task, converting a panic into an Internal error.
func (r *Runner) run(t *task) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			perr := &PanicError{Value: rec, Stack: debug.Stack()}
			r.logger.Error("job panicked",
				slog.String("job_id", t.job.ID),
				slog.Any("panic", rec),
				slog.String("stack", string(perr.Stack)),
			)
			value, err = nil, media.NewError(media.KindInternal, string(t.job.Kind), t.job.Input, perr)
		}
	}()
	return t.run(t.ctx, r.progress(t))
}

func (r *Runner) progress(t *task) ProgressFunc {
	return func(percent float64) {
		if t.job.UpdateProgress(int(percent)) {
			r.save(t.job)
		}
	}
}

func (r *Runner) cancelled(t *task, cause error) error {
	return media.NewError(media.KindCancelled, string(t.job.Kind), t.job.Input, cause)
}

// finish records the outcome and delivers it through send.
func (r *Runner) finish(t *task, send completion, value any, err error) {
	t.cancel()
	t.finished.Store(true)

	j := t.job
	var terr error
	switch kind := media.KindOf(err); {
	case err == nil:
		data, merr := json.Marshal(value)
		if merr != nil {
			r.logger.Warn("job result is not serialisable", slog.String("job_id", j.ID), slog.String("error", merr.Error()))
			data = nil
		}
		terr = j.Complete(data)
	case kind == media.KindCancelled:
		terr = j.Cancel(err.Error())
	default:
		terr = j.Fail(string(kind), err.Error())
	}
	if terr != nil {
		r.logger.Warn("job transition rejected", slog.String("job_id", j.ID), slog.String("error", terr.Error()))
	}
	r.save(j)

	r.mu.Lock()
	delete(r.active, j.ID)
	r.mu.Unlock()

	status := j.GetStatus()
	elapsed := time.Since(t.queuedAt)
	r.observer.Finished(j.Kind, status, elapsed)

	attrs := []any{
		slog.String("job_id", j.ID),
		slog.String("kind", string(j.Kind)),
		slog.String("status", string(status)),
		slog.Duration("elapsed", elapsed),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.logger.Info("job finished", attrs...)

	send(value, err)
}

func (r *Runner) save(j *Job) {
	if err := r.repo.Save(context.Background(), j); err != nil {
		r.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

// cancelTask completes a pending task as Cancelled or interrupts a running one.
func (r *Runner) cancelTask(t *task) bool {
	select {
	case send := <-t.sender:
		r.finish(t, send, nil, r.cancelled(t, context.Canceled))
		return true
	default:
	}
	if t.finished.Load() {
		return false
	}
	t.cancel()
	return true
}

// Cancel cancels the job with the given ID. It returns ErrJobNotFound for unknown
// IDs and ErrJobFinished when the job already completed.
func (r *Runner) Cancel(ctx context.Context, jobID string) error {
	r.mu.Lock()
	t, ok := r.active[jobID]
	r.mu.Unlock()
	if ok {
		if r.cancelTask(t) {
			return nil
		}
		return ErrJobFinished
	}

	if _, err := r.repo.FindByID(ctx, jobID); err != nil {
		return err
	}
	return ErrJobFinished
}

// Get returns the record of a job.
func (r *Runner) Get(ctx context.Context, jobID string) (*Job, error) {
	return r.repo.FindByID(ctx, jobID)
}

// List returns the records of all known jobs.
func (r *Runner) List(ctx context.Context) ([]*Job, error) {
	return r.repo.List(ctx)
}

// Prune deletes the records of jobs that finished before cutoff and returns how
// many were removed. Queued and running jobs are never removed.
func (r *Runner) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	jobs, err := r.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}
	removed := 0
	for _, j := range jobs {
		if !j.IsTerminal() || !j.CompletedAt.Before(cutoff) {
			continue
		}
		if err := r.repo.Delete(ctx, j.ID); err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			return removed, fmt.Errorf("delete job %s: %w", j.ID, err)
		}
		removed++
	}
	return removed, nil
}

// sweep prunes expired records until the runner stops.
func (r *Runner) sweep(retention time.Duration) {
	defer close(r.swept)
	ticker := time.NewTicker(sweepInterval(retention))
	defer ticker.Stop()
	for {
		select {
		case <-r.baseCtx.Done():
			return
		case now := <-ticker.C:
			n, err := r.Prune(r.baseCtx, now.Add(-retention))
			if err != nil && r.baseCtx.Err() == nil {
				r.logger.Warn("failed to prune job records", slog.String("error", err.Error()))
			}
			if n > 0 {
				r.logger.Debug("pruned job records", slog.Int("count", n))
			}
		}
	}
}

// sweepInterval checks twice per retention period, at least every minute.
func sweepInterval(retention time.Duration) time.Duration {
	return min(max(retention/2, 10*time.Millisecond), time.Minute)
}

// Shutdown stops accepting jobs and waits for queued and running jobs to finish.
// When ctx expires first, every remaining job is cancelled and Shutdown returns
// ctx.Err() once the workers have exited.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	r.stop()
	<-done
	if r.swept != nil {
		<-r.swept
	}
	return err
}
