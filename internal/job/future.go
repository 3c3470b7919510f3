package job

import (
	"context"
	"errors"
)

// ErrNotDone is returned by Future.Result while the job is still pending.
var ErrNotDone = errors.New("job not done")

// Future is the single-shot completion of a submitted job.
type Future[T any] struct {
	id     string
	done   chan struct{}
	value  T
	err    error
	cancel func() bool
}

func newFuture[T any](jobID string) *Future[T] {
	return &Future[T]{id: jobID, done: make(chan struct{})}
}

// complete stores the outcome and releases waiters. It is only ever called by the
// holder of the job's completion sender, so it runs at most once.
func (f *Future[T]) complete(value any, err error) {
	if err == nil {
		f.value, _ = value.(T)
	}
	f.err = err
	close(f.done)
}

// ID returns the job ID.
func (f *Future[T]) ID() string {
	return f.id
}

// Done is closed once the job has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job completes or ctx is done. Giving up on ctx does not
// cancel the job.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrNotDone.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		var zero T
		return zero, ErrNotDone
	}
}

// Cancel requests cancellation. A job that has not started completes with a
// Cancelled error immediately; a running job is interrupted at its next
// checkpoint. It reports whether the job was still pending or running.
func (f *Future[T]) Cancel() bool {
	if f.cancel == nil {
		return false
	}
	return f.cancel()
}
