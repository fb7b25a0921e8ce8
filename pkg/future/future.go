package future

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
)

// Future is a value that becomes available asynchronously. It is resolved
// at most once; later calls to Resolve or Reject are ignored.
type Future[T any] struct {
	once  sync.Once
	doneC chan struct{}

	val T
	err error
}

// New creates an unresolved Future.
func New[T any]() *Future[T] {
	return &Future[T]{doneC: make(chan struct{})}
}

// Resolved creates a Future already resolved with val.
func Resolved[T any](val T) *Future[T] {
	f := New[T]()
	f.Resolve(val)
	return f
}

// Rejected creates a Future already failed with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve sets the value of the Future. It returns false if the
// Future had already been completed.
func (f *Future[T]) Resolve(val T) bool {
	return f.complete(val, nil)
}

// Reject fails the Future with err.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(val T, err error) (ok bool) {
	f.once.Do(func() {
		f.val, f.err = val, err
		close(f.doneC)
		ok = true
	})
	return
}

// Done returns a channel closed when the Future is completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.doneC
}

// Get waits for the Future to complete or ctx to be done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, errors.Trace(ctx.Err())
	case <-f.doneC:
	}
	return f.val, f.err
}
