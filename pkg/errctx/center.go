package errctx

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// ErrCenter records the first error reported by any of the goroutines
// working for one job, and cancels the contexts derived from it.
type ErrCenter struct {
	once   sync.Once
	errVal atomic.Error
	doneCh chan struct{}
}

// NewErrCenter creates an ErrCenter without error.
func NewErrCenter() *ErrCenter {
	return &ErrCenter{
		doneCh: make(chan struct{}),
	}
}

// OnError records err. Only the first non-nil error is kept.
func (c *ErrCenter) OnError(err error) {
	if err == nil {
		return
	}
	c.once.Do(func() {
		c.errVal.Store(err)
		close(c.doneCh)
	})
}

// CheckError returns the recorded error, or nil.
func (c *ErrCenter) CheckError() error {
	return c.errVal.Load()
}

// Done is closed once an error has been recorded.
func (c *ErrCenter) Done() <-chan struct{} {
	return c.doneCh
}

// DeriveContext returns a child of parent that is also cancelled when an
// error is recorded. context.Cause of the child returns that error.
// The returned cancel function must be called to release resources.
func (c *ErrCenter) DeriveContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-c.doneCh:
			cancel(c.CheckError())
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		cancel(context.Canceled)
	}
}
