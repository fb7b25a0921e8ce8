package jobservice

import (
	"context"
	"errors"

	"github.com/hanfei1991/dfnode/pkg/workerpool"
)

// jobTask polls a processing task of a job under the job's task context
// instead of the pool's.
type jobTask struct {
	workerpool.Task
	ctx context.Context
}

func (t *jobTask) Poll(_ context.Context) (workerpool.Status, error) {
	if err := context.Cause(t.ctx); err != nil {
		// the job is destroyed
		if errors.Is(err, context.Canceled) {
			return workerpool.Finished, nil
		}
		return workerpool.Finished, err
	}
	return t.Task.Poll(t.ctx)
}
