package workerpool

import (
	"context"
)

// Status is returned by Task.Poll to tell the worker what to do next.
type Status int32

const (
	// Runnable means the task made progress and should be polled again.
	Runnable Status = iota
	// Blocked means the task could not make progress. The worker keeps the
	// task but may park for a while if all of its tasks are blocked.
	Blocked
	// Finished means the task is done and leaves the pool.
	Finished
)

func (s Status) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Blocked:
		return "blocked"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// Task is a long-lived, resumable unit of work. A task is polled
// repeatedly by exactly one worker of the pool it is submitted to,
// so Poll is never called concurrently for the same task.
type Task interface {
	// ID is used in logs.
	ID() string
	// Poll runs one step of the task. ctx is cancelled when the pool
	// shuts down. Returning an error removes the task from the pool.
	Poll(ctx context.Context) (Status, error)
	// Close is called exactly once when the task leaves the pool, whether
	// it finished, failed, panicked or was abandoned by a shutdown.
	Close() error
}

type funcTask struct {
	id     string
	pollFn func(ctx context.Context) (Status, error)
}

// NewFuncTask wraps a poll function into a Task with a no-op Close.
func NewFuncTask(id string, pollFn func(ctx context.Context) (Status, error)) Task {
	return &funcTask{id: id, pollFn: pollFn}
}

func (t *funcTask) ID() string {
	return t.id
}

func (t *funcTask) Poll(ctx context.Context) (Status, error) {
	return t.pollFn(ctx)
}

func (t *funcTask) Close() error {
	return nil
}
