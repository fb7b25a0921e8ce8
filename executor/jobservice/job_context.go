package jobservice

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/hanfei1991/dfnode/jobmaster"
	"github.com/hanfei1991/dfnode/model"
	"github.com/hanfei1991/dfnode/pkg/future"
)

// Master is the part of a job master the service drives.
type Master interface {
	Handle(req jobmaster.Request) *future.Future[jobmaster.Response]
	// DeriveContext returns a context cancelled when the job fails.
	DeriveContext(ctx context.Context) (context.Context, context.CancelFunc)
}

// Executor is a state machine executor owned by a job. Shutdown must be
// idempotent.
type Executor interface {
	Name() string
	Shutdown() error
}

// ResourceStore holds the resources a job staged on this node.
type ResourceStore interface {
	CleanUp() error
}

// JobResources are the collaborators a ContextBuilder creates for a job.
type JobResources struct {
	Master Master
	// Executors are the job, data container and master state machine
	// executors, in that order.
	Executors []Executor
	Store     ResourceStore
}

// ContextBuilder creates the collaborators of a new job context.
// contextID is unique for every context, even under the same job name.
type ContextBuilder func(name model.JobName, contextID string, cfg *model.JobConfig) (*JobResources, error)

// JobContext is everything the node keeps for one job. It is created by
// Service.CreateJobContext and stays valid until the job is destroyed.
type JobContext struct {
	name      model.JobName
	id        string
	cfg       *model.JobConfig
	localAddr *net.TCPAddr
	createdAt time.Time

	master    Master
	executors []Executor
	store     ResourceStore

	// finalized is set once the master finalized the job, so that a
	// destroy retried after a failed cleanup does not ask again.
	finalized atomic.Bool

	taskCtxOnce sync.Once
	taskCtx     context.Context
	cancelTasks context.CancelFunc
}

// Name returns the name of the job.
func (c *JobContext) Name() model.JobName {
	return c.name
}

// ID returns the unique id of the context.
func (c *JobContext) ID() string {
	return c.id
}

// Config returns a copy of the job config.
func (c *JobContext) Config() *model.JobConfig {
	return c.cfg.Clone()
}

// LocalAddr returns the dataflow address of the node running the job.
func (c *JobContext) LocalAddr() *net.TCPAddr {
	return c.localAddr
}

// CreatedAt returns the creation time of the context.
func (c *JobContext) CreatedAt() time.Time {
	return c.createdAt
}

// Master returns the master of the job.
func (c *JobContext) Master() Master {
	return c.master
}

// Executors returns the state machine executors of the job.
func (c *JobContext) Executors() []Executor {
	ret := make([]Executor, len(c.executors))
	copy(ret, c.executors)
	return ret
}

// Storage returns the resource store of the job.
func (c *JobContext) Storage() ResourceStore {
	return c.store
}

// taskContext returns the context the processing tasks of the job are
// polled under. It is derived from the master on first use.
func (c *JobContext) taskContext() context.Context {
	c.taskCtxOnce.Do(func() {
		c.taskCtx, c.cancelTasks = c.master.DeriveContext(context.Background())
	})
	return c.taskCtx
}

// stopTasks cancels the task context. Tasks submitted afterwards finish
// without being polled.
func (c *JobContext) stopTasks() {
	c.taskCtxOnce.Do(func() {
		c.taskCtx, c.cancelTasks = context.WithCancel(context.Background())
	})
	c.cancelTasks()
}
