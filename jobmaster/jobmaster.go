package jobmaster

import (
	"context"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/hanfei1991/dfnode/lib/statemachine"
	"github.com/hanfei1991/dfnode/pkg/errctx"
	derrors "github.com/hanfei1991/dfnode/pkg/errors"
	"github.com/hanfei1991/dfnode/pkg/future"
	"github.com/hanfei1991/dfnode/pkg/workerpool"
)

// names of the state machine executors of a job
const (
	JobStateMachineExecutor       = "job-state-machine"
	ContainerStateMachineExecutor = "container-state-machine"
	MasterStateMachineExecutor    = "master-state-machine"
)

// StateMachines groups the three state machines of a job. Each one runs
// on its own single-worker executor.
type StateMachines struct {
	Job       *statemachine.Machine[JobState, JobEvent]
	Container *statemachine.Machine[ContainerState, ContainerEvent]
	Master    *statemachine.Machine[JobState, JobEvent]
}

// NewStateMachines creates the state machines of a job and starts their
// executors.
func NewStateMachines(jobName string, factory *workerpool.Factory) *StateMachines {
	jobExecutor := factory.NewPool(jobName+"/"+JobStateMachineExecutor, 1)
	containerExecutor := factory.NewPool(jobName+"/"+ContainerStateMachineExecutor, 1)
	masterExecutor := factory.NewPool(jobName+"/"+MasterStateMachineExecutor, 1)

	return &StateMachines{
		Job: statemachine.New(
			JobStateMachineExecutor, JobNew, jobTransitions, jobExecutor),
		Container: statemachine.New(
			ContainerStateMachineExecutor, ContainerIdle, containerTransitions, containerExecutor),
		Master: statemachine.New(
			MasterStateMachineExecutor, JobNew, jobTransitions, masterExecutor),
	}
}

// Executors returns the executors of the job, container and master
// state machines, in that order.
func (s *StateMachines) Executors() []*workerpool.Pool {
	return []*workerpool.Pool{
		s.Job.Executor(),
		s.Container.Executor(),
		s.Master.Executor(),
	}
}

// Master coordinates a job on this node and answers control requests.
type Master struct {
	jobName   string
	machines  *StateMachines
	errCenter *errctx.ErrCenter
}

// NewMaster creates the master of a job.
func NewMaster(jobName string, machines *StateMachines) *Master {
	return &Master{
		jobName:   jobName,
		machines:  machines,
		errCenter: errctx.NewErrCenter(),
	}
}

// Handle processes req asynchronously on the master state machine executor.
// The master state machine handles the request first; if it accepts it,
// the job and container state machines follow. A request rejected by a
// state machine yields a Response with Success set to false. The future
// fails only if the request could not be processed at all, e.g. because
// the executors have been shut down.
func (m *Master) Handle(req Request) *future.Future[Response] {
	t := &requestTask{
		master: m,
		req:    req,
		result: future.New[Response](),
	}
	if err := m.machines.Master.Executor().Submit(t); err != nil {
		t.result.Reject(err)
	}
	return t.result
}

// State returns the state of the master state machine.
func (m *Master) State() JobState {
	return m.machines.Master.State()
}

// Machines returns the state machines driven by the master.
func (m *Master) Machines() *StateMachines {
	return m.machines
}

// Err returns the first error the job ran into, if any.
func (m *Master) Err() error {
	return m.errCenter.CheckError()
}

// DeriveContext returns a context cancelled when the job runs into an
// error. Processing tasks of the job should run under it.
func (m *Master) DeriveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return m.errCenter.DeriveContext(ctx)
}

type requestStage int

const (
	stageSubmit requestStage = iota
	stageWaitMaster
	stageWaitCascade
)

// requestTask walks a request through the state machines without blocking
// the master executor: it reports Blocked while it waits for a machine.
type requestTask struct {
	master *Master
	req    Request
	result *future.Future[Response]

	stage      requestStage
	state      JobState
	masterF    *future.Future[JobState]
	jobF       *future.Future[JobState]
	containerF *future.Future[ContainerState]
}

func (t *requestTask) ID() string {
	return t.master.jobName + "/request/" + string(t.req.jobEvent())
}

func (t *requestTask) Poll(_ context.Context) (workerpool.Status, error) {
	machines := t.master.machines
	switch t.stage {
	case stageSubmit:
		t.masterF = machines.Master.Handle(t.req.jobEvent())
		t.stage = stageWaitMaster
		return workerpool.Blocked, nil

	case stageWaitMaster:
		if !isDone(t.masterF.Done()) {
			return workerpool.Blocked, nil
		}
		state, err := t.masterF.Get(context.Background())
		if err != nil {
			t.reply(Response{State: t.master.State(), Err: err})
			return workerpool.Finished, nil
		}
		t.state = state
		t.jobF = machines.Job.Handle(t.req.jobEvent())
		t.containerF = machines.Container.Handle(t.req.containerEvent())
		t.stage = stageWaitCascade
		return workerpool.Blocked, nil

	case stageWaitCascade:
		if !isDone(t.jobF.Done()) || !isDone(t.containerF.Done()) {
			return workerpool.Blocked, nil
		}
		_, jobErr := t.jobF.Get(context.Background())
		_, containerErr := t.containerF.Get(context.Background())
		for _, err := range []error{jobErr, containerErr} {
			if err != nil {
				t.master.errCenter.OnError(err)
				t.reply(Response{State: t.state, Err: err})
				return workerpool.Finished, nil
			}
		}
		if req, ok := t.req.(CompleteRequest); ok && req.Err != nil {
			t.master.errCenter.OnError(req.Err)
		}
		t.reply(Response{Success: true, State: t.state})
		return workerpool.Finished, nil
	}
	return workerpool.Finished, derrors.ErrUnknownRequest.GenWithStackByArgs(t.req)
}

func (t *requestTask) reply(resp Response) {
	if !resp.Success {
		log.L().Info("job master request not accepted",
			zap.String("job", t.master.jobName),
			zap.String("event", string(t.req.jobEvent())),
			zap.Stringer("state", resp.State),
			zap.Error(resp.Err))
	}
	t.result.Resolve(resp)
}

func (t *requestTask) Close() error {
	t.result.Reject(derrors.ErrPoolClosed.GenWithStackByArgs(t.master.machines.Master.Executor().Name()))
	return nil
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
