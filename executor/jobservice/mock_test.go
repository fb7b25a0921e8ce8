package jobservice

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/hanfei1991/dfnode/jobmaster"
	"github.com/hanfei1991/dfnode/model"
	"github.com/hanfei1991/dfnode/pkg/future"
)

type mockMaster struct {
	mock.Mock
}

func (m *mockMaster) Handle(req jobmaster.Request) *future.Future[jobmaster.Response] {
	args := m.Called(req)
	return args.Get(0).(*future.Future[jobmaster.Response])
}

func (m *mockMaster) DeriveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(ctx)
}

type mockExecutor struct {
	mock.Mock
	name string
}

func (e *mockExecutor) Name() string {
	return e.name
}

func (e *mockExecutor) Shutdown() error {
	return e.Called().Error(0)
}

type mockStore struct {
	mock.Mock
}

func (s *mockStore) CleanUp() error {
	return s.Called().Error(0)
}

// stubJob is the set of stubs a stubBuilder hands out for one context.
type stubJob struct {
	master    *mockMaster
	executors []*mockExecutor
	store     *mockStore
}

func newStubJob() *stubJob {
	return &stubJob{
		master: &mockMaster{},
		executors: []*mockExecutor{
			{name: jobmaster.JobStateMachineExecutor},
			{name: jobmaster.ContainerStateMachineExecutor},
			{name: jobmaster.MasterStateMachineExecutor},
		},
		store: &mockStore{},
	}
}

func (j *stubJob) resources() *JobResources {
	executors := make([]Executor, 0, len(j.executors))
	for _, e := range j.executors {
		executors = append(executors, e)
	}
	return &JobResources{
		Master:    j.master,
		Executors: executors,
		Store:     j.store,
	}
}

func (j *stubJob) finalizeWith(f *future.Future[jobmaster.Response]) {
	j.master.On("Handle", jobmaster.FinalizeRequest{}).Return(f)
}

func (j *stubJob) expectCleanup(storeErr error, executorErrs ...error) {
	j.store.On("CleanUp").Return(storeErr).Once()
	for i, e := range j.executors {
		var err error
		if i < len(executorErrs) {
			err = executorErrs[i]
		}
		e.On("Shutdown").Return(err)
	}
}

// stubBuilder creates a new stubJob for every context it builds, and
// remembers them by context id.
type stubBuilder struct {
	mu    sync.Mutex
	jobs  map[string]*stubJob
	setup func(job *stubJob)
}

func newStubBuilder(setup func(job *stubJob)) *stubBuilder {
	return &stubBuilder{
		jobs:  make(map[string]*stubJob),
		setup: setup,
	}
}

func (b *stubBuilder) build(_ model.JobName, contextID string, _ *model.JobConfig) (*JobResources, error) {
	job := newStubJob()
	if b.setup != nil {
		b.setup(job)
	}
	b.mu.Lock()
	b.jobs[contextID] = job
	b.mu.Unlock()
	return job.resources(), nil
}

func (b *stubBuilder) job(contextID string) *stubJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobs[contextID]
}
