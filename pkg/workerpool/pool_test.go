package workerpool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	derrors "github.com/hanfei1991/dfnode/pkg/errors"
	"github.com/hanfei1991/dfnode/pkg/promutil"
)

type countingTask struct {
	id     string
	polls  atomic.Int64
	closed atomic.Int64
	pollFn func(ctx context.Context, n int64) (Status, error)
}

func newCountingTask(id string, pollFn func(ctx context.Context, n int64) (Status, error)) *countingTask {
	return &countingTask{id: id, pollFn: pollFn}
}

func (t *countingTask) ID() string {
	return t.id
}

func (t *countingTask) Poll(ctx context.Context) (Status, error) {
	return t.pollFn(ctx, t.polls.Inc())
}

func (t *countingTask) Close() error {
	t.closed.Inc()
	return nil
}

func finishAfter(polls int64) func(context.Context, int64) (Status, error) {
	return func(_ context.Context, n int64) (Status, error) {
		if n >= polls {
			return Finished, nil
		}
		return Runnable, nil
	}
}

func alwaysBlocked(context.Context, int64) (Status, error) {
	return Blocked, nil
}

func newTestPool(name string, workers int) *Pool {
	return New(Config{
		Name:            name,
		WorkerCount:     workers,
		ShutdownTimeout: 5 * time.Second,
		IdleInterval:    time.Millisecond,
	})
}

func TestPoolRunsTasksToCompletion(t *testing.T) {
	t.Parallel()

	p := newTestPool("completion", 4)
	defer func() {
		require.NoError(t, p.Shutdown())
	}()

	var tasks []*countingTask
	for i := 0; i < 100; i++ {
		task := newCountingTask(fmt.Sprintf("task-%d", i), finishAfter(10))
		tasks = append(tasks, task)
		require.NoError(t, p.Submit(task))
	}

	require.Eventually(t, func() bool {
		return p.Workload() == 0
	}, 5*time.Second, 10*time.Millisecond)

	for _, task := range tasks {
		require.Equal(t, int64(10), task.polls.Load())
		require.Equal(t, int64(1), task.closed.Load())
	}
}

func TestPoolBalancesLoad(t *testing.T) {
	t.Parallel()

	p := newTestPool("balance", 4)
	defer func() {
		require.NoError(t, p.Shutdown())
	}()

	for i := 0; i < 8; i++ {
		require.NoError(t, p.Submit(newCountingTask(fmt.Sprintf("blocked-%d", i), alwaysBlocked)))
	}
	require.Equal(t, 8, p.Workload())
	for _, w := range p.workers {
		require.Equal(t, int64(2), w.load.Load(), "worker %d", w.id)
	}
}

func TestPoolIsolatesFailingTasks(t *testing.T) {
	t.Parallel()

	p := newTestPool("isolation", 1)
	defer func() {
		require.NoError(t, p.Shutdown())
	}()

	panicking := newCountingTask("panicking", func(context.Context, int64) (Status, error) {
		panic("boom")
	})
	failing := newCountingTask("failing", func(context.Context, int64) (Status, error) {
		return Runnable, fmt.Errorf("fake error")
	})
	healthy := newCountingTask("healthy", finishAfter(1000))
	require.NoError(t, p.Submit(panicking, failing, healthy))

	require.Eventually(t, func() bool {
		return healthy.closed.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(1000), healthy.polls.Load())
	require.Equal(t, int64(1), panicking.polls.Load())
	require.Equal(t, int64(1), panicking.closed.Load())
	require.Equal(t, int64(1), failing.polls.Load())
	require.Equal(t, int64(1), failing.closed.Load())
	require.Equal(t, 0, p.Workload())
}

func TestPoolShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	p := newTestPool("idempotent", 2)
	var tasks []*countingTask
	for i := 0; i < 6; i++ {
		task := newCountingTask(fmt.Sprintf("blocked-%d", i), alwaysBlocked)
		tasks = append(tasks, task)
		require.NoError(t, p.Submit(task))
	}

	require.NoError(t, p.Shutdown())
	require.NoError(t, p.Shutdown())
	require.False(t, p.Running())

	for _, task := range tasks {
		require.Equal(t, int64(1), task.closed.Load())
	}
	require.Equal(t, 0, p.Workload())

	err := p.Submit(newCountingTask("late", alwaysBlocked))
	require.Error(t, err)
	require.True(t, derrors.ErrPoolClosed.Equal(err))
}

func TestPoolShutdownFromManyGoroutines(t *testing.T) {
	t.Parallel()

	p := newTestPool("many-shutdowns", 2)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, p.Shutdown())
		}()
	}
	wg.Wait()
	require.False(t, p.Running())
}

func TestPoolShutdownTimeout(t *testing.T) {
	t.Parallel()

	p := New(Config{
		Name:            "timeout",
		WorkerCount:     1,
		ShutdownTimeout: 100 * time.Millisecond,
	})

	release := make(chan struct{})
	started := make(chan struct{})
	var startOnce sync.Once
	stuck := newCountingTask("stuck", func(context.Context, int64) (Status, error) {
		startOnce.Do(func() { close(started) })
		// ignores the context on purpose
		<-release
		return Runnable, nil
	})
	require.NoError(t, p.Submit(stuck))
	<-started

	err := p.Shutdown()
	require.Error(t, err)
	require.True(t, derrors.ErrPoolShutdownTimeout.Equal(err))
	// the second call does not report the timeout again
	require.NoError(t, p.Shutdown())

	close(release)
	require.Eventually(t, func() bool {
		return stuck.closed.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPoolConcurrentSubmitAndShutdown(t *testing.T) {
	t.Parallel()

	p := newTestPool("submit-race", 4)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []*countingTask
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				task := newCountingTask(fmt.Sprintf("task-%d-%d", i, j), alwaysBlocked)
				if err := p.Submit(task); err != nil {
					require.True(t, derrors.ErrPoolClosed.Equal(err))
					return
				}
				mu.Lock()
				accepted = append(accepted, task)
				mu.Unlock()
			}
		}(i)
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.Shutdown())
	wg.Wait()

	for _, task := range accepted {
		require.Equal(t, int64(1), task.closed.Load(), task.id)
	}
}

func TestFactoryPoolsShareMetrics(t *testing.T) {
	t.Parallel()

	reg := promutil.NewRegistry()
	f := NewFactory(time.Second, promutil.NewFactory4Framework(reg))
	p1 := f.NewPool("pool-1", 1)
	p2 := f.NewPool("pool-2", 3)
	defer func() {
		require.NoError(t, p1.Shutdown())
		require.NoError(t, p2.Shutdown())
	}()

	require.Equal(t, "pool-1", p1.Name())
	require.Equal(t, 3, p2.Config().WorkerCount)
	require.Equal(t, time.Second, p2.Config().ShutdownTimeout)

	require.NoError(t, p2.Submit(newCountingTask("blocked", alwaysBlocked)))
	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "dataflow_pool_tasks" {
			found = true
			require.Len(t, mf.GetMetric(), 2)
		}
	}
	require.True(t, found)
}

func TestConfigAdjust(t *testing.T) {
	t.Parallel()

	cfg := Config{Name: "adjust"}.Adjust()
	require.Equal(t, 1, cfg.WorkerCount)
	require.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
	require.Equal(t, defaultIdleInterval, cfg.IdleInterval)

	cfg = Config{Name: "keep", WorkerCount: 3, ShutdownTimeout: time.Minute, IdleInterval: time.Second}.Adjust()
	require.Equal(t, 3, cfg.WorkerCount)
	require.Equal(t, time.Minute, cfg.ShutdownTimeout)
	require.Equal(t, time.Second, cfg.IdleInterval)
}
