package workerpool

import (
	"context"
	"sync"

	"github.com/edwingeng/deque"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/hanfei1991/dfnode/pkg/clock"
	derrors "github.com/hanfei1991/dfnode/pkg/errors"
)

// Pool is a named, fixed-size group of workers. Submitted tasks are bound
// to the least loaded worker and polled by it until they finish.
type Pool struct {
	cfg   Config
	clock clock.Clock

	workers []*worker
	// nextWorker rotates the scan start so that ties in load are broken
	// in a round-robin fashion.
	nextWorker atomic.Uint64

	// mu makes the running check in Submit and the flip in Shutdown
	// mutually exclusive, so no task is queued after the workers drained.
	mu      sync.RWMutex
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once

	tasksGauge   prometheus.Gauge
	panicCounter prometheus.Counter
	errCounter   prometheus.Counter
	pollDuration prometheus.Observer
}

// Option customizes a Pool.
type Option func(*Pool)

// WithClock sets the clock used for idle parking and the shutdown timeout.
func WithClock(c clock.Clock) Option {
	return func(p *Pool) {
		p.clock = c
	}
}

// New creates a Pool and starts its workers.
func New(cfg Config, opts ...Option) *Pool {
	return newPool(cfg, newMetrics(nil), opts...)
}

func newPool(cfg Config, m *metrics, opts ...Option) *Pool {
	cfg = cfg.Adjust()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		clock:  clock.New(),
		ctx:    ctx,
		cancel: cancel,

		tasksGauge:   m.tasks.WithLabelValues(cfg.Name),
		panicCounter: m.taskFailures.WithLabelValues(cfg.Name, failureReasonPanic),
		errCounter:   m.taskFailures.WithLabelValues(cfg.Name, failureReasonError),
		pollDuration: m.pollDuration.WithLabelValues(cfg.Name),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.running.Store(true)

	p.workers = make([]*worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		w := &worker{
			id:     i,
			pool:   p,
			queue:  deque.NewDeque(),
			wakeCh: make(chan struct{}, 1),
		}
		p.workers = append(p.workers, w)
	}

	p.wg.Add(len(p.workers))
	for _, w := range p.workers {
		go w.run(ctx)
	}

	log.L().Info("executor pool started",
		zap.String("pool", cfg.Name),
		zap.Int("workers", cfg.WorkerCount),
		zap.Duration("shutdown-timeout", cfg.ShutdownTimeout))
	return p
}

// Name returns the name of the pool.
func (p *Pool) Name() string {
	return p.cfg.Name
}

// Config returns the adjusted configuration of the pool.
func (p *Pool) Config() Config {
	return p.cfg
}

// Running returns false once Shutdown has been called.
func (p *Pool) Running() bool {
	return p.running.Load()
}

// Workload returns the number of tasks currently owned by the pool.
func (p *Pool) Workload() int {
	var total int64
	for _, w := range p.workers {
		total += w.load.Load()
	}
	return int(total)
}

// Submit distributes the tasks over the workers. It only enqueues and
// never waits for a task to run. Submitting to a pool that has been
// shut down fails with ErrPoolClosed and none of the tasks is taken.
func (p *Pool) Submit(tasks ...Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return derrors.ErrPoolClosed.GenWithStackByArgs(p.cfg.Name)
	}
	for _, t := range tasks {
		p.leastLoaded().push(t)
		p.tasksGauge.Inc()
	}
	return nil
}

func (p *Pool) leastLoaded() *worker {
	start := int(p.nextWorker.Inc() % uint64(len(p.workers)))
	var (
		target  *worker
		minLoad int64
	)
	for i := 0; i < len(p.workers); i++ {
		w := p.workers[(start+i)%len(p.workers)]
		load := w.load.Load()
		if target == nil || load < minLoad {
			target, minLoad = w, load
		}
	}
	return target
}

// Shutdown stops the workers and waits up to the configured shutdown
// timeout for them to return. Tasks still owned by the pool are closed by
// their worker on its way out. Shutdown is idempotent and can be called
// from any goroutine; only the first call can report ErrPoolShutdownTimeout,
// later calls return nil once the first one has returned.
func (p *Pool) Shutdown() error {
	var err error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.running.Store(false)
		p.mu.Unlock()

		p.cancel()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		timer := p.clock.Timer(p.cfg.ShutdownTimeout)
		defer timer.Stop()
		select {
		case <-done:
			log.L().Info("executor pool stopped", zap.String("pool", p.cfg.Name))
		case <-timer.C:
			log.L().Warn("executor pool did not stop in time, abandoning busy workers",
				zap.String("pool", p.cfg.Name),
				zap.Duration("shutdown-timeout", p.cfg.ShutdownTimeout),
				zap.Int("workload", p.Workload()))
			err = derrors.ErrPoolShutdownTimeout.GenWithStackByArgs(p.cfg.Name, p.cfg.ShutdownTimeout)
		}
	})
	return err
}

// poll runs one step of t. A panic is turned into an error so that it
// only takes the offending task out of the pool.
func (p *Pool) poll(ctx context.Context, t Task) (status Status, err error) {
	start := clock.MonoNow()
	defer func() {
		if r := recover(); r != nil {
			p.panicCounter.Inc()
			err = derrors.ErrTaskPanicked.GenWithStackByArgs(t.ID(), r)
		} else if err != nil {
			p.errCounter.Inc()
		}
		p.pollDuration.Observe(clock.MonoNow().Sub(start).Seconds())
	}()
	return t.Poll(ctx)
}

func (p *Pool) closeTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.L().Warn("task panicked while closing",
				zap.String("pool", p.cfg.Name),
				zap.String("task-id", t.ID()),
				zap.Any("panic", r))
		}
	}()
	if err := t.Close(); err != nil {
		log.L().Warn("close task failed",
			zap.String("pool", p.cfg.Name),
			zap.String("task-id", t.ID()),
			zap.Error(err))
	}
}

type worker struct {
	id   int
	pool *Pool

	mu    sync.Mutex
	queue deque.Deque

	// load counts the tasks bound to this worker, including the one
	// being polled.
	load   atomic.Int64
	wakeCh chan struct{}
}

func (w *worker) push(t Task) {
	w.load.Inc()
	w.requeue(t)
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

func (w *worker) requeue(t Task) {
	w.mu.Lock()
	w.queue.PushBack(t)
	w.mu.Unlock()
}

func (w *worker) pop() (Task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.queue.Empty() {
		return nil, false
	}
	return w.queue.PopFront().(Task), true
}

func (w *worker) finish(t Task) {
	w.pool.closeTask(t)
	w.load.Dec()
	w.pool.tasksGauge.Dec()
}

// park waits until a task is submitted or the idle interval elapses.
// It returns false if the pool is stopping.
func (w *worker) park(ctx context.Context) bool {
	timer := w.pool.clock.Timer(w.pool.cfg.IdleInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-w.wakeCh:
	case <-timer.C:
	}
	return true
}

func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()
	defer w.drain()

	blockedInRow := int64(0)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t, ok := w.pop()
		if !ok {
			if !w.park(ctx) {
				return
			}
			continue
		}

		status, err := w.pool.poll(ctx, t)
		if err != nil {
			log.L().Warn("task failed and is removed from pool",
				zap.String("pool", w.pool.cfg.Name),
				zap.Int("worker", w.id),
				zap.String("task-id", t.ID()),
				zap.Error(err))
			w.finish(t)
			blockedInRow = 0
			continue
		}

		switch status {
		case Finished:
			w.finish(t)
			blockedInRow = 0
		case Blocked:
			w.requeue(t)
			blockedInRow++
			if blockedInRow >= w.load.Load() {
				// a whole round without progress
				if !w.park(ctx) {
					return
				}
				blockedInRow = 0
			}
		default:
			w.requeue(t)
			blockedInRow = 0
		}
	}
}

// drain closes the tasks left in the queue when the worker exits.
func (w *worker) drain() {
	for {
		t, ok := w.pop()
		if !ok {
			return
		}
		w.finish(t)
	}
}
