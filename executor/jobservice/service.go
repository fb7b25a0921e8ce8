package jobservice

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanfei1991/dfnode/jobmaster"
	"github.com/hanfei1991/dfnode/model"
	"github.com/hanfei1991/dfnode/pkg/autoid"
	"github.com/hanfei1991/dfnode/pkg/clock"
	derrors "github.com/hanfei1991/dfnode/pkg/errors"
	"github.com/hanfei1991/dfnode/pkg/localization"
	"github.com/hanfei1991/dfnode/pkg/netutil"
	"github.com/hanfei1991/dfnode/pkg/notifier"
	"github.com/hanfei1991/dfnode/pkg/promutil"
	"github.com/hanfei1991/dfnode/pkg/workerpool"
)

// names of the node level pools
const (
	NetworkPoolName    = "dataflow-network"
	AcceptorPoolName   = "dataflow-acceptor"
	ProcessingPoolName = "dataflow-processing"
)

// eventFlushTimeout bounds the delivery of the pending job events when
// the service shuts down.
const eventFlushTimeout = time.Second

// Config is the configuration of the Service.
type Config struct {
	Host              string
	Port              int
	PortAutoIncrement bool

	IOThreadCount         int
	ProcessingThreadCount int
	ShutdownTimeout       time.Duration

	// FinalizeTimeout bounds the wait for a job master to finalize a job
	// in DestroyJob. Zero means no bound besides the caller's context.
	FinalizeTimeout time.Duration

	// StorageDir is the root of the jobs' staged resources.
	StorageDir string
}

// Option customizes a Service.
type Option func(*Service)

// WithContextBuilder replaces the way the collaborators of a job context
// are created.
func WithContextBuilder(builder ContextBuilder) Option {
	return func(s *Service) {
		s.builder = builder
	}
}

// WithConnHandler sets the consumer of the dataflow connections.
func WithConnHandler(handler ConnHandler) Option {
	return func(s *Service) {
		s.connHandler = handler
	}
}

// WithMetricRegistry sets the registry the metrics of the service and its
// jobs are registered with.
func WithMetricRegistry(r *promutil.Registry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithIDAllocator sets the allocator of the job context ids.
func WithIDAllocator(a autoid.Allocator) Option {
	return func(s *Service) {
		s.idAllocator = a
	}
}

// WithClock sets the clock used for the job context creation time.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// Service owns the lifecycle of the jobs running on this node. It binds
// the dataflow endpoint, runs the network, acceptor and processing pools,
// and keeps the registry of job contexts.
type Service struct {
	cfg Config

	builder     ContextBuilder
	connHandler ConnHandler
	registry    *promutil.Registry
	clock       clock.Clock
	idAllocator autoid.Allocator

	listener  *net.TCPListener
	localAddr *net.TCPAddr

	networkPool    *workerpool.Pool
	acceptorPool   *workerpool.Pool
	processingPool *workerpool.Pool

	// jobs maps model.JobName to *JobContext
	jobs     sync.Map
	notifier *notifier.Notifier[JobEvent]

	jobsGauge prometheus.Gauge

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewService binds the dataflow endpoint, starts the pools and the
// connection acceptor. Every step must succeed for the node to take part
// in the cluster; on failure the steps done so far are undone.
// The caller must call Shutdown when the process terminates.
func NewService(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:         cfg,
		connHandler: DiscardHandler,
		clock:       clock.New(),
		idAllocator: autoid.NewUUIDAllocator(),
		notifier:    notifier.NewNotifier[JobEvent](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = promutil.NewRegistry()
	}
	if s.builder == nil {
		s.builder = s.buildJobResources
	}

	listener, err := netutil.BindListener(ctx, netutil.BindConfig{
		Host:          cfg.Host,
		Port:          cfg.Port,
		AutoIncrement: cfg.PortAutoIncrement,
	})
	if err != nil {
		s.notifier.Close()
		return nil, err
	}
	s.listener = listener
	s.localAddr = listener.Addr().(*net.TCPAddr)

	metricFactory := promutil.NewFactory4Framework(s.registry)
	poolFactory := workerpool.NewFactory(cfg.ShutdownTimeout, metricFactory)
	s.networkPool = poolFactory.NewPool(NetworkPoolName, cfg.IOThreadCount)
	s.processingPool = poolFactory.NewPool(ProcessingPoolName, cfg.ProcessingThreadCount)
	s.acceptorPool = poolFactory.NewPool(AcceptorPoolName, 1)

	s.jobsGauge = metricFactory.NewGauge(prometheus.GaugeOpts{
		Subsystem: "service",
		Name:      "jobs",
		Help:      "number of job contexts registered on the node",
	})
	accepted := metricFactory.NewCounter(prometheus.CounterOpts{
		Subsystem: "service",
		Name:      "connections_accepted_total",
		Help:      "number of accepted dataflow connections",
	})

	if err := s.acceptorPool.Submit(newAcceptor(listener, s.networkPool, s.connHandler, accepted)); err != nil {
		s.Shutdown()
		return nil, err
	}

	log.L().Info("job service started",
		zap.Stringer("addr", s.localAddr),
		zap.Int("io-threads", s.networkPool.Config().WorkerCount),
		zap.Int("processing-threads", s.processingPool.Config().WorkerCount),
		zap.Duration("shutdown-timeout", cfg.ShutdownTimeout))
	return s, nil
}

// LocalAddr returns the bound dataflow address of the node.
func (s *Service) LocalAddr() *net.TCPAddr {
	return s.localAddr
}

// NetworkPool returns the pool serving the dataflow connections.
func (s *Service) NetworkPool() *workerpool.Pool {
	return s.networkPool
}

// AcceptorPool returns the single-worker pool accepting connections.
func (s *Service) AcceptorPool() *workerpool.Pool {
	return s.acceptorPool
}

// ProcessingPool returns the pool running the processing tasks of jobs.
func (s *Service) ProcessingPool() *workerpool.Pool {
	return s.processingPool
}

// WatchJobs returns a receiver of the job events happening from now on.
// The receiver should be closed when it is no longer used.
func (s *Service) WatchJobs() *notifier.Receiver[JobEvent] {
	return s.notifier.NewReceiver()
}

// Closed returns true once Shutdown has been called.
func (s *Service) Closed() bool {
	return s.closed.Load()
}

// CreateJobContext creates and registers the context of a new job.
// It fails with ErrJobDuplicate if a context is registered under the same
// name; of two concurrent calls for one name only one succeeds.
func (s *Service) CreateJobContext(name model.JobName, cfg *model.JobConfig) (*JobContext, error) {
	if s.closed.Load() {
		return nil, derrors.ErrServiceClosed.GenWithStackByArgs()
	}
	if err := model.ValidateJobName(name); err != nil {
		return nil, err
	}
	if _, ok := s.jobs.Load(name); ok {
		return nil, derrors.ErrJobDuplicate.GenWithStackByArgs(name)
	}

	cfg = cfg.Clone()
	id := s.idAllocator.AllocID()
	res, err := s.builder(name, id, cfg)
	if err != nil {
		return nil, err
	}
	jc := &JobContext{
		name:      name,
		id:        id,
		cfg:       cfg,
		localAddr: s.localAddr,
		createdAt: s.clock.Now(),
		master:    res.Master,
		executors: res.Executors,
		store:     res.Store,
	}

	if _, loaded := s.jobs.LoadOrStore(name, jc); loaded {
		// lost a race against another create of the same job
		s.discard(jc)
		return nil, derrors.ErrJobDuplicate.GenWithStackByArgs(name)
	}
	s.jobsGauge.Inc()
	s.notifier.Notify(JobEvent{Type: JobCreated, Name: name, ContextID: id})
	log.L().Info("job context created",
		zap.String("job", name),
		zap.String("context-id", id))
	return jc, nil
}

// GetContext returns the context registered under name.
func (s *Service) GetContext(name model.JobName) (*JobContext, bool) {
	v, ok := s.jobs.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*JobContext), true
}

// ListContexts returns the registered contexts ordered by job name.
func (s *Service) ListContexts() []*JobContext {
	var ret []*JobContext
	s.jobs.Range(func(_, value any) bool {
		ret = append(ret, value.(*JobContext))
		return true
	})
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].name < ret[j].name
	})
	return ret
}

// DestroyJob finalizes the job through its master, then releases its
// resources and removes it from the registry.
//
// The wait for the master is bounded by ctx and by the configured
// finalize timeout; an error of that wait is returned as is. If the master
// does not finalize the job, ErrJobFinalizeFailed is returned and nothing
// is released. If releasing fails partway, ErrJobCleanupFailed is returned
// and the job stays registered, so that the destroy can be retried. A
// retry does not finalize the job again, its master may be stopped already.
func (s *Service) DestroyJob(ctx context.Context, name model.JobName) error {
	jc, ok := s.GetContext(name)
	if !ok {
		return derrors.ErrJobNotFound.GenWithStackByArgs(name)
	}

	if !jc.finalized.Load() {
		if err := s.finalize(ctx, jc); err != nil {
			return err
		}
		jc.finalized.Store(true)
	}
	jc.stopTasks()

	if err := jc.store.CleanUp(); err != nil {
		return derrors.Wrap(derrors.ErrJobCleanupFailed, err, name, "store-cleanup")
	}
	if err := shutdownExecutors(jc.executors); err != nil {
		return derrors.Wrap(derrors.ErrJobCleanupFailed, err, name, "executor-shutdown")
	}

	if !s.jobs.CompareAndDelete(name, jc) {
		// destroyed by a concurrent call, maybe even re-created since
		log.L().Info("job context already removed",
			zap.String("job", name),
			zap.String("context-id", jc.id))
		return nil
	}
	s.registry.Unregister(jc.id)
	s.jobsGauge.Dec()
	s.notifier.Notify(JobEvent{Type: JobDestroyed, Name: name, ContextID: jc.id})
	log.L().Info("job destroyed",
		zap.String("job", name),
		zap.String("context-id", jc.id))
	return nil
}

func (s *Service) finalize(ctx context.Context, jc *JobContext) error {
	if s.cfg.FinalizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FinalizeTimeout)
		defer cancel()
	}
	resp, err := jc.master.Handle(jobmaster.FinalizeRequest{}).Get(ctx)
	if err != nil {
		log.L().Warn("finalize request failed",
			zap.String("job", jc.name),
			zap.Error(err))
		return err
	}
	if !resp.Success {
		log.L().Warn("job master did not finalize job",
			zap.String("job", jc.name),
			zap.Stringer("state", resp.State),
			zap.Error(resp.Err))
		return derrors.ErrJobFinalizeFailed.GenWithStackByArgs(jc.name)
	}
	return nil
}

// SubmitTasks runs processing tasks of a job on the processing pool. The
// tasks are polled under a context that is cancelled with the job's error
// when the job fails, and cancelled when the job is destroyed; the tasks
// finish then.
func (s *Service) SubmitTasks(name model.JobName, tasks ...workerpool.Task) error {
	jc, ok := s.GetContext(name)
	if !ok {
		return derrors.ErrJobNotFound.GenWithStackByArgs(name)
	}
	ctx := jc.taskContext()
	wrapped := make([]workerpool.Task, 0, len(tasks))
	for _, t := range tasks {
		wrapped = append(wrapped, &jobTask{Task: t, ctx: ctx})
	}
	return s.processingPool.Submit(wrapped...)
}

// Shutdown closes the listener and shuts down the network, acceptor and
// processing pools. Errors are logged only. Jobs are left alone, they are
// destroyed through DestroyJob. Only the first call does anything.
func (s *Service) Shutdown() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		log.L().Info("shutting down job service", zap.Stringer("addr", s.localAddr))

		if err := s.listener.Close(); err != nil {
			log.L().Warn("close listener failed", zap.Error(err))
		}

		var g errgroup.Group
		for _, p := range []*workerpool.Pool{s.networkPool, s.acceptorPool, s.processingPool} {
			p := p
			g.Go(func() error {
				if err := p.Shutdown(); err != nil {
					log.L().Warn("shut down pool failed",
						zap.String("pool", p.Name()),
						zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		flushCtx, cancel := context.WithTimeout(context.Background(), eventFlushTimeout)
		if err := s.notifier.Flush(flushCtx); err != nil {
			log.L().Warn("job events not delivered before shutdown", zap.Error(err))
		}
		cancel()
		s.notifier.Close()
		log.L().Info("job service stopped")
	})
}

// discard releases the resources of a context that never got registered.
func (s *Service) discard(jc *JobContext) {
	jc.stopTasks()
	if err := shutdownExecutors(jc.executors); err != nil {
		log.L().Warn("shut down executors of discarded job context failed",
			zap.String("job", jc.name),
			zap.Error(err))
	}
	s.registry.Unregister(jc.id)
}

// shutdownExecutors shuts the executors down concurrently and returns the
// first error.
func shutdownExecutors(executors []Executor) error {
	var g errgroup.Group
	for _, e := range executors {
		e := e
		g.Go(func() error {
			if err := e.Shutdown(); err != nil {
				log.L().Warn("shut down job executor failed",
					zap.String("executor", e.Name()),
					zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// buildJobResources is the default ContextBuilder: the job master with
// its three state machines, and a local storage for the staged resources.
func (s *Service) buildJobResources(name model.JobName, contextID string, cfg *model.JobConfig) (*JobResources, error) {
	poolFactory := workerpool.NewFactory(
		s.cfg.ShutdownTimeout,
		promutil.NewFactory4Job(s.registry, name, contextID))
	machines := jobmaster.NewStateMachines(name, poolFactory)

	storageDir := s.cfg.StorageDir
	if cfg.ResourceDir != "" {
		storageDir = cfg.ResourceDir
	}

	pools := machines.Executors()
	executors := make([]Executor, 0, len(pools))
	for _, p := range pools {
		executors = append(executors, p)
	}
	return &JobResources{
		Master:    jobmaster.NewMaster(name, machines),
		Executors: executors,
		Store:     localization.NewStorage(storageDir, name, contextID),
	}, nil
}
