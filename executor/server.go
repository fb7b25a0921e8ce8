package executor

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanfei1991/dfnode/executor/jobservice"
	"github.com/hanfei1991/dfnode/pkg/deps"
	"github.com/hanfei1991/dfnode/pkg/promutil"
)

const metricServerShutdownTimeout = 5 * time.Second

// Server hosts the job service of a node.
type Server struct {
	cfg      *Config
	registry *promutil.Registry

	svc     *jobservice.Service
	readyCh chan struct{}
}

// NewServer creates a server with the given config.
func NewServer(cfg *Config) *Server {
	return &Server{
		cfg:      cfg,
		registry: promutil.GlobalRegistry(),
		readyCh:  make(chan struct{}),
	}
}

type serviceParams struct {
	dig.In

	Config   *Config
	Registry *promutil.Registry
}

type serverParams struct {
	dig.In

	Config  *Config
	Service *jobservice.Service
}

// Run starts the job service and serves until ctx is done. The service is
// shut down once before Run returns.
func (s *Server) Run(ctx context.Context) error {
	d := deps.NewDeps()
	if err := d.Provide(func() *Config { return s.cfg }); err != nil {
		return err
	}
	if err := d.Provide(func() *promutil.Registry { return s.registry }); err != nil {
		return err
	}
	if err := d.Provide(func(p serviceParams) (*jobservice.Service, error) {
		return jobservice.NewService(ctx, p.Config.ServiceConfig(),
			jobservice.WithMetricRegistry(p.Registry))
	}); err != nil {
		return err
	}

	var p serverParams
	if err := d.Fill(&p); err != nil {
		return err
	}
	s.svc = p.Service
	defer s.svc.Shutdown()

	g, gCtx := errgroup.WithContext(ctx)
	if p.Config.MetricsAddr != "" {
		srv, err := d.Construct(func(cfg *Config, r *promutil.Registry) *http.Server {
			return &http.Server{
				Addr:    cfg.MetricsAddr,
				Handler: promutil.HTTPHandlerForMetric(r),
			}
		})
		if err != nil {
			return err
		}
		if err := serveMetrics(gCtx, g, srv.(*http.Server)); err != nil {
			return err
		}
	}

	close(s.readyCh)
	log.L().Info("executor server is running", zap.Stringer("dataflow-addr", s.svc.LocalAddr()))
	<-gCtx.Done()
	err := g.Wait()
	log.L().Info("executor server is stopping", zap.Error(err))
	return err
}

// Ready is closed once the job service is started.
func (s *Server) Ready() <-chan struct{} {
	return s.readyCh
}

// Service returns the job service. It is nil until Ready is closed.
func (s *Server) Service() *jobservice.Service {
	return s.svc
}

func serveMetrics(ctx context.Context, g *errgroup.Group, srv *http.Server) error {
	l, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return errors.Trace(err)
	}
	log.L().Info("serving metrics", zap.Stringer("addr", l.Addr()))
	g.Go(func() error {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			return errors.Trace(err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricServerShutdownTimeout)
		defer cancel()
		return errors.Trace(srv.Shutdown(shutdownCtx))
	})
	return nil
}
