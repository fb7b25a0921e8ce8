package jobservice

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hanfei1991/dfnode/pkg/autoid"
	"github.com/hanfei1991/dfnode/pkg/workerpool"
)

const (
	acceptorTaskID     = "connection-acceptor"
	acceptPollInterval = 50 * time.Millisecond
)

// acceptor accepts the inbound dataflow connections and hands them over
// to the network pool. It finishes when the listener is closed.
type acceptor struct {
	listener    *net.TCPListener
	networkPool *workerpool.Pool
	handler     ConnHandler
	connIDs     autoid.Allocator

	// accept errors can repeat in a tight loop, e.g. when out of fds
	errLogLimiter *rate.Limiter
	accepted      prometheus.Counter
}

func newAcceptor(
	listener *net.TCPListener,
	networkPool *workerpool.Pool,
	handler ConnHandler,
	accepted prometheus.Counter,
) *acceptor {
	return &acceptor{
		listener:      listener,
		networkPool:   networkPool,
		handler:       handler,
		connIDs:       autoid.NewSeqAllocator("conn"),
		errLogLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		accepted:      accepted,
	}
}

func (a *acceptor) ID() string {
	return acceptorTaskID
}

func (a *acceptor) Poll(_ context.Context) (workerpool.Status, error) {
	if err := a.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return a.stop()
		}
		return workerpool.Finished, err
	}

	conn, err := a.listener.AcceptTCP()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return a.stop()
		}
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			if a.errLogLimiter.Allow() {
				log.L().Warn("accept connection failed", zap.Error(err))
			}
		}
		// the deadline already made us wait
		return workerpool.Runnable, nil
	}

	a.accepted.Inc()
	id := a.connIDs.AllocID()
	if err := a.networkPool.Submit(newConnTask(id, conn, a.handler)); err != nil {
		log.L().Info("network pool is closed, rejecting connection",
			zap.Stringer("remote", conn.RemoteAddr()))
		_ = conn.Close()
		return a.stop()
	}
	log.L().Debug("connection accepted",
		zap.String("conn-id", id),
		zap.Stringer("remote", conn.RemoteAddr()))
	return workerpool.Runnable, nil
}

func (a *acceptor) stop() (workerpool.Status, error) {
	log.L().Info("connection acceptor stopped", zap.Stringer("addr", a.listener.Addr()))
	return workerpool.Finished, nil
}

func (a *acceptor) Close() error {
	return nil
}
