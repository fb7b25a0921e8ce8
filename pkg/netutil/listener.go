package netutil

import (
	"context"
	"net"
	"strconv"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	derrors "github.com/hanfei1991/dfnode/pkg/errors"
)

// MaxPort is the largest valid TCP port.
const MaxPort = 65535

// BindConfig tells BindListener where to bind.
type BindConfig struct {
	Host string
	// Port is the first port tried.
	Port int
	// AutoIncrement makes BindListener try the next port when a port
	// is already in use, up to MaxPort.
	AutoIncrement bool
}

// bindOutcome is the result of a single bind attempt.
type bindOutcome int

const (
	bindOK bindOutcome = iota
	// the port is taken, another port may be tried
	bindConflict
	// any other error, binding is aborted
	bindFatal
)

func (o bindOutcome) String() string {
	switch o {
	case bindOK:
		return "ok"
	case bindConflict:
		return "conflict"
	case bindFatal:
		return "fatal"
	}
	return "unknown"
}

// BindListener binds a TCP listener with address reuse enabled, scanning
// ports upward from cfg.Port if cfg.AutoIncrement is set. It fails with
// ErrNoAvailablePort if no port could be bound, and with ErrBindListener
// on any error other than a port conflict.
func BindListener(ctx context.Context, cfg BindConfig) (*net.TCPListener, error) {
	if cfg.Port <= 0 || cfg.Port > MaxPort {
		return nil, derrors.ErrInvalidPort.GenWithStackByArgs(cfg.Port)
	}

	for port := cfg.Port; port <= MaxPort; port++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		l, outcome, err := tryBind(ctx, cfg.Host, port)
		switch outcome {
		case bindOK:
			log.L().Info("listener bound",
				zap.String("addr", l.Addr().String()),
				zap.Int("base-port", cfg.Port))
			return l, nil
		case bindFatal:
			return nil, err
		}

		log.L().Debug("port is in use",
			zap.String("host", cfg.Host),
			zap.Int("port", port),
			zap.Bool("auto-increment", cfg.AutoIncrement))
		if !cfg.AutoIncrement {
			return nil, derrors.ErrNoAvailablePort.GenWithStackByArgs(cfg.Port, cfg.Port, cfg.Host)
		}
	}
	return nil, derrors.ErrNoAvailablePort.GenWithStackByArgs(cfg.Port, MaxPort, cfg.Host)
}

func tryBind(ctx context.Context, host string, port int) (*net.TCPListener, bindOutcome, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	lc := net.ListenConfig{Control: reuseAddrControl}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		// the failed socket is closed by Listen
		if isAddrInUse(err) {
			return nil, bindConflict, err
		}
		return nil, bindFatal, derrors.Wrap(derrors.ErrBindListener, err, addr)
	}
	return l.(*net.TCPListener), bindOK, nil
}
