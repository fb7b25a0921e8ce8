package jobservice

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/hanfei1991/dfnode/pkg/workerpool"
)

const (
	connReadTimeout = 10 * time.Millisecond
	connBufferSize  = 32 * 1024
)

// ConnHandler consumes the bytes received on the dataflow connections.
// Its methods are called from the network pool. The calls for one
// connection never overlap.
type ConnHandler interface {
	// OnData is called with the bytes read from a connection. data is
	// only valid during the call. Returning an error closes the connection.
	OnData(connID string, remote net.Addr, data []byte) error
	// OnClose is called once when a connection is closed.
	OnClose(connID string)
}

type discardHandler struct{}

func (discardHandler) OnData(string, net.Addr, []byte) error { return nil }
func (discardHandler) OnClose(string)                        {}

// DiscardHandler drops everything it receives.
var DiscardHandler ConnHandler = discardHandler{}

// connTask reads an accepted connection on the network pool.
type connTask struct {
	id      string
	conn    net.Conn
	handler ConnHandler
	buf     []byte
}

func newConnTask(id string, conn net.Conn, handler ConnHandler) *connTask {
	return &connTask{
		id:      id,
		conn:    conn,
		handler: handler,
		buf:     make([]byte, connBufferSize),
	}
}

func (t *connTask) ID() string {
	return "conn-" + t.id
}

func (t *connTask) Poll(_ context.Context) (workerpool.Status, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(connReadTimeout)); err != nil {
		return t.onReadError(err)
	}
	n, err := t.conn.Read(t.buf)
	if n > 0 {
		if herr := t.handler.OnData(t.id, t.conn.RemoteAddr(), t.buf[:n]); herr != nil {
			return workerpool.Finished, herr
		}
	}
	if err != nil {
		return t.onReadError(err)
	}
	return workerpool.Runnable, nil
}

func (t *connTask) onReadError(err error) (workerpool.Status, error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return workerpool.Blocked, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		log.L().Debug("connection closed by peer",
			zap.String("conn-id", t.id),
			zap.Stringer("remote", t.conn.RemoteAddr()))
		return workerpool.Finished, nil
	}
	return workerpool.Finished, err
}

func (t *connTask) Close() error {
	defer t.handler.OnClose(t.id)
	if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
