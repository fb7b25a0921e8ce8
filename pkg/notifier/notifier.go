package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"go.uber.org/atomic"

	"github.com/hanfei1991/dfnode/pkg/containers"
)

const flushCheckInterval = 10 * time.Millisecond

type receiverID = int64

// Notifier is the sending endpoint of a single-producer-multiple-consumer
// notification mechanism. Every receiver has its own queue, so a receiver
// that does not keep up never delays Notify or the other receivers.
type Notifier[T any] struct {
	mu        sync.Mutex
	receivers map[receiverID]*Receiver[T]
	nextID    receiverID
	closed    bool
}

// Receiver is the receiving endpoint of a single-producer-multiple-consumer
// notification mechanism. C is closed when the receiver or the notifier
// is closed.
type Receiver[T any] struct {
	id receiverID
	C  chan T

	queue   containers.Queue[T]
	signal  <-chan struct{}
	pending atomic.Int64

	closeOnce sync.Once
	closeCh   chan struct{}
	doneCh    chan struct{}

	notifier *Notifier[T]
}

// NewNotifier creates a new Notifier.
func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{
		receivers: make(map[receiverID]*Receiver[T]),
	}
}

// NewReceiver creates a new Receiver associated with the given Notifier.
// It only sees the events notified after it was created. A receiver
// created after the notifier is closed has its channel closed already.
func (n *Notifier[T]) NewReceiver() *Receiver[T] {
	queue := containers.NewSliceQueue[T]()
	r := &Receiver[T]{
		C:        make(chan T, 16),
		queue:    queue,
		signal:   queue.C,
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
		notifier: n,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(r.closeCh)
		close(r.doneCh)
		close(r.C)
		return r
	}
	n.nextID++
	r.id = n.nextID
	n.receivers[r.id] = r
	go r.run()
	return r
}

// Notify sends a new notification event to all receivers. It never blocks.
func (n *Notifier[T]) Notify(event T) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, r := range n.receivers {
		r.pending.Inc()
		r.queue.Add(event)
	}
}

// Flush waits until every event notified so far has been delivered to the
// channels of the receivers still open.
func (n *Notifier[T]) Flush(ctx context.Context) error {
	ticker := time.NewTicker(flushCheckInterval)
	defer ticker.Stop()

	for {
		if n.pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (n *Notifier[T]) pending() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	var total int64
	for _, r := range n.receivers {
		total += r.pending.Load()
	}
	return total
}

// Close closes the notifier and all of its receivers.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	n.closed = true
	receivers := make([]*Receiver[T], 0, len(n.receivers))
	for _, r := range n.receivers {
		receivers = append(receivers, r)
	}
	n.mu.Unlock()

	for _, r := range receivers {
		r.Close()
	}
}

// Close closes the receiver. Pending events are dropped.
func (r *Receiver[T]) Close() {
	r.closeOnce.Do(func() {
		close(r.closeCh)
	})
	<-r.doneCh

	r.notifier.mu.Lock()
	delete(r.notifier.receivers, r.id)
	r.notifier.mu.Unlock()
}

func (r *Receiver[T]) run() {
	defer func() {
		close(r.C)
		close(r.doneCh)
	}()

	for {
		select {
		case <-r.closeCh:
			return
		case <-r.signal:
		}

		for {
			event, ok := r.queue.Pop()
			if !ok {
				break
			}
			select {
			case <-r.closeCh:
				return
			case r.C <- event:
				r.pending.Dec()
			}
		}
	}
}
