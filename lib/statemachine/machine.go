package statemachine

import (
	"context"
	"fmt"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	derrors "github.com/hanfei1991/dfnode/pkg/errors"
	"github.com/hanfei1991/dfnode/pkg/future"
	"github.com/hanfei1991/dfnode/pkg/workerpool"
)

// Transitions maps a state and an event to the next state.
// A missing entry means the event is not allowed in that state.
type Transitions[S comparable, E comparable] map[S]map[E]S

// Machine is a state machine whose events are processed one at a time on
// a dedicated executor, in the order they were handed in.
type Machine[S comparable, E comparable] struct {
	name        string
	transitions Transitions[S, E]
	executor    *workerpool.Pool

	mu    sync.RWMutex
	state S
}

// New creates a Machine in the initial state. The executor should have a
// single worker, otherwise events may be applied out of order.
func New[S comparable, E comparable](
	name string,
	initial S,
	transitions Transitions[S, E],
	executor *workerpool.Pool,
) *Machine[S, E] {
	return &Machine[S, E]{
		name:        name,
		transitions: transitions,
		executor:    executor,
		state:       initial,
	}
}

// Name returns the name of the machine.
func (m *Machine[S, E]) Name() string {
	return m.name
}

// Executor returns the pool the machine processes its events on.
func (m *Machine[S, E]) Executor() *workerpool.Pool {
	return m.executor
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Handle submits event to the executor. The returned future holds the
// state reached after the event, or ErrInvalidTransition if the event is
// not allowed, or ErrPoolClosed if the executor is shut down before the
// event is processed.
func (m *Machine[S, E]) Handle(event E) *future.Future[S] {
	t := &eventTask[S, E]{
		machine: m,
		event:   event,
		result:  future.New[S](),
	}
	if err := m.executor.Submit(t); err != nil {
		t.result.Reject(err)
	}
	return t.result
}

// Shutdown stops the executor of the machine. Events still queued are
// rejected. It is idempotent.
func (m *Machine[S, E]) Shutdown() error {
	return m.executor.Shutdown()
}

func (m *Machine[S, E]) apply(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	to, ok := m.transitions[from][event]
	if !ok {
		return from, derrors.ErrInvalidTransition.GenWithStackByArgs(m.name, event, from)
	}
	m.state = to
	log.L().Debug("state machine transition",
		zap.String("machine", m.name),
		zap.Any("event", event),
		zap.Any("from", from),
		zap.Any("to", to))
	return to, nil
}

type eventTask[S comparable, E comparable] struct {
	machine *Machine[S, E]
	event   E
	result  *future.Future[S]
}

func (t *eventTask[S, E]) ID() string {
	return fmt.Sprintf("%s/%v", t.machine.name, t.event)
}

func (t *eventTask[S, E]) Poll(_ context.Context) (workerpool.Status, error) {
	to, err := t.machine.apply(t.event)
	if err != nil {
		t.result.Reject(err)
	} else {
		t.result.Resolve(to)
	}
	return workerpool.Finished, nil
}

func (t *eventTask[S, E]) Close() error {
	// no-op if the event has been processed
	t.result.Reject(derrors.ErrPoolClosed.GenWithStackByArgs(t.machine.executor.Name()))
	return nil
}
