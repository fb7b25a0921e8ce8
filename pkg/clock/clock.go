package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gavv/monotime"
)

// Clock is the time source used by components that need to be tested
// with a mocked time.
type Clock = bclock.Clock

// Mock is a mocked Clock.
type Mock = bclock.Mock

// New returns a Clock backed by the system time.
func New() Clock {
	return bclock.New()
}

// NewMock returns a mocked Clock starting at the Unix epoch.
func NewMock() *Mock {
	return bclock.NewMock()
}

// MonotonicTime is a reading of the monotonic clock.
type MonotonicTime time.Duration

// MonoNow returns the current monotonic time.
func MonoNow() MonotonicTime {
	return MonotonicTime(monotime.Now())
}

// Sub returns the duration elapsed between t0 and t.
func (t MonotonicTime) Sub(t0 MonotonicTime) time.Duration {
	return time.Duration(t - t0)
}
