package workerpool

import "time"

const (
	defaultShutdownTimeout = 3 * time.Second
	defaultIdleInterval    = 10 * time.Millisecond
)

// Config is the immutable configuration of a Pool.
type Config struct {
	Name            string
	WorkerCount     int
	ShutdownTimeout time.Duration
	// IdleInterval is the longest time a worker parks when it has nothing
	// runnable. A submission wakes the worker up earlier.
	IdleInterval time.Duration
}

// Adjust fills the zero fields of the Config with default values.
func (c Config) Adjust() Config {
	ret := c
	if ret.WorkerCount <= 0 {
		ret.WorkerCount = 1
	}
	if ret.ShutdownTimeout <= 0 {
		ret.ShutdownTimeout = defaultShutdownTimeout
	}
	if ret.IdleInterval <= 0 {
		ret.IdleInterval = defaultIdleInterval
	}
	return ret
}
