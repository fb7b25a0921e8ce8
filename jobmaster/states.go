package jobmaster

import (
	"github.com/hanfei1991/dfnode/lib/statemachine"
)

// JobState is the state of the job and of its master.
type JobState int32

// job states
const (
	JobNew JobState = iota + 1
	JobExecuting
	JobCompleted
	JobFailed
	JobInterrupted
	JobFinalized
)

var jobStateNames = map[JobState]string{
	JobNew:         "new",
	JobExecuting:   "executing",
	JobCompleted:   "completed",
	JobFailed:      "failed",
	JobInterrupted: "interrupted",
	JobFinalized:   "finalized",
}

func (s JobState) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// JobEvent drives the job state machines.
type JobEvent string

// job events
const (
	EventExecute   JobEvent = "execute"
	EventComplete  JobEvent = "complete"
	EventFail      JobEvent = "fail"
	EventInterrupt JobEvent = "interrupt"
	EventFinalize  JobEvent = "finalize"
)

// A job can not be finalized while it is executing; it has to complete,
// fail or be interrupted first. Finalizing twice is allowed so that a
// destroy can be retried after a partial cleanup.
var jobTransitions = statemachine.Transitions[JobState, JobEvent]{
	JobNew: {
		EventExecute:  JobExecuting,
		EventFinalize: JobFinalized,
	},
	JobExecuting: {
		EventComplete:  JobCompleted,
		EventFail:      JobFailed,
		EventInterrupt: JobInterrupted,
	},
	JobCompleted: {
		EventFinalize: JobFinalized,
	},
	JobFailed: {
		EventFinalize: JobFinalized,
	},
	JobInterrupted: {
		EventFinalize: JobFinalized,
	},
	JobFinalized: {
		EventFinalize: JobFinalized,
	},
}

// ContainerState is the state of the job's data containers.
type ContainerState int32

// container states
const (
	ContainerIdle ContainerState = iota + 1
	ContainerRunning
	ContainerClosed
)

func (s ContainerState) String() string {
	switch s {
	case ContainerIdle:
		return "idle"
	case ContainerRunning:
		return "running"
	case ContainerClosed:
		return "closed"
	}
	return "unknown"
}

// ContainerEvent drives the data container state machine.
type ContainerEvent string

// container events
const (
	ContainerStart ContainerEvent = "start"
	ContainerStop  ContainerEvent = "stop"
	ContainerClose ContainerEvent = "close"
)

var containerTransitions = statemachine.Transitions[ContainerState, ContainerEvent]{
	ContainerIdle: {
		ContainerStart: ContainerRunning,
		ContainerStop:  ContainerIdle,
		ContainerClose: ContainerClosed,
	},
	ContainerRunning: {
		ContainerStop:  ContainerIdle,
		ContainerClose: ContainerClosed,
	},
	ContainerClosed: {
		ContainerClose: ContainerClosed,
	},
}
