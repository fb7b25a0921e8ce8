package jobservice

import (
	"github.com/hanfei1991/dfnode/model"
)

// JobEventType is the kind of a JobEvent.
type JobEventType int32

// job event types
const (
	JobCreated JobEventType = iota + 1
	JobDestroyed
)

func (t JobEventType) String() string {
	switch t {
	case JobCreated:
		return "created"
	case JobDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// JobEvent tells watchers that a job context was added to or removed from
// the registry.
type JobEvent struct {
	Type      JobEventType
	Name      model.JobName
	ContextID string
}
