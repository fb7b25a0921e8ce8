package jobmaster

// Request is a control request handled by the job master.
type Request interface {
	jobEvent() JobEvent
	containerEvent() ContainerEvent
}

// ExecuteRequest starts the execution of the job.
type ExecuteRequest struct{}

// CompleteRequest reports the end of the execution. A non-nil Err
// moves the job to the failed state.
type CompleteRequest struct {
	Err error
}

// InterruptRequest stops an executing job.
type InterruptRequest struct{}

// FinalizeRequest asks the master to wind the job down so that it can
// be removed from the node.
type FinalizeRequest struct{}

func (ExecuteRequest) jobEvent() JobEvent             { return EventExecute }
func (ExecuteRequest) containerEvent() ContainerEvent { return ContainerStart }

func (r CompleteRequest) jobEvent() JobEvent {
	if r.Err != nil {
		return EventFail
	}
	return EventComplete
}
func (CompleteRequest) containerEvent() ContainerEvent { return ContainerStop }

func (InterruptRequest) jobEvent() JobEvent             { return EventInterrupt }
func (InterruptRequest) containerEvent() ContainerEvent { return ContainerStop }

func (FinalizeRequest) jobEvent() JobEvent             { return EventFinalize }
func (FinalizeRequest) containerEvent() ContainerEvent { return ContainerClose }

// Response is the answer of the master to a Request.
type Response struct {
	Success bool
	// State is the master state after the request was handled.
	State JobState
	// Err explains why the request did not succeed.
	Err error
}
