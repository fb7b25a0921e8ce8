package errors

import (
	"github.com/pingcap/errors"
)

// all dataflow node errors
var (
	// endpoint related errors
	ErrNoAvailablePort = errors.Normalize("no available port in range [%d, %d] on host %s", errors.RFCCodeText("DFLOW:ErrNoAvailablePort"))
	ErrBindListener    = errors.Normalize("failed to bind listener on %s", errors.RFCCodeText("DFLOW:ErrBindListener"))
	ErrInvalidPort     = errors.Normalize("invalid port %d", errors.RFCCodeText("DFLOW:ErrInvalidPort"))

	// worker pool related errors
	ErrPoolClosed          = errors.Normalize("executor pool %s is closed", errors.RFCCodeText("DFLOW:ErrPoolClosed"))
	ErrPoolShutdownTimeout = errors.Normalize("executor pool %s did not stop within %s", errors.RFCCodeText("DFLOW:ErrPoolShutdownTimeout"))
	ErrTaskPanicked        = errors.Normalize("task %s panicked: %v", errors.RFCCodeText("DFLOW:ErrTaskPanicked"))

	// state machine related errors
	ErrInvalidTransition = errors.Normalize("state machine %s can not handle event %v in state %v", errors.RFCCodeText("DFLOW:ErrInvalidTransition"))
	ErrUnknownRequest    = errors.Normalize("unknown job master request %T", errors.RFCCodeText("DFLOW:ErrUnknownRequest"))

	// job lifecycle related errors
	ErrJobDuplicate      = errors.Normalize("job context for '%s' already exists", errors.RFCCodeText("DFLOW:ErrJobDuplicate"))
	ErrJobNotFound       = errors.Normalize("no job with name %s found", errors.RFCCodeText("DFLOW:ErrJobNotFound"))
	ErrJobFinalizeFailed = errors.Normalize("could not finalize job %s", errors.RFCCodeText("DFLOW:ErrJobFinalizeFailed"))
	ErrJobCleanupFailed  = errors.Normalize("job %s is finalized but cleanup failed at step %s", errors.RFCCodeText("DFLOW:ErrJobCleanupFailed"))
	ErrInvalidJobName    = errors.Normalize("invalid job name %q", errors.RFCCodeText("DFLOW:ErrInvalidJobName"))
	ErrServiceClosed     = errors.Normalize("job service is closed", errors.RFCCodeText("DFLOW:ErrServiceClosed"))

	// local storage related errors
	ErrLocalStorageFailed = errors.Normalize("local storage operation %s failed", errors.RFCCodeText("DFLOW:ErrLocalStorageFailed"))
	ErrInvalidResourceID  = errors.Normalize("invalid resource id %q", errors.RFCCodeText("DFLOW:ErrInvalidResourceID"))

	// config related errors
	ErrConfigParseFlagSet = errors.Normalize("parse config flag set failed", errors.RFCCodeText("DFLOW:ErrConfigParseFlagSet"))
	ErrConfigDecodeFile   = errors.Normalize("decode config file failed", errors.RFCCodeText("DFLOW:ErrConfigDecodeFile"))
	ErrConfigUnknownItem  = errors.Normalize("unknown config items: %s", errors.RFCCodeText("DFLOW:ErrConfigUnknownItem"))
	ErrConfigInvalidFlag  = errors.Normalize("'%s' is an invalid flag", errors.RFCCodeText("DFLOW:ErrConfigInvalidFlag"))
	ErrConfigInvalidValue = errors.Normalize("invalid value for config item %s: %v", errors.RFCCodeText("DFLOW:ErrConfigInvalidValue"))
)

// Wrap wraps err with the given normalized error.
// It returns nil if err is nil.
func Wrap(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}
