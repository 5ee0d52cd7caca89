package workflowerrors

import (
	"errors"

	"github.com/cschleiden/go-wfnet/core"
)

// FromError converts the given error into a failure which can be persisted with a work item or
// workflow instance. A stack trace is captured unless the error carries one already.
func FromError(err error) *core.Failure {
	if err == nil {
		return nil
	}

	// Already converted, do not wrap again
	var f *core.Failure
	if errors.As(err, &f) {
		return f
	}

	f = &core.Failure{
		Type:    errorType(err),
		Message: err.Error(),
	}

	if stackTracer, ok := err.(interface{ Stack() string }); ok {
		f.Stacktrace = stackTracer.Stack()
	} else {
		f.Stacktrace = stack(err)
	}

	return f
}

// FromMessage creates a failure for a modeled outcome that has no originating Go error, e.g. a failed
// sub-workflow.
func FromMessage(failureType, message string) *core.Failure {
	return &core.Failure{
		Type:    failureType,
		Message: message,
	}
}
