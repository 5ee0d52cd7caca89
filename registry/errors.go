package registry

import "github.com/cschleiden/go-wfnet/core"

type ErrInvalidWorkflow struct {
	msg string
	err error
}

func (e *ErrInvalidWorkflow) Error() string {
	return e.msg
}

func (e *ErrInvalidWorkflow) Unwrap() error {
	return e.err
}

type ErrVersionAlreadyRegistered struct {
	msg string
}

func (e *ErrVersionAlreadyRegistered) Error() string {
	return e.msg
}

type ErrWorkflowNotFound struct {
	msg string
}

func (e *ErrWorkflowNotFound) Error() string {
	return e.msg
}

// Is makes lookup failures match core.ErrNotFound.
func (e *ErrWorkflowNotFound) Is(target error) bool {
	return target == core.ErrNotFound
}
