package core

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrTaskNotEnabled          = errors.New("task not enabled")
	ErrJoinNotSatisfied        = errors.New("join not satisfied")
	ErrInsufficientMarking     = errors.New("insufficient marking")
	ErrRoutingDecisionRequired = errors.New("routing decision required")
	ErrInvalidSplitSelection   = errors.New("invalid split selection")
	ErrUnknownCondition        = errors.New("unknown condition")

	// ErrConcurrentModification is returned when a transaction conflicts with a concurrent write to the
	// same workflow instance. It is the only error callers are expected to retry, with freshly read state.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// IsRetryable reports whether the operation that returned err can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// Failure describes why a work item or workflow instance failed. It is persisted with the failed
// record and can be restored as an error.
type Failure struct {
	Type       string `json:"type,omitempty"`
	Message    string `json:"message,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Stack() string {
	return f.Stacktrace
}

var _ error = (*Failure)(nil)
