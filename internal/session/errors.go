package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPhaseTransition = errors.New("operation not allowed in current phase")
	ErrInvalidAccessCode      = errors.New("invalid access code")
	ErrAcknowledgmentRequired = errors.New("instructions must be acknowledged")
	ErrInvalidOption          = errors.New("option is not offered by this question")
	ErrIndexOutOfRange        = errors.New("question index out of range")
	ErrPersistenceWriteFailed = errors.New("snapshot persistence failed")
	ErrReportSubmissionFailed = errors.New("report submission failed")
	ErrFinalizeInProgress     = errors.New("attempt is being finalized")
	ErrSessionClosed          = errors.New("session closed")
)

// Error records the operation and phase a session error came from. It wraps
// one of the sentinels above, so callers match with errors.Is.
type Error struct {
	Op    string
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session %s (phase %s): %v", e.Op, e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
