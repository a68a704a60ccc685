package dispatch

import "errors"

// Turn-level failure taxonomy. Parse failures are recovered inside the
// routing parser and never surface here.
var (
	ErrClassifierInvocation = errors.New("classifier invocation failed")
	ErrHandlerInvocation    = errors.New("handler invocation failed")
	ErrStoreLoad            = errors.New("session load failed")
	ErrStoreSave            = errors.New("session save failed")
)

// turnError pairs a taxonomy sentinel with its cause so both survive
// errors.Is / errors.Unwrap chains.
type turnError struct {
	kind  error
	cause error
}

func (e *turnError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *turnError) Is(target error) bool { return target == e.kind }

func (e *turnError) Unwrap() error { return e.cause }

func wrapTurn(kind, cause error) error { return &turnError{kind: kind, cause: cause} }
