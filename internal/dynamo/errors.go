package dynamo

import (
	"errors"
	"fmt"
)

// Fatal condition kinds. Every error that reaches the top level is
// classified against these with [KindOf].
var (
	// ErrConfigOpen indicates the configuration file is missing or unreadable.
	ErrConfigOpen = errors.New("config open error")

	// ErrConfigShape indicates a dataset with unexpected dimensions or an
	// unsupported number of systems.
	ErrConfigShape = errors.New("config shape error")

	// ErrOutputCollision indicates the output namespace already exists and
	// overwriting was not requested.
	ErrOutputCollision = errors.New("output collision error")

	// ErrRegressionTolerance indicates the RMS force deviation exceeds the
	// configured tolerance.
	ErrRegressionTolerance = errors.New("regression tolerance error")

	// ErrRegressionDuplicate indicates a reference derivative was already
	// recorded when generating a new one was requested.
	ErrRegressionDuplicate = errors.New("regression duplicate error")
)

// Error wraps a fatal condition with its kind and an operator-facing message.
type Error struct {
	Kind    error
	Msg     string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return e.Msg + ": " + e.Wrapped.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Wrapped != nil {
		return []error{e.Kind, e.Wrapped}
	}
	return []error{e.Kind}
}

// Errorf returns an *Error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind that keeps err as its cause.
func Wrap(kind error, err error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Wrapped: err}
}

// KindOf names the kind of err, or "UnknownError" if it carries none.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigOpen):
		return "ConfigOpenError"
	case errors.Is(err, ErrConfigShape):
		return "ConfigShapeError"
	case errors.Is(err, ErrOutputCollision):
		return "OutputCollisionError"
	case errors.Is(err, ErrRegressionTolerance):
		return "RegressionToleranceError"
	case errors.Is(err, ErrRegressionDuplicate):
		return "RegressionDuplicateError"
	default:
		return "UnknownError"
	}
}
