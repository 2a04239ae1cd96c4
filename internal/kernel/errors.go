package kernel

import "fmt"

// ErrorCode is the closed taxonomy of outcomes every embedded API entry
// point can return. Success and DeadlockDetected are schedule-ending
// outcomes, not failures; the rest are genuine errors.
type ErrorCode int

const (
	Success ErrorCode = iota

	SchedulerDisabled
	ClientAttached
	ClientNotAttached

	DuplicateOperation
	NotExistingOperation
	OperationNotStarted
	OperationAlreadyStarted
	OperationAlreadyCompleted
	MainOperationExplicitlyCreated
	MainOperationExplicitlyStarted
	MainOperationExplicitlyCompleted

	DuplicateResource
	NotExistingResource

	DeadlockDetected

	InternalError
	Failure
)

var errorCodeNames = map[ErrorCode]string{
	Success:                         "Success",
	SchedulerDisabled:                "SchedulerDisabled",
	ClientAttached:                   "ClientAttached",
	ClientNotAttached:                "ClientNotAttached",
	DuplicateOperation:               "DuplicateOperation",
	NotExistingOperation:             "NotExistingOperation",
	OperationNotStarted:              "OperationNotStarted",
	OperationAlreadyStarted:          "OperationAlreadyStarted",
	OperationAlreadyCompleted:        "OperationAlreadyCompleted",
	MainOperationExplicitlyCreated:   "MainOperationExplicitlyCreated",
	MainOperationExplicitlyStarted:   "MainOperationExplicitlyStarted",
	MainOperationExplicitlyCompleted: "MainOperationExplicitlyCompleted",
	DuplicateResource:                "DuplicateResource",
	NotExistingResource:              "NotExistingResource",
	DeadlockDetected:                 "DeadlockDetected",
	InternalError:                    "InternalError",
	Failure:                          "Failure",
}

// String implements fmt.Stringer for readable logs and JSON error bodies.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Error wraps an ErrorCode so kernel-internal call sites can use normal Go
// error handling (errors.As, wrapping with %w) while the embedded API keeps
// returning bare ErrorCode values to its callers, per the spec's "plain
// result codes, not exceptions" policy.
type Error struct {
	Code ErrorCode
}

func (e *Error) Error() string {
	return e.Code.String()
}

// Is lets errors.Is(err, kernel.ErrCode(X)) work against a *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ErrCode constructs a sentinel *Error for a given code, for use with
// errors.Is in tests and call sites that prefer idiomatic error comparison.
func ErrCode(c ErrorCode) *Error {
	return &Error{Code: c}
}

// terminal reports whether a code ends the current iteration's schedule.
func (c ErrorCode) terminal() bool {
	return c == Success || c == DeadlockDetected
}
