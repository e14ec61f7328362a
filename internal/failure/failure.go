// Package failure defines the error kinds raised by the build pipeline, the
// runtime executor and the resource watcher, grouped into the class that
// decides how far a failure propagates.
package failure

import (
	"errors"
	"fmt"
)

// Class groups error kinds by blast radius.
type Class int

const (
	// ClassUnknown is returned for errors that carry no failure kind.
	ClassUnknown Class = iota
	// ClassBuild failures abort the current build attempt only.
	ClassBuild
	// ClassRuntime failures are fatal to the hosting process.
	ClassRuntime
	// ClassWatch failures are logged and retried.
	ClassWatch
)

func (c Class) String() string {
	switch c {
	case ClassBuild:
		return "BuildFailure"
	case ClassRuntime:
		return "RuntimeFailure"
	case ClassWatch:
		return "WatchFailure"
	default:
		return "Unknown"
	}
}

// Build failures.
var (
	ErrNonSerializableArgument   = errors.New("NonSerializableArgument")
	ErrDuplicateStepName         = errors.New("DuplicateStepName")
	ErrCyclicBuildStepDependency = errors.New("CyclicBuildStepDependency")
	ErrMissingRequiredConfig     = errors.New("MissingRequiredConfig")
	ErrUnsupportedRecording      = errors.New("UnsupportedRecording")
	ErrUnsatisfiedInput          = errors.New("UnsatisfiedInput")
	ErrDuplicateProducer         = errors.New("DuplicateProducer")
	ErrStepFailed                = errors.New("StepFailed")
)

// Runtime failures.
var (
	ErrUnresolvedCapability = errors.New("UnresolvedCapability")
	ErrReplayTypeMismatch   = errors.New("ReplayTypeMismatch")
	ErrPhaseAlreadyExecuted = errors.New("PhaseAlreadyExecuted")
	ErrInvocationFailed     = errors.New("InvocationFailed")
)

// Watch failures.
var (
	ErrResourceUnreadable = errors.New("ResourceUnreadable")
)

var classes = map[error]Class{
	ErrNonSerializableArgument:   ClassBuild,
	ErrDuplicateStepName:         ClassBuild,
	ErrCyclicBuildStepDependency: ClassBuild,
	ErrMissingRequiredConfig:     ClassBuild,
	ErrUnsupportedRecording:      ClassBuild,
	ErrUnsatisfiedInput:          ClassBuild,
	ErrDuplicateProducer:         ClassBuild,
	ErrStepFailed:                ClassBuild,
	ErrUnresolvedCapability:      ClassRuntime,
	ErrReplayTypeMismatch:        ClassRuntime,
	ErrPhaseAlreadyExecuted:      ClassRuntime,
	ErrInvocationFailed:          ClassRuntime,
	ErrResourceUnreadable:        ClassWatch,
}

// Error is a classified failure. Kind is one of the sentinels above and is
// matched with errors.Is; Cause, when set, is the underlying error.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// New builds a classified error with a formatted message.
func New(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a classified error around cause.
func Wrap(kind error, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the first failure kind found in err's chain, or nil.
func KindOf(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return nil
}

// ClassOf reports the class of the first classified failure in err's chain.
func ClassOf(err error) Class {
	kind := KindOf(err)
	if kind == nil {
		return ClassUnknown
	}
	return classes[kind]
}

// IsBuild reports whether err is a build failure.
func IsBuild(err error) bool { return ClassOf(err) == ClassBuild }

// IsRuntime reports whether err is a runtime failure.
func IsRuntime(err error) bool { return ClassOf(err) == ClassRuntime }
