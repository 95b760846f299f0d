// Package lcerror provides the error type shared across the lechange
// pipeline: a small message plus a fieldless kind tag that callers can
// switch on without string matching.
package lcerror

import (
	"errors"
	"fmt"
)

// Kind tags an Error with its category. It is a plain byte so values are
// cheap to compare and carry no allocation.
type Kind uint8

const (
	KindGit Kind = iota
	KindInvalidPath
	KindConfig
	KindIO
	KindRuntime
	KindPattern
	KindHTTP
	KindWorkflow
	KindWorkflowTimeout
	KindRateLimitExceeded
	KindRecovery
	KindYAML
	KindEventParse
	KindShallowExhausted
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindGit:
		return "git"
	case KindInvalidPath:
		return "invalid_path"
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindRuntime:
		return "runtime"
	case KindPattern:
		return "pattern"
	case KindHTTP:
		return "http"
	case KindWorkflow:
		return "workflow"
	case KindWorkflowTimeout:
		return "workflow_timeout"
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindRecovery:
		return "recovery"
	case KindYAML:
		return "yaml"
	case KindEventParse:
		return "event_parse"
	case KindShallowExhausted:
		return "shallow_exhausted"
	default:
		return "other"
	}
}

// Error is the error type returned by every package in this module.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a new Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message context to an existing error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from an error, defaulting to KindOther for
// errors that did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}
