package diagnosis

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMalformedTrace          ErrorKind = "malformed_trace"
	KindUnsupportedCallType     ErrorKind = "unsupported_call_type"
	KindClassificationAmbiguous ErrorKind = "classification_ambiguous"
	KindInvariantViolation      ErrorKind = "invariant_violation"
)

var (
	ErrMalformedTrace          = errors.New("diagnosis: malformed trace")
	ErrUnsupportedCallType     = errors.New("diagnosis: unsupported call type")
	ErrClassificationAmbiguous = errors.New("diagnosis: classification ambiguous")
	ErrInvariantViolation      = errors.New("diagnosis: invariant violation")
)

// Error is the typed failure returned by the engine. errors.Is matches it
// against the sentinel of its kind.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.sentinel().Error(), e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.sentinel(), e.Err}
	}
	return []error{e.sentinel()}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindMalformedTrace:
		return ErrMalformedTrace
	case KindUnsupportedCallType:
		return ErrUnsupportedCallType
	case KindClassificationAmbiguous:
		return ErrClassificationAmbiguous
	default:
		return ErrInvariantViolation
	}
}

func malformed(path string, format string, args ...any) *Error {
	return &Error{Kind: KindMalformedTrace, Detail: fmt.Sprintf("frame %s: ", path) + fmt.Sprintf(format, args...)}
}

func invariant(format string, args ...any) *Error {
	return &Error{Kind: KindInvariantViolation, Detail: fmt.Sprintf(format, args...)}
}
